package models

import "time"

// MarketUpdate is the event published by producers onto the broker topic
type MarketUpdate struct {
	Ticker      string
	Price       float64
	Volume      int32
	TimestampNs int64 // unix nano, assigned by the producer
}

// UpdateRecord is a decoded MarketUpdate plus the latency observed by the
// consumer. Records are passed by value and never modified after creation.
type UpdateRecord struct {
	Ticker     string
	Price      float64
	Volume     int64
	ProducedAt int64         // unix nano
	Latency    time.Duration // never negative
}

// NewUpdateRecord stamps u with the latency between its production time and
// observedAt. Clock skew that would make the latency negative yields zero.
func NewUpdateRecord(u MarketUpdate, observedAt time.Time) UpdateRecord {
	latency := time.Duration(observedAt.UnixNano() - u.TimestampNs)
	if latency < 0 {
		latency = 0
	}
	return UpdateRecord{
		Ticker:     u.Ticker,
		Price:      u.Price,
		Volume:     int64(u.Volume),
		ProducedAt: u.TimestampNs,
		Latency:    latency,
	}
}

// Row is one persisted line of the market_updates table
type Row struct {
	Time      time.Time
	Ticker    string
	Price     float64
	Volume    int64
	LatencyMs float64
}

func (r UpdateRecord) Row() Row {
	return Row{
		Time:      time.Unix(0, r.ProducedAt).UTC(),
		Ticker:    r.Ticker,
		Price:     r.Price,
		Volume:    r.Volume,
		LatencyMs: float64(r.Latency) / float64(time.Millisecond),
	}
}
