package testutils

import (
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/wire"
)

// Message wraps u the way a producer publishes it.
func Message(u models.MarketUpdate) kafka.Message {
	return kafka.Message{Key: []byte(u.Ticker), Value: wire.Marshal(u)}
}

// Sequence builds n updates for ticker with strictly increasing timestamps
// starting at start, one microsecond apart. Prices are 100 + i/100 and
// offsets count from 0.
func Sequence(ticker string, n int, start time.Time) []kafka.Message {
	msgs := make([]kafka.Message, n)
	for i := range msgs {
		msgs[i] = Message(models.MarketUpdate{
			Ticker:      ticker,
			Price:       100 + float64(i)/100,
			Volume:      int32(100 + i%1000),
			TimestampNs: start.Add(time.Duration(i) * time.Microsecond).UnixNano(),
		})
		msgs[i].Offset = int64(i)
	}
	return msgs
}
