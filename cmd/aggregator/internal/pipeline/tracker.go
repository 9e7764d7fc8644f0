package pipeline

import (
	"math"
	"sync/atomic"
)

// Tracker accumulates end-to-end latency samples without locks. It is
// written by the consumer and read at any time by the reporter.
type Tracker struct {
	count atomic.Int64
	sum   atomic.Int64
	min   atomic.Int64
	max   atomic.Int64
}

// TrackerSnapshot is a point-in-time view of a Tracker. The fields are read
// one after another, so Sum, Min and Max can include a sample that Count does
// not yet. Once Count > 0, Min and Max always hold real samples.
type TrackerSnapshot struct {
	Count int64
	Sum   int64 // ns
	Min   int64 // ns
	Max   int64 // ns
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.min.Store(math.MaxInt64)
	return t
}

// Record adds one latency sample in nanoseconds. Callers pass ns >= 0.
func (t *Tracker) Record(ns int64) {
	// Min and max land before count, so a reader that sees the sample
	// counted also sees it in the bounds.
	// Compare-and-swap until we win or another writer already holds a
	// smaller (larger) value.
	for cur := t.min.Load(); ns < cur; cur = t.min.Load() {
		if t.min.CompareAndSwap(cur, ns) {
			break
		}
	}
	for cur := t.max.Load(); ns > cur; cur = t.max.Load() {
		if t.max.CompareAndSwap(cur, ns) {
			break
		}
	}

	t.sum.Add(ns)
	t.count.Add(1)
}

// Snapshot reads the counters, count first. Min and Max are only meaningful
// when Count > 0.
func (t *Tracker) Snapshot() TrackerSnapshot {
	var s TrackerSnapshot
	s.Count = t.count.Load()
	s.Sum = t.sum.Load()
	s.Min = t.min.Load()
	s.Max = t.max.Load()
	return s
}
