package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Reporter prints latency and queue statistics on a fixed period. It only
// reads pipeline state.
type Reporter struct {
	p        *Pipeline
	out      io.Writer
	interval time.Duration
}

func NewReporter(p *Pipeline, out io.Writer, interval time.Duration) *Reporter {
	return &Reporter{p: p, out: out, interval: interval}
}

func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report writes one report. It writes nothing and returns false while no
// latency sample has been recorded.
func (r *Reporter) Report() bool {
	s := r.p.Tracker.Snapshot()
	if s.Count == 0 {
		return false
	}

	avgMs := float64(s.Sum) / float64(s.Count) / 1e6
	minMs := float64(s.Min) / 1e6
	maxMs := float64(s.Max) / 1e6

	fmt.Fprintf(r.out, "\n=== Stats ===\n")
	fmt.Fprintf(r.out, "Processed: %d | Queue: %d\n", s.Count, r.p.Queue.Len())
	fmt.Fprintf(r.out, "Latency (ms) - Avg: %.3f | Min: %.3f | Max: %.3f\n", avgMs, minMs, maxMs)
	fmt.Fprintf(r.out, "=============\n\n")
	return true
}
