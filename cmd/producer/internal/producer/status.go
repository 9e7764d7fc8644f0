package producer

import (
	"context"
	"fmt"
	"io"
	"time"
)

// StatusReporter prints producer throughput at a fixed interval.
type StatusReporter struct {
	stats    *Stats
	out      io.Writer
	interval time.Duration

	lastCount int64
	lastTime  time.Time
}

func NewStatusReporter(stats *Stats, out io.Writer, interval time.Duration) *StatusReporter {
	return &StatusReporter{stats: stats, out: out, interval: interval}
}

func (r *StatusReporter) Run(ctx context.Context) error {
	r.Reset(time.Now())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Report(now)
		}
	}
}

// Reset starts a new window at now.
func (r *StatusReporter) Reset(now time.Time) {
	r.lastCount = r.stats.Sent()
	r.lastTime = now
}

// Report prints the window ending at now and starts a new one.
func (r *StatusReporter) Report(now time.Time) {
	current := r.stats.Sent()
	sent := current - r.lastCount

	var throughput float64
	if elapsed := now.Sub(r.lastTime); elapsed > 0 {
		throughput = float64(sent) / elapsed.Seconds()
	}

	fmt.Fprintf(r.out, "\n=== Stats (last %s) ===\n", r.interval)
	fmt.Fprintf(r.out, "Messages sent: %d\n", sent)
	fmt.Fprintf(r.out, "Throughput: %d msg/sec\n", int64(throughput))
	fmt.Fprintf(r.out, "Total messages: %d\n", current)
	fmt.Fprintf(r.out, "Total errors: %d\n", r.stats.Errors())
	fmt.Fprintf(r.out, "=====================\n\n")

	r.lastCount = current
	r.lastTime = now
}
