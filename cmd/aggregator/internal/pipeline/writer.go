package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/metrics"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

type WriterConfig struct {
	BatchSize       int           // size threshold
	FlushInterval   time.Duration // time threshold
	IdleSleep       time.Duration // pause when there is nothing to do
	WriteTimeout    time.Duration // upper bound of one bulk insert
	ShutdownTimeout time.Duration // upper bound of each final flush
}

// Writer moves records from the hand-off queue into the store in batches.
//
// A batch is flushed when it holds BatchSize records, or when it is non-empty
// and FlushInterval has passed since the last successful flush. A failed
// flush keeps the batch as is and retries it on the next iteration.
type Writer struct {
	p       *Pipeline
	store   Store
	logger  Logger
	metrics *metrics.Metrics
	cfg     WriterConfig

	now       func() time.Time
	pending   []models.UpdateRecord
	lastFlush time.Time
	written   atomic.Int64
}

func NewWriter(p *Pipeline, store Store, logger Logger, m *metrics.Metrics, cfg WriterConfig) *Writer {
	return &Writer{
		p:       p,
		store:   store,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		pending: make([]models.UpdateRecord, 0, cfg.BatchSize),
	}
}

// Run loops until ctx is done, then drains the queue into one or more final
// flushes.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("Batch writer started",
		zap.Int("batch_size", w.cfg.BatchSize), zap.Duration("flush_interval", w.cfg.FlushInterval))

	w.lastFlush = w.now()
	for ctx.Err() == nil {
		drained, due := w.step()
		if !due && drained == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.IdleSleep):
			}
		}
	}

	w.finalFlush()
	w.logger.Info("Batch writer stopped", zap.Int64("written", w.written.Load()))
	return nil
}

// Written is the number of records persisted so far.
func (w *Writer) Written() int64 {
	return w.written.Load()
}

// step runs one iteration: top up the batch from the queue, then flush it if
// a threshold is reached. It reports how many records were drained and
// whether a flush was attempted.
func (w *Writer) step() (int, bool) {
	drained := w.fill()
	w.metrics.QueueDepth.Set(float64(w.p.Queue.Len()))

	now := w.now()
	trigger, due := w.flushDue(now)
	if !due {
		return drained, false
	}
	_ = w.flush(trigger, w.cfg.WriteTimeout)
	return drained, true
}

// fill drains at most enough records to bring the batch to BatchSize.
func (w *Writer) fill() int {
	room := w.cfg.BatchSize - len(w.pending)
	if room <= 0 {
		return 0
	}
	recs := w.p.Queue.DrainUpTo(room)
	w.pending = append(w.pending, recs...)
	return len(recs)
}

func (w *Writer) flushDue(now time.Time) (string, bool) {
	switch {
	case len(w.pending) == 0:
		return "", false
	case len(w.pending) >= w.cfg.BatchSize:
		return metrics.TriggerSize, true
	case now.Sub(w.lastFlush) >= w.cfg.FlushInterval:
		return metrics.TriggerTime, true
	}
	return "", false
}

// flush writes the whole batch as one bulk insert. The insert gets its own
// deadline so that shutdown never cancels it halfway.
func (w *Writer) flush(trigger string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := w.store.InsertBatch(ctx, w.pending)
	w.metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		w.metrics.FlushFailures.Inc()
		w.logger.Error("Batch insert failed",
			zap.Error(err), zap.Int("batch", len(w.pending)), zap.String("trigger", trigger))
		return err
	}

	n := len(w.pending)
	w.pending = make([]models.UpdateRecord, 0, w.cfg.BatchSize)
	w.lastFlush = w.now()
	w.written.Add(int64(n))
	w.metrics.RowsWritten.Add(float64(n))
	w.metrics.BatchesFlushed.WithLabelValues(trigger).Inc()
	w.logger.Debug("Batch flushed", zap.Int("rows", n), zap.String("trigger", trigger))
	return nil
}

// finalFlush persists whatever is still pending or queued. Each batch gets a
// single attempt; on failure the remainder is reported lost.
func (w *Writer) finalFlush() {
	for {
		w.fill()
		if len(w.pending) == 0 {
			return
		}
		if err := w.flush(metrics.TriggerShutdown, w.cfg.ShutdownTimeout); err != nil {
			w.logger.Error("Final flush failed, dropping remaining records",
				zap.Int("lost", len(w.pending)+w.p.Queue.Len()))
			return
		}
	}
}
