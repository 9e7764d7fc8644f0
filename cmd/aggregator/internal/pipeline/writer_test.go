package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/testutils"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var testWriterConfig = WriterConfig{
	BatchSize:       5000,
	FlushInterval:   100 * time.Millisecond,
	IdleSleep:       time.Millisecond,
	WriteTimeout:    time.Second,
	ShutdownTimeout: time.Second,
}

func newSteppedWriter(store Store) (*Writer, *Pipeline, *fakeClock) {
	p := New(0)
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	w := NewWriter(p, store, zap.NewNop(), metrics.New(nil), testWriterConfig)
	w.now = clock.Now
	w.lastFlush = clock.Now()
	return w, p, clock
}

func pushN(p *Pipeline, from, n int) {
	for i := from; i < from+n; i++ {
		p.Queue.Push(rec(i))
	}
}

func TestWriter_SizeThreshold(t *testing.T) {
	store := &testutils.FakeStore{}
	w, p, clock := newSteppedWriter(store)
	pushN(p, 0, 12000)

	_, due := w.step()
	assert.True(t, due)
	_, due = w.step()
	assert.True(t, due)
	drained, due := w.step()
	assert.Equal(t, 2000, drained)
	assert.False(t, due, "2000 records must wait for the time threshold")

	clock.Advance(100 * time.Millisecond)
	_, due = w.step()
	assert.True(t, due)

	assert.Equal(t, []int{5000, 5000, 2000}, store.BatchSizes())
	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.BatchesFlushed.WithLabelValues(metrics.TriggerSize)))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.BatchesFlushed.WithLabelValues(metrics.TriggerTime)))

	var next int64
	for _, r := range store.Rows() {
		require.Equal(t, next, r.ProducedAt)
		next++
	}
	assert.Equal(t, int64(12000), w.Written())
}

func TestWriter_TimeThresholdSingleRecord(t *testing.T) {
	store := &testutils.FakeStore{}
	w, p, clock := newSteppedWriter(store)
	pushN(p, 0, 1)

	_, due := w.step()
	assert.False(t, due)

	clock.Advance(99 * time.Millisecond)
	_, due = w.step()
	assert.False(t, due)

	clock.Advance(time.Millisecond)
	_, due = w.step()
	assert.True(t, due)

	assert.Equal(t, []int{1}, store.BatchSizes())
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.BatchesFlushed.WithLabelValues(metrics.TriggerTime)))
	assert.Zero(t, testutil.ToFloat64(w.metrics.BatchesFlushed.WithLabelValues(metrics.TriggerSize)))
}

func TestWriter_NeverFlushesEmpty(t *testing.T) {
	store := &testutils.FakeStore{}
	w, _, clock := newSteppedWriter(store)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		drained, due := w.step()
		assert.Zero(t, drained)
		assert.False(t, due)
	}
	assert.Empty(t, store.Attempts)
}

func TestWriter_FailedFlushRetriesSameBatch(t *testing.T) {
	store := &testutils.FakeStore{FailFirst: 1}
	w, p, clock := newSteppedWriter(store)
	pushN(p, 0, 3)
	clock.Advance(100 * time.Millisecond)

	_, due := w.step()
	require.True(t, due)
	require.Len(t, store.Attempts, 1)
	assert.Len(t, w.pending, 3, "failed batch must be kept")

	_, due = w.step()
	require.True(t, due, "timer is not reset by a failed flush")

	require.Len(t, store.Attempts, 2)
	assert.Equal(t, store.Attempts[0], store.Attempts[1])
	assert.Equal(t, []int{3}, store.BatchSizes())
	assert.Empty(t, w.pending)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.FlushFailures))
}

func TestWriter_RetryKeepsOrderWithNewArrivals(t *testing.T) {
	store := &testutils.FakeStore{FailFirst: 1}
	w, p, clock := newSteppedWriter(store)
	pushN(p, 0, 3)
	clock.Advance(100 * time.Millisecond)
	w.step()

	pushN(p, 3, 2)
	w.step()

	require.Len(t, store.Attempts, 2)
	assert.Equal(t, store.Attempts[0], store.Attempts[1][:3])
	rows := store.Rows()
	require.Len(t, rows, 5)
	for i, r := range rows {
		assert.Equal(t, int64(i), r.ProducedAt)
	}
}

func TestWriter_BatchBoundedWhileFailing(t *testing.T) {
	store := &testutils.FakeStore{FailFirst: 3}
	w, p, _ := newSteppedWriter(store)
	pushN(p, 0, 12000)

	for i := 0; i < 3; i++ {
		w.step()
		assert.LessOrEqual(t, len(w.pending), testWriterConfig.BatchSize)
	}
	for _, a := range store.Attempts {
		assert.LessOrEqual(t, len(a), testWriterConfig.BatchSize)
	}
	assert.Equal(t, 7000, p.Queue.Len())
}

func TestWriter_FinalFlushOnShutdown(t *testing.T) {
	store := &testutils.FakeStore{}
	p := New(0)
	w := NewWriter(p, store, zap.NewNop(), metrics.New(nil), WriterConfig{
		BatchSize:       4,
		FlushInterval:   time.Hour,
		IdleSleep:       time.Millisecond,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	})
	pushN(p, 0, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, []int{4, 4, 2}, store.BatchSizes())
	assert.Equal(t, 3.0, testutil.ToFloat64(w.metrics.BatchesFlushed.WithLabelValues(metrics.TriggerShutdown)))
	assert.Zero(t, p.Queue.Len())
}

func TestWriter_FinalFlushFailureGivesUp(t *testing.T) {
	store := &testutils.FakeStore{FailFirst: 1}
	p := New(0)
	w := NewWriter(p, store, zap.NewNop(), metrics.New(nil), testWriterConfig)
	pushN(p, 0, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	assert.Len(t, store.Attempts, 1)
	assert.Empty(t, store.Batches)
}

func TestWriter_RunFlushesOnTime(t *testing.T) {
	store := &testutils.FakeStore{}
	p := New(0)
	w := NewWriter(p, store, zap.NewNop(), metrics.New(nil), WriterConfig{
		BatchSize:       5000,
		FlushInterval:   20 * time.Millisecond,
		IdleSleep:       time.Millisecond,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	pushN(p, 0, 1)
	require.Eventually(t, func() bool { return len(store.BatchSizes()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []int{1}, store.BatchSizes())
}
