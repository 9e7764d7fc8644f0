package tests

import (
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/cache"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/pipeline"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/testutils"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/metrics"
)

type harness struct {
	mr       *miniredis.Miniredis
	reader   *testutils.MockKafkaReader
	store    *testutils.FakeStore
	p        *pipeline.Pipeline
	consumer *pipeline.Consumer
	writer   *pipeline.Writer
	reporter *pipeline.Reporter
}

func newHarness(t *testing.T, msgs []kafka.Message, store *testutils.FakeStore) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// Use Mock Reader because spinning up real Kafka is heavy/complex for unit tests
	reader := &testutils.MockKafkaReader{Messages: msgs}
	logger := zap.NewNop()
	m := metrics.New(nil)
	p := pipeline.New(0)

	return &harness{
		mr:     mr,
		reader: reader,
		store:  store,
		p:      p,
		consumer: pipeline.NewConsumer(p, reader, cache.NewPriceCache(rdb), logger, m, pipeline.ConsumerConfig{
			PollTimeout:   20 * time.Millisecond,
			PipelineLimit: 100,
			FlushTimeout:  time.Second,
		}),
		writer: pipeline.NewWriter(p, store, logger, m, pipeline.WriterConfig{
			BatchSize:       500,
			FlushInterval:   50 * time.Millisecond,
			IdleSleep:       5 * time.Millisecond,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		}),
		reporter: pipeline.NewReporter(p, &bytes.Buffer{}, time.Hour),
	}
}

func (h *harness) run(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx, h.consumer, h.writer, h.reporter) }()
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPipeline_EndToEnd_Flow(t *testing.T) {
	const n = 2345
	msgs := testutils.Sequence("GOOG", n, time.Now())
	h := newHarness(t, msgs, &testutils.FakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)

	waitFor(t, "all rows persisted", func() bool { return len(h.store.Rows()) == n })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Pipeline returned error: %v", err)
	}

	rows := h.store.Rows()
	for i := 1; i < len(rows); i++ {
		if rows[i-1].ProducedAt >= rows[i].ProducedAt {
			t.Fatalf("Rows out of order at %d", i)
		}
	}
	for _, size := range h.store.BatchSizes() {
		if size == 0 || size > 500 {
			t.Errorf("Unexpected batch size %d", size)
		}
	}

	want := strconv.FormatFloat(100+float64(n-1)/100, 'f', -1, 64)
	if got, _ := h.mr.Get("GOOG"); got != want {
		t.Errorf("Expected cache GOOG=%s, got %q", want, got)
	}
	if c := h.p.Tracker.Snapshot().Count; c != n {
		t.Errorf("Expected %d latency samples, got %d", n, c)
	}
	if h.consumer.Consumed() != n || h.writer.Written() != n {
		t.Errorf("Consumed %d, written %d, want %d", h.consumer.Consumed(), h.writer.Written(), n)
	}
}

func TestPipeline_ShutdownFlushesEverything(t *testing.T) {
	const n = 1200
	msgs := testutils.Sequence("AAPL", n, time.Now())
	h := newHarness(t, msgs, &testutils.FakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)

	// Cancel as soon as the broker is drained, before the writer catches up
	waitFor(t, "all messages consumed", func() bool { return h.reader.Delivered() == n })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Pipeline returned error: %v", err)
	}

	if rows := h.store.Rows(); len(rows) != n {
		t.Errorf("Expected %d rows after shutdown, got %d", n, len(rows))
	}
}

func TestPipeline_StoreOutageIsRetried(t *testing.T) {
	msgs := testutils.Sequence("TSLA", 10, time.Now())
	store := &testutils.FakeStore{FailFirst: 2}
	h := newHarness(t, msgs, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)

	waitFor(t, "batch persisted after retries", func() bool { return len(store.Rows()) == 10 })
	cancel()
	<-done

	store.Mu.Lock()
	defer store.Mu.Unlock()
	if len(store.Attempts) < 3 {
		t.Fatalf("Expected at least 3 attempts, got %d", len(store.Attempts))
	}
	first := store.Attempts[0]
	for i, rec := range first {
		if store.Attempts[2][i] != rec {
			t.Fatalf("Retried batch differs at %d", i)
		}
	}
}

func TestPipeline_MalformedPayloadsAreDropped(t *testing.T) {
	msgs := append(testutils.Sequence("NVDA", 3, time.Now()), kafka.Message{Value: []byte("{broken-json")})
	h := newHarness(t, msgs, &testutils.FakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	done := h.run(ctx)

	waitFor(t, "valid rows persisted", func() bool { return len(h.store.Rows()) == 3 })
	waitFor(t, "broker drained", func() bool { return h.reader.Delivered() == 4 })
	cancel()
	<-done

	if rows := h.store.Rows(); len(rows) != 3 {
		t.Errorf("Expected only the 3 valid rows, got %d", len(rows))
	}
}
