package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/metrics"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/wire"
)

type ConsumerConfig struct {
	PollTimeout   time.Duration // upper bound of one broker poll
	PipelineLimit int           // pending cache commands that force a flush
	FlushTimeout  time.Duration // upper bound of one cache flush or offset commit
}

// Consumer reads market updates from the broker, records their latency,
// pushes the latest price to the cache and hands every record to the writer.
type Consumer struct {
	p       *Pipeline
	reader  KafkaReader
	cache   PriceCache
	logger  Logger
	metrics *metrics.Metrics
	cfg     ConsumerConfig

	now      func() time.Time
	consumed atomic.Int64
}

func NewConsumer(p *Pipeline, reader KafkaReader, cache PriceCache, logger Logger, m *metrics.Metrics, cfg ConsumerConfig) *Consumer {
	return &Consumer{
		p:       p,
		reader:  reader,
		cache:   cache,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run polls until ctx is done. Cancellation is checked before each poll; the
// poll in progress is allowed to finish. Outstanding cache replies are
// drained before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer started",
		zap.Duration("poll_timeout", c.cfg.PollTimeout),
		zap.Int("cache_pipeline_limit", c.cfg.PipelineLimit))

	for ctx.Err() == nil {
		c.poll(ctx)
	}

	c.flushCache()
	c.logger.Info("Consumer stopped", zap.Int64("consumed", c.consumed.Load()))
	return nil
}

// Consumed is the number of records decoded so far.
func (c *Consumer) Consumed() int64 {
	return c.consumed.Load()
}

func (c *Consumer) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	m, err := c.reader.FetchMessage(pollCtx)
	cancel()

	if err != nil {
		switch {
		case ctx.Err() != nil:
			// shutting down, the loop condition takes it from here
		case errors.Is(err, context.DeadlineExceeded):
			// Idle: nothing arrived within the poll timeout
			c.flushCache()
		default:
			c.metrics.ReadErrors.Inc()
			c.logger.Error("Kafka Read Error", zap.Error(err))
		}
		return
	}

	c.handle(ctx, m)
	c.commit(ctx, m)
}

// commit marks m consumed for the group. It runs after handle and outlives
// both the poll deadline and cancellation of ctx, so a fetched record is
// never lost to a commit timeout. A failed commit only means the record may
// be delivered again after a restart.
func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlushTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(cctx, m); err != nil {
		c.metrics.CommitErrors.Inc()
		c.logger.Warn("Kafka Commit Error",
			zap.Error(err), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	observed := c.now()

	u, err := wire.Unmarshal(m.Value)
	if err != nil {
		// Retrying cannot fix a malformed payload
		c.metrics.DecodeFailures.Inc()
		c.logger.Debug("Dropping undecodable payload",
			zap.Error(err), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))
		return
	}

	rec := models.NewUpdateRecord(u, observed)
	c.p.Tracker.Record(int64(rec.Latency))
	c.metrics.Latency.Observe(rec.Latency.Seconds())

	c.cache.Set(ctx, rec.Ticker, rec.Price)
	if c.cache.Pending() >= c.cfg.PipelineLimit {
		c.flushCache()
	}

	if !c.p.Queue.Push(rec) {
		c.metrics.QueueDropped.Inc()
		c.logger.Warn("Hand-off queue full, dropping record",
			zap.String("ticker", rec.Ticker), zap.Int64("dropped", c.p.Queue.Dropped()))
	}

	c.metrics.Processed.Inc()
	c.consumed.Add(1)
}

// flushCache drains the pipelined SET replies. Cache failures are counted
// and logged but never retried, and they never hold up the records.
func (c *Consumer) flushCache() {
	if c.cache.Pending() == 0 {
		return
	}

	// Not derived from the run context so shutdown cannot cut a flush short.
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
	defer cancel()

	ack := c.cache.Flush(ctx)
	c.metrics.CacheFlushes.Inc()
	if ack.Failed > 0 {
		c.metrics.CacheCommandFails.Add(float64(ack.Failed))
	}
	if ack.Err != nil {
		c.metrics.CacheConnErrors.Inc()
		c.logger.Warn("Redis Pipeline Error",
			zap.Error(ack.Err), zap.Int("sent", ack.Sent), zap.Int("failed", ack.Failed))
	} else if ack.Failed > 0 {
		c.logger.Debug("Redis rejected SET commands", zap.Int("sent", ack.Sent), zap.Int("failed", ack.Failed))
	}
}
