package producer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/wire"
)

const (
	basePriceMin = 95.0
	basePriceMax = 105.0
	priceJitter  = 0.5
	volumeMin    = 100
	volumeMax    = 10000
)

// Stats is shared by every generator worker and the status reporter.
type Stats struct {
	sent   atomic.Int64
	errors atomic.Int64
}

func (s *Stats) Sent() int64   { return s.sent.Load() }
func (s *Stats) Errors() int64 { return s.errors.Load() }

type GeneratorConfig struct {
	Tickers   []string
	BatchSize int
	Interval  time.Duration // pause between batches, 0 = none

	// Now stamps each update; nil means time.Now
	Now func() time.Time
}

// MarketGenerator publishes random market updates keyed by ticker.
type MarketGenerator struct {
	logger *zap.Logger
	writer KafkaWriter
	rand   Rand
	stats  *Stats
	cfg    GeneratorConfig
}

func NewMarketGenerator(logger *zap.Logger, writer KafkaWriter, rnd Rand, stats *Stats, cfg GeneratorConfig) *MarketGenerator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MarketGenerator{
		logger: logger,
		writer: writer,
		rand:   rnd,
		stats:  stats,
		cfg:    cfg,
	}
}

// Next draws one update stamped with cfg.Now.
func (g *MarketGenerator) Next() models.MarketUpdate {
	ticker := g.cfg.Tickers[g.rand.Intn(len(g.cfg.Tickers))]
	base := basePriceMin + g.rand.Float64()*(basePriceMax-basePriceMin)
	jitter := (g.rand.Float64()*2 - 1) * priceJitter

	return models.MarketUpdate{
		Ticker:      ticker,
		Price:       base + jitter,
		Volume:      int32(volumeMin + g.rand.Intn(volumeMax-volumeMin+1)),
		TimestampNs: g.cfg.Now().UnixNano(),
	}
}

func (g *MarketGenerator) Run(ctx context.Context) error {
	g.logger.Info("Generator Started", zap.Strings("tickers", g.cfg.Tickers))
	if len(g.cfg.Tickers) == 0 {
		return fmt.Errorf("generator has no tickers")
	}

	batch := make([]kafka.Message, 0, g.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch = batch[:0]
		for i := 0; i < g.cfg.BatchSize; i++ {
			u := g.Next()
			batch = append(batch, kafka.Message{
				Key:   []byte(u.Ticker), // Key ensures per-ticker ordering
				Value: wire.Marshal(u),
			})
		}

		if err := g.writer.WriteMessages(ctx, batch...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			g.stats.errors.Add(int64(len(batch)))
			g.logger.Error("Kafka Write Error", zap.Error(err))
		} else {
			g.stats.sent.Add(int64(len(batch)))
		}

		if g.cfg.Interval > 0 {
			sleepCtx(ctx, g.cfg.Interval)
		}
	}
}
