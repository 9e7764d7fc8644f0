package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/producer/internal/producer"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/config"
)

const statusInterval = 5 * time.Second

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <kafka_broker>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.UseHosts(os.Args[1], "")

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure the topic exists before producing
	tc := producer.NewTopicCreator(logger, producer.Dialer(&kafka.Dialer{Timeout: cfg.Kafka.DialTimeout}))
	spec := producer.TopicSpec{Name: cfg.Kafka.Topic, Partitions: cfg.Producer.Partitions}
	if err := tc.Ensure(ctx, cfg.Kafka.Brokers, spec); err != nil {
		logger.Warn("Topic not confirmed, producing anyway", zap.Error(err))
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{}, // same ticker, same partition
		BatchSize:    cfg.Producer.BatchSize,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
		RequiredAcks: kafka.RequireOne,
	}

	stats := &producer.Stats{}
	g, gctx := errgroup.WithContext(ctx)

	seed := time.Now().UnixNano()
	for i := 0; i < cfg.Producer.Workers; i++ {
		// *rand.Rand is not safe for concurrent use, so one per worker
		rnd := rand.New(rand.NewSource(seed + int64(i)))
		gen := producer.NewMarketGenerator(logger.With(zap.Int("worker", i)), writer, rnd, stats, producer.GeneratorConfig{
			Tickers:   cfg.Producer.Tickers,
			BatchSize: cfg.Producer.BatchSize,
			Interval:  cfg.Producer.Interval,
		})
		g.Go(func() error { return gen.Run(gctx) })
	}

	reporter := producer.NewStatusReporter(stats, os.Stdout, statusInterval)
	g.Go(func() error { return reporter.Run(gctx) })

	logger.Info("Producer started",
		zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic), zap.Int("workers", cfg.Producer.Workers))

	if err := g.Wait(); err != nil {
		logger.Error("Producer stopped with error", zap.Error(err))
	}
	logger.Info("Shutdown signal received", zap.Int64("sent", stats.Sent()), zap.Int64("errors", stats.Errors()))

	// Flush Kafka buffer
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
