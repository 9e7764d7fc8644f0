package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/cache"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/pipeline"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/config"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/metrics"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/store"
)

const usage = `Usage: %s <kafka_broker> <redis_host>
Example: %s localhost:9092 localhost
`

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0], os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.UseHosts(os.Args[1], os.Args[2])

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// The first SIGINT/SIGTERM cancels ctx. Later ones are swallowed until
	// stop runs, so a second signal does not kill the process mid-shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	logger.Info("Connecting to Redis", zap.String("addr", cfg.Redis.Addr))
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	priceCache := cache.NewPriceCache(rdb)

	// TimescaleDB / Postgres
	logger.Info("Connecting to TimescaleDB", zap.String("host", cfg.Postgres.Host), zap.Int("port", cfg.Postgres.Port))
	db, err := store.Open(ctx, cfg.Postgres.DSN())
	if err != nil {
		priceCache.Close()
		logger.Fatal("Failed to connect to TimescaleDB", zap.Error(err))
	}
	hypertable, err := db.EnsureSchema(ctx)
	if err != nil {
		priceCache.Close()
		db.Close()
		logger.Fatal("Table creation failed", zap.Error(err))
	}
	logger.Info("TimescaleDB table ready", zap.Bool("hypertable", hypertable))

	// Kafka
	if err := checkBroker(ctx, cfg.Kafka); err != nil {
		priceCache.Close()
		db.Close()
		logger.Fatal("Failed to reach Kafka", zap.Error(err), zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
		// Start from the newest message when the group has no committed offset
		StartOffset:    kafka.LastOffset,
		CommitInterval: cfg.Kafka.CommitInterval,
		MaxWait:        cfg.Kafka.PollTimeout,
		MinBytes:       1,
		MaxBytes:       10e6,
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	agg := cfg.Aggregator
	p := pipeline.New(agg.QueueLimit)
	if agg.QueueLimit == 0 {
		logger.Warn("Hand-off queue is unbounded; memory grows if the store falls behind")
	}

	consumer := pipeline.NewConsumer(p, reader, priceCache, logger, m, pipeline.ConsumerConfig{
		PollTimeout:   cfg.Kafka.PollTimeout,
		PipelineLimit: agg.CachePipelineLimit,
		FlushTimeout:  agg.WriteTimeout,
	})
	writer := pipeline.NewWriter(p, db, logger, m, pipeline.WriterConfig{
		BatchSize:       agg.BatchSize,
		FlushInterval:   agg.FlushInterval,
		IdleSleep:       agg.IdleSleep,
		WriteTimeout:    agg.WriteTimeout,
		ShutdownTimeout: agg.ShutdownTimeout,
	})
	reporter := pipeline.NewReporter(p, os.Stdout, agg.StatsInterval)

	logger.Info("Aggregator started with batching",
		zap.String("topic", cfg.Kafka.Topic), zap.String("group_id", cfg.Kafka.GroupID))

	if err := pipeline.Run(ctx, consumer, writer, reporter); err != nil {
		logger.Error("Pipeline stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down aggregator...",
		zap.Int64("consumed", consumer.Consumed()), zap.Int64("written", writer.Written()))

	logger.Info("Closing Kafka Reader...")
	if err := reader.Close(); err != nil {
		logger.Error("Error closing reader", zap.Error(err))
	}
	logger.Info("Closing Redis...")
	priceCache.Close()
	logger.Info("Closing TimescaleDB...")
	db.Close()

	logger.Info("Aggregator exited cleanly")
}

// checkBroker dials the brokers once so an unreachable cluster fails startup
// instead of surfacing later as read errors.
func checkBroker(ctx context.Context, cfg config.KafkaConfig) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	var err error
	for _, addr := range cfg.Brokers {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
	}
	return err
}
