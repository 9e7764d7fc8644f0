package pipeline

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/cache"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

// Logger abstracts the logging library
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// KafkaReader abstracts the input stream. Fetching and committing are
// separate so a poll deadline never applies to the commit.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PriceCache abstracts the pipelined latest-price cache
type PriceCache interface {
	Set(ctx context.Context, ticker string, price float64)
	Pending() int
	Flush(ctx context.Context) cache.Ack
}

// Store abstracts the time-series sink
type Store interface {
	InsertBatch(ctx context.Context, batch []models.UpdateRecord) error
}
