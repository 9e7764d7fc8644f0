package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Rand is the subset of *rand.Rand the generator draws from.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// BrokerConn is the admin surface of a broker connection; *kafka.Conn
// satisfies it.
type BrokerConn interface {
	Controller() (kafka.Broker, error)
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// DialFunc opens a connection to one broker.
type DialFunc func(ctx context.Context, addr string) (BrokerConn, error)

// Dialer adapts d to a DialFunc over TCP.
func Dialer(d *kafka.Dialer) DialFunc {
	return func(ctx context.Context, addr string) (BrokerConn, error) {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
