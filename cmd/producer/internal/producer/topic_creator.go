package producer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TopicSpec describes the topic the producer publishes to.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// TopicCreator makes sure a topic exists before producing. Creation goes
// through the cluster controller; readiness is polled from the first broker.
type TopicCreator struct {
	logger *zap.Logger
	dial   DialFunc

	// ReadyAttempts and ReadyBackoff bound the wait for partition metadata
	ReadyAttempts int
	ReadyBackoff  time.Duration
}

func NewTopicCreator(logger *zap.Logger, dial DialFunc) *TopicCreator {
	return &TopicCreator{
		logger:        logger,
		dial:          dial,
		ReadyAttempts: 5,
		ReadyBackoff:  200 * time.Millisecond,
	}
}

// Ensure creates spec if needed and waits until its partitions are visible.
// An existing topic is not an error.
func (tc *TopicCreator) Ensure(ctx context.Context, brokers []string, spec TopicSpec) error {
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}

	conn, err := tc.dialAny(ctx, brokers)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := tc.create(ctx, conn, spec); err != nil {
		return err
	}
	return tc.awaitPartitions(ctx, conn, spec.Name)
}

func (tc *TopicCreator) dialAny(ctx context.Context, brokers []string) (BrokerConn, error) {
	errs := make([]error, 0, len(brokers))
	for _, addr := range brokers {
		conn, err := tc.dial(ctx, addr)
		if err == nil {
			return conn, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no brokers given")
	}
	return nil, fmt.Errorf("dial brokers: %w", errors.Join(errs...))
}

func (tc *TopicCreator) create(ctx context.Context, conn BrokerConn, spec TopicSpec) error {
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}

	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrl, err := tc.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", addr, err)
	}
	defer ctrl.Close()

	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	switch {
	case errors.Is(err, kafka.TopicAlreadyExists):
		tc.logger.Info("Topic already exists", zap.String("topic", spec.Name))
	case err != nil:
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	default:
		tc.logger.Info("Topic created", zap.String("topic", spec.Name), zap.Int("partitions", spec.Partitions))
	}
	return nil
}

func (tc *TopicCreator) awaitPartitions(ctx context.Context, conn BrokerConn, topic string) error {
	for i := 0; i < tc.ReadyAttempts; i++ {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
		sleepCtx(ctx, tc.ReadyBackoff)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("timed out waiting for topic %q", topic)
}
