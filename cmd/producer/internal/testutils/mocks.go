package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/producer/internal/producer"
)

var ErrKafkaDown = errors.New("kafka error")

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Calls      int
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Calls++
	if m.ShouldFail {
		return ErrKafkaDown
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Snapshot() []kafka.Message {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]kafka.Message(nil), m.Messages...)
}

// FixedClock returns a Now func frozen at t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type MockRand struct {
	ValInt   int
	ValFloat float64
}

func (m *MockRand) Intn(n int) int   { return m.ValInt % n }
func (m *MockRand) Float64() float64 { return m.ValFloat }

type MockBrokerConn struct {
	CreatedTopics []kafka.TopicConfig
	CreateErr     error
	NoPartitions  bool
	Closed        int
}

func (m *MockBrokerConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockBrokerConn) Close() error { m.Closed++; return nil }
func (m *MockBrokerConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.CreatedTopics = append(m.CreatedTopics, topics...)
	return nil
}
func (m *MockBrokerConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.NoPartitions {
		return nil, nil
	}
	return []kafka.Partition{{ID: 0}}, nil
}

// MockDialer hands out ConnSpy for every address and records the dials.
type MockDialer struct {
	ConnSpy *MockBrokerConn
	Fail    bool
	Dialed  []string
}

func (m *MockDialer) Dial(ctx context.Context, addr string) (producer.BrokerConn, error) {
	m.Dialed = append(m.Dialed, addr)
	if m.Fail {
		return nil, ErrKafkaDown
	}
	if m.ConnSpy == nil {
		m.ConnSpy = &MockBrokerConn{}
	}
	return m.ConnSpy, nil
}
