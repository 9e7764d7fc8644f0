package testutils

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/cmd/aggregator/internal/cache"
	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

type MockKafkaReader struct {
	Messages []kafka.Message
	Index    int
	Mu       sync.Mutex
	// Errors are returned, one per call, before any message is delivered
	Errors []error
	// Closed simulates a closed connection or end of stream
	Closed bool
	// CommitErrors are returned, one per commit, before commits succeed
	CommitErrors []error
	Committed    []kafka.Message
}

func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.Mu.Lock()
	if m.Closed {
		m.Mu.Unlock()
		return kafka.Message{}, io.EOF
	}
	if len(m.Errors) > 0 {
		err := m.Errors[0]
		m.Errors = m.Errors[1:]
		m.Mu.Unlock()
		return kafka.Message{}, err
	}
	if m.Index < len(m.Messages) {
		msg := m.Messages[m.Index]
		m.Index++
		m.Mu.Unlock()
		return msg, nil
	}
	m.Mu.Unlock()

	// Nothing left: behave like an idle broker and wait out the poll
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

// CommitMessages fails like kafka-go does when ctx is already done.
func (m *MockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.CommitErrors) > 0 {
		err := m.CommitErrors[0]
		m.CommitErrors = m.CommitErrors[1:]
		return err
	}
	m.Committed = append(m.Committed, msgs...)
	return nil
}

func (m *MockKafkaReader) Commits() []kafka.Message {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]kafka.Message(nil), m.Committed...)
}

func (m *MockKafkaReader) Delivered() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Index
}

func (m *MockKafkaReader) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// MockPriceCache records SETs and counts flushes
type MockPriceCache struct {
	Mu         sync.Mutex
	Prices     map[string]float64
	pending    []string
	FlushSizes []int
	// FlushAck, when set, replaces the default all-success ack
	FlushAck *cache.Ack
}

func NewMockPriceCache() *MockPriceCache {
	return &MockPriceCache{Prices: make(map[string]float64)}
}

func (m *MockPriceCache) Set(ctx context.Context, ticker string, price float64) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Prices[ticker] = price
	m.pending = append(m.pending, ticker)
}

func (m *MockPriceCache) Pending() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.pending)
}

func (m *MockPriceCache) Flush(ctx context.Context) cache.Ack {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := len(m.pending)
	m.pending = nil
	m.FlushSizes = append(m.FlushSizes, n)
	if m.FlushAck != nil {
		return *m.FlushAck
	}
	return cache.Ack{Sent: n}
}

func (m *MockPriceCache) Flushes() []int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]int(nil), m.FlushSizes...)
}

var ErrStoreDown = errors.New("store unavailable")

// FakeStore keeps a copy of every batch it is handed. The first FailFirst
// calls fail without storing anything.
type FakeStore struct {
	Mu        sync.Mutex
	FailFirst int
	Attempts  [][]models.UpdateRecord
	Batches   [][]models.UpdateRecord
}

func (s *FakeStore) InsertBatch(ctx context.Context, batch []models.UpdateRecord) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	cp := append([]models.UpdateRecord(nil), batch...)
	s.Attempts = append(s.Attempts, cp)
	if s.FailFirst > 0 {
		s.FailFirst--
		return ErrStoreDown
	}
	s.Batches = append(s.Batches, cp)
	return nil
}

func (s *FakeStore) Rows() []models.UpdateRecord {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	var out []models.UpdateRecord
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}

func (s *FakeStore) BatchSizes() []int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	sizes := make([]int, len(s.Batches))
	for i, b := range s.Batches {
		sizes[i] = len(b)
	}
	return sizes
}
