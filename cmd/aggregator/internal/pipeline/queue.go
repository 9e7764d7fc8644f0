package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

// Queue is the FIFO hand-off between the consumer and the batch writer.
//
// With a zero limit the queue is unbounded: if the writer falls behind for
// long enough, memory grows without bound. A positive limit turns on
// drop-newest, and rejected records are counted in Dropped.
type Queue struct {
	mu      sync.Mutex
	items   *deque.Deque[models.UpdateRecord]
	limit   int
	dropped atomic.Int64
}

func NewQueue(limit int) *Queue {
	return &Queue{items: deque.New[models.UpdateRecord](), limit: limit}
}

// Push appends r at the tail. It returns false when r was dropped because
// the queue is at its limit.
func (q *Queue) Push(r models.UpdateRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit > 0 && q.items.Len() >= q.limit {
		q.dropped.Add(1)
		return false
	}
	q.items.PushBack(r)
	return true
}

// DrainUpTo removes up to n records from the head, oldest first. It never
// waits for records to arrive.
func (q *Queue) DrainUpTo(n int) []models.UpdateRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.items.Len() {
		n = q.items.Len()
	}
	if n <= 0 {
		return nil
	}
	out := make([]models.UpdateRecord, n)
	for i := range out {
		out[i] = q.items.PopFront()
	}
	return out
}

// Len is an instantaneous depth, for observability only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Dropped is the number of records rejected by the limit.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
