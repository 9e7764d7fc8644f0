package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-hamdan-alom/high-performance-streaming-pipeline/pkg/models"
)

func rec(i int) models.UpdateRecord {
	return models.UpdateRecord{Ticker: "AAPL", Price: 1, ProducedAt: int64(i)}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(rec(i)))
	}

	first := q.DrainUpTo(3)
	second := q.DrainUpTo(3)

	require.Len(t, first, 3)
	require.Len(t, second, 2)
	for i, r := range append(first, second...) {
		assert.Equal(t, int64(i), r.ProducedAt)
	}
	assert.Zero(t, q.Len())
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := NewQueue(0)

	assert.Empty(t, q.DrainUpTo(10))
	assert.Empty(t, q.DrainUpTo(0))
}

func TestQueue_DrainNonPositive(t *testing.T) {
	q := NewQueue(0)
	q.Push(rec(1))

	assert.Empty(t, q.DrainUpTo(0))
	assert.Empty(t, q.DrainUpTo(-4))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_LimitDropsNewest(t *testing.T) {
	q := NewQueue(2)

	assert.True(t, q.Push(rec(0)))
	assert.True(t, q.Push(rec(1)))
	assert.False(t, q.Push(rec(2)))
	assert.Equal(t, int64(1), q.Dropped())

	got := q.DrainUpTo(5)
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].ProducedAt)
	assert.Equal(t, int64(1), got[1].ProducedAt)
}

func TestQueue_ProducerConsumerOrder(t *testing.T) {
	const n = 20000
	q := NewQueue(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(rec(i))
		}
	}()

	var got []models.UpdateRecord
	for len(got) < n {
		got = append(got, q.DrainUpTo(777)...)
	}
	wg.Wait()

	for i, r := range got {
		if r.ProducedAt != int64(i) {
			t.Fatalf("Order broken at %d: got %d", i, r.ProducedAt)
		}
	}
}
