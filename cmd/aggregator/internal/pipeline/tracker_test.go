package pipeline

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Empty(t *testing.T) {
	s := NewTracker().Snapshot()

	assert.Zero(t, s.Count)
	assert.Zero(t, s.Sum)
	assert.Equal(t, int64(math.MaxInt64), s.Min)
	assert.Zero(t, s.Max)
}

func TestTracker_Record(t *testing.T) {
	tr := NewTracker()
	for _, v := range []int64{5, 2, 9, 2, 7} {
		tr.Record(v)
	}

	s := tr.Snapshot()
	assert.Equal(t, int64(5), s.Count)
	assert.Equal(t, int64(25), s.Sum)
	assert.Equal(t, int64(2), s.Min)
	assert.Equal(t, int64(9), s.Max)
}

func TestTracker_ZeroSample(t *testing.T) {
	tr := NewTracker()
	tr.Record(0)

	s := tr.Snapshot()
	assert.Zero(t, s.Min)
	assert.Zero(t, s.Max)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	const workers, perWorker = 8, 5000
	tr := NewTracker()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// values 1..workers*perWorker, each recorded once
				tr.Record(int64(i*workers + w + 1))
			}
		}(w)
	}
	wg.Wait()

	n := int64(workers * perWorker)
	s := tr.Snapshot()
	assert.Equal(t, n, s.Count)
	assert.Equal(t, n*(n+1)/2, s.Sum)
	assert.Equal(t, int64(1), s.Min)
	assert.Equal(t, n, s.Max)
}

// Readers racing a writer never see a counted sample missing from the bounds.
func TestTracker_SnapshotBoundsFollowCount(t *testing.T) {
	tr := NewTracker()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 20000; i++ {
			tr.Record(i)
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := tr.Snapshot()
				if s.Count > 0 {
					assert.NotEqual(t, int64(math.MaxInt64), s.Min)
					assert.LessOrEqual(t, s.Min, s.Max)
					assert.GreaterOrEqual(t, s.Sum, s.Count) // every sample is >= 1
				}
			}
		}()
	}
	wg.Wait()

	s := tr.Snapshot()
	assert.Equal(t, int64(20000), s.Count)
	assert.Equal(t, int64(1), s.Min)
	assert.Equal(t, int64(20000), s.Max)
}
