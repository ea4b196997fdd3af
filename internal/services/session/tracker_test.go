package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerSetAndReset(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.IsBusy(1))

	tracker.SetBusy(1, true)
	assert.True(t, tracker.IsBusy(1))
	assert.True(t, tracker.IsBusy(1), "stays busy until reset")
	assert.False(t, tracker.IsBusy(2))

	tracker.SetBusy(1, false)
	assert.False(t, tracker.IsBusy(1))
}

func TestTrackerTryAcquire(t *testing.T) {
	tracker := NewTracker()

	assert.True(t, tracker.TryAcquire(1))
	assert.False(t, tracker.TryAcquire(1))
	assert.True(t, tracker.TryAcquire(2))
	assert.Equal(t, 2, tracker.Count())

	tracker.Release(1)
	assert.True(t, tracker.TryAcquire(1))
}

func TestTrackerTryAcquireIsExclusive(t *testing.T) {
	tracker := NewTracker()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.TryAcquire(7) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
