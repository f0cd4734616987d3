package nsqconn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConnInfo(t *testing.T) {
	t.Run("update creates entry", func(t *testing.T) {
		ci := NewMemoryConnInfo()
		ci.Update("broker:4150/events/archive", func(s *ConnStats) {
			s.RdyCount = 10
			s.LastRdy = 10
		})

		stats, ok := ci.Fetch("broker:4150/events/archive")
		require.True(t, ok)
		assert.Equal(t, int64(10), stats.RdyCount)
		assert.Equal(t, int64(10), stats.LastRdy)
	})

	t.Run("fetch returns a copy", func(t *testing.T) {
		ci := NewMemoryConnInfo()
		ci.Update("id", func(s *ConnStats) { s.FinishedCount = 1 })

		stats, _ := ci.Fetch("id")
		stats.FinishedCount = 99

		again, _ := ci.Fetch("id")
		assert.Equal(t, int64(1), again.FinishedCount)
	})

	t.Run("fetch missing", func(t *testing.T) {
		ci := NewMemoryConnInfo()
		_, ok := ci.Fetch("nope")
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		ci := NewMemoryConnInfo()
		ci.Update("id", func(s *ConnStats) { s.RdyCount = 1 })
		ci.Delete("id")
		_, ok := ci.Fetch("id")
		assert.False(t, ok)
	})

	t.Run("ids", func(t *testing.T) {
		ci := NewMemoryConnInfo()
		ci.Update("a", func(*ConnStats) {})
		ci.Update("b", func(*ConnStats) {})
		assert.ElementsMatch(t, []string{"a", "b"}, ci.IDs())
	})
}

// Updates from a flow-control sender and a completion notifier must not lose
// each other's writes.
func TestMemoryConnInfoConcurrentUpdates(t *testing.T) {
	ci := NewMemoryConnInfo()

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ci.Update("id", func(s *ConnStats) {
					s.MessagesInFlight++
					s.FinishedCount++
				})
			}
		}()
	}
	wg.Wait()

	stats, ok := ci.Fetch("id")
	require.True(t, ok)
	assert.Equal(t, int64(workers*perWorker), stats.MessagesInFlight)
	assert.Equal(t, int64(workers*perWorker), stats.FinishedCount)
}
