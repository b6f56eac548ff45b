package sequence

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(0), s.Current())
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())

	s.Reset(41)
	assert.Equal(t, uint64(42), s.Next())
}

func TestSequencers_IDsStartAtOne(t *testing.T) {
	s := NewSequencers()

	ts, id := s.NextOrder()
	assert.Equal(t, uint64(1), ts)
	assert.Equal(t, "1", id)

	ts, id = s.NextTrade()
	assert.Equal(t, uint64(2), ts)
	assert.Equal(t, "1", id)

	assert.Equal(t, uint64(3), s.Tick())
}

func TestSequencers_ConcurrentDrawsAreUniqueAndOrdered(t *testing.T) {
	const workers, draws = 8, 500
	s := NewSequencers()

	type draw struct {
		ts uint64
		id uint64
	}
	results := make([][]draw, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < draws; i++ {
				ts, id := s.NextTrade()
				n, err := strconv.ParseUint(id, 10, 64)
				if err != nil {
					panic(err)
				}
				results[w] = append(results[w], draw{ts, n})
			}
		}(w)
	}
	wg.Wait()

	byID := make(map[uint64]uint64)
	for _, rs := range results {
		for _, r := range rs {
			_, dup := byID[r.id]
			require.False(t, dup, "duplicate trade id %d", r.id)
			byID[r.id] = r.ts
		}
	}
	require.Len(t, byID, workers*draws)

	// A later trade id always carries a later timestamp.
	for id := uint64(2); id <= workers*draws; id++ {
		assert.Greater(t, byID[id], byID[id-1])
	}
}
