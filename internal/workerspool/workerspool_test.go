package workerspool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelFor(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := NewWithParallelism(parallelism)
		for _, n := range []int{0, 1, 7, 100, 1001} {
			counts := make([]int32, n)
			var calls atomic.Int32
			pool.ParallelFor(n, 10, func(start, end int) {
				calls.Add(1)
				assert.Less(t, start, end)
				for i := start; i < end; i++ {
					atomic.AddInt32(&counts[i], 1)
				}
			})
			for i, c := range counts {
				require.Equalf(t, int32(1), c, "parallelism=%d, n=%d: index %d visited %d times", parallelism, n, i, c)
			}
			if n == 0 {
				assert.Equal(t, int32(0), calls.Load())
			}
			if parallelism == 0 && n > 0 {
				assert.Equal(t, int32(1), calls.Load())
			}
		}
	}
}

func TestParallelForPanic(t *testing.T) {
	pool := NewWithParallelism(4)
	var finished atomic.Int32
	require.PanicsWithValue(t, "bad chunk", func() {
		pool.ParallelFor(100, 1, func(start, end int) {
			if start == 0 {
				panic("bad chunk")
			}
			finished.Add(1)
		})
	})
	assert.Equal(t, int32(3), finished.Load())
}

func TestStartIfAvailable(t *testing.T) {
	pool := NewWithParallelism(1)
	release := make(chan struct{})
	done := make(chan struct{})
	require.True(t, pool.StartIfAvailable(func() {
		<-release
		close(done)
	}))
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	<-done

	disabled := NewWithParallelism(0)
	assert.False(t, disabled.StartIfAvailable(func() {}))
	assert.NotNil(t, Default())
	assert.Same(t, Default(), Default())
}
