package reader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFDBudgetAcquireUpToMax(t *testing.T) {
	b := NewFDBudget(2)
	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())
	require.Equal(t, 2, b.InUse())

	err := b.Acquire()
	require.ErrorIs(t, err, ErrTooManyOpenFiles)
}

func TestFDBudgetReleaseFreesASlot(t *testing.T) {
	b := NewFDBudget(1)
	require.NoError(t, b.Acquire())
	require.ErrorIs(t, b.Acquire(), ErrTooManyOpenFiles)

	b.Release()
	require.NoError(t, b.Acquire())
}

func TestFDBudgetReleaseBelowZeroIsNoop(t *testing.T) {
	b := NewFDBudget(1)
	b.Release()
	b.Release()
	require.Zero(t, b.InUse())
}

func TestFDBudgetMaxReportsConfiguredCap(t *testing.T) {
	b := NewFDBudget(5)
	require.Equal(t, 5, b.Max())
}

func TestFDBudgetConcurrentAcquireNeverExceedsMax(t *testing.T) {
	const max = 10
	b := NewFDBudget(max)

	var wg sync.WaitGroup
	var acquired, rejected int
	var mu sync.Mutex
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Acquire()
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				acquired++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, max, acquired)
	require.Equal(t, 100-max, rejected)
	require.Equal(t, max, b.InUse())
}
