package v2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegativeCacheContainsAfterAdd(t *testing.T) {
	c := newNegativeCache(2)
	require.False(t, c.Contains("a"))

	c.Add("a")
	require.True(t, c.Contains("a"))
}

func TestNegativeCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newNegativeCache(2)
	c.Add("a")
	c.Add("b")
	c.Add("c")

	require.False(t, c.Contains("a"), "a was the least recently used and should be evicted")
	require.True(t, c.Contains("b"))
	require.True(t, c.Contains("c"))
}

func TestNegativeCacheContainsRefreshesRecency(t *testing.T) {
	c := newNegativeCache(2)
	c.Add("a")
	c.Add("b")

	require.True(t, c.Contains("a"))
	c.Add("c")

	require.True(t, c.Contains("a"), "touching a via Contains should have protected it from eviction")
	require.False(t, c.Contains("b"))
}

func TestNegativeCacheAddExistingKeyIsNoop(t *testing.T) {
	c := newNegativeCache(2)
	c.Add("a")
	c.Add("a")
	require.Equal(t, 1, c.ll.Len())
}
