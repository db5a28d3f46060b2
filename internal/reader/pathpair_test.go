package reader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPathPairStartsUnsplit(t *testing.T) {
	p := NewPathPair("/var/log/app.log")
	require.Equal(t, "/var/log/app.log", p.LogicalPath)
	require.Equal(t, "/var/log/app.log", p.RealPath)
	require.False(t, p.IsSplit())
}

func TestWithRealPathSplitsThePair(t *testing.T) {
	p := NewPathPair("/var/log/app.log")
	p2 := p.WithRealPath("/var/log/app.log.1")

	require.True(t, p2.IsSplit())
	require.Equal(t, "/var/log/app.log", p2.LogicalPath)
	require.Equal(t, "/var/log/app.log.1", p2.RealPath)

	require.False(t, p.IsSplit(), "WithRealPath must not mutate the receiver")
}
