package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/clock"
)

func TestRegistryAddAndGet(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)

	d := r.Add("/var/log", []string{"cfg1"})
	require.Equal(t, "/var/log", d.Path)
	require.Equal(t, []string{"cfg1"}, d.ConfigNames)
	require.False(t, d.BrokenSymlink)
	require.Equal(t, 1, r.Len())

	got, ok := r.Get("/var/log")
	require.True(t, ok)
	require.Same(t, d, got)
}

func TestRegistryAddTwiceRefreshesConfigNamesKeepsState(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)

	r.Add("/var/log", []string{"cfg1"})
	r.MarkBrokenSymlink("/var/log", true)
	r.Touch("/var/log")

	clk.AdvanceTime(5 * time.Second)
	d := r.Add("/var/log", []string{"cfg1", "cfg2"})
	require.Equal(t, []string{"cfg1", "cfg2"}, d.ConfigNames)
	require.True(t, d.BrokenSymlink, "re-adding must not clear existing broken-symlink state")
	require.Equal(t, 1, r.Len(), "re-adding an existing path must not duplicate it")
}

func TestRegistryRemove(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	r.Add("/var/log", nil)

	require.True(t, r.Remove("/var/log"))
	require.False(t, r.Remove("/var/log"), "removing twice reports not-found")
	_, ok := r.Get("/var/log")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestRegistryTouchUpdatesLastEvent(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	d := r.Add("/var/log", nil)
	established := d.LastEvent

	clk.AdvanceTime(10 * time.Second)
	r.Touch("/var/log")
	require.True(t, d.LastEvent.After(established))
}

func TestRegistryTouchOnUnknownPathIsNoop(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	require.NotPanics(t, func() { r.Touch("/nope") })
}

func TestRegistryMarkBrokenSymlinkOnUnknownPathIsNoop(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	require.NotPanics(t, func() { r.MarkBrokenSymlink("/nope", true) })
}

func TestRegistryStalePaths(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	r.Add("/a", nil)
	r.Add("/b", nil)

	clk.AdvanceTime(30 * time.Second)
	r.Touch("/b")

	stale := r.StalePaths(20 * time.Second)
	require.ElementsMatch(t, []string{"/a"}, stale)
}

func TestRegistryPaths(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	r := New(clk)
	r.Add("/a", nil)
	r.Add("/b", nil)
	require.ElementsMatch(t, []string{"/a", "/b"}, r.Paths())
}
