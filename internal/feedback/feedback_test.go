package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/fileid"
)

func TestUnblockRetriesAndRemoves(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := New(clk, time.Minute)

	id := fileid.DeviceInode{Device: 1, Inode: 1}
	calls := 0
	m.Block(id, func() bool { calls++; return true })

	m.Unblock(id)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.Len())
}

func TestUnblockRetriesAndReparksOnFailure(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := New(clk, time.Minute)

	id := fileid.DeviceInode{Device: 1, Inode: 1}
	m.Block(id, func() bool { return false })
	m.Unblock(id)
	assert.Equal(t, 1, m.Len(), "a failed retry should stay parked")
}

func TestDrainReadyReleasesTimedOutEntries(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := New(clk, 10*time.Second)

	id := fileid.DeviceInode{Device: 1, Inode: 1}
	released := false
	m.Block(id, func() bool { released = true; return true })

	n := m.DrainReady(clk.Now().Add(5 * time.Second))
	assert.Equal(t, 0, n, "too early")
	assert.False(t, released)

	n = m.DrainReady(clk.Now().Add(11 * time.Second))
	assert.Equal(t, 1, n)
	assert.True(t, released)
	assert.Equal(t, 0, m.Len())
}

func TestDrainReadyReparksFailedRetries(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	m := New(clk, time.Second)

	id := fileid.DeviceInode{Device: 1, Inode: 1}
	m.Block(id, func() bool { return false })

	n := m.DrainReady(clk.Now().Add(2 * time.Second))
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, m.Len())
}
