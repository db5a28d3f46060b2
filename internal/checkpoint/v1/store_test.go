package v1

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/fileid"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(1000, 0))
	s := New(clk, dir)

	id := fileid.DeviceInode{Device: 1, Inode: 100}
	cp := Checkpoint{
		Identity:    id,
		ConfigName:  "app",
		LogicalPath: "/var/log/app.log",
		RealPath:    "/var/log/app.log",
		Offset:      18,
		Signature:   fileid.Signature{Length: 6, Hash: 0xdeadbeef},
		LastUpdate:  clk.Now(),
		WasOpen:     true,
	}
	s.Add(cp)
	s.AddDir("/var/log", []string{"app"})

	require.NoError(t, s.DumpToLocal())

	reloaded := New(clk, dir)
	require.NoError(t, reloaded.LoadFromLocal())

	got, ok := reloaded.Get(id, "app")
	require.True(t, ok)
	assert.Equal(t, cp.Offset, got.Offset)
	assert.Equal(t, cp.Signature, got.Signature)
	assert.True(t, cp.LastUpdate.Equal(got.LastUpdate))
	assert.Equal(t, cp.WasOpen, got.WasOpen)

	gotDir, ok := reloaded.GetDir("/var/log")
	require.True(t, ok)
	assert.Equal(t, []string{"app"}, gotDir.SubDirs)
}

func TestDumpIsAtomic(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, dir)
	s.Add(Checkpoint{Identity: fileid.DeviceInode{Device: 1, Inode: 1}, ConfigName: "a", Offset: 5})
	require.NoError(t, s.DumpToLocal())

	path := filepath.Join(dir, "logtail_check_point")
	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not survive a successful dump")
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, dir)
	require.NoError(t, s.LoadFromLocal())
	assert.Equal(t, 0, s.Len())
}

func TestLoadCorruptEntryDropsOnlyThatEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logtail_check_point")
	content := `{"files":[{"identity":{"Device":1,"Inode":1},"config_name":"a","offset":1},"not-an-object"],"dirs":[]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, dir)
	require.NoError(t, s.LoadFromLocal())
	assert.Equal(t, 1, s.Len())
}

func TestSweepTimeouts(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, t.TempDir())
	old := fileid.DeviceInode{Device: 1, Inode: 1}
	fresh := fileid.DeviceInode{Device: 1, Inode: 2}
	s.Add(Checkpoint{Identity: old, ConfigName: "a", LastUpdate: clk.Now()})
	clk.AdvanceTime(2 * time.Hour)
	s.Add(Checkpoint{Identity: fresh, ConfigName: "a", LastUpdate: clk.Now()})

	removed := s.SweepTimeouts(time.Hour)
	assert.Equal(t, 1, removed)
	_, ok := s.Get(old, "a")
	assert.False(t, ok)
	_, ok = s.Get(fresh, "a")
	assert.True(t, ok)
}

func TestSearchByDeviceInodeBoundedAndNotFound(t *testing.T) {
	dir := t.TempDir()
	var ids []fileid.DeviceInode
	for i := 0; i < 4; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".log")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		info, err := os.Stat(p)
		require.NoError(t, err)
		ids = append(ids, fileid.FromFileInfo(info))
	}

	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, t.TempDir())

	cache := make(map[string]fileid.DeviceInode)
	want := fileid.DeviceInode{Device: 999999, Inode: 999999}
	path, found := s.SearchByDeviceInode(dir, 5, 2, want, cache)
	assert.False(t, found)
	assert.Empty(t, path)
	// checkpoint_find_max_file_count = 2 over 4 non-matching files returns
	// "not found" having examined exactly max+1 entries (spec.md §8).
	assert.Len(t, cache, 3)
}

func TestSearchByDeviceInodeFinds(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "target.log")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)
	want := fileid.FromFileInfo(info)

	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	s := New(clk, t.TempDir())
	path, found := s.SearchByDeviceInode(dir, 5, 50, want, nil)
	assert.True(t, found)
	assert.Equal(t, p, path)
}
