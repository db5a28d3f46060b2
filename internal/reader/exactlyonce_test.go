package reader

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/clock"
	v2 "github.com/open-logtail/logtailcore/internal/checkpoint/v2"
	"github.com/open-logtail/logtailcore/internal/checkpoint/v2/pb"
	"github.com/open-logtail/logtailcore/internal/fileid"
)

func testRangeCheckpoint(offset, length int64, hashKey string, seq int64, committed bool) *pb.RangeCheckpoint {
	return &pb.RangeCheckpoint{ReadOffset: offset, ReadLength: length, HashKey: hashKey, SequenceID: seq, Committed: committed}
}

func newEOTestStore(t *testing.T, clk clock.Clock) *v2.Store {
	t.Helper()
	s, err := v2.Open(clk, filepath.Join(t.TempDir(), "checkpoint_v2"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitEOContextFreshAssignsShardedHashKeys(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store := newEOTestStore(t, clk)
	id := fileid.DeviceInode{Device: 1, Inode: 42}
	sig := fileid.Signature{Length: 6, Hash: 123}

	ctx, err := InitEOContext(clk, store, "app", id, 4, sig, "/var/log/app.log", "/var/log/app.log", 512)
	require.NoError(t, err)
	assert.Equal(t, "app_1_42", ctx.PrimaryKey)
	require.Len(t, ctx.Ranges, 4)
	assert.False(t, ctx.ReplayPending())
	assert.Equal(t, int64(0), ctx.LastCommittedOffset)

	primary, found, err := store.GetPrimary(ctx.PrimaryKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sig.Length, primary.SigLength)
	assert.Equal(t, sig.Hash, primary.SigHash)
}

func TestInitEOContextStaleSignatureStartsFresh(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store := newEOTestStore(t, clk)
	id := fileid.DeviceInode{Device: 1, Inode: 42}

	_, err := InitEOContext(clk, store, "app", id, 2, fileid.Signature{Length: 6, Hash: 1}, "p", "p", 512)
	require.NoError(t, err)

	ctx2, err := InitEOContext(clk, store, "app", id, 2, fileid.Signature{Length: 6, Hash: 999}, "p", "p", 512)
	require.NoError(t, err)
	primary, found, err := store.GetPrimary(ctx2.PrimaryKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(999), primary.SigHash)
}

func TestInitEOContextResumesUncommittedAndCommittedRanges(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store := newEOTestStore(t, clk)
	id := fileid.DeviceInode{Device: 1, Inode: 7}
	sig := fileid.Signature{Length: 6, Hash: 55}

	first, err := InitEOContext(clk, store, "app", id, 2, sig, "p", "p", 512)
	require.NoError(t, err)

	require.NoError(t, store.SetRange(v2.RangeKey(first.PrimaryKey, 0), testRangeCheckpoint(0, 100, "A0", 5, true)))
	require.NoError(t, store.SetRange(v2.RangeKey(first.PrimaryKey, 1), testRangeCheckpoint(100, 50, "80", 3, false)))

	ctx, err := InitEOContext(clk, store, "app", id, 2, sig, "p", "p", 512)
	require.NoError(t, err)
	require.True(t, ctx.ReplayPending())

	slot, ok, err := ctx.NextReplay(100, 150)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), slot.Checkpoint.ReadOffset)
	assert.Equal(t, int64(50), slot.Checkpoint.ReadLength)
	assert.Equal(t, "80", slot.Checkpoint.HashKey)
	assert.False(t, ctx.ReplayPending())
	assert.Equal(t, int64(100), ctx.LastCommittedOffset)
}

func TestNextReplayDropsRemainingOnMismatch(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store := newEOTestStore(t, clk)
	id := fileid.DeviceInode{Device: 1, Inode: 9}
	sig := fileid.Signature{Length: 6, Hash: 55}

	first, err := InitEOContext(clk, store, "app", id, 1, sig, "p", "p", 512)
	require.NoError(t, err)
	require.NoError(t, store.SetRange(v2.RangeKey(first.PrimaryKey, 0), testRangeCheckpoint(50, 50, "A0", 1, false)))

	ctx, err := InitEOContext(clk, store, "app", id, 1, sig, "p", "p", 512)
	require.NoError(t, err)
	require.True(t, ctx.ReplayPending())

	_, ok, err := ctx.NextReplay(0, 200) // front.ReadOffset=50 != lastOffset=0
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, ctx.ReplayPending())

	_, found, err := store.GetRange(v2.RangeKey(ctx.PrimaryKey, 0))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNextFreshRangeRoundRobinsShards(t *testing.T) {
	clk := clock.NewSimulatedClock(time.Unix(0, 0))
	store := newEOTestStore(t, clk)
	id := fileid.DeviceInode{Device: 1, Inode: 11}
	sig := fileid.Signature{Length: 6, Hash: 1}

	ctx, err := InitEOContext(clk, store, "app", id, 2, sig, "p", "p", 512)
	require.NoError(t, err)

	s0 := ctx.NextFreshRange(0, 10)
	s1 := ctx.NextFreshRange(10, 10)
	s2 := ctx.NextFreshRange(20, 10)
	assert.Equal(t, 0, s0.Shard)
	assert.Equal(t, 1, s1.Shard)
	assert.Equal(t, 0, s2.Shard)
	assert.Equal(t, int64(20), ctx.Ranges[0].Checkpoint.ReadOffset)

	require.NoError(t, ctx.PersistRange(s2))
	require.NoError(t, ctx.CommitRange(s2.Shard))
	got, found, err := store.GetRange(s2.Key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Committed)
}

func TestRandomHashKeyInShardStaysWithinPartition(t *testing.T) {
	for shard := 0; shard < 4; shard++ {
		for i := 0; i < 50; i++ {
			key := randomHashKeyInShard(shard, 4, 512)
			var v int
			_, err := fmt.Sscanf(key, "%x", &v)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, shard*128)
			assert.Less(t, v, (shard+1)*128)
		}
	}
}
