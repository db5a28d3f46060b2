package reader

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/open-logtail/logtailcore/clock"
	v2 "github.com/open-logtail/logtailcore/internal/checkpoint/v2"
	"github.com/open-logtail/logtailcore/internal/checkpoint/v2/pb"
	"github.com/open-logtail/logtailcore/internal/fileid"
)

// FirstSequenceID is the platform's starting sequence-id for a freshly
// created range checkpoint, per spec.md §4.6.5.
const FirstSequenceID = int64(1)

// RangeSlot pairs a loaded (or newly created) range checkpoint with its
// store key and shard index.
type RangeSlot struct {
	Key        string
	Shard      int
	Checkpoint *pb.RangeCheckpoint
}

// EOContext is the exactly-once replay state a Reader carries for one
// (identity, config) once eo-concurrency > 0, per spec.md §4.6.5.
type EOContext struct {
	store  *v2.Store
	clock  clock.Clock
	Concurrency int

	PrimaryKey          string
	Ranges              []RangeSlot
	LastCommittedOffset int64

	toReplay  []*RangeSlot
	nextShard int
}

// InitEOContext builds (or resumes) the exactly-once context for a file
// identified by (configName, id) with the given shard concurrency,
// following spec.md §4.6.5's initialization sequence. sig/logicalPath/
// realPath are the reader's current view of the file, used both to
// validate a resumed primary checkpoint's signature and to seed a fresh
// one. partitionSpace is the fixed logical hash-key partition width
// (cfg.DefaultPartitionSpace in production, a smaller value in tests).
func InitEOContext(clk clock.Clock, store *v2.Store, configName string, id fileid.DeviceInode, concurrency int, sig fileid.Signature, logicalPath, realPath string, partitionSpace int) (*EOContext, error) {
	primaryKey := v2.PrimaryKey(configName, id.Device, id.Inode)

	existing, found, err := store.GetPrimary(primaryKey)
	if err != nil {
		return nil, fmt.Errorf("init exactly-once context: load primary %s: %w", primaryKey, err)
	}
	if found && (existing.SigLength != sig.Length || existing.SigHash != sig.Hash) {
		// Stale signature: the primary's view of the file no longer
		// matches what's on disk. Drop it and every range checkpoint and
		// start fresh (spec.md §4.6.5).
		keys := v2.AppendRangeKeys(primaryKey, maxOf(int(existing.Concurrency), concurrency), []string{primaryKey})
		if _, err := store.DeleteBatch(keys); err != nil {
			return nil, fmt.Errorf("init exactly-once context: drop stale primary %s: %w", primaryKey, err)
		}
		found = false
	}

	if !found {
		primary := &pb.PrimaryCheckpoint{
			ConfigName:      configName,
			Device:          id.Device,
			Inode:           id.Inode,
			LogicalPath:     logicalPath,
			RealPath:        realPath,
			SigLength:       sig.Length,
			SigHash:         sig.Hash,
			Concurrency:     int32(concurrency),
			UpdateUnixNanos: clk.Now().UnixNano(),
		}
		if err := store.SetPrimary(primaryKey, primary); err != nil {
			return nil, fmt.Errorf("init exactly-once context: write fresh primary %s: %w", primaryKey, err)
		}
	}

	ctx := &EOContext{
		store:       store,
		clock:       clk,
		Concurrency: concurrency,
		PrimaryKey:  primaryKey,
		Ranges:      make([]RangeSlot, concurrency),
	}

	var uncommitted, committed []*RangeSlot
	for shard := 0; shard < concurrency; shard++ {
		key := v2.RangeKey(primaryKey, shard)
		rc, found, err := store.GetRange(key)
		if err != nil {
			return nil, fmt.Errorf("init exactly-once context: load range %s: %w", key, err)
		}
		if !found {
			rc = &pb.RangeCheckpoint{
				HashKey:         randomHashKeyInShard(shard, concurrency, partitionSpace),
				SequenceID:      FirstSequenceID,
				UpdateUnixNanos: clk.Now().UnixNano(),
			}
			if err := store.SetRange(key, rc); err != nil {
				return nil, fmt.Errorf("init exactly-once context: write fresh range %s: %w", key, err)
			}
		}
		slot := RangeSlot{Key: key, Shard: shard, Checkpoint: rc}
		ctx.Ranges[shard] = slot
		if rc.Committed {
			committed = append(committed, &ctx.Ranges[shard])
		} else if rc.ReadLength > 0 || rc.ReadOffset > 0 {
			uncommitted = append(uncommitted, &ctx.Ranges[shard])
		}
	}

	sort.Slice(uncommitted, func(i, j int) bool {
		return uncommitted[i].Checkpoint.ReadOffset < uncommitted[j].Checkpoint.ReadOffset
	})
	ctx.toReplay = uncommitted

	for _, s := range committed {
		end := s.Checkpoint.ReadOffset + s.Checkpoint.ReadLength
		if end > ctx.LastCommittedOffset {
			ctx.LastCommittedOffset = end
		}
	}

	return ctx, nil
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// randomHashKeyInShard picks a hash-key, hex-encoded, uniformly from
// shard's slice of the partition space: [shard*space/n, (shard+1)*space/n).
func randomHashKeyInShard(shard, n, partitionSpace int) string {
	lo := shard * partitionSpace / n
	hi := (shard + 1) * partitionSpace / n
	if hi <= lo {
		hi = lo + 1
	}
	v := lo + rand.Intn(hi-lo)
	return fmt.Sprintf("%x", v)
}

// NextReplay implements the replay loop of spec.md §4.6.5: pop the front
// to-replay checkpoint, validating it against the reader's current
// (lastOffset, fileSize). ok is false once replay is exhausted or the
// front checkpoint no longer lines up with lastOffset/fileSize, in which
// case every remaining to-replay checkpoint is dropped (deleted from the
// store) so the reader falls back to fresh round-robin allocation.
func (c *EOContext) NextReplay(lastOffset, fileSize int64) (slot RangeSlot, ok bool, err error) {
	if len(c.toReplay) == 0 {
		return RangeSlot{}, false, nil
	}
	front := c.toReplay[0]
	if front.Checkpoint.ReadOffset != lastOffset || front.Checkpoint.ReadOffset+front.Checkpoint.ReadLength > fileSize {
		keys := make([]string, 0, len(c.toReplay))
		for _, s := range c.toReplay {
			keys = append(keys, s.Key)
		}
		if _, derr := c.store.DeleteBatch(keys); derr != nil {
			err = fmt.Errorf("drop stale replay checkpoints: %w", derr)
		}
		c.toReplay = nil
		return RangeSlot{}, false, err
	}
	c.toReplay = c.toReplay[1:]
	return *front, true, nil
}

// ReplayPending reports whether there is still a to-replay checkpoint.
func (c *EOContext) ReplayPending() bool {
	return len(c.toReplay) > 0
}

// InitialOffset is the last-offset a reader should resume at once this
// context is built: the first pending replay checkpoint's read-offset if
// any are queued (so the first read's front.read-offset == last-offset
// invariant holds immediately), otherwise last-committed-offset.
func (c *EOContext) InitialOffset() int64 {
	if len(c.toReplay) > 0 {
		return c.toReplay[0].Checkpoint.ReadOffset
	}
	return c.LastCommittedOffset
}

// NextFreshRange allocates the next range checkpoint for a newly read
// span, round-robin over shard indices, per spec.md §4.6.5: "each new
// read selects a fresh RangeCheckpoint object in round-robin over shard
// indices, sets (read-offset, read-length), and leaves committed=false".
func (c *EOContext) NextFreshRange(offset, length int64) RangeSlot {
	shard := c.nextShard
	c.nextShard = (c.nextShard + 1) % c.Concurrency

	slot := &c.Ranges[shard]
	slot.Checkpoint.ReadOffset = offset
	slot.Checkpoint.ReadLength = length
	slot.Checkpoint.Committed = false
	slot.Checkpoint.UpdateUnixNanos = c.clock.Now().UnixNano()
	return *slot
}

// PersistRange writes slot's checkpoint back to the store: "range
// checkpoint updates after every successful read" (spec.md §4.6.5).
func (c *EOContext) PersistRange(slot RangeSlot) error {
	return c.store.SetRange(slot.Key, slot.Checkpoint)
}

// CommitRange marks the range checkpoint at shard committed (downstream
// delivery acknowledged) and bumps its sequence-id for the next read.
func (c *EOContext) CommitRange(shard int) error {
	slot := &c.Ranges[shard]
	slot.Checkpoint.Committed = true
	slot.Checkpoint.SequenceID++
	slot.Checkpoint.UpdateUnixNanos = c.clock.Now().UnixNano()
	return c.store.SetRange(slot.Key, slot.Checkpoint)
}

// UpdatePrimarySignature persists a changed signature and/or real path
// onto the primary checkpoint, per spec.md §4.6.5 "updates to the primary
// are written whenever signature or real-path changes".
func (c *EOContext) UpdatePrimarySignature(sig fileid.Signature, realPath string) error {
	primary, found, err := c.store.GetPrimary(c.PrimaryKey)
	if err != nil {
		return fmt.Errorf("update primary %s signature: %w", c.PrimaryKey, err)
	}
	if !found {
		return fmt.Errorf("update primary %s signature: primary checkpoint not found", c.PrimaryKey)
	}
	primary.SigLength = sig.Length
	primary.SigHash = sig.Hash
	primary.RealPath = realPath
	primary.UpdateUnixNanos = c.clock.Now().UnixNano()
	return c.store.SetPrimary(c.PrimaryKey, primary)
}

// MarkForGC marks this context's primary checkpoint for eventual garbage
// collection, invoked when the owning reader is destroyed (spec.md
// §4.6.1 "DEAD: ... if exactly-once, mark both the queue and checkpoint
// for GC").
func (c *EOContext) MarkForGC() {
	c.store.MarkGC(c.PrimaryKey)
}
