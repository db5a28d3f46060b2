package reader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/open-logtail/logtailcore/cfg"
	"github.com/open-logtail/logtailcore/clock"
	v1 "github.com/open-logtail/logtailcore/internal/checkpoint/v1"
	v2 "github.com/open-logtail/logtailcore/internal/checkpoint/v2"
	"github.com/open-logtail/logtailcore/internal/alarm"
	"github.com/open-logtail/logtailcore/internal/fileid"
	"github.com/open-logtail/logtailcore/internal/watchconfig"
)

// State is one of the six reader lifecycle states of spec.md §4.6.1.
type State int

const (
	StateNew State = iota
	StateInitialized
	StateActive
	StateIdle
	StateClosing
	StateDead
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInitialized:
		return "INITIALIZED"
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	case StateClosing:
		return "CLOSING"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Deps bundles the collaborators a Reader needs beyond its own per-watch
// config: the two checkpoint stores, the shared file-descriptor budget, an
// alarm sink, and the process-wide reader tunables (buffer size, tail
// limit, delay thresholds — cfg.ReaderConfig, shared by every reader
// regardless of which watch config it belongs to). All are safe to share
// across every Reader the agent owns.
type Deps struct {
	Clock     clock.Clock
	V1Store   *v1.Store
	V2Store   *v2.Store
	FDBudget  *FDBudget
	Alarms    *alarm.Manager
	AlarmDims alarm.Dims
	HostIP    string
	Tunables  cfg.ReaderConfig
}

// Reader is the per-(identity, config) state machine of spec.md §4.6: it
// owns a file handle, an offset triple, a signature, a topic, and
// (optionally) an exactly-once replay context.
type Reader struct {
	deps   Deps
	id     fileid.DeviceInode
	config watchconfig.Entry

	state State
	path  PathPair

	file *os.File

	lastOffset     int64
	lastReadOffset int64
	lastFileSize   int64
	signature      fileid.Signature

	topic string
	tags  map[string]string

	multilineRe *regexp.Regexp

	eo *EOContext

	sourceID string

	firstWatched    bool
	skipFirstModify bool
	lastEventTime   time.Time
	delaySince      time.Time
}

// New builds a Reader for (id, config) in state NEW; call Init to bring it
// to INITIALIZED.
func New(deps Deps, id fileid.DeviceInode, config watchconfig.Entry, logicalPath string) (*Reader, error) {
	r := &Reader{
		deps:   deps,
		id:     id,
		config: config,
		state:  StateNew,
		path:   NewPathPair(logicalPath),
	}
	if config.MultilineBeginRegex != "" {
		re, err := regexp.Compile(config.MultilineBeginRegex)
		if err != nil {
			return nil, fmt.Errorf("reader %s: invalid multiline-begin-regex: %w", logicalPath, err)
		}
		r.multilineRe = re
	}
	return r, nil
}

// Init implements spec.md §4.6.1's NEW -> INITIALIZED transition.
// tailExisted reports whether the dispatcher already had this (identity,
// config) tracked before this process started (a warm reader carried over
// a config reload, as opposed to a cold process restart); only in the
// cold-restart case do we consult the V1 store for a prior checkpoint.
func (r *Reader) Init(tailExisted bool) error {
	if r.state != StateNew {
		return fmt.Errorf("reader %s: Init called in state %s", r.path.LogicalPath, r.state)
	}

	r.sourceID = computeSourceID(r.deps.HostIP, r.path.LogicalPath)
	r.firstWatched = true

	if !tailExisted {
		if cp, ok := r.deps.V1Store.Get(r.id, r.config.Name); ok {
			r.lastOffset = cp.Offset
			r.lastReadOffset = cp.Offset
			r.signature = cp.Signature
			r.path = r.path.WithRealPath(cp.RealPath)
			r.lastEventTime = cp.LastUpdate
			r.firstWatched = false
			r.skipFirstModify = cp.WasOpen || r.deps.Clock.Now().Sub(cp.LastUpdate) < r.deps.Tunables.CloseUnusedFileTime
		}
	}

	if r.config.ExactlyOnce && r.config.Concurrency > 0 {
		eo, err := InitEOContext(r.deps.Clock, r.deps.V2Store, r.config.Name, r.id, r.config.Concurrency, r.signature, r.path.LogicalPath, r.path.RealPath, cfg.DefaultPartitionSpace)
		if err != nil {
			return fmt.Errorf("reader %s: init exactly-once context: %w", r.path.LogicalPath, err)
		}
		r.eo = eo
		// The range-checkpoint store is authoritative for an exactly-once
		// file's read position: resume at the first pending replay's
		// offset (or last-committed-offset with no replay pending) rather
		// than whatever the legacy V1 checkpoint (if any) held.
		r.lastOffset = eo.InitialOffset()
		r.lastReadOffset = r.lastOffset
		r.firstWatched = false
	}

	r.state = StateInitialized
	return nil
}

// computeSourceID implements spec.md §4.6.1's "hex of CityHash64 over
// (host-ip + path + random-UUID)"; this module uses xxhash in place of
// CityHash64 throughout (see internal/fileid.Signature's doc comment).
func computeSourceID(hostIP, path string) string {
	raw := hostIP + path + uuid.NewString()
	return fmt.Sprintf("%x", fileid.ComputeSignature([]byte(raw)).Hash)
}

// updateFilePtr opens the file at the current real path, implementing
// spec.md §4.6.1's INITIALIZED -> ACTIVE transition (also used to reopen
// from IDLE).
func (r *Reader) updateFilePtr() error {
	if r.file != nil {
		return nil
	}
	if err := r.deps.FDBudget.Acquire(); err != nil {
		r.fire(alarm.CategoryOpenFileFailed, "fd budget exhausted: "+err.Error())
		return err
	}
	f, err := os.Open(r.path.RealPath)
	if err != nil {
		r.deps.FDBudget.Release()
		r.fire(alarm.CategoryOpenFileFailed, err.Error())
		return fmt.Errorf("open %s: %w", r.path.RealPath, err)
	}
	r.file = f
	r.state = StateActive
	return nil
}

func (r *Reader) closeFilePtr() {
	if r.file == nil {
		return
	}
	_ = r.file.Close()
	r.file = nil
	r.deps.FDBudget.Release()
}

func (r *Reader) fire(cat alarm.Category, detail string) {
	if r.deps.Alarms == nil {
		return
	}
	r.deps.Alarms.Fire(cat, r.deps.AlarmDims, detail)
}

// CheckForFirstOpen applies the configured first-open policy (spec.md
// §4.6.2) the first time this reader sees its file, setting lastOffset
// (and lastReadOffset) accordingly. Must be called with r.file already
// open.
func (r *Reader) CheckForFirstOpen() error {
	if !r.firstWatched || r.lastOffset != 0 {
		return nil
	}
	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat for first-open policy: %w", err)
	}
	size := info.Size()

	switch r.config.FirstOpenPolicy {
	case cfg.PolicyBackwardToBeginning:
		r.lastOffset = 0
	case cfg.PolicyBackwardToBootTime:
		off, err := r.backwardToBootTime(size)
		if err != nil {
			off = r.backwardToFixedPositionOffset(size)
		}
		r.lastOffset = off
	default: // PolicyBackwardToFixedPosition
		r.lastOffset = r.backwardToFixedPositionOffset(size)
	}
	r.lastReadOffset = r.lastOffset
	r.firstWatched = false
	return nil
}

func (r *Reader) backwardToFixedPositionOffset(size int64) int64 {
	tailLimit := r.deps.Tunables.TailLimitBytes
	start := int64(0)
	if size > tailLimit {
		start = size - tailLimit
	}
	return r.fixLastFilePos(start, size)
}

// fixLastFilePos implements spec.md §4.6.2's "fix-last-file-pos": aligns
// start forward to the next line boundary (or the next multiline-begin
// match if configured), scanning up to FixLastFilePosScanBytes.
func (r *Reader) fixLastFilePos(start, size int64) int64 {
	if start <= 0 {
		return 0
	}
	scanLimit := int64(r.deps.Tunables.FixLastFilePosScanBytes)
	if scanLimit <= 0 {
		scanLimit = 128 << 10
	}
	end := start + scanLimit
	if end > size {
		end = size
	}
	buf := make([]byte, end-start)
	n, err := r.file.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return start
	}
	buf = buf[:n]

	if r.multilineRe != nil {
		lines := splitLines(buf)
		for _, line := range lines {
			if r.multilineRe.Match(buf[line.Start:line.End]) {
				return start + int64(line.Start)
			}
		}
		return size // no begin-match found within the scan window
	}

	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return size
	}
	return start + int64(nl) + 1
}

// backwardToBootTime implements the boot-time policy of spec.md §4.6.2: a
// binary search over the file for the first line whose leading timestamp
// is >= bootTime. Any parse failure aborts the search (the caller falls
// back to fixed-position).
func (r *Reader) backwardToBootTime(size int64) (int64, error) {
	bootTime := processBootTime
	lo, hi := int64(0), size
	const sampleWindow = 256
	best := size

	for lo < hi {
		mid := lo + (hi-lo)/2
		lineStart := r.fixLastFilePos(mid, size)
		if lineStart >= size {
			hi = mid
			continue
		}
		buf := make([]byte, sampleWindow)
		n, err := r.file.ReadAt(buf, lineStart)
		if err != nil && err != io.EOF {
			return 0, err
		}
		buf = buf[:n]
		if nl := bytes.IndexByte(buf, '\n'); nl >= 0 {
			buf = buf[:nl]
		}
		t, ok := parseLeadingTimestamp(buf)
		if !ok {
			return 0, errors.New("reader: no parseable leading timestamp")
		}
		if !t.Before(bootTime) {
			best = lineStart
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return best, nil
}

var processBootTime = time.Now()

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

func parseLeadingTimestamp(line []byte) (time.Time, bool) {
	s := string(line)
	for _, layout := range timestampLayouts {
		if len(s) >= len(layout) {
			if t, err := time.Parse(layout, s[:len(layout)]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ReadResult carries one read-log call's output plus the exactly-once
// attachment (if any) downstream needs to acknowledge delivery.
type ReadResult struct {
	Data          []byte
	EORangeKey    string
	EOShard       int
	EOHashKey     string
	EOSequenceID  int64
	MoreAvailable bool
}

// ReadLog implements spec.md §4.6.4's read-log: determine how much to
// read, decode it, frame it into complete records, and advance the offset
// triple. fileSize is the file's current size as of the most recent
// signature check.
func (r *Reader) ReadLog(fileSize int64) (ReadResult, error) {
	if r.firstWatched && r.lastOffset == 0 {
		if err := r.CheckForFirstOpen(); err != nil {
			return ReadResult{}, err
		}
	}

	bufSize := int64(r.deps.Tunables.BufferSize)

	if r.eo != nil {
		if slot, ok, err := r.eo.NextReplay(r.lastOffset, fileSize); err != nil {
			return ReadResult{}, err
		} else if ok {
			return r.readSpan(slot.Checkpoint.ReadOffset, slot.Checkpoint.ReadLength, fileSize, &slot)
		} else if !r.eo.ReplayPending() && r.eo.LastCommittedOffset > r.lastOffset {
			r.lastOffset = r.eo.LastCommittedOffset
			r.lastReadOffset = r.lastOffset
		}
	}

	readSize := fileSize - r.lastOffset
	if readSize <= 0 {
		return ReadResult{}, nil
	}
	if readSize > bufSize {
		readSize = bufSize
	}

	var slot *RangeSlot
	if r.eo != nil {
		s := r.eo.NextFreshRange(r.lastOffset, readSize)
		slot = &s
	}
	res, err := r.readSpan(r.lastOffset, readSize, fileSize, slot)
	if err != nil {
		return ReadResult{}, err
	}
	res.MoreAvailable = res.MoreAvailable || readSize == bufSize
	return res, nil
}

func (r *Reader) readSpan(offset, length, fileSize int64, slot *RangeSlot) (ReadResult, error) {
	raw := make([]byte, length)
	n, err := r.file.ReadAt(raw, offset)
	if err != nil && err != io.EOF {
		r.fire(alarm.CategoryReadLogFailed, err.Error())
		return ReadResult{}, fmt.Errorf("read %s at %d: %w", r.path.RealPath, offset, err)
	}
	raw = raw[:n]

	decoded, err := DecodeBuffer(raw, r.config.Encoding)
	if err != nil {
		r.fire(alarm.CategoryEncodingConvert, err.Error())
		return ReadResult{}, fmt.Errorf("decode %s: %w", r.path.RealPath, err)
	}

	var prefixLen int
	if slot != nil {
		// Exactly-once replay/fresh spans are pre-sized by the checkpoint
		// itself; emit them whole rather than re-framing.
		prefixLen = len(decoded.Text)
	} else if r.multilineRe != nil {
		p, _ := LastMatchedLine(decoded.Text, r.multilineRe)
		prefixLen = p
	} else {
		prefixLen = LastCompleteLine(decoded.Text, false)
	}

	// Map prefixLen (a byte offset into the decoded buffer) back to a
	// pre-conversion source length by line count rather than by byte
	// offset: GBK re-encodes characters within a line but never merges or
	// splits lines, so "the first k decoded lines" and "the first k source
	// lines" always agree, even though their byte lengths don't (spec.md
	// §4.6.4's "record byte mapping so that advancement in the source file
	// is by the pre-conversion length").
	consumedSource := decoded.ConsumedSource
	if prefixLen < len(decoded.Text) {
		consumedSource = sourceBytesForLines(raw[:decoded.ConsumedSource], countNewlines(decoded.Text[:prefixLen]))
	}

	r.lastReadOffset = offset + int64(n)
	r.lastOffset = offset + int64(consumedSource)

	r.checkDelay(fileSize)

	result := ReadResult{Data: decoded.Text[:prefixLen], MoreAvailable: r.lastOffset < fileSize}
	if slot != nil {
		result.EORangeKey = slot.Key
		result.EOShard = slot.Shard
		result.EOHashKey = slot.Checkpoint.HashKey
		result.EOSequenceID = slot.Checkpoint.SequenceID
		if err := r.eo.PersistRange(*slot); err != nil {
			return ReadResult{}, err
		}
	}
	return result, nil
}

// CommitExactlyOnce acknowledges successful downstream delivery of the
// range checkpoint at shard, per spec.md §4.6.5.
func (r *Reader) CommitExactlyOnce(shard int) error {
	if r.eo == nil {
		return nil
	}
	return r.eo.CommitRange(shard)
}

// checkDelay implements spec.md §4.6.4's delay handling.
func (r *Reader) checkDelay(fileSize int64) {
	gap := fileSize - r.lastOffset
	upper := r.deps.Tunables.DelayBytesUpperLimit
	if gap <= upper {
		r.delaySince = time.Time{}
		return
	}
	now := r.deps.Clock.Now()
	if r.delaySince.IsZero() {
		r.delaySince = now
		return
	}
	if now.Sub(r.delaySince) < r.deps.Tunables.ReadDelayAlarmDuration {
		return
	}
	r.fire(alarm.CategoryReadDelay, fmt.Sprintf("%s is %d bytes behind", r.path.RealPath, gap))

	skip := r.deps.Tunables.ReadDelaySkipBytes
	if skip > 0 && gap > skip {
		r.lastOffset = fileSize
		r.lastReadOffset = fileSize
	}
}

// CheckSignatureAndOffset wraps CheckFileSignatureAndOffset with this
// reader's state, applying spec.md §4.6.3's consequences: resetting
// last-offset on truncation/replacement, recovering a rotated path via
// searcher on a stale real path, and updating the exactly-once primary
// when the signature changes.
func (r *Reader) CheckSignatureAndOffset(searcher RotationSearcher, parentDir string, maxDepth, maxFileCount int) (outcome SignatureOutcome, fileSize int64, err error) {
	sampleBytes := r.deps.Tunables.SignatureSampleBytes
	outcome, current, fileSize, err := CheckFileSignatureAndOffset(r.file, sampleBytes, r.lastOffset, r.signature)
	if err != nil {
		r.fire(alarm.CategoryReadLogFailed, err.Error())
		return outcome, fileSize, err
	}

	switch outcome {
	case SignatureTruncatedOrReplaced:
		r.signature = current
		r.lastOffset = 0
		r.lastReadOffset = 0
		r.fire(alarm.CategoryRotateDetected, "signature changed: "+r.path.RealPath)
		if r.eo != nil {
			if uerr := r.eo.UpdatePrimarySignature(current, r.path.RealPath); uerr != nil {
				return outcome, fileSize, uerr
			}
		}
	case SignatureInPlaceTruncated:
		r.lastOffset = fileSize
		skip := r.deps.Tunables.TruncatePosSkipBytes
		if skip > 0 {
			r.lastOffset = r.fixLastFilePos(skip, fileSize)
		}
		r.lastReadOffset = r.lastOffset
	}

	if newPath, found := RecoverRotatedPath(searcher, parentDir, maxDepth, maxFileCount, r.id); found && newPath != r.path.RealPath {
		r.path = r.path.WithRealPath(newPath)
		if r.eo != nil {
			if uerr := r.eo.UpdatePrimarySignature(r.signature, newPath); uerr != nil {
				return outcome, fileSize, uerr
			}
		}
	}

	return outcome, fileSize, nil
}

// Topic resolves and caches this reader's topic and side-effect tags,
// using the config's TopicPattern, per spec.md §4.6.6. A configured
// static Topic short-circuits pattern extraction entirely.
func (r *Reader) Topic() (string, map[string]string) {
	if r.config.Topic != "" {
		return r.config.Topic, nil
	}
	if r.topic != "" || r.config.TopicPattern == "" {
		return r.topic, r.tags
	}
	topic, tags, err := GetTopicName(r.config.TopicPattern, r.path.LogicalPath)
	if err != nil {
		r.fire(alarm.CategoryTopicExtract, err.Error())
		return "", nil
	}
	r.topic, r.tags = topic, tags
	return r.topic, r.tags
}

// CloseTimeoutFilePtr implements spec.md §4.6.1's ACTIVE -> IDLE
// transition: idleThreshold is CloseUnusedFileTime with the caller's
// random [1.0, 1.5) multiplier already applied.
func (r *Reader) CloseTimeoutFilePtr(now time.Time, idleThreshold time.Duration) bool {
	if r.state != StateActive || r.file == nil {
		return false
	}
	info, err := r.file.Stat()
	if err != nil {
		return false
	}
	if info.Size() != r.lastOffset {
		return false
	}
	if now.Sub(r.lastEventTime) < idleThreshold {
		return false
	}
	r.closeFilePtr()
	r.state = StateIdle
	return true
}

// Reopen implements spec.md §4.6.1's IDLE -> ACTIVE transition, triggered
// by the next MODIFY event.
func (r *Reader) Reopen() error {
	if r.state != StateIdle && r.state != StateInitialized {
		return fmt.Errorf("reader %s: Reopen called in state %s", r.path.LogicalPath, r.state)
	}
	return r.updateFilePtr()
}

// Close transitions to CLOSING (file deleted, or device-inode change
// confirmed), releasing the file handle but keeping reader state around
// for a final drain.
func (r *Reader) Close() {
	r.closeFilePtr()
	r.state = StateClosing
}

// Destroy implements spec.md §4.6.1's DEAD transition: release resources
// and, if exactly-once, mark the checkpoint for GC.
func (r *Reader) Destroy() {
	r.closeFilePtr()
	if r.eo != nil {
		r.eo.MarkForGC()
	}
	r.state = StateDead
}

// State reports the reader's current lifecycle state.
func (r *Reader) State() State { return r.state }

// Identity reports the (device, inode) this reader is bound to.
func (r *Reader) Identity() fileid.DeviceInode { return r.id }

// Checkpoint snapshots this reader's progress into a V1 checkpoint record,
// for the dispatcher to persist via internal/checkpoint/v1.Store.
func (r *Reader) Checkpoint(now time.Time) v1.Checkpoint {
	return v1.Checkpoint{
		Identity:    r.id,
		ConfigName:  r.config.Name,
		LogicalPath: r.path.LogicalPath,
		RealPath:    r.path.RealPath,
		Offset:      r.lastOffset,
		Signature:   r.signature,
		LastUpdate:  now,
		WasOpen:     r.file != nil,
	}
}

// TouchEvent records that an event for this reader's file arrived at now,
// resetting its idle clock.
func (r *Reader) TouchEvent(now time.Time) {
	r.lastEventTime = now
}
