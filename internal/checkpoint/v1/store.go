// Package v1 implements the legacy checkpoint store (C2): an in-memory map
// from (file identity, config name) to a checkpoint record, periodically
// dumped to a single JSON file under the agent's state directory and
// reloaded on startup. Grounded on the teacher's write-temp-then-rename
// persistence pattern (internal/fs's GCS-backed staging file handling) and
// common/util.go's ReadFile/WriteFile helpers, generalized here to an
// atomic rename instead of an in-place WriteAt.
package v1

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/fileid"
	"github.com/open-logtail/logtailcore/internal/logger"
)

// Checkpoint is the legacy per-(file, config) progress record (spec.md §3
// "Legacy checkpoint").
type Checkpoint struct {
	Identity    fileid.DeviceInode `json:"identity"`
	ConfigName  string             `json:"config_name"`
	LogicalPath string             `json:"logical_path"`
	RealPath    string             `json:"real_path"`
	Offset      int64              `json:"offset"`
	Signature   fileid.Signature   `json:"signature"`
	LastUpdate  time.Time          `json:"last_update"`
	WasOpen     bool               `json:"was_open"`
}

type key struct {
	id     fileid.DeviceInode
	config string
}

// DirCheckpoint records a parent directory's previously-registered
// subdirectories, used to rehydrate the watch tree on startup.
type DirCheckpoint struct {
	ParentPath string    `json:"parent_path"`
	SubDirs    []string  `json:"sub_dirs"`
	LastUpdate time.Time `json:"last_update"`
}

// dumpFile is the on-disk shape: two top-level arrays, per §6.
type dumpFile struct {
	Files []Checkpoint    `json:"files"`
	Dirs  []DirCheckpoint `json:"dirs"`
}

// Store is the process-wide V1 checkpoint store. The zero value is not
// usable; build one with New.
type Store struct {
	clock clock.Clock
	path  string

	mu        sync.RWMutex
	files     map[key]*Checkpoint
	dirs      map[string]*DirCheckpoint
	lastDump  time.Time
}

// New builds a Store that persists to <stateDir>/logtail_check_point.
func New(clk clock.Clock, stateDir string) *Store {
	return &Store{
		clock: clk,
		path:  filepath.Join(stateDir, "logtail_check_point"),
		files: make(map[key]*Checkpoint),
		dirs:  make(map[string]*DirCheckpoint),
	}
}

// Add inserts or overwrites the entry for (cp.Identity, cp.ConfigName).
func (s *Store) Add(cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{cp.Identity, cp.ConfigName}
	stored := cp
	s.files[k] = &stored
}

// Get looks up the checkpoint for (id, configName).
func (s *Store) Get(id fileid.DeviceInode, configName string) (Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.files[key{id, configName}]
	if !ok {
		return Checkpoint{}, false
	}
	return *cp, true
}

// Delete removes the entry for (id, configName), if any.
func (s *Store) Delete(id fileid.DeviceInode, configName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key{id, configName})
}

// AddDir registers (or refreshes) a directory checkpoint.
func (s *Store) AddDir(parent string, subDirs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[parent] = &DirCheckpoint{ParentPath: parent, SubDirs: subDirs, LastUpdate: s.clock.Now()}
}

// DeleteDir removes a directory checkpoint.
func (s *Store) DeleteDir(parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, parent)
}

// GetDir looks up a directory checkpoint.
func (s *Store) GetDir(parent string) (DirCheckpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dirs[parent]
	if !ok {
		return DirCheckpoint{}, false
	}
	return *d, true
}

// NeedsDump reports whether interval has elapsed since the last successful
// dump (the heartbeat half of the two V1 dump schedules described in
// spec.md §9; the authoritative half is the caller explicitly invoking
// DumpToLocal on pause/shutdown regardless of this check).
func (s *Store) NeedsDump(interval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Now().Sub(s.lastDump) >= interval
}

// SweepTimeouts drops entries whose LastUpdate is older than threshold.
// Returns the number of entries removed.
func (s *Store) SweepTimeouts(threshold time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	removed := 0
	for k, cp := range s.files {
		if now.Sub(cp.LastUpdate) >= threshold {
			delete(s.files, k)
			removed++
		}
	}
	return removed
}

// DumpToLocal serializes every entry to the state file, atomically via
// write-temp-then-rename: either the new file fully replaces the old one,
// or the old one survives untouched (spec.md §4.1 invariant).
func (s *Store) DumpToLocal() error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Errorf("checkpoint v1 dump: marshal failed: %v", err)
		return fmt.Errorf("marshal checkpoint v1: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		logger.Errorf("checkpoint v1 dump: mkdir failed: %v", err)
		return fmt.Errorf("mkdir state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Errorf("checkpoint v1 dump: write temp failed: %v", err)
		return fmt.Errorf("write temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Errorf("checkpoint v1 dump: rename failed: %v", err)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	s.mu.Lock()
	s.lastDump = s.clock.Now()
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshotLocked() dumpFile {
	out := dumpFile{
		Files: make([]Checkpoint, 0, len(s.files)),
		Dirs:  make([]DirCheckpoint, 0, len(s.dirs)),
	}
	for _, cp := range s.files {
		out.Files = append(out.Files, *cp)
	}
	for _, d := range s.dirs {
		out.Dirs = append(out.Dirs, *d)
	}
	// Stable ordering makes dumps diffable and keeps the round-trip test
	// (load(dump(S)) == S) independent of Go's randomized map iteration.
	sort.Slice(out.Files, func(i, j int) bool {
		if out.Files[i].Identity.Compare(out.Files[j].Identity) != 0 {
			return out.Files[i].Identity.Compare(out.Files[j].Identity) < 0
		}
		return out.Files[i].ConfigName < out.Files[j].ConfigName
	})
	sort.Slice(out.Dirs, func(i, j int) bool { return out.Dirs[i].ParentPath < out.Dirs[j].ParentPath })
	return out
}

// LoadFromLocal reads the state file written by DumpToLocal. A missing file
// is not an error: the store simply starts empty. A corrupt top-level file
// logs and starts empty; a corrupt individual entry (one that fails to
// decode once the top-level array is parsed) drops only that entry,
// per §4.1's failure semantics.
func (s *Store) LoadFromLocal() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Errorf("checkpoint v1 load: read failed: %v", err)
		return fmt.Errorf("read checkpoint file: %w", err)
	}

	// Decode into a raw form first so a single malformed entry doesn't
	// invalidate every other entry in the file.
	var raw struct {
		Files []json.RawMessage `json:"files"`
		Dirs  []json.RawMessage `json:"dirs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Errorf("checkpoint v1 load: parse failed, starting empty: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[key]*Checkpoint, len(raw.Files))
	for _, rm := range raw.Files {
		var cp Checkpoint
		if err := json.Unmarshal(rm, &cp); err != nil {
			logger.Errorf("checkpoint v1 load: dropping malformed file entry: %v", err)
			continue
		}
		stored := cp
		s.files[key{cp.Identity, cp.ConfigName}] = &stored
	}
	s.dirs = make(map[string]*DirCheckpoint, len(raw.Dirs))
	for _, rm := range raw.Dirs {
		var d DirCheckpoint
		if err := json.Unmarshal(rm, &d); err != nil {
			logger.Errorf("checkpoint v1 load: dropping malformed dir entry: %v", err)
			continue
		}
		stored := d
		s.dirs[d.ParentPath] = &stored
	}
	return nil
}

// Len reports the number of file checkpoints currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// SearchByDeviceInode walks at most maxFileCount+1 files of dir's tree (up
// to maxDepth levels), stat-ing each, looking for one whose device/inode
// matches want. This is the reader-directed rotation-recovery algorithm of
// spec.md §4.1: when a rotated file's checkpoint no longer resolves by
// path, the reader asks the store to relocate it by identity instead.
//
// If cache is non-nil, every identity seen during the walk (not just the
// match) is recorded into it, keyed by path, to amortize a later search
// over the same directory. Returns ("", false) once maxFileCount+1 files
// have been examined without a match — the search never scans unbounded.
func (s *Store) SearchByDeviceInode(dir string, maxDepth, maxFileCount int, want fileid.DeviceInode, cache map[string]fileid.DeviceInode) (string, bool) {
	examined := 0
	foundPath := ""
	found := false

	var walk func(d string, depth int) bool // returns true to keep going
	walk = func(d string, depth int) bool {
		if maxDepth >= 0 && depth > maxDepth {
			return true
		}
		entries, err := os.ReadDir(d)
		if err != nil {
			return true
		}
		for _, ent := range entries {
			if examined > maxFileCount {
				return false
			}
			full := filepath.Join(d, ent.Name())
			info, err := os.Stat(full)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if !walk(full, depth+1) {
					return false
				}
				continue
			}
			examined++
			id := fileid.FromFileInfo(info)
			if cache != nil {
				cache[full] = id
			}
			if id == want {
				foundPath = full
				found = true
				return false
			}
		}
		return true
	}
	walk(dir, 0)
	return foundPath, found
}
