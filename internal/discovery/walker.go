// Package discovery implements C4: the directory/file walker that finds
// paths matching a watch configuration's pattern, and the modify poller
// that notices growth on files fsnotify didn't (or couldn't) report.
// Grounded on fsnotify.Watcher (named in both the teacher's and the rest of
// the pack's go.mod) for the directory-level watch and a plain polling
// fallback for file-content growth, which fsnotify cannot detect portably.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/collab"
)

// WalkLimits bounds one discovery round, mirroring cfg.PollingConfig.
type WalkLimits struct {
	MaxSearchDepth         int
	StatCountLimitPerRound int
	// PreservedDirDepth is spec.md §4.3.3's PreservedDirDepth knob: a
	// directory at depth <= PreservedDirDepth (below the watch's literal
	// base-path prefix, depth 0) that stops appearing or matching is kept
	// in dirCache and still reported in Walk's dirs result until
	// CacheTimeout elapses since it was last actually seen; beyond that
	// depth, a directory that stops appearing is dropped from dirCache (and
	// so from dirs) on the very next round.
	PreservedDirDepth int
	// CacheTimeout is the long-timeout sweep horizon (§4.3.1) applied to
	// preserved directories once they stop appearing.
	CacheTimeout           time.Duration
	CheckSymbolicLinkEvery int
}

// dirCacheEntry is one directory's round-to-round bookkeeping, the local
// analogue of spec.md §4.3.1's dir-cache entry (minus the fields this
// Walker has no use for, like has-event-flag, which belongs to the watch
// registry instead).
type dirCacheEntry struct {
	depth    int
	lastSeen time.Time
}

// Walker finds files under BasePath matching FilePattern, honoring
// MaxDepth. It never follows a symlinked directory more than once per
// round (cycle safety) and reports broken symlinks back to the caller.
type Walker struct {
	limits WalkLimits
	clock  clock.Clock

	// statBudget is reset to StatCountLimitPerRound at the start of each
	// Walk call and used to enforce that limit mid-walk.
	statBudget int

	// dirCache persists across Walk calls so PreservedDirDepth retention
	// can tell "stopped appearing this round" from "never seen".
	dirCache map[string]*dirCacheEntry
}

// NewWalker builds a Walker bound by limits, using clk for PreservedDirDepth
// retention timestamps (clock.RealClock{} in production, a simulated clock
// in tests, per the teacher's clock-injection pattern already used by
// internal/watch.New and internal/checkpoint/v1.New).
func NewWalker(limits WalkLimits, clk clock.Clock) *Walker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Walker{limits: limits, clock: clk, dirCache: make(map[string]*dirCacheEntry)}
}

// Match is one discovered file: its absolute path and the watch
// configuration it was discovered for.
type Match struct {
	Dir        string
	Name       string
	ConfigName string
}

// BrokenSymlink reports a symlink under BasePath whose target does not
// resolve, so the watch registry can flag it instead of silently skipping.
type BrokenSymlink struct {
	Path string
}

// Walk finds every file under basePath (to maxDepth levels) whose name
// matches pattern, and every directory along the way worth adding to the
// watch registry. Directories that stopped appearing since a prior Walk
// call are retained in the returned dirs per spec.md §4.3.3's
// PreservedDirDepth semantics: directories at depth <= PreservedDirDepth
// are kept (and still reported) until CacheTimeout elapses since they were
// last actually seen, while deeper directories are dropped the round after
// they stop appearing.
func (w *Walker) Walk(configName, basePath, pattern string) (dirs []string, matches []Match, broken []BrokenSymlink, err error) {
	w.statBudget = w.limits.StatCountLimitPerRound
	now := w.clock.Now()
	seenThisRound := make(map[string]int)

	seenReal := make(map[string]bool)
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if w.limits.MaxSearchDepth > 0 && depth > w.limits.MaxSearchDepth {
			return nil
		}
		if real, rerr := filepath.EvalSymlinks(dir); rerr == nil {
			if seenReal[real] {
				return nil
			}
			seenReal[real] = true
		}

		entries, rerr := os.ReadDir(dir)
		if rerr != nil {
			if os.IsPermission(rerr) || os.IsNotExist(rerr) {
				return nil
			}
			return rerr
		}
		seenThisRound[dir] = depth

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, ent := range entries {
			if w.statBudget > 0 {
				w.statBudget--
				if w.statBudget == 0 {
					return nil
				}
			}

			full := filepath.Join(dir, ent.Name())
			info, ierr := ent.Info()
			if ierr != nil {
				if os.IsNotExist(ierr) {
					continue
				}
				return ierr
			}

			if info.Mode()&os.ModeSymlink != 0 {
				target, terr := filepath.EvalSymlinks(full)
				if terr != nil {
					broken = append(broken, BrokenSymlink{Path: full})
					continue
				}
				tinfo, terr := os.Stat(target)
				if terr != nil {
					broken = append(broken, BrokenSymlink{Path: full})
					continue
				}
				if tinfo.IsDir() {
					if err := walk(full, depth+1); err != nil {
						return err
					}
					continue
				}
				info = tinfo
			}

			if info.IsDir() {
				if err := walk(full, depth+1); err != nil {
					return err
				}
				continue
			}

			if matchName(pattern, ent.Name()) {
				matches = append(matches, Match{Dir: dir, Name: ent.Name(), ConfigName: configName})
			}
		}
		return nil
	}

	err = walk(basePath, 0)
	if err != nil {
		return nil, matches, broken, err
	}

	dirs = w.reconcileDirCache(seenThisRound, now)
	return dirs, matches, broken, nil
}

// reconcileDirCache folds this round's discoveries into the persistent
// dirCache and returns the full set of directories Walk should report:
// everything seen this round, plus preserved entries from prior rounds
// that haven't aged out yet.
func (w *Walker) reconcileDirCache(seenThisRound map[string]int, now time.Time) []string {
	for dir, depth := range seenThisRound {
		w.dirCache[dir] = &dirCacheEntry{depth: depth, lastSeen: now}
	}

	dirs := make([]string, 0, len(w.dirCache))
	for dir, entry := range w.dirCache {
		if _, seen := seenThisRound[dir]; seen {
			dirs = append(dirs, dir)
			continue
		}
		if entry.depth > w.limits.PreservedDirDepth {
			// Beyond the preserved depth: evict the round after it stops
			// appearing, no grace period.
			delete(w.dirCache, dir)
			continue
		}
		if w.limits.CacheTimeout > 0 && now.Sub(entry.lastSeen) >= w.limits.CacheTimeout {
			delete(w.dirCache, dir)
			continue
		}
		// Still within its preserved grace period: keep reporting it so
		// the watch registry doesn't drop it over a transient miss.
		dirs = append(dirs, dir)
	}
	return dirs
}

// matchName applies shell-style glob matching (filepath.Match semantics),
// the same wildcard vocabulary the watch configuration's FilePattern uses.
func matchName(pattern, name string) bool {
	ok, err := filepath.Match(pattern, name)
	if err != nil {
		return pattern == name
	}
	return ok
}

// IsHiddenOrTemp reports whether name looks like an editor swap file or a
// dotfile, the kind of noise the walker's caller typically wants excluded
// even when it technically matches a loose pattern like "*".
func IsHiddenOrTemp(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp")
}

// ToEvents converts discovered matches into CREATE events for the hub, used
// on the very first round when no fsnotify event exists yet to trigger
// discovery of pre-existing files.
func ToEvents(matches []Match) []collab.Event {
	evs := make([]collab.Event, 0, len(matches))
	for _, m := range matches {
		evs = append(evs, collab.Event{Kind: collab.EventCreate, Dir: m.Dir, Name: m.Name})
	}
	return evs
}

// DefaultMaxFileNotExistTimes is the spec.md §4.3.2 default threshold of
// consecutive stat misses before a file is considered gone.
const DefaultMaxFileNotExistTimes = 10

// ModifyPoller periodically re-stats a set of known files to notice size
// growth fsnotify's backend missed (e.g. a network filesystem where inotify
// is unreliable), synthesizing MODIFY events for the hub. It also tracks
// consecutive stat misses per file and synthesizes a DELETE once the
// configured max_file_not_exist_times threshold is reached, per spec.md
// §4.3.2 and the FileGone error kind in §7.
type ModifyPoller struct {
	maxNotExist int

	sizes         map[string]int64
	notExistTimes map[string]int
}

// NewModifyPoller builds an empty poller. maxNotExist <= 0 falls back to
// DefaultMaxFileNotExistTimes.
func NewModifyPoller(maxNotExist int) *ModifyPoller {
	if maxNotExist <= 0 {
		maxNotExist = DefaultMaxFileNotExistTimes
	}
	return &ModifyPoller{
		maxNotExist:   maxNotExist,
		sizes:         make(map[string]int64),
		notExistTimes: make(map[string]int),
	}
}

// Poll re-stats every path in paths and returns a MODIFY event for any
// whose size grew since the last Poll call (or that is new to the poller).
// A path that fails to stat maxNotExist consecutive times yields a DELETE
// event instead and is dropped from the poller.
func (p *ModifyPoller) Poll(paths []string) []collab.Event {
	var evs []collab.Event
	seen := make(map[string]bool, len(paths))
	for _, full := range paths {
		seen[full] = true
		info, err := os.Stat(full)
		if err != nil {
			p.notExistTimes[full]++
			if p.notExistTimes[full] >= p.maxNotExist {
				evs = append(evs, collab.Event{
					Kind: collab.EventDelete,
					Dir:  filepath.Dir(full),
					Name: filepath.Base(full),
				})
				delete(p.sizes, full)
				delete(p.notExistTimes, full)
				seen[full] = false
			}
			continue
		}
		delete(p.notExistTimes, full)
		prev, ok := p.sizes[full]
		size := info.Size()
		p.sizes[full] = size
		if !ok || size > prev {
			evs = append(evs, collab.Event{
				Kind: collab.EventModify,
				Dir:  filepath.Dir(full),
				Name: filepath.Base(full),
			})
		}
	}
	for full := range p.sizes {
		if !seen[full] {
			delete(p.sizes, full)
		}
	}
	for full := range p.notExistTimes {
		if !seen[full] {
			delete(p.notExistTimes, full)
		}
	}
	return evs
}
