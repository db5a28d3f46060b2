// Package watch implements the watch registry (C6): the set of directories
// currently under fsnotify (or polling) watch, their broken-symlink state,
// and the propagate-timeout bookkeeping used to detect a watch that stopped
// delivering events. Grounded on the teacher's clock.Clock abstraction for
// time injection in tests.
package watch

import (
	"sync"
	"time"

	"github.com/open-logtail/logtailcore/clock"
)

// DirState is the registry's record for one watched directory.
type DirState struct {
	Path string

	// Established is when the watch was added.
	Established time.Time
	// LastEvent is the last time fsnotify (or the poller) delivered any
	// event for this directory; used by propagate-timeout detection.
	LastEvent time.Time
	// BrokenSymlink is set when adding the directory to the kernel-event
	// watcher fails (dispatcher.registerDirectory); the directory stays
	// registered and a re-Add keeps the flag. Nothing in this core clears
	// or reads it, and discovery's walk does not consult it.
	BrokenSymlink bool
	// ConfigNames are the watch configuration names that matched this
	// directory, used to decide whether its files interest anyone at all.
	ConfigNames []string
}

// Registry tracks watched directories. A nil *Registry is not usable; build
// one with New.
type Registry struct {
	clock clock.Clock

	mu   sync.RWMutex
	dirs map[string]*DirState
}

// New builds an empty Registry using clk for all timestamps (so tests can
// use clock.NewSimulatedClock deterministically, per the teacher's pattern).
func New(clk clock.Clock) *Registry {
	return &Registry{clock: clk, dirs: make(map[string]*DirState)}
}

// Add registers path as watched under the given configuration names. A
// second Add of an already-registered path refreshes its config names and
// Established time without losing LastEvent/BrokenSymlink state.
func (r *Registry) Add(path string, configNames []string) *DirState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if d, ok := r.dirs[path]; ok {
		d.ConfigNames = configNames
		d.Established = now
		return d
	}
	d := &DirState{
		Path:        path,
		Established: now,
		LastEvent:   now,
		ConfigNames: configNames,
	}
	r.dirs[path] = d
	return d
}

// Remove unregisters path. Returns false if it was not registered.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dirs[path]; !ok {
		return false
	}
	delete(r.dirs, path)
	return true
}

// Get returns the DirState for path, if registered.
func (r *Registry) Get(path string) (*DirState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dirs[path]
	return d, ok
}

// Touch records that path delivered an event just now, clearing any
// propagate-timeout suspicion.
func (r *Registry) Touch(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dirs[path]; ok {
		d.LastEvent = r.clock.Now()
	}
}

// MarkBrokenSymlink flips the BrokenSymlink flag for path.
func (r *Registry) MarkBrokenSymlink(path string, broken bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.dirs[path]; ok {
		d.BrokenSymlink = broken
	}
}

// StalePaths returns the watched directories whose LastEvent is older than
// timeout, i.e. candidates for a propagate-timeout re-scan: fsnotify (or
// the platform watch backend) may silently stop delivering events for a
// directory (an unmounted bind-mount, an exhausted inotify watch limit) and
// the dispatcher's TimeoutInterval tick (handleTimeout) uses this to
// unregister each stale directory and its descendants, so the next poll
// round rediscovers them instead of trusting the watch indefinitely.
func (r *Registry) StalePaths(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock.Now()
	var stale []string
	for path, d := range r.dirs {
		if now.Sub(d.LastEvent) >= timeout {
			stale = append(stale, path)
		}
	}
	return stale
}

// Len returns the number of watched directories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirs)
}

// Paths returns a snapshot of all currently watched directory paths.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.dirs))
	for p := range r.dirs {
		paths = append(paths, p)
	}
	return paths
}
