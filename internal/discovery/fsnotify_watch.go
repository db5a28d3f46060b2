package discovery

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/open-logtail/logtailcore/internal/collab"
)

// DirWatcher wraps fsnotify.Watcher, translating its raw Op bitmask into
// the collab.Event vocabulary the event-queue hub understands. This is the
// fast path; ModifyPoller exists beside it to cover filesystems where
// fsnotify's backend is unreliable or absent.
type DirWatcher struct {
	w *fsnotify.Watcher
}

// NewDirWatcher starts an underlying fsnotify watcher with no directories
// registered yet.
func NewDirWatcher() (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DirWatcher{w: w}, nil
}

// Add registers dir for watching. Re-adding an already-watched directory is
// a harmless no-op (fsnotify itself dedups by path).
func (d *DirWatcher) Add(dir string) error {
	return d.w.Add(dir)
}

// Remove unregisters dir.
func (d *DirWatcher) Remove(dir string) error {
	return d.w.Remove(dir)
}

// Close shuts down the underlying watcher.
func (d *DirWatcher) Close() error {
	return d.w.Close()
}

// Events exposes the translated event channel. Overflow is signaled with a
// collab.EventOverflow whose Dir/Name are empty, telling the dispatcher a
// full reconciliation walk is warranted because fsnotify's kernel queue
// dropped events.
func (d *DirWatcher) Events() <-chan collab.Event {
	out := make(chan collab.Event)
	go func() {
		defer close(out)
		for ev := range d.w.Events {
			out <- translate(ev)
		}
	}()
	return out
}

// Errors exposes fsnotify's error channel unchanged; a full inotify queue
// overflow surfaces here as an error, not an Op, on most backends.
func (d *DirWatcher) Errors() <-chan error {
	return d.w.Errors
}

func translate(ev fsnotify.Event) collab.Event {
	dir, name := filepath.Split(ev.Name)
	dir = filepath.Clean(dir)

	var kind collab.EventKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = collab.EventCreate
	case ev.Has(fsnotify.Write):
		kind = collab.EventModify
	case ev.Has(fsnotify.Remove):
		kind = collab.EventDelete
	case ev.Has(fsnotify.Rename):
		kind = collab.EventMoveFrom
	default:
		kind = collab.EventModify
	}
	return collab.Event{Kind: kind, Dir: dir, Name: name}
}
