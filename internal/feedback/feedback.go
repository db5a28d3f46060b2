// Package feedback implements the feedback/blocked-event manager (C9):
// events whose downstream destination is saturated are parked here instead
// of spinning the dispatcher, and are released either by a timer or by a
// sender's queue-unblock callback. Grounded on spec.md §4.4/§4.9 (the
// safe-queue's "release" contract) and internal/watch.Registry's
// clock-injected, mutex-guarded map shape.
package feedback

import (
	"sync"
	"time"

	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/fileid"
)

var _ collab.BlockedEventManager = (*Manager)(nil)

// entry is one parked retry, keyed by the file identity whose reader is
// blocked on downstream back-pressure.
type entry struct {
	blockedAt time.Time
	retry     func() bool // returns true once it should be released
}

// Manager is the blocked-event manager. A nil *Manager is not usable; build
// one with New.
type Manager struct {
	clock   clock.Clock
	timeout time.Duration

	mu      sync.Mutex
	blocked map[fileid.DeviceInode]*entry
}

// New builds a Manager that releases a blocked event after timeout even
// absent an explicit Unblock call, so a sender that silently stops calling
// back still eventually gets retried (spec.md §4.4: "releases them on
// timer or queue-unblock callback").
func New(clk clock.Clock, timeout time.Duration) *Manager {
	return &Manager{clock: clk, timeout: timeout, blocked: make(map[fileid.DeviceInode]*entry)}
}

// Block parks key with retry, to be invoked again once the sender signals
// room (Unblock) or the timeout elapses. A second Block call for an
// already-blocked key replaces its retry callback and resets the timer.
func (m *Manager) Block(key fileid.DeviceInode, retry func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[key] = &entry{blockedAt: m.clock.Now(), retry: retry}
}

// Unblock is the sender's queue-unblock callback: if key is currently
// parked, its retry runs immediately and, if it reports success, the entry
// is removed.
func (m *Manager) Unblock(key fileid.DeviceInode) {
	m.mu.Lock()
	e, ok := m.blocked[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.blocked, key)
	m.mu.Unlock()

	if !e.retry() {
		// Retry still can't make progress; re-park it rather than losing
		// it, since the caller only notified us room might now exist.
		m.Block(key, e.retry)
	}
}

// DrainReady is the dispatcher's CheckBlockEventInterval tick (spec.md
// §4.5 step 4): every parked entry older than the configured timeout is
// retried regardless of whether Unblock was ever called. Returns the
// number of entries that were released (retry succeeded and the entry was
// removed).
func (m *Manager) DrainReady(now time.Time) int {
	m.mu.Lock()
	var due []fileid.DeviceInode
	for k, e := range m.blocked {
		if now.Sub(e.blockedAt) >= m.timeout {
			due = append(due, k)
		}
	}
	m.mu.Unlock()

	released := 0
	for _, k := range due {
		m.mu.Lock()
		e, ok := m.blocked[k]
		if ok {
			delete(m.blocked, k)
		}
		m.mu.Unlock()
		if !ok {
			continue
		}
		if e.retry() {
			released++
		} else {
			m.Block(k, e.retry)
		}
	}
	return released
}

// Len reports how many events are currently parked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocked)
}
