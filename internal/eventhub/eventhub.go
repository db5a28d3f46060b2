// Package eventhub implements the event-queue hub (C5): a bounded queue of
// filesystem events fed by the discovery layer's directory walker and
// modify poller, deduplicated so a burst of MODIFY notifications on the
// same path collapses into one pending event. Built on internal/safequeue,
// the bounded FIFO adapted from the teacher's common.Queue.
package eventhub

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/safequeue"
)

// Hub is the single event-queue hub shared by every watched directory.
type Hub struct {
	queue *safequeue.Queue[collab.Event]

	// pendingMu guards pendingModify. Per spec.md §5 ("Event hub: lock-
	// based; producers are the polling threads, the kernel-event source,
	// and feedback callbacks; consumer is the dispatcher"), Push is called
	// concurrently from multiple producer goroutines while Pop/Wait run on
	// the dispatcher goroutine, so the map needs its own lock distinct from
	// the queue's internal one.
	pendingMu sync.Mutex
	// pendingModify tracks MODIFY events already queued but not yet popped,
	// keyed by a hash of (dir, name), so repeat MODIFY notifications for the
	// same file coalesce into the one already queued instead of growing the
	// queue unboundedly under a fast-writing file.
	pendingModify map[uint64]struct{}
}

// New builds a Hub whose queue holds at most capacity events.
func New(capacity int) *Hub {
	return &Hub{
		queue:         safequeue.New[collab.Event](capacity),
		pendingModify: make(map[uint64]struct{}),
	}
}

func dedupKey(dir, name string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(dir)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(name)
	return h.Sum64()
}

// Push enqueues ev. MODIFY events for a (dir, name) pair already pending are
// dropped rather than queued a second time; all other event kinds are
// always queued (subject to the hub's capacity). Returns false if the
// event was dropped, either due to dedup or a full queue.
func (h *Hub) Push(ev collab.Event) bool {
	if ev.Kind == collab.EventModify {
		key := dedupKey(ev.Dir, ev.Name)
		h.pendingMu.Lock()
		_, pending := h.pendingModify[key]
		if !pending {
			h.pendingModify[key] = struct{}{}
		}
		h.pendingMu.Unlock()
		if pending {
			return false
		}
		if h.queue.TryPush(ev) {
			return true
		}
		h.pendingMu.Lock()
		delete(h.pendingModify, key)
		h.pendingMu.Unlock()
		return false
	}
	return h.queue.TryPush(ev)
}

func (h *Hub) clearPending(ev collab.Event) {
	if ev.Kind != collab.EventModify {
		return
	}
	key := dedupKey(ev.Dir, ev.Name)
	h.pendingMu.Lock()
	delete(h.pendingModify, key)
	h.pendingMu.Unlock()
}

// Pop drains up to max events, clearing their MODIFY dedup entries so a
// subsequent write to the same file is re-queued.
func (h *Hub) Pop(max int) []collab.Event {
	evs := h.queue.PopMany(max)
	for _, ev := range evs {
		h.clearPending(ev)
	}
	return evs
}

// Wait blocks for at least one event, honoring ctx cancellation and timeout.
func (h *Hub) Wait(ctx context.Context, timeout time.Duration) (collab.Event, bool) {
	ev, ok := h.queue.WaitPop(ctx, timeout)
	if ok {
		h.clearPending(ev)
	}
	return ev, ok
}

// Len reports the number of events currently queued.
func (h *Hub) Len() int { return h.queue.Len() }

var _ collab.QueueManager = (*hubAdapter)(nil)

// hubAdapter lets *Hub satisfy collab.QueueManager without exposing the
// richer Hub API (Wait, dedup internals) to dispatcher code that only needs
// the narrow push/pop contract.
type hubAdapter struct{ h *Hub }

// AsQueueManager narrows h to the collab.QueueManager interface.
func (h *Hub) AsQueueManager() collab.QueueManager { return hubAdapter{h} }

func (a hubAdapter) PushEvent(ev collab.Event) bool      { return a.h.Push(ev) }
func (a hubAdapter) PopEvents(max int) []collab.Event    { return a.h.Pop(max) }
func (a hubAdapter) Len() int                            { return a.h.Len() }
