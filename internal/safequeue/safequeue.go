// Package safequeue wraps the teacher's generic common.Queue into a bounded,
// mutex-guarded multi-producer/single-consumer queue with blocking and
// timed pop operations, the shape C5's event-queue hub and the dispatcher's
// local-event import path both need on top of the teacher's bare FIFO.
package safequeue

import (
	"context"
	"sync"
	"time"

	"github.com/open-logtail/logtailcore/common"
)

// Queue is a bounded FIFO safe for one consumer and many producers. Push
// fails (returns false) once Len reaches the configured capacity instead of
// growing unbounded, matching spec.md's bounded safe-queue requirement.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	q        common.Queue[T]
	capacity int
	closed   bool
}

// New builds a Queue with the given maximum length. capacity <= 0 means
// unbounded.
func New[T any](capacity int) *Queue[T] {
	s := &Queue[T]{
		q:        common.NewLinkedListQueue[T](),
		capacity: capacity,
	}
	s.notEmpty.L = &s.mu
	return s
}

// TryPush pushes value without blocking. It returns false if the queue is
// closed or at capacity.
func (s *Queue[T]) TryPush(value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.capacity > 0 && s.q.Len() >= s.capacity {
		return false
	}
	s.q.Push(value)
	s.notEmpty.Signal()
	return true
}

// TryPop removes and returns the front item without blocking. ok is false
// if the queue is currently empty.
func (s *Queue[T]) TryPop() (value T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.IsEmpty() {
		return value, false
	}
	return s.q.Pop(), true
}

// PopMany drains up to max items without blocking.
func (s *Queue[T]) PopMany(max int) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, max)
	for len(out) < max && !s.q.IsEmpty() {
		out = append(out, s.q.Pop())
	}
	return out
}

// WaitPop blocks until an item is available, the context is cancelled, or
// timeout elapses (timeout <= 0 means wait only on ctx).
//
// sync.Cond has no timed wait, so a deadline is enforced by a helper
// goroutine that broadcasts once the context is done or the timer fires;
// the waiter re-checks its own exit condition each time it wakes.
func (s *Queue[T]) WaitPop(ctx context.Context, timeout time.Duration) (value T, ok bool) {
	var expired bool
	stopDeadline := make(chan struct{})
	defer close(stopDeadline)

	go func() {
		var timerC <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
		case <-timerC:
			s.mu.Lock()
			expired = true
			s.mu.Unlock()
		case <-stopDeadline:
			return
		}
		s.mu.Lock()
		s.notEmpty.Broadcast()
		s.mu.Unlock()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.q.IsEmpty() && !s.closed {
		if ctx.Err() != nil || expired {
			return value, false
		}
		s.notEmpty.Wait()
	}
	if s.q.IsEmpty() {
		return value, false
	}
	return s.q.Pop(), true
}

// Len returns the current queue length.
func (s *Queue[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// Close marks the queue closed; blocked WaitPop calls return ok=false.
func (s *Queue[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.notEmpty.Broadcast()
}
