package eventhub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/open-logtail/logtailcore/internal/collab"
)

func TestHubPushAndPop(t *testing.T) {
	h := New(10)
	require.True(t, h.Push(collab.Event{Kind: collab.EventCreate, Dir: "/var/log", Name: "a.log"}))

	evs := h.Pop(10)
	require.Len(t, evs, 1)
	require.Equal(t, collab.EventCreate, evs[0].Kind)
	require.Zero(t, h.Len())
}

func TestHubDedupesRepeatedModifyEvents(t *testing.T) {
	h := New(10)
	ev := collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: "a.log"}

	require.True(t, h.Push(ev))
	require.False(t, h.Push(ev), "a second pending MODIFY for the same file must be dropped")
	require.Equal(t, 1, h.Len())
}

func TestHubModifyDedupDoesNotAffectOtherFiles(t *testing.T) {
	h := New(10)
	require.True(t, h.Push(collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: "a.log"}))
	require.True(t, h.Push(collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: "b.log"}))
	require.Equal(t, 2, h.Len())
}

func TestHubModifyCanBeRequeuedAfterPop(t *testing.T) {
	h := New(10)
	ev := collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: "a.log"}

	require.True(t, h.Push(ev))
	h.Pop(10)
	require.True(t, h.Push(ev), "popping clears the dedup entry so the file can be re-queued")
}

func TestHubNonModifyEventsAreNeverDeduped(t *testing.T) {
	h := New(10)
	ev := collab.Event{Kind: collab.EventCreate, Dir: "/var/log", Name: "a.log"}

	require.True(t, h.Push(ev))
	require.True(t, h.Push(ev))
	require.Equal(t, 2, h.Len())
}

func TestHubPushRespectsCapacity(t *testing.T) {
	h := New(1)
	require.True(t, h.Push(collab.Event{Kind: collab.EventCreate, Dir: "/a", Name: "1"}))
	require.False(t, h.Push(collab.Event{Kind: collab.EventCreate, Dir: "/a", Name: "2"}))
}

func TestHubWaitReturnsPushedEventAndClearsDedup(t *testing.T) {
	h := New(10)
	ev := collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: "a.log"}
	h.Push(ev)

	got, ok := h.Wait(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, ev, got)

	require.True(t, h.Push(ev), "Wait must clear the dedup entry like Pop does")
}

func TestHubWaitTimesOutWhenEmpty(t *testing.T) {
	h := New(10)
	_, ok := h.Wait(context.Background(), 50*time.Millisecond)
	require.False(t, ok)
}

// TestHubConcurrentPushAndPopDoNotRace exercises the exact shape agent.go
// drives the hub with: several producer goroutines pushing MODIFY events
// for a shared set of files while a consumer goroutine pops concurrently.
// Run with -race, this must never trip "concurrent map writes".
func TestHubConcurrentPushAndPopDoNotRace(t *testing.T) {
	h := New(1000)
	const producers = 8
	const filesPerProducer = 50
	const pushesPerFile = 20

	stopPopping := make(chan struct{})
	poppingStopped := make(chan struct{})
	go func() {
		defer close(poppingStopped)
		for {
			select {
			case <-stopPopping:
				return
			default:
				h.Pop(100)
			}
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < filesPerProducer; i++ {
				ev := collab.Event{Kind: collab.EventModify, Dir: "/var/log", Name: fmt.Sprintf("p%d-%d.log", p, i)}
				for j := 0; j < pushesPerFile; j++ {
					h.Push(ev)
				}
			}
		}(p)
	}
	wg.Wait()
	close(stopPopping)
	<-poppingStopped

	for h.Len() > 0 {
		h.Pop(100)
	}
}

func TestHubAsQueueManagerAdapter(t *testing.T) {
	h := New(10)
	qm := h.AsQueueManager()

	require.True(t, qm.PushEvent(collab.Event{Kind: collab.EventCreate, Dir: "/a", Name: "1"}))
	require.Equal(t, 1, qm.Len())

	evs := qm.PopEvents(10)
	require.Len(t, evs, 1)
	require.Zero(t, qm.Len())
}
