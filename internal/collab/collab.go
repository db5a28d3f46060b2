// Package collab declares narrow interfaces for the dispatcher's
// collaborators and the event types they exchange. The dispatcher goes
// through these interfaces for the monitor, the sender bus and the history
// importer; the hub, watch registry, checkpoint stores, feedback manager and
// limiters it takes as concrete types. Grounded on the teacher's
// internal/fs split between the inode.Bucket interface and its gcs.Bucket
// implementation: define the seam as an interface the consumer owns.
package collab

import (
	"context"
	"time"

	"github.com/open-logtail/logtailcore/internal/fileid"
)

// Event is a unit of work the discovery and watch layers hand to the
// dispatcher's event-queue hub (C5).
type Event struct {
	Kind EventKind
	Dir  string
	Name string
}

type EventKind int

const (
	EventCreate EventKind = iota
	EventModify
	EventDelete
	EventMoveFrom
	EventMoveTo
	EventOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	case EventMoveFrom:
		return "MOVE_FROM"
	case EventMoveTo:
		return "MOVE_TO"
	case EventOverflow:
		return "OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// ConfigurationManager resolves which watch configuration(s), if any, apply
// to a discovered path.
type ConfigurationManager interface {
	// MatchPath returns the ordered list of configuration names whose path
	// pattern matches path.
	MatchPath(path string) []string
	// Config looks up a named configuration.
	Config(name string) (WatchConfig, bool)
	// Names lists all currently loaded configuration names.
	Names() []string
}

// WatchConfig is the subset of a loaded watch configuration the reader and
// discovery layers need; collab avoids importing the watchconfig package to
// keep this file dependency-free.
type WatchConfig struct {
	Name           string
	BasePath       string
	FilePattern    string
	MaxDepth       int
	PreservedDepth int
	Topic          string
}

// QueueManager is the event-queue hub (C5): producers push discovered
// filesystem events, the dispatcher drains them in bounded batches.
type QueueManager interface {
	PushEvent(ev Event) bool
	PopEvents(max int) []Event
	Len() int
}

// SendResult is the outcome of one SenderBus.Send call. A bare error can't
// tell the dispatcher whether a failed send is worth retrying, so this
// mirrors the original ilogtail DiskBufferWriter/SendResult shape named in
// SPEC_FULL.md's supplemented features: retryable back-pressure
// (QueueFull/QuotaExceeded) is distinguished from a terminal DiscardError
// the dispatcher should not keep feeding into the limiter's back-off.
type SendResult int

const (
	SendOK SendResult = iota
	SendQueueFull
	SendQuotaExceeded
	SendDiscardError
)

func (r SendResult) Retryable() bool {
	return r == SendQueueFull || r == SendQuotaExceeded
}

// SenderBus hands a completed, decoded log record batch off to whatever
// sits downstream of the tailing core.
type SenderBus interface {
	Send(ctx context.Context, configName string, records [][]byte) (SendResult, error)
}

// HistoryImporter receives history files staged by the dispatcher's
// read_local_event_interval tick (spec.md §4.5 step 5), grounded on the
// original LogInput.cpp ReadLocalEvents/history-import collaborator named
// in SPEC_FULL.md's supplemented features. Out of scope beyond this seam:
// the importer itself is an external collaborator.
type HistoryImporter interface {
	AddHistoryFile(path string) error
}

// BlockedEventManager is the feedback loop (C9): a reader whose sender is
// applying back-pressure parks its next read here instead of spinning.
type BlockedEventManager interface {
	Block(key fileid.DeviceInode, retry func() bool)
	Unblock(key fileid.DeviceInode)
	DrainReady(now time.Time) int
}

// Monitor is the metrics/health facade (internal/metrics) used by the
// dispatcher.
type Monitor interface {
	CPULevel() CPULevel
	// Usage reports the last-second realtime CPU usage ratio the
	// dispatcher's flow-control bands (spec.md §4.5) key off: 1.0 means
	// "fully using one core's worth of the configured GOMAXPROCS budget".
	Usage() float64
	SetOpenFileCount(n int)
	SetHandlerCount(n int)
	ObserveEventTPS(n int)
}

// CPULevel buckets instantaneous CPU load into the bands the dispatcher's
// flow-control decisions key off (C8).
type CPULevel int

const (
	CPULow CPULevel = iota
	CPUMedium
	CPUHigh
	CPUCritical
)
