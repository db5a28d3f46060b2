// Package dispatcher implements the single main loop (C8) that drives
// every other component: it pops events from the event-queue hub (C5),
// routes them to per-file readers (C7) via the watch registry (C6),
// propagates watch timeouts, and runs the dispatcher's periodic
// maintenance actions (handler-timeout sweep, checkpoint dump,
// config-match cache clear, CPU-aware flow control). Broken symlinks are
// not re-probed on a timer. Grounded on
// spec.md §4.5 and the teacher's single-goroutine, explicit-timestamp
// style (no async runtime, just a loop and a handful of "last ran at"
// fields, the same shape internal/checkpoint/v2's RunGCLoop uses).
package dispatcher

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-logtail/logtailcore/cfg"
	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/internal/alarm"
	v1 "github.com/open-logtail/logtailcore/internal/checkpoint/v1"
	v2 "github.com/open-logtail/logtailcore/internal/checkpoint/v2"
	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/eventhub"
	"github.com/open-logtail/logtailcore/internal/feedback"
	"github.com/open-logtail/logtailcore/internal/fileid"
	"github.com/open-logtail/logtailcore/internal/limiter"
	"github.com/open-logtail/logtailcore/internal/logger"
	"github.com/open-logtail/logtailcore/internal/reader"
	"github.com/open-logtail/logtailcore/internal/watch"
	"github.com/open-logtail/logtailcore/internal/watchconfig"
)

// DirWatcher is the subset of internal/discovery.DirWatcher the dispatcher
// needs to bridge newly-discovered directories into the live fsnotify
// subscription; kept as a narrow interface here (rather than importing
// *discovery.DirWatcher's full API) so dispatcher tests can substitute a
// fake, matching internal/collab's "define the seam as an interface the
// consumer owns" pattern.
type DirWatcher interface {
	Add(dir string) error
	Remove(dir string) error
}

// Deps bundles every collaborator the Dispatcher needs. All fields except
// DirWatcher, HistoryImporter and LocalEventFile are required.
type Deps struct {
	Clock    clock.Clock
	Hub      *eventhub.Hub
	Registry *watch.Registry
	ConfMgr  *watchconfig.Manager
	V1Store  *v1.Store
	V2Store  *v2.Store
	FDBudget *reader.FDBudget
	Alarms   *alarm.Manager
	AlarmDims alarm.Dims
	Monitor  collab.Monitor
	Feedback *feedback.Manager
	Limiters *limiter.Registry
	Sender   collab.SenderBus
	HostIP   string

	ReaderTunables cfg.ReaderConfig
	Tunables       cfg.DispatcherConfig
	Checkpoint     cfg.CheckpointConfig
	Polling        cfg.PollingConfig

	// DirWatcher bridges discovered directories into the live fsnotify
	// subscription; nil disables kernel-event watching (polling only).
	DirWatcher DirWatcher
	// HistoryImporter receives staged local-event files; nil disables the
	// out-of-scope collaborator notification without affecting import.
	HistoryImporter collab.HistoryImporter
	// LocalEventFile is the path LocalEventImporter reads on each
	// ReadLocalEventInterval tick; empty disables the feature.
	LocalEventFile string
}

type readerKey struct {
	id     fileid.DeviceInode
	config string
}

// Dispatcher is the single-goroutine main loop of spec.md §4.5. A nil
// *Dispatcher is not usable; build one with New.
type Dispatcher struct {
	deps Deps
	ctx  context.Context

	readers       map[readerKey]*reader.Reader
	localImporter *LocalEventImporter
	flow          FlowControl
	draining      bool

	lastReadLocal, lastMetrics, lastTimeout        time.Time
	lastCheckBaseDir, lastHandlerTimeout           time.Time
	lastDumpWatcher, lastClearConfigMatch          time.Time
	lastCheckBlock                                 time.Time
}

// New builds a Dispatcher from deps.
func New(deps Deps) *Dispatcher {
	return &Dispatcher{
		deps:          deps,
		readers:       make(map[readerKey]*reader.Reader),
		localImporter: NewLocalEventImporter(deps.LocalEventFile),
	}
}

// RequestDrain implements spec.md §5's "full drain" shutdown mode: Run
// keeps looping until the hub and the feedback manager are both empty
// (every discovered event has been handled and every parked delivery has
// either succeeded or been discarded), an approximation of "every reader
// reports EOF and every downstream queue is empty" that doesn't require
// this core to know the internals of the out-of-scope send pipeline.
func (d *Dispatcher) RequestDrain() { d.draining = true }

// Readers reports the number of live per-(identity, config) reader state
// machines, for tests and metrics.
func (d *Dispatcher) Readers() int { return len(d.readers) }

// Run executes the dispatcher loop until ctx is cancelled (or, once
// RequestDrain has been called, until drained), dumping the V1 checkpoint
// store one final time before returning. It never returns a non-nil error
// on ordinary shutdown; a caller supervising Run via errgroup should treat
// ctx cancellation as the expected exit path.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.ctx = ctx
	now := d.deps.Clock.Now()
	d.lastReadLocal, d.lastMetrics, d.lastTimeout = now, now, now
	d.lastCheckBaseDir, d.lastHandlerTimeout = now, now
	d.lastDumpWatcher, d.lastClearConfigMatch = now, now
	d.lastCheckBlock = now

	for {
		if ctx.Err() != nil {
			d.shutdown()
			return nil
		}

		now = d.deps.Clock.Now()
		d.runPeriodicActions(now)

		evs := d.deps.Hub.Pop(1)
		if len(evs) == 0 {
			if d.draining && d.deps.Feedback.Len() == 0 {
				d.shutdown()
				return nil
			}
			select {
			case <-ctx.Done():
				d.shutdown()
				return nil
			case <-d.deps.Clock.After(d.deps.Tunables.LogInputThreadWaitInterval):
			}
			continue
		}

		d.dispatch(evs[0])
		d.deps.Monitor.ObserveEventTPS(1)

		if sleep := d.flow.Tick(d.deps.Monitor.Usage()); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (d *Dispatcher) shutdown() {
	if err := d.deps.V1Store.DumpToLocal(); err != nil {
		logger.Errorf("dispatcher: final checkpoint dump failed: %v", err)
	}
}

// runPeriodicActions implements the numbered maintenance ticks of spec.md
// §4.5 (items 4-12 except item 9; item 1's event read, item 2's
// pop/dispatch and item 3's empty-queue sleep are Run's own loop body, item
// 13's drain check is RequestDrain's doc comment). There is no
// broken-symlink re-probe tick: Polling.CheckSymbolicLinkEvery is not read.
func (d *Dispatcher) runPeriodicActions(now time.Time) {
	if elapsed(now, d.lastCheckBlock, d.deps.Tunables.CheckBlockEventInterval) {
		d.lastCheckBlock = now
		d.deps.Feedback.DrainReady(now)
	}
	if elapsed(now, d.lastReadLocal, d.deps.Tunables.ReadLocalEventInterval) {
		d.lastReadLocal = now
		if _, err := d.localImporter.Import(d.deps.Hub, d.deps.HistoryImporter); err != nil {
			logger.Warnf("dispatcher: local event import failed: %v", err)
		}
	}
	if elapsed(now, d.lastMetrics, d.deps.Tunables.MetricsUpdateInterval) {
		d.lastMetrics = now
		d.updateMetrics()
	}
	if elapsed(now, d.lastTimeout, d.deps.Tunables.TimeoutInterval) {
		d.lastTimeout = now
		d.handleTimeout()
	}
	if elapsed(now, d.lastCheckBaseDir, d.deps.Tunables.CheckBaseDirInterval) {
		d.lastCheckBaseDir = now
		d.checkBaseDirs()
	}
	if elapsed(now, d.lastHandlerTimeout, d.deps.Tunables.CheckHandlerTimeoutInterval) {
		d.lastHandlerTimeout = now
		d.processHandlerTimeout(now)
	}
	if elapsed(now, d.lastDumpWatcher, d.deps.Tunables.DumpWatcherInterval) {
		d.lastDumpWatcher = now
		logger.Infof("dispatcher: %d watched directories, %d readers", d.deps.Registry.Len(), len(d.readers))
	}
	if elapsed(now, d.lastClearConfigMatch, d.deps.Tunables.ClearConfigMatchInterval) {
		d.lastClearConfigMatch = now
		// This core's configuration is static (no hot-reload, spec.md §1),
		// so there is no config-match cache to clear; the tick is kept to
		// preserve the loop's shape against a future ConfigurationManager.
	}
	if d.deps.Checkpoint.V1DumpInterval > 0 && d.deps.V1Store.NeedsDump(d.deps.Checkpoint.V1DumpInterval) {
		if err := d.deps.V1Store.DumpToLocal(); err != nil {
			logger.Errorf("dispatcher: periodic checkpoint dump failed: %v", err)
		}
	}
}

func elapsed(now, last time.Time, interval time.Duration) bool {
	return interval > 0 && now.Sub(last) >= interval
}

// dispatch routes one popped event, per spec.md §4.5 step 2.
func (d *Dispatcher) dispatch(ev collab.Event) {
	switch ev.Kind {
	case collab.EventOverflow:
		// The kernel-event source dropped events; fall back to a
		// reconciliation sweep instead of trusting the watch blindly.
		d.checkBaseDirs()
	case collab.EventDelete, collab.EventMoveFrom:
		d.handleDelete(ev.Dir, ev.Name)
	default: // CREATE, MODIFY, MOVE_TO
		d.handleFileEvent(ev.Dir, ev.Name)
	}
	if ev.Dir != "" {
		d.deps.Registry.Touch(ev.Dir)
	}
}

func (d *Dispatcher) handleFileEvent(dir, name string) {
	full := filepath.Join(dir, name)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			d.handleDelete(dir, name)
		}
		return
	}
	if info.IsDir() {
		d.registerDirectory(full)
		return
	}

	id := fileid.FromFileInfo(info)
	configs := d.deps.ConfMgr.MatchPath(full)
	if len(configs) == 0 {
		return
	}
	for _, name := range configs {
		entry, ok := d.deps.ConfMgr.Entry(name)
		if !ok {
			continue
		}
		d.pumpReader(id, entry, full)
	}
}

func (d *Dispatcher) handleDelete(dir, name string) {
	full := filepath.Join(dir, name)
	if _, ok := d.deps.Registry.Get(full); ok {
		d.unregisterDescendants(full)
		return
	}
	now := d.deps.Clock.Now()
	for key, r := range d.readers {
		cp := r.Checkpoint(now)
		if cp.LogicalPath != full && cp.RealPath != full {
			continue
		}
		r.Destroy()
		d.deps.V1Store.Delete(key.id, key.config)
		delete(d.readers, key)
	}
	d.deps.Monitor.SetHandlerCount(len(d.readers))
}

func (d *Dispatcher) registerDirectory(path string) {
	if _, ok := d.deps.Registry.Get(path); ok {
		d.deps.Registry.Touch(path)
		return
	}
	names := d.matchingConfigsForDir(path)
	d.deps.Registry.Add(path, names)
	if d.deps.DirWatcher != nil {
		if err := d.deps.DirWatcher.Add(path); err != nil {
			d.deps.Registry.MarkBrokenSymlink(path, true)
		}
	}
}

func (d *Dispatcher) matchingConfigsForDir(dir string) []string {
	var names []string
	for _, name := range d.deps.ConfMgr.Names() {
		wc, ok := d.deps.ConfMgr.Config(name)
		if !ok {
			continue
		}
		if strings.HasPrefix(dir, wc.BasePath) || strings.HasPrefix(wc.BasePath, dir) {
			names = append(names, name)
		}
	}
	return names
}

func (d *Dispatcher) unregisterDescendants(path string) {
	prefix := path + string(filepath.Separator)
	for _, p := range d.deps.Registry.Paths() {
		if p != path && !strings.HasPrefix(p, prefix) {
			continue
		}
		d.deps.Registry.Remove(p)
		if d.deps.DirWatcher != nil {
			_ = d.deps.DirWatcher.Remove(p)
		}
	}
}

// pumpReader implements the bulk of spec.md §4.6.1's lifecycle transitions
// for one (identity, config) pair: create-and-init on first sight, reopen
// from INITIALIZED/IDLE, then drain whatever is newly available.
func (d *Dispatcher) pumpReader(id fileid.DeviceInode, entry watchconfig.Entry, path string) {
	key := readerKey{id, entry.Name}
	r, ok := d.readers[key]
	if !ok {
		var err error
		r, err = reader.New(d.readerDeps(), id, entry, path)
		if err != nil {
			d.deps.Alarms.Fire(alarm.CategoryReadLogFailed, d.deps.AlarmDims, err.Error())
			return
		}
		if err := r.Init(false); err != nil {
			d.deps.Alarms.Fire(alarm.CategoryReadLogFailed, d.deps.AlarmDims, err.Error())
			return
		}
		d.readers[key] = r
		d.deps.Monitor.SetHandlerCount(len(d.readers))
	}
	r.TouchEvent(d.deps.Clock.Now())

	switch r.State() {
	case reader.StateClosing, reader.StateDead:
		return
	case reader.StateInitialized, reader.StateIdle:
		if err := r.Reopen(); err != nil {
			return
		}
	}

	d.drainReader(r, entry.Name)
}

func (d *Dispatcher) readerDeps() reader.Deps {
	return reader.Deps{
		Clock:     d.deps.Clock,
		V1Store:   d.deps.V1Store,
		V2Store:   d.deps.V2Store,
		FDBudget:  d.deps.FDBudget,
		Alarms:    d.deps.Alarms,
		AlarmDims: d.deps.AlarmDims,
		HostIP:    d.deps.HostIP,
		Tunables:  d.deps.ReaderTunables,
	}
}

// drainReader reads r until no more data is known to be available,
// handing each non-empty span to deliver and persisting the V1 checkpoint
// at the end, per spec.md §4.6.3/§4.6.4.
func (d *Dispatcher) drainReader(r *reader.Reader, configName string) {
	now := d.deps.Clock.Now()
	parentDir := filepath.Dir(r.Checkpoint(now).RealPath)

	for {
		_, fileSize, err := r.CheckSignatureAndOffset(d.deps.V1Store, parentDir, d.deps.Polling.MaxSearchDepth, d.deps.Checkpoint.FindMaxFileCount)
		if err != nil {
			break
		}
		res, err := r.ReadLog(fileSize)
		if err != nil {
			break
		}
		if len(res.Data) == 0 {
			break
		}
		d.deliver(r, configName, res)
		if !res.MoreAvailable {
			break
		}
	}
	d.deps.V1Store.Add(r.Checkpoint(d.deps.Clock.Now()))
}

// deliver hands one read span to the sender, consulting the concurrency
// limiter first (C10) and parking the send in the feedback manager (C9) if
// the limiter or the sender itself reports back-pressure.
func (d *Dispatcher) deliver(r *reader.Reader, configName string, res reader.ReadResult) {
	lim := d.deps.Limiters.For(configName)
	if !lim.IsValidToPop() {
		d.deps.Feedback.Block(r.Identity(), func() bool { return d.attemptSend(r, configName, res, lim) })
		return
	}
	if !d.attemptSend(r, configName, res, lim) {
		d.deps.Feedback.Block(r.Identity(), func() bool { return d.attemptSend(r, configName, res, lim) })
	}
}

// attemptSend performs one send attempt, returning true once this span
// should be considered done (delivered, or discarded as unretryable) and
// false if it should be parked for another attempt later.
func (d *Dispatcher) attemptSend(r *reader.Reader, configName string, res reader.ReadResult, lim *limiter.Limiter) bool {
	lim.PostPop()
	result, err := d.deps.Sender.Send(d.ctx, configName, [][]byte{res.Data})
	lim.OnSendDone()

	if err != nil || result.Retryable() {
		lim.OnFail(d.deps.Clock.Now())
		if result.Retryable() {
			return false
		}
		d.deps.Alarms.Fire(alarm.CategorySenderBackoff, d.deps.AlarmDims, fmt.Sprintf("send discarded for %s: %v", configName, err))
		return true
	}

	lim.OnSuccess()
	if res.EORangeKey != "" {
		if cerr := r.CommitExactlyOnce(res.EOShard); cerr != nil {
			logger.Errorf("dispatcher: commit exactly-once shard failed: %v", cerr)
		}
	}
	return true
}

func (d *Dispatcher) updateMetrics() {
	openFiles := 0
	if d.deps.FDBudget != nil {
		openFiles = d.deps.FDBudget.InUse()
	}
	d.deps.Monitor.SetOpenFileCount(openFiles)
	d.deps.Monitor.SetHandlerCount(len(d.readers))
}

// handleTimeout synthesizes the TIMEOUT behavior of spec.md §4.7: every
// watch whose last-update lags TimeoutInterval has its descendant
// directories unregistered, forcing rediscovery on the next poll round.
func (d *Dispatcher) handleTimeout() {
	for _, p := range d.deps.Registry.StalePaths(d.deps.Tunables.TimeoutInterval) {
		d.unregisterDescendants(p)
	}
}

// checkBaseDirs re-registers every configured watch root that currently
// exists, per spec.md §4.5 step 8: catches newly-configured roots and
// base directories restored after having been missing.
func (d *Dispatcher) checkBaseDirs() {
	for _, name := range d.deps.ConfMgr.Names() {
		wc, ok := d.deps.ConfMgr.Config(name)
		if !ok {
			continue
		}
		if _, err := os.Stat(wc.BasePath); err == nil {
			d.registerDirectory(wc.BasePath)
		}
	}
}

// processHandlerTimeout implements spec.md §4.6.1's ACTIVE -> IDLE sweep
// (via each reader's own CloseTimeoutFilePtr) and reaps any reader that
// has reached CLOSING/DEAD since the last sweep.
func (d *Dispatcher) processHandlerTimeout(now time.Time) {
	base := d.deps.ReaderTunables.CloseUnusedFileTime
	for key, r := range d.readers {
		jitter := 1.0 + rand.Float64()*0.5 // spec.md §4.6.1's [1.0, 1.5) jitter
		idle := time.Duration(float64(base) * jitter)
		r.CloseTimeoutFilePtr(now, idle)

		if r.State() == reader.StateClosing || r.State() == reader.StateDead {
			r.Destroy()
			delete(d.readers, key)
		}
	}
	d.deps.Monitor.SetHandlerCount(len(d.readers))
}
