// Package agent wires together every collaborator of the tailing core
// (checkpoint stores, discovery, the event hub, the watch registry, the
// dispatcher loop) from a cfg.Config and runs them as a supervised group of
// goroutines, the way the teacher's cmd/gcsfuse wires its file system
// together before handing control to fuse.Mount. This is the only package
// that imports every internal/* package at once. The dispatcher it builds
// takes most collaborators as concrete types and goes through the collab
// interfaces only for the monitor, the sender bus and the history importer.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/open-logtail/logtailcore/cfg"
	"github.com/open-logtail/logtailcore/clock"
	"github.com/open-logtail/logtailcore/common"
	"github.com/open-logtail/logtailcore/internal/alarm"
	v1 "github.com/open-logtail/logtailcore/internal/checkpoint/v1"
	v2 "github.com/open-logtail/logtailcore/internal/checkpoint/v2"
	"github.com/open-logtail/logtailcore/internal/collab"
	"github.com/open-logtail/logtailcore/internal/discovery"
	"github.com/open-logtail/logtailcore/internal/dispatcher"
	"github.com/open-logtail/logtailcore/internal/eventhub"
	"github.com/open-logtail/logtailcore/internal/feedback"
	"github.com/open-logtail/logtailcore/internal/limiter"
	"github.com/open-logtail/logtailcore/internal/logger"
	"github.com/open-logtail/logtailcore/internal/metrics"
	"github.com/open-logtail/logtailcore/internal/reader"
	"github.com/open-logtail/logtailcore/internal/watch"
	"github.com/open-logtail/logtailcore/internal/watchconfig"
)

// Agent owns every long-lived collaborator and the background goroutines
// that drive discovery into the dispatcher loop.
type Agent struct {
	cfg *cfg.Config

	clock      clock.Clock
	alarms     *alarm.Manager
	alarmDims  alarm.Dims
	monitor    *metrics.Monitor
	v1Store    *v1.Store
	v2Store    *v2.Store
	confMgr    *watchconfig.Manager
	hub        *eventhub.Hub
	registry   *watch.Registry
	walker     *discovery.Walker
	poller     *discovery.ModifyPoller
	dirWatcher *discovery.DirWatcher
	dispatcher *dispatcher.Dispatcher

	shutdown common.ShutdownFn
}

// New builds an Agent from cfg. It loads the watch-config file, opens the
// V2 checkpoint store, and replays the V1 checkpoint dump, but starts no
// goroutines; call Run to start the agent.
func New(c *cfg.Config) (*Agent, error) {
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	watchFile, err := watchconfig.Load(c.WatchConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading watch config: %w", err)
	}
	confMgr, err := watchconfig.NewManager(watchFile)
	if err != nil {
		return nil, fmt.Errorf("building configuration manager: %w", err)
	}

	clk := clock.RealClock{}
	alarmDims := alarm.Dims{Project: c.Alarm.Project, Logstore: c.Alarm.Logstore, Region: c.Alarm.Region}
	alarms := alarm.NewManager(c.Alarm.Window, c.Alarm.ResetAfter)

	monitor, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("building monitor: %w", err)
	}

	v1Store := v1.New(clk, c.StateDir)
	if err := v1Store.LoadFromLocal(); err != nil {
		logger.Warnf("agent: loading v1 checkpoint dump: %v", err)
	}

	v2Store, err := v2.Open(clk, cfg.V2CheckpointPath(c))
	if err != nil {
		return nil, fmt.Errorf("opening v2 checkpoint store: %w", err)
	}

	hub := eventhub.New(c.Polling.CacheSizeUpperBound)
	registry := watch.New(clk)

	walker := discovery.NewWalker(discovery.WalkLimits{
		MaxSearchDepth:         c.Polling.MaxSearchDepth,
		StatCountLimitPerRound: c.Polling.StatCountLimitPerRound,
		PreservedDirDepth:      c.Polling.PreservedDirDepth,
		CacheTimeout:           c.Polling.CacheTimeout,
	}, clk)
	poller := discovery.NewModifyPoller(c.Polling.MaxFileNotExistTimes)

	var dirWatcher *discovery.DirWatcher
	if dw, err := discovery.NewDirWatcher(); err != nil {
		logger.Warnf("agent: kernel event source unavailable, falling back to polling only: %v", err)
	} else {
		dirWatcher = dw
	}

	fdBudget := reader.NewFDBudget(reader.ClampToRlimit(c.Dispatcher.MaxOpenFiles))
	fb := feedback.New(clk, c.Reader.ReadDelayAlarmDuration)
	limiters := limiter.NewRegistry(clk, limiter.DefaultConfig())

	d := dispatcher.New(dispatcher.Deps{
		Clock:           clk,
		Hub:             hub,
		Registry:        registry,
		ConfMgr:         confMgr,
		V1Store:         v1Store,
		V2Store:         v2Store,
		FDBudget:        fdBudget,
		Alarms:          alarms,
		AlarmDims:       alarmDims,
		Monitor:         monitor,
		Feedback:        fb,
		Limiters:        limiters,
		Sender:          dispatcher.LoggingSender{},
		HostIP:          c.HostIP,
		ReaderTunables:  c.Reader,
		Tunables:        c.Dispatcher,
		Checkpoint:      c.Checkpoint,
		Polling:         c.Polling,
		DirWatcher:      dirWatcherOrNil(dirWatcher),
		HistoryImporter: nil,
		LocalEventFile:  "",
	})

	a := &Agent{
		cfg:        c,
		clock:      clk,
		alarms:     alarms,
		alarmDims:  alarmDims,
		monitor:    monitor,
		v1Store:    v1Store,
		v2Store:    v2Store,
		confMgr:    confMgr,
		hub:        hub,
		registry:   registry,
		walker:     walker,
		poller:     poller,
		dirWatcher: dirWatcher,
		dispatcher: d,
	}
	a.shutdown = common.JoinShutdownFunc(
		func(context.Context) error { return v1Store.DumpToLocal() },
		func(context.Context) error { return v2Store.Close() },
		func(ctx context.Context) error { return monitor.Shutdown(ctx) },
		func(context.Context) error {
			if dirWatcher == nil {
				return nil
			}
			return dirWatcher.Close()
		},
	)
	return a, nil
}

// dirWatcherOrNil adapts a possibly-nil *discovery.DirWatcher into the
// dispatcher.DirWatcher interface, preserving a true nil interface value
// (rather than a non-nil interface wrapping a nil pointer) when the kernel
// event source failed to start.
func dirWatcherOrNil(dw *discovery.DirWatcher) dispatcher.DirWatcher {
	if dw == nil {
		return nil
	}
	return dw
}

// Run starts every background goroutine (directory walker, modify poller,
// fsnotify bridge, checkpoint GC loop, dispatcher loop) and blocks until
// ctx is cancelled or one of them returns a non-recoverable error, then
// performs an orderly shutdown.
func (a *Agent) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return a.dispatcher.Run(gctx) })
	group.Go(func() error { a.runWalkerLoop(gctx); return nil })
	group.Go(func() error { a.runModifyPollLoop(gctx); return nil })
	if a.dirWatcher != nil {
		group.Go(func() error { a.runFsnotifyBridge(gctx); return nil })
	}
	group.Go(func() error {
		a.v2Store.RunGCLoop(gctx, v2.GCLoopConfig{
			Interval:       a.cfg.Checkpoint.GCInterval,
			CandidateAge:   a.cfg.Checkpoint.GCCandidateAge,
			RatePerRound:   a.cfg.Checkpoint.GCRatePerRound,
			TimeBudget:     a.cfg.Checkpoint.GCTimeBudget,
			IncrementalBud: a.cfg.Checkpoint.IncrementalScanBudget,
		})
		return nil
	})

	err := group.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := a.shutdown(shutdownCtx); serr != nil {
		logger.Errorf("agent: shutdown cleanup failed: %v", serr)
	}
	return err
}

// runWalkerLoop re-walks every configured watch root on RoundInterval,
// feeding newly discovered files and directories into the event hub (C4
// driving C5), and ages out state for base directories that have gone
// missing via the registry's own StalePaths accounting in the dispatcher.
func (a *Agent) runWalkerLoop(ctx context.Context) {
	interval := a.cfg.Polling.RoundInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := a.clock.After(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			a.walkOnce()
			ticker = a.clock.After(interval)
		}
	}
}

func (a *Agent) walkOnce() {
	for _, name := range a.confMgr.Names() {
		entry, ok := a.confMgr.Entry(name)
		if !ok {
			continue
		}
		dirs, matches, broken, err := a.walker.Walk(entry.Name, entry.BasePath, entry.FilePattern)
		if err != nil {
			logger.Warnf("agent: walk of %s (%s) failed: %v", entry.Name, entry.BasePath, err)
			continue
		}
		for _, dir := range dirs {
			a.hub.Push(collab.Event{Kind: collab.EventCreate, Dir: filepath.Dir(dir), Name: filepath.Base(dir)})
		}
		for _, ev := range discovery.ToEvents(matches) {
			a.hub.Push(ev)
		}
		for _, b := range broken {
			logger.Debugf("agent: broken symlink in %s watch: %s", entry.Name, b.Path)
		}
	}
}

// runModifyPollLoop polls already-discovered files for growth once per
// RoundInterval, the same cadence as the directory walk, in a loop of its
// own so "find new files" and "did this file grow" stay separate.
func (a *Agent) runModifyPollLoop(ctx context.Context) {
	interval := a.cfg.Polling.RoundInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := a.clock.After(interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			for _, ev := range a.poller.Poll(a.registry.Paths()) {
				a.hub.Push(ev)
			}
			ticker = a.clock.After(interval)
		}
	}
}

// readEventsBurst bounds how many kernel events runFsnotifyBridge admits
// into the hub in one go before the rate limiter below starts pacing them,
// large enough to absorb one writer's worth of rapid MODIFY events without
// stalling on the read side.
const readEventsBurst = 64

// runFsnotifyBridge forwards kernel watch events and errors into the event
// hub until ctx is cancelled or the watcher's channels close. The admission
// rate is capped per spec.md §4.5 step 1 ("try-read-events() — rate-limited
// pull of events from the kernel-event source... into the hub"), the same
// knob (ReadEventsInterval) the dispatcher's own periodic actions key off.
func (a *Agent) runFsnotifyBridge(ctx context.Context) {
	events := a.dirWatcher.Events()
	errs := a.dirWatcher.Errors()
	limit := rate.Inf
	if interval := a.cfg.Dispatcher.ReadEventsInterval; interval > 0 {
		limit = rate.Every(interval)
	}
	rl := rate.NewLimiter(limit, readEventsBurst)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := rl.Wait(ctx); err != nil {
				return
			}
			a.hub.Push(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warnf("agent: kernel event source error: %v", err)
			a.alarms.Fire(alarm.CategoryDiscoveryOverflow, a.alarmDims, err.Error())
		}
	}
}
