// Package ddc is the module's public facade (spec.md §4.14, C14): a
// fixed-order init/teardown sequence over every other package's
// process-global state, plus the optional hotplug watch loop that
// turns C12's reconciliation deltas into C13 events.
package ddc

import (
	"context"
	"fmt"
	"time"

	"github.com/AvengeMedia/ddcgo/internal/ddcconfig"
	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddcedid"
	"github.com/AvengeMedia/ddcgo/internal/ddcevents"
	"github.com/AvengeMedia/ddcgo/internal/ddci2c"
	"github.com/AvengeMedia/ddcgo/internal/ddclock"
	"github.com/AvengeMedia/ddcgo/internal/ddcprobe"
	"github.com/AvengeMedia/ddcgo/internal/ddcregistry"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstats"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
	"github.com/AvengeMedia/ddcgo/internal/log"
)

// watchJoinTimeout bounds how long Teardown waits for the watch loop to
// notice cancellation and exit (spec.md §4.14 "pending watch task is
// joined with a 4-second timeout").
const watchJoinTimeout = 4 * time.Second

// Options configures Init. The zero value is valid and disables watch
// mode.
type Options struct {
	Strategy          ddci2c.Strategy
	DynamicSleep      bool
	VerifyAfterSet    bool
	SkipInitialChecks bool
	EDIDIncludeCEABlk bool
	GlobalSleepMult   float64 // 0 leaves the default multiplier of 1.0

	WatchMode    bool
	Source       ddcregistry.Source // required when WatchMode is true
	PollInterval time.Duration      // defaults to 2s when zero
}

// Library is the facade instance: one process normally owns exactly
// one, but nothing here prevents a second for tests.
type Library struct {
	registry   *ddcregistry.Registry
	dispatcher *ddcevents.Dispatcher

	initialized bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New returns an uninitialized Library. Call Init before using it.
func New() *Library {
	return &Library{}
}

// Init runs the fixed initialization order spec.md §4.14 names:
// status_codes, sleep_stats, execution_stats, per_thread_data,
// displays_registry, packet_codec, display_lock_registry, retry_engine,
// initial_checks, then watch_displays if requested. Every step is
// idempotent, and so is Init itself.
func (l *Library) Init(opts Options) *ddcstatus.ErrorInfo {
	if l.initialized {
		return nil
	}

	// status_codes (internal/ddcstatus): self-initializing constant
	// tables, nothing to allocate here; named so the order is legible.
	_ = ddcstatus.OK

	// sleep_stats / execution_stats (internal/ddcstats): package-level
	// atomics, already zero-valued; no allocation needed.
	_ = ddcstats.Get()

	// per_thread_data: this port has no OS thread-local storage to set
	// up — internal/ddcdisplay.Open allocates a fresh owner id per call
	// instead, since goroutines carry no stable thread identity.

	// displays_registry (C12)
	l.registry = ddcregistry.New()
	l.dispatcher = ddcevents.NewDispatcher()

	// packet_codec (internal/ddcpacket): stateless; nothing to do.

	// display_lock_registry (C8): the default registry is a package-level
	// value created at package init; nothing to allocate here.
	_ = ddclock.Default()

	// retry_engine (C5)
	ddcconfig.SetI2CStrategy(opts.Strategy)
	ddcconfig.SetDynamicSleepEnabled(opts.DynamicSleep)
	if opts.GlobalSleepMult > 0 {
		ddcsleep.SetGlobalMultiplier(opts.GlobalSleepMult)
	}
	ddcconfig.SetVerifyAfterSet(opts.VerifyAfterSet)
	ddcconfig.SetSkipInitialChecks(opts.SkipInitialChecks)
	ddcconfig.SetEDIDIncludeExtensionBlock(opts.EDIDIncludeCEABlk)

	// initial_checks (C9): no persistent state to allocate; it runs
	// inline the first time each display is opened.

	// watch_displays (optional, C12+C13)
	if opts.WatchMode {
		if opts.Source == nil {
			return ddcstatus.New(ddcstatus.Arg, "Init", "WatchMode requires a Source")
		}
		interval := opts.PollInterval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		ddcconfig.SetWatchModeEnabled(true)
		l.startWatch(opts.Source, interval)
	}

	l.initialized = true
	return nil
}

// Teardown reverses Init's order: the watch loop is cancelled and
// joined first (bounded by watchJoinTimeout), then every step is
// unwound in reverse. Teardown on an uninitialized Library is a no-op.
func (l *Library) Teardown() *ddcstatus.ErrorInfo {
	if !l.initialized {
		return nil
	}

	if l.watchCancel != nil {
		l.watchCancel()
		select {
		case <-l.watchDone:
		case <-time.After(watchJoinTimeout):
			log.Warn("watch task did not exit within the teardown timeout")
		}
		l.watchCancel = nil
		l.watchDone = nil
	}
	ddcconfig.SetWatchModeEnabled(false)

	// retry_engine, display_lock_registry, packet_codec: nothing to
	// release — they are process-global by design (spec.md §4.8 "never
	// destroyed while the process runs").

	l.registry = nil
	l.dispatcher = nil

	// per_thread_data, execution_stats, sleep_stats, status_codes:
	// nothing allocated for these in Init; nothing to release here.

	l.initialized = false
	return nil
}

// Displays returns every currently-tracked, non-removed display
// reference.
func (l *Library) Displays() []*ddcdisplay.Reference {
	if l.registry == nil {
		return nil
	}
	return l.registry.All()
}

// Dispatcher returns the event dispatcher callers register C13
// callbacks with.
func (l *Library) Dispatcher() *ddcevents.Dispatcher {
	return l.dispatcher
}

// OpenDisplay opens ref under the facade's configured I²C strategy
// (spec.md §4.7 "open(dref, options)"), for callers that already hold a
// Reference (from Displays or ScanOnce) and want a live Handle to issue
// ops against.
func (l *Library) OpenDisplay(ref *ddcdisplay.Reference, wait bool) (*ddcdisplay.Handle, *ddcstatus.ErrorInfo) {
	dh, _, err := ddcdisplay.Open(ref, ddcdisplay.OpenOptions{
		Strategy: ddcconfig.I2CStrategy(),
		Wait:     wait,
	})
	return dh, err
}

// ScanOnce runs a single, synchronous reconciliation pass against
// source: unlike the watch loop, every addition is resolved (EDID read
// and initial-checks probe) before ScanOnce returns, which is what a
// one-shot CLI invocation like `detect` wants.
func (l *Library) ScanOnce(source ddcregistry.Source) (ddcregistry.Delta, error) {
	conns, err := source.Poll()
	if err != nil {
		return ddcregistry.Delta{}, fmt.Errorf("polling displays: %w", err)
	}
	names := make(map[ddclock.IOPath]string, len(conns))
	for _, c := range conns {
		names[c.IOPath] = c.ConnectorName
	}

	delta := l.registry.Reconcile(conns)
	for _, path := range delta.Added {
		l.addDisplay(path, names[path])
	}
	for _, path := range delta.Removed {
		l.dispatcher.Emit(ddcevents.Event{TimestampNS: time.Now().UnixNano(), Type: ddcevents.Disconnected, IOPath: path})
	}
	return delta, nil
}

func (l *Library) startWatch(source ddcregistry.Source, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.watchCancel = cancel
	l.watchDone = make(chan struct{})

	go func() {
		defer close(l.watchDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = source.Close()
				return
			case <-ticker.C:
				l.pollOnce(source)
			}
		}
	}()
}

func (l *Library) pollOnce(source ddcregistry.Source) {
	conns, err := source.Poll()
	if err != nil {
		log.Warn("hotplug poll failed", "err", err)
		return
	}
	names := make(map[ddclock.IOPath]string, len(conns))
	for _, c := range conns {
		names[c.IOPath] = c.ConnectorName
	}

	delta := l.registry.Reconcile(conns)

	l.dispatcher.BeginBatch()
	for _, path := range delta.Removed {
		l.dispatcher.Emit(ddcevents.Event{
			TimestampNS: time.Now().UnixNano(),
			Type:        ddcevents.Disconnected,
			IOPath:      path,
		})
	}
	l.dispatcher.EndBatch()

	for _, path := range delta.Added {
		go l.addDisplay(path, names[path])
	}
}

// addDisplay runs the full add-side sequence spec.md §4.12 defers to an
// external caller: register the new display, open it, read EDID (C6),
// run the initial-checks probe (C9), then announce it.
func (l *Library) addDisplay(path ddclock.IOPath, connectorName string) {
	ref := l.registry.Add(path)
	ref.SetConnectorName(connectorName)

	dh, firstOpen, err := ddcdisplay.Open(ref, ddcdisplay.OpenOptions{
		Strategy: ddcconfig.I2CStrategy(),
		Wait:     false,
	})
	if err != nil {
		ref.SetCommErrorSummary(err.Error())
		log.Warn("failed to open newly-detected display", "path", fmt.Sprintf("%+v", path), "err", err)
		return
	}
	defer dh.Close()

	if edid, eerr := ddcedid.Read(dh.Device, ddcedid.ReadBlock, ddcconfig.EDIDIncludeExtensionBlock()); eerr == nil {
		ref.SetEDID(edid)
	} else {
		ref.SetCommErrorSummary(eerr.Error())
	}

	if firstOpen && !ddcconfig.SkipInitialChecks() {
		// No LVDS/eDP panel-type heuristic is wired up yet, so every
		// display runs the full probe (spec.md §4.9 "for a laptop panel,
		// likewise skip probes").
		ddcprobe.Run(dh, true, false)
	}

	l.dispatcher.Emit(ddcevents.Event{
		TimestampNS:   time.Now().UnixNano(),
		Type:          ddcevents.Connected,
		ConnectorName: connectorName,
		DisplayNumber: ref.Number,
		IOPath:        path,
		Flags:         ref.Flags(),
	})
}
