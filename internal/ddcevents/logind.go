package ddcevents

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
)

const (
	logindManagerIface  = "org.freedesktop.login1.Manager"
	prepareForSleepName = logindManagerIface + ".PrepareForSleep"
)

// busConn is the subset of *dbus.Conn the logind DPMS source needs. A
// narrow interface, grounded on the teacher's NewLogindBackendWithConn
// seam (internal/server/brightness/sysfs_logind_test.go), so a fake can
// stand in for the system bus in tests.
type busConn interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// ReferenceLister supplies the set of displays a DPMS transition
// applies to. *ddcregistry.Registry satisfies it via its All method.
type ReferenceLister interface {
	All() []*ddcdisplay.Reference
}

// LogindSource turns logind's PrepareForSleep signal into DPMS_AWAKE /
// DPMS_ASLEEP events for every currently-tracked display (spec.md
// §4.13's DPMS_AWAKE/DPMS_ASLEEP event types). Grounded on the
// teacher's dbus usage in internal/server/brightness, generalized from
// a one-shot method call (SetBrightness) into a subscribed signal.
type LogindSource struct {
	conn  busConn
	refs  ReferenceLister
	disp  *Dispatcher
	now   func() int64
	sigCh chan *dbus.Signal

	mu      sync.Mutex
	stopped bool
}

// NewLogindSource dials the system bus and returns a source that is
// not yet subscribed; call Start to begin listening.
func NewLogindSource(refs ReferenceLister, disp *Dispatcher, now func() int64) (*LogindSource, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ddcevents: connecting to the system bus: %w", err)
	}
	return NewLogindSourceWithConn(conn, refs, disp, now), nil
}

// NewLogindSourceWithConn builds a source over an already-open
// connection (or a fake satisfying busConn, in tests).
func NewLogindSourceWithConn(conn busConn, refs ReferenceLister, disp *Dispatcher, now func() int64) *LogindSource {
	return &LogindSource{
		conn:  conn,
		refs:  refs,
		disp:  disp,
		now:   now,
		sigCh: make(chan *dbus.Signal, 8),
	}
}

// Start subscribes to logind's PrepareForSleep signal and begins
// translating it into events on a background goroutine.
func (s *LogindSource) Start() error {
	if err := s.conn.AddMatchSignal(dbus.WithMatchInterface(logindManagerIface)); err != nil {
		return fmt.Errorf("ddcevents: subscribing to %s: %w", logindManagerIface, err)
	}
	s.conn.Signal(s.sigCh)
	go s.loop()
	return nil
}

// Close stops the background goroutine and releases the bus
// connection.
func (s *LogindSource) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.conn.RemoveSignal(s.sigCh)
	close(s.sigCh)
	return s.conn.Close()
}

func (s *LogindSource) loop() {
	for sig := range s.sigCh {
		s.handleSignal(sig)
	}
}

func (s *LogindSource) handleSignal(sig *dbus.Signal) {
	if sig.Name != prepareForSleepName || len(sig.Body) != 1 {
		return
	}
	goingToSleep, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	evType := DPMSAwake
	if goingToSleep {
		evType = DPMSAsleep
	}

	s.disp.BeginBatch()
	for _, ref := range s.refs.All() {
		s.disp.Emit(Event{
			TimestampNS:   s.now(),
			Type:          evType,
			ConnectorName: ref.ConnectorName(),
			DisplayNumber: ref.Number,
			IOPath:        ref.IOPath,
			Flags:         ref.Flags(),
		})
	}
	s.disp.EndBatch()
}
