// Package ddcevents is the status event dispatch layer (spec.md §4.13,
// C13): a callback registry that the registry/reconciler (C12) and the
// logind DPMS source feed, and that fans each event out to its
// subscribers without letting a slow callback stall the caller.
package ddcevents

import (
	"sync"

	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddclock"
)

// EventType is one of the five kinds of status event spec.md §4.13
// names.
type EventType int

const (
	Connected EventType = iota
	Disconnected
	DPMSAwake
	DPMSAsleep
	DDCEnabled
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case DPMSAwake:
		return "DPMS_AWAKE"
	case DPMSAsleep:
		return "DPMS_ASLEEP"
	case DDCEnabled:
		return "DDC_ENABLED"
	default:
		return "UNKNOWN"
	}
}

// Event is one status event record (spec.md §4.13 "Event record").
// TimestampNS is populated by the caller at emit time rather than by
// this package, since this package must not call time.Now() where that
// would make it untestable.
type Event struct {
	TimestampNS   int64
	Type          EventType
	ConnectorName string
	DisplayNumber ddcdisplay.Number
	IOPath        ddclock.IOPath
	Flags         ddcdisplay.Flag
}

// Callback is a client-supplied event handler (spec.md §4.13 "callback
// registry holds client-supplied functions").
type Callback func(Event)

// Dispatcher holds the registered callbacks and the batching decision
// described in spec.md §4.13 "a process-global mutex serialises the
// decision to emit-immediately or enqueue". One Dispatcher is shared by
// every event source feeding a given registry.
type Dispatcher struct {
	mu        sync.Mutex
	callbacks map[int]Callback
	nextID    int
	batching  bool
	queue     []Event
}

// NewDispatcher returns an empty dispatcher, not yet batching.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{callbacks: make(map[int]Callback)}
}

// Register adds cb and returns a token for Unregister.
func (d *Dispatcher) Register(cb Callback) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.callbacks[id] = cb
	return id
}

// Unregister removes the callback registered under id, if any.
func (d *Dispatcher) Unregister(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.callbacks, id)
}

// BeginBatch switches the dispatcher into enqueue mode: subsequent
// Emit calls are held until EndBatch, so a reconciliation pass that
// discovers several changes at once can deliver them as one settled
// set rather than interleaved with in-progress bookkeeping (spec.md
// §4.13 "used during batch detection").
func (d *Dispatcher) BeginBatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batching = true
}

// EndBatch stops enqueueing and dispatches everything queued while
// batching was on, in emission order: each callback gets one goroutine
// that receives the queued events one after another.
func (d *Dispatcher) EndBatch() {
	d.mu.Lock()
	d.batching = false
	queued := d.queue
	d.queue = nil
	cbs := snapshot(d.callbacks)
	d.mu.Unlock()

	if len(queued) == 0 {
		return
	}
	for _, cb := range cbs {
		cb := cb
		go func() {
			for _, ev := range queued {
				cb(ev)
			}
		}()
	}
}

// Emit delivers ev to every registered callback, each in its own
// goroutine, so a slow or blocking callback cannot stall the caller
// (spec.md §4.13 "a short-lived task is spawned per callback"). While
// batching, ev is queued instead and released by EndBatch.
func (d *Dispatcher) Emit(ev Event) {
	d.mu.Lock()
	if d.batching {
		d.queue = append(d.queue, ev)
		d.mu.Unlock()
		return
	}
	cbs := snapshot(d.callbacks)
	d.mu.Unlock()

	dispatch(cbs, ev)
}

func snapshot(callbacks map[int]Callback) []Callback {
	cbs := make([]Callback, 0, len(callbacks))
	for _, cb := range callbacks {
		cbs = append(cbs, cb)
	}
	return cbs
}

func dispatch(cbs []Callback, ev Event) {
	for _, cb := range cbs {
		cb := cb
		go cb(ev)
	}
}
