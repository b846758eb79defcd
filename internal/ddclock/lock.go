// Package ddclock is the per-display lock registry (spec.md §4.8): a
// process-global map from I/O path to a lock record, guaranteeing at
// most one live handle per physical device across goroutines. Grounded
// on max72bra-danklinux's brightness manager, which keeps one mutex per
// tracked display rather than a single global lock, generalized here
// into a lazily-created, never-removed registry keyed by an IOPath.
package ddclock

import (
	"sync"

	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// IOPath identifies a physical bus: either an I²C bus number or a USB
// hiddev number (spec.md §3 "IO Path").
type IOPath struct {
	USB    bool
	Number int
}

// Record is one display's lock record (spec.md §3 "Lock Record").
// Records are created lazily and never removed; their count is bounded
// by the number of I²C buses on the machine.
type Record struct {
	IOPath IOPath

	mu    sync.Mutex
	gate  sync.Mutex // held for the actual lock duration; mu only guards `owner`
	owner uint64     // 0 means unowned; otherwise an opaque caller-supplied id
}

// Registry is the process-global map of IOPath to Record.
type Registry struct {
	mu      sync.Mutex
	records map[IOPath]*Record
}

// NewRegistry returns an empty registry. Most callers use the package
// singleton via Default(); NewRegistry exists for tests that want
// isolation from process-global state.
func NewRegistry() *Registry {
	return &Registry{records: make(map[IOPath]*Record)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// RecordFor returns the lock record for path, creating it on first
// reference. The master mutex is held only long enough to look up or
// insert the map entry (spec.md §4.8 "master mutex ... serializes the
// ownership inspection").
func (r *Registry) RecordFor(path IOPath) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[path]; ok {
		return rec
	}
	rec := &Record{IOPath: path}
	r.records[path] = rec
	return rec
}

// Lock acquires rec on behalf of ownerID. If wait is true and the record
// is held by another owner, Lock blocks until it is released. If wait
// is false, Lock returns LOCKED immediately instead of blocking.
// Re-locking by the same ownerID returns ALREADY_OPEN without blocking.
func (rec *Record) Lock(ownerID uint64, wait bool) *ddcstatus.ErrorInfo {
	rec.mu.Lock()
	if rec.owner == ownerID {
		rec.mu.Unlock()
		return ddcstatus.New(ddcstatus.AlreadyOpen, "Lock", "")
	}
	rec.mu.Unlock()

	if wait {
		rec.lockBlocking(ownerID)
		return nil
	}
	if !rec.tryLock(ownerID) {
		return ddcstatus.New(ddcstatus.Locked, "Lock", "held by another owner")
	}
	return nil
}

// lockBlocking is a private helper implemented with a dedicated
// sync.Mutex so true blocking semantics (not spin/try-loop) back the
// WAIT path.
func (rec *Record) lockBlocking(ownerID uint64) {
	rec.gate.Lock()
	rec.mu.Lock()
	rec.owner = ownerID
	rec.mu.Unlock()
}

func (rec *Record) tryLock(ownerID uint64) bool {
	if !rec.gate.TryLock() {
		return false
	}
	rec.mu.Lock()
	rec.owner = ownerID
	rec.mu.Unlock()
	return true
}

// Unlock releases rec. The caller must be the recorded owner; otherwise
// Unlock returns LOCKED and leaves the lock held (spec.md §4.8).
func (rec *Record) Unlock(ownerID uint64) *ddcstatus.ErrorInfo {
	rec.mu.Lock()
	if rec.owner != ownerID {
		rec.mu.Unlock()
		return ddcstatus.New(ddcstatus.Locked, "Unlock", "caller is not the recorded owner")
	}
	rec.owner = 0
	rec.mu.Unlock()
	rec.gate.Unlock()
	return nil
}

// Owner reports the current owner id, or 0 if unlocked.
func (rec *Record) Owner() uint64 {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.owner
}
