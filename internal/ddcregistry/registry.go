// Package ddcregistry is the display registry and hotplug
// reconciliation layer (spec.md §4.12, C12): the process-global array
// of References, and the reconciler that diffs a fresh connector
// snapshot against it to emit add/remove deltas. Uses
// golang.org/x/exp/slices and /maps for the symmetric-difference
// computation, mirroring how danklinux's distro/theme detection code
// (internal/dank16) leans on slices helpers for set-like comparisons.
package ddcregistry

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddclock"
)

// Connector is one entry in a hotplug source's snapshot: a detected
// physical bus plus whatever connector name the platform can attach to
// it (spec.md §4.12 "the set of DRM connectors").
type Connector struct {
	IOPath        ddclock.IOPath
	ConnectorName string
}

// Source is the "two-function contract" spec.md §1 mentions for a
// hotplug watcher external to the core: Poll returns the current
// connector snapshot, and Close releases any resources (a udev monitor
// fd, for example). pkg/ddc's watch loop calls Poll on a timer;
// cmd/ddcctl's busScanSource re-globs /dev/i2c-* on each Poll, and a
// real udev-event-driven Source can implement the same interface.
type Source interface {
	Poll() ([]Connector, error)
	Close() error
}

// Registry is the process-global array of References guarded by a
// single mutex (spec.md §4.12, §5 "Display-refs array (C12)").
type Registry struct {
	mu    sync.Mutex
	byKey map[ddclock.IOPath][]*ddcdisplay.Reference
	next  ddcdisplay.Number
}

// New returns an empty registry with display numbering starting at 1.
func New() *Registry {
	return &Registry{byKey: make(map[ddclock.IOPath][]*ddcdisplay.Reference), next: 1}
}

// Add creates and inserts a new Reference for path, assigning it the
// next display number. If one or more References already exist for
// path, they are left in place (Reconcile is what calls MarkRemoved on
// stale duplicates).
func (r *Registry) Add(path ddclock.IOPath) *ddcdisplay.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := ddcdisplay.NewReference(path, r.next)
	r.next++
	r.byKey[path] = append(r.byKey[path], ref)
	return ref
}

// MarkRemoved sets FlagRemoved on every live Reference at path.
func (r *Registry) MarkRemoved(path ddclock.IOPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ref := range r.byKey[path] {
		ref.MarkRemoved()
	}
}

// Live returns the most-recently-created non-removed Reference for
// path, or nil (spec.md §4.7 "lookup by io-path with ignore_invalid=true
// returns only the most-recently-created non-removed dref").
func (r *Registry) Live(path ddclock.IOPath) *ddcdisplay.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := r.byKey[path]
	for i := len(refs) - 1; i >= 0; i-- {
		if !refs[i].HasFlag(ddcdisplay.FlagRemoved) {
			return refs[i]
		}
	}
	return nil
}

// All returns every non-removed Reference across all paths, ordered by
// display number.
func (r *Registry) All() []*ddcdisplay.Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ddcdisplay.Reference
	for _, refs := range r.byKey {
		for _, ref := range refs {
			if !ref.HasFlag(ddcdisplay.FlagRemoved) {
				out = append(out, ref)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// recheckAnomalies marks all but the most-recently-created Reference at
// each IOPath removed, when more than one is simultaneously live
// (spec.md §4.12 "Multiple active drefs for one io-path are an
// anomaly").
func (r *Registry) recheckAnomalies() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, refs := range r.byKey {
		live := 0
		for _, ref := range refs {
			if !ref.HasFlag(ddcdisplay.FlagRemoved) {
				live++
			}
		}
		if live <= 1 {
			continue
		}
		kept := false
		for i := len(refs) - 1; i >= 0; i-- {
			if refs[i].HasFlag(ddcdisplay.FlagRemoved) {
				continue
			}
			if kept {
				refs[i].MarkRemoved()
			} else {
				kept = true
			}
		}
	}
}

// Delta is the result of one reconciliation pass: IOPaths to add and
// IOPaths to mark removed.
type Delta struct {
	Added   []ddclock.IOPath
	Removed []ddclock.IOPath
}

// Reconcile computes the symmetric difference between snapshot and the
// registry's currently-live IOPaths (spec.md §4.12 "computes the
// symmetric difference between the current snapshot and all_drefs"),
// applies MarkRemoved for anything gone, and returns the delta so the
// caller can drive C6 (EDID) + C9 (probe) for each addition.
func (r *Registry) Reconcile(snapshot []Connector) Delta {
	seen := make(map[ddclock.IOPath]string, len(snapshot))
	for _, c := range snapshot {
		seen[c.IOPath] = c.ConnectorName
	}

	r.mu.Lock()
	current := maps.Keys(r.byKey)
	r.mu.Unlock()

	var d Delta
	for path := range seen {
		if !slices.Contains(current, path) || r.Live(path) == nil {
			d.Added = append(d.Added, path)
		}
	}
	for _, path := range current {
		if r.Live(path) == nil {
			continue
		}
		if _, ok := seen[path]; !ok {
			d.Removed = append(d.Removed, path)
		}
	}

	for _, path := range d.Removed {
		r.MarkRemoved(path)
	}
	r.recheckAnomalies()

	sortPaths(d.Added)
	sortPaths(d.Removed)
	return d
}

func sortPaths(paths []ddclock.IOPath) {
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].USB != paths[j].USB {
			return !paths[i].USB
		}
		return paths[i].Number < paths[j].Number
	})
}
