// Package ddcdisplay is the display identifier/reference/handle
// lifecycle (spec.md §4.7, C7): resolving a caller's selection criteria
// to a persistent Reference, and the open/close sequence that turns a
// Reference into a live Handle backed by an internal/ddci2c.Device.
// Grounded on max72bra-danklinux's brightness manager, which tracks one
// long-lived struct per display across DDC calls; generalized here into
// the explicit identifier/reference/handle split spec.md calls for.
package ddcdisplay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AvengeMedia/ddcgo/internal/ddcedid"
	"github.com/AvengeMedia/ddcgo/internal/ddci2c"
	"github.com/AvengeMedia/ddcgo/internal/ddclock"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// Number values carry spec.md §3's negative sentinels alongside
// ordinary 1-based detection-assigned display numbers.
type Number int

const (
	NumberInvalid     Number = -1
	NumberPhantom     Number = -2
	NumberRemoved     Number = -3
	NumberBusy        Number = -4
	NumberDDCDisabled Number = -5
)

// Flag is one independent bit of a Reference's flags field (spec.md §3
// "DREF flags").
type Flag uint16

const (
	FlagCommunicationChecked Flag = 1 << iota
	FlagCommunicationWorking
	FlagIsMonitorChecked
	FlagIsMonitor
	FlagUnsupportedChecked
	FlagUsesNullResponseForUnsupported
	FlagUsesZeroBytesForUnsupported
	FlagUsesDDCFlagForUnsupported
	FlagDoesNotIndicateUnsupported
	FlagDynamicFeaturesChecked
	FlagTransient
	FlagOpen
	FlagDDCBusy
	FlagRemoved
	FlagDDCDisabled
	FlagDPMSOff
)

// unsupportedPolicyMask is the four mutually-exclusive policy bits;
// exactly one must be set once FlagUnsupportedChecked is set (spec.md
// §3 invariant).
const unsupportedPolicyMask = FlagUsesNullResponseForUnsupported |
	FlagUsesZeroBytesForUnsupported |
	FlagUsesDDCFlagForUnsupported |
	FlagDoesNotIndicateUnsupported

// Reference is a persistent handle to a detected device (spec.md §3
// "Display Reference (DREF)"). Exactly one Reference exists per live
// IOPath at a time; removed references are kept around (terminal) so
// in-flight Handles can still close cleanly.
type Reference struct {
	IOPath    ddclock.IOPath
	Number    Number
	CreatedAt time.Time

	mu               sync.Mutex
	flags            Flag
	edid             *ddcedid.EDID
	modelKey         string
	mccsVersion      string
	commErrorSummary string
	connectorName    string

	dynamic *ddcsleep.DynamicController
}

// NewReference constructs a Reference for a freshly detected device.
// Callers (C12's registry) own assigning Number.
func NewReference(path ddclock.IOPath, number Number) *Reference {
	return &Reference{
		IOPath:      path,
		Number:      number,
		CreatedAt:   time.Now(),
		mccsVersion: "unqueried",
		dynamic:     ddcsleep.NewDynamicController(),
	}
}

// Flags returns the current flag bitfield.
func (r *Reference) Flags() Flag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags
}

// SetFlag ORs in bit, unless the reference is already Removed (spec.md
// §3 "REMOVED is terminal — no field other than the display number may
// be mutated once set").
func (r *Reference) SetFlag(bit Flag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flags&FlagRemoved != 0 {
		return
	}
	r.flags |= bit
}

// ClearFlag clears bit, subject to the same REMOVED-is-terminal rule.
func (r *Reference) ClearFlag(bit Flag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flags&FlagRemoved != 0 {
		return
	}
	r.flags &^= bit
}

// HasFlag reports whether bit is currently set.
func (r *Reference) HasFlag(bit Flag) bool {
	return r.Flags()&bit != 0
}

// MarkRemoved sets FlagRemoved. It is the one mutation still legal after
// removal (it is how removal itself happens) and it is idempotent.
func (r *Reference) MarkRemoved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags |= FlagRemoved
}

// SetEDID records a freshly-read EDID and the model key derived from
// it, used later as part of the C11 `.mccs` filename.
func (r *Reference) SetEDID(e *ddcedid.EDID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edid = e
	r.modelKey = fmt.Sprintf("%s-%s-%d", e.ManufacturerID, sanitizeModel(e.ModelName), e.ProductCode)
}

// EDID returns the last EDID recorded via SetEDID, or nil.
func (r *Reference) EDID() *ddcedid.EDID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edid
}

// ModelKey returns the `<MFG>-<MODEL>-<PRODUCT_CODE>` key C11 uses to
// locate a dynamic feature file, or "" if no EDID has been recorded yet.
func (r *Reference) ModelKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelKey
}

func sanitizeModel(model string) string {
	out := make([]byte, len(model))
	for i := 0; i < len(model); i++ {
		c := model[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = c
		} else {
			out[i] = '_'
		}
	}
	return string(out)
}

// Dynamic returns the reference's per-display sleep feedback
// controller.
func (r *Reference) Dynamic() *ddcsleep.DynamicController {
	return r.dynamic
}

// SetMCCSVersion records the cached MCCS version spec string, e.g.
// "2.1", or the sentinel values "unqueried"/"unknown".
func (r *Reference) SetMCCSVersion(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mccsVersion = v
}

// MCCSVersion returns the cached MCCS version spec.
func (r *Reference) MCCSVersion() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mccsVersion
}

// SetCommErrorSummary records a human-readable summary of the most
// recent communication failure, surfaced by diagnostics.
func (r *Reference) SetCommErrorSummary(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commErrorSummary = s
}

// SetConnectorName records the DRM connector name the hotplug
// reconciler last associated with this reference.
func (r *Reference) SetConnectorName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectorName = name
}

// ConnectorName returns the last-known DRM connector name.
func (r *Reference) ConnectorName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectorName
}

// ownerSeq allocates distinct owner ids for Handle-level locking,
// avoiding a dependency on OS thread IDs (goroutines have none) while
// still giving each call to Open a distinct identity for C8's
// already-open/locked distinction.
var ownerSeq atomic.Uint64

// Handle is an open Reference plus its underlying transport (spec.md §3
// "Display Handle (DH)"). At most one live Handle exists per Reference
// at a time, enforced by internal/ddclock.
type Handle struct {
	Ref     *Reference
	Device  *ddci2c.Device
	ownerID uint64

	// TestingUnsupported is set while C9's unsupported-quirk probe is
	// deliberately issuing requests it expects to fail (spec.md §3
	// "Display Handle (DH)"). The retry engine does not read it and logs
	// nothing for those failures, so it does not change retry behaviour.
	TestingUnsupported bool
}

// OpenOptions configures Open (spec.md §4.7 "open(dref, options)").
type OpenOptions struct {
	Strategy           ddci2c.Strategy
	Wait               bool // block on C8's lock rather than fail immediately
	SkipInitialChecks  bool
}

// Open acquires the per-display lock, opens the underlying bus fd, sets
// Reference.FlagOpen, sleeps PostOpen, and hands back a Handle. Probing
// itself is C9's responsibility — Open only reports via its firstOpen
// result whether the initial-checks probe is still due, so the caller
// knows whether to run it: firstOpen is false once ref carries
// FlagCommunicationChecked, or when opts.SkipInitialChecks is set.
func Open(ref *Reference, opts OpenOptions) (dh *Handle, firstOpen bool, err *ddcstatus.ErrorInfo) {
	if ref.HasFlag(FlagRemoved) {
		return nil, false, ddcstatus.New(ddcstatus.InvalidDisplay, "Open", "reference was removed")
	}

	ownerID := ownerSeq.Add(1)
	rec := ddclock.Default().RecordFor(ref.IOPath)
	if lerr := rec.Lock(ownerID, opts.Wait); lerr != nil {
		return nil, false, lerr
	}

	dev, derr := ddci2c.Open(ref.IOPath.Number, opts.Strategy)
	if derr != nil {
		rec.Unlock(ownerID)
		return nil, false, mapOpenErr(ref, derr)
	}

	firstOpen = !opts.SkipInitialChecks && !ref.HasFlag(FlagCommunicationChecked)
	ref.SetFlag(FlagOpen)

	sl := ddcsleep.New().WithDynamic(ref.Dynamic())
	sl.Sleep(ddcsleep.PostOpen)

	return &Handle{Ref: ref, Device: dev, ownerID: ownerID}, firstOpen, nil
}

func mapOpenErr(ref *Reference, err error) *ddcstatus.ErrorInfo {
	if st, ok := err.(ddcstatus.Status); ok {
		switch st {
		case ddcstatus.ENOENT:
			return ddcstatus.New(ddcstatus.InvalidDisplay, "Open", "bus device does not exist")
		case ddcstatus.EBUSY:
			ref.SetFlag(FlagDDCBusy)
			return ddcstatus.New(ddcstatus.Busy, "Open", "bus is busy")
		default:
			return ddcstatus.New(st, "Open", "")
		}
	}
	return ddcstatus.New(ddcstatus.Other, "Open", err.Error())
}

// Close clears FlagOpen, closes the device, and releases the C8 lock.
// Closing an already-closed handle is idempotent and returns success
// (spec.md §4.7 "Close").
func (dh *Handle) Close() *ddcstatus.ErrorInfo {
	if dh == nil || dh.Device == nil {
		return nil
	}
	dh.Ref.ClearFlag(FlagOpen)
	_ = dh.Device.Close()
	dh.Device = nil

	rec := ddclock.Default().RecordFor(dh.Ref.IOPath)
	rec.Unlock(dh.ownerID)
	return nil
}
