package ddcdisplay

import (
	"testing"

	"github.com/AvengeMedia/ddcgo/internal/ddcedid"
	"github.com/AvengeMedia/ddcgo/internal/ddclock"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

func TestFlagsAreIndependentAndRemovedIsTerminal(t *testing.T) {
	ref := NewReference(ddclock.IOPath{Number: 1}, 1)
	ref.SetFlag(FlagCommunicationWorking)
	ref.SetFlag(FlagIsMonitor)
	if !ref.HasFlag(FlagCommunicationWorking) || !ref.HasFlag(FlagIsMonitor) {
		t.Fatal("expected both flags set")
	}
	ref.MarkRemoved()
	ref.SetFlag(FlagOpen)
	if ref.HasFlag(FlagOpen) {
		t.Error("SetFlag after removal should be a no-op")
	}
	if !ref.HasFlag(FlagRemoved) {
		t.Error("expected FlagRemoved to stick")
	}
}

func TestModelKeySanitizesNonAlphanumeric(t *testing.T) {
	ref := NewReference(ddclock.IOPath{Number: 1}, 1)
	ref.SetEDID(&ddcedid.EDID{ManufacturerID: "DEL", ModelName: "U27 20Q!", ProductCode: 0x1234})
	want := "DEL-U27_20Q_-4660"
	if got := ref.ModelKey(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenOnRemovedReferenceFailsFast(t *testing.T) {
	ref := NewReference(ddclock.IOPath{Number: 9999}, 1)
	ref.MarkRemoved()
	_, _, err := Open(ref, OpenOptions{})
	if err == nil || err.Status != ddcstatus.InvalidDisplay {
		t.Fatalf("got %v, want INVALID_DISPLAY", err)
	}
}

func TestOpenMissingBusMapsToInvalidDisplay(t *testing.T) {
	ref := NewReference(ddclock.IOPath{Number: 9999}, 1)
	_, _, err := Open(ref, OpenOptions{})
	if err == nil || err.Status != ddcstatus.InvalidDisplay {
		t.Fatalf("got %v, want INVALID_DISPLAY", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dh := &Handle{Ref: NewReference(ddclock.IOPath{Number: 1}, 1)}
	if err := dh.Close(); err != nil {
		t.Fatalf("unexpected error on nil-device close: %v", err)
	}
	if err := dh.Close(); err != nil {
		t.Fatalf("unexpected error on repeated close: %v", err)
	}
}
