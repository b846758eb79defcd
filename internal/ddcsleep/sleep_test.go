package ddcsleep

import (
	"testing"
	"time"

	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

func TestGlobalMultiplierClamped(t *testing.T) {
	defer SetGlobalMultiplier(1.0)

	SetGlobalMultiplier(0.01)
	if got := GlobalMultiplier(); got != 0.1 {
		t.Errorf("low clamp: got %v, want 0.1", got)
	}
	SetGlobalMultiplier(100)
	if got := GlobalMultiplier(); got != 10.0 {
		t.Errorf("high clamp: got %v, want 10.0", got)
	}
}

func TestDurationScalesWithMultiplier(t *testing.T) {
	defer SetGlobalMultiplier(1.0)

	SetGlobalMultiplier(2.0)
	s := New()
	if got, want := s.Duration(PostOpen), 100*time.Millisecond; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDynamicControllerStaysWithinBounds(t *testing.T) {
	c := NewDynamicController()
	for i := 0; i < 100; i++ {
		c.RecordOutcome(ddcstatus.EIO)
	}
	if got := c.Adjustment(); got > dynamicCeiling {
		t.Errorf("adjustment %v exceeds ceiling %v", got, dynamicCeiling)
	}
	for i := 0; i < 100; i++ {
		c.RecordOutcome(ddcstatus.OK)
	}
	if got := c.Adjustment(); got < dynamicFloor {
		t.Errorf("adjustment %v below floor %v", got, dynamicFloor)
	}
}

func TestDynamicControllerDisabledIgnoresOutcomes(t *testing.T) {
	c := NewDynamicController()
	c.SetEnabled(false)
	before := c.Adjustment()
	c.RecordOutcome(ddcstatus.NullResponse)
	if got := c.Adjustment(); got != before {
		t.Errorf("disabled controller should not change: got %v, want %v", got, before)
	}
}

func TestNullResponseDoublesAdjustment(t *testing.T) {
	c := NewDynamicController()
	before := c.Adjustment()
	c.RecordOutcome(ddcstatus.NullResponse)
	if got, want := c.Adjustment(), before*2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNullResponseBoostsTheNextTwoOperationsToo(t *testing.T) {
	c := NewDynamicController()
	c.RecordOutcome(ddcstatus.NullResponse) // boosted op 1: 1.0 -> 2.0 (ceiling), nullBoostN 3 -> 2
	if got := c.Adjustment(); got != dynamicCeiling {
		t.Fatalf("after null, got %v, want ceiling %v", got, dynamicCeiling)
	}

	// A success would normally pull the adjustment down by 0.1, but the
	// boost is still owed for this operation, so it doubles first.
	c.RecordOutcome(ddcstatus.OK) // boosted op 2: (2.0-0.1)*2=3.8 -> clamped to ceiling
	if got := c.Adjustment(); got != dynamicCeiling {
		t.Errorf("boosted op 2: got %v, want ceiling %v", got, dynamicCeiling)
	}

	c.RecordOutcome(ddcstatus.OK) // boosted op 3 (last owed): still doubled, nullBoostN -> 0
	if got := c.Adjustment(); got != dynamicCeiling {
		t.Errorf("boosted op 3: got %v, want ceiling %v", got, dynamicCeiling)
	}

	// The boost is exhausted: a success now lands at its plain value.
	c.RecordOutcome(ddcstatus.OK)
	if got, want := c.Adjustment(), dynamicCeiling-0.1; got != want {
		t.Errorf("post-boost op: got %v, want %v", got, want)
	}
}

func TestSleeperWithDynamicFoldsAdjustment(t *testing.T) {
	defer SetGlobalMultiplier(1.0)
	c := NewDynamicController()
	c.RecordOutcome(ddcstatus.NullResponse) // adjustment -> 2.0 (ceiling)
	s := New().WithDynamic(c)
	if got, want := s.Duration(PostRead), 20*time.Millisecond; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
