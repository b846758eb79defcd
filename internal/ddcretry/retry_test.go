package ddcretry

import (
	"errors"
	"testing"

	"github.com/AvengeMedia/ddcgo/internal/ddcpacket"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// fakeBus is a hand-written Transport double: each ReadBytes call
// returns the next queued response, with no real syscalls. This is the
// test-tooling approach SPEC_FULL.md calls for in place of a generated
// mock, since Transport is a three-method shape easy to fake by hand.
type fakeBus struct {
	writes    [][]byte
	reads     [][]byte
	readIdx   int
	writeErrs []error
	readErrs  []error
}

func (f *fakeBus) WriteBytes(data []byte) error {
	idx := len(f.writes)
	f.writes = append(f.writes, append([]byte(nil), data...))
	if idx < len(f.writeErrs) && f.writeErrs[idx] != nil {
		return f.writeErrs[idx]
	}
	return nil
}

func (f *fakeBus) ReadBytes(n int) ([]byte, error) {
	if f.readIdx < len(f.readErrs) && f.readErrs[f.readIdx] != nil {
		err := f.readErrs[f.readIdx]
		f.readIdx++
		return nil, err
	}
	if f.readIdx >= len(f.reads) {
		return nil, errors.New("fakeBus: no more queued reads")
	}
	r := f.reads[f.readIdx]
	f.readIdx++
	return r, nil
}

func (f *fakeBus) WriteThenRead(w []byte, readLen int) ([]byte, error) {
	if err := f.WriteBytes(w); err != nil {
		return nil, err
	}
	return f.ReadBytes(readLen)
}

func plainSleeper() *ddcsleep.Sleeper {
	s := ddcsleep.New()
	return s
}

func TestGetVCPFeatureHappyPath(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{ddcpacket.BuildVCPReply(0x10, true, 0x00, 100, 50)}}
	resp, err := GetVCPFeature(bus, plainSleeper(), nil, 0x10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Cur != 50 || resp.Max != 100 {
		t.Errorf("got cur=%d max=%d, want cur=50 max=100", resp.Cur, resp.Max)
	}
}

func TestGetVCPFeatureRetriesOnNullThenSucceeds(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{
		ddcpacket.BuildNullResponse(),
		ddcpacket.BuildVCPReply(0x10, true, 0x00, 100, 50),
	}}
	resp, err := GetVCPFeature(bus, plainSleeper(), nil, 0x10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Cur != 50 {
		t.Errorf("got cur=%d, want 50", resp.Cur)
	}
	if len(bus.writes) != 2 {
		t.Errorf("expected 2 write attempts, got %d", len(bus.writes))
	}
}

func TestGetVCPFeatureAllNullPromotesToAllResponsesNull(t *testing.T) {
	SetMaxTries(ClassWriteRead, 3)
	defer SetMaxTries(ClassWriteRead, 4)

	bus := &fakeBus{reads: [][]byte{
		ddcpacket.BuildNullResponse(),
		ddcpacket.BuildNullResponse(),
		ddcpacket.BuildNullResponse(),
	}}
	_, err := GetVCPFeature(bus, plainSleeper(), nil, 0x10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Status != ddcstatus.AllResponsesNull {
		t.Errorf("got %v, want ALL_RESPONSES_NULL", err.Status)
	}
}

func TestGetVCPFeatureMixedFailuresPromoteToRetries(t *testing.T) {
	SetMaxTries(ClassWriteRead, 2)
	defer SetMaxTries(ClassWriteRead, 4)

	bus := &fakeBus{reads: [][]byte{
		ddcpacket.BuildNullResponse(),
		ddcpacket.BuildVCPReply(0x99, true, 0x00, 1, 1), // wrong feature code -> parse error
	}}
	_, err := GetVCPFeature(bus, plainSleeper(), nil, 0x10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Status != ddcstatus.Retries {
		t.Errorf("got %v, want RETRIES", err.Status)
	}
}

func TestSetVCPFeatureNoVerify(t *testing.T) {
	bus := &fakeBus{}
	err := SetVCPFeature(bus, plainSleeper(), nil, 0x10, 42, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.writes) != 1 {
		t.Errorf("expected exactly 1 write, got %d", len(bus.writes))
	}
}

func TestSetVCPFeatureVerifySucceeds(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{ddcpacket.BuildVCPReply(0x10, true, 0x00, 100, 42)}}
	err := SetVCPFeature(bus, plainSleeper(), nil, 0x10, 42, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetVCPFeatureVerifyMismatch(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{ddcpacket.BuildVCPReply(0x10, true, 0x00, 100, 7)}}
	err := SetVCPFeature(bus, plainSleeper(), nil, 0x10, 42, true)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Status != ddcstatus.Verify {
		t.Errorf("got %v, want VERIFY", err.Status)
	}
}

func TestSaveCurrentSettings(t *testing.T) {
	bus := &fakeBus{}
	if err := SaveCurrentSettings(bus, plainSleeper()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMultiPartReadAssemblesFragments(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{
		ddcpacket.BuildCapabilitiesReply(0, []byte("abc")),
		ddcpacket.BuildCapabilitiesReply(3, []byte("def")),
		ddcpacket.BuildCapabilitiesReply(6, nil),
	}}
	out, err := MultiPartRead(bus, plainSleeper(), ddcpacket.BuildCapabilitiesRequest, ddcpacket.ParseCapabilitiesReply, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "abcdef" {
		t.Errorf("got %q, want %q", out, "abcdef")
	}
}

func TestMultiPartReadRejectsNonContiguousOffset(t *testing.T) {
	bus := &fakeBus{reads: [][]byte{
		ddcpacket.BuildCapabilitiesReply(5, []byte("xyz")),
	}}
	_, err := MultiPartRead(bus, plainSleeper(), ddcpacket.BuildCapabilitiesRequest, ddcpacket.ParseCapabilitiesReply, 1024)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Status != ddcstatus.MultiPartReadFragment {
		t.Errorf("got %v, want MULTI_PART_READ_FRAGMENT", err.Status)
	}
}
