package ddcpacket

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := BuildGetVCPFeature(0x10)
	payload, err := decodeRequest(req)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	want := []byte{opGetVCPFeature, 0x10}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}

func TestSetVCPFeatureRoundTrip(t *testing.T) {
	req := BuildSetVCPFeature(0x10, 50)
	payload, err := decodeRequest(req)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	want := []byte{opSetVCPFeature, 0x10, 0x00, 0x32}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = % x, want % x", payload, want)
	}
}

func TestChecksumTamperDetected(t *testing.T) {
	req := BuildGetVCPFeature(0x10)
	req[len(req)-1] ^= 0xff
	if _, err := decodeRequest(req); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestVCPReplyHappyPath(t *testing.T) {
	resp := BuildVCPReply(0x10, true, 0x00, 100, 50)
	parsed, err := ParseVCPReply(resp, 0x10)
	if err != nil {
		t.Fatalf("ParseVCPReply: %v", err)
	}
	if !parsed.SupportedOpcode {
		t.Error("expected SupportedOpcode = true")
	}
	if parsed.Max != 100 || parsed.Cur != 50 {
		t.Errorf("got max=%d cur=%d, want max=100 cur=50", parsed.Max, parsed.Cur)
	}
}

func TestVCPReplyReportedUnsupported(t *testing.T) {
	resp := BuildVCPReply(0xdd, false, 0, 0, 0)
	parsed, err := ParseVCPReply(resp, 0xdd)
	if err != nil {
		t.Fatalf("ParseVCPReply: %v", err)
	}
	if parsed.SupportedOpcode {
		t.Error("expected SupportedOpcode = false")
	}
}

func TestVCPReplyFeatureMismatch(t *testing.T) {
	resp := BuildVCPReply(0x10, true, 0, 100, 50)
	if _, err := ParseVCPReply(resp, 0x12); err == nil {
		t.Fatal("expected feature mismatch error")
	}
}

func TestVCPReplyAmbiguousZero(t *testing.T) {
	resp := BuildVCPReply(0x10, true, 0, 0, 0)
	parsed, err := ParseVCPReply(resp, 0x10)
	if err != nil {
		t.Fatalf("ParseVCPReply: %v", err)
	}
	if !parsed.IsAmbiguousZero() {
		t.Error("expected IsAmbiguousZero() = true")
	}
}

func TestNullResponse(t *testing.T) {
	resp := BuildNullResponse()
	if !ParseNullResponse(resp) {
		t.Error("expected ParseNullResponse = true")
	}
	if _, err := ParseVCPReply(resp, 0x10); err == nil {
		t.Error("expected ParseVCPReply to reject a null response")
	}
}

func TestCapabilitiesMultiPart(t *testing.T) {
	frag1 := BuildCapabilitiesReply(0, []byte("(prot(monitor)"))
	parsed1, err := ParseCapabilitiesReply(frag1)
	if err != nil {
		t.Fatalf("ParseCapabilitiesReply: %v", err)
	}
	if parsed1.Final {
		t.Error("non-empty fragment should not be marked Final")
	}
	if string(parsed1.Data) != "(prot(monitor)" {
		t.Errorf("data = %q", parsed1.Data)
	}

	final := BuildCapabilitiesReply(uint16(len(parsed1.Data)), nil)
	parsedFinal, err := ParseCapabilitiesReply(final)
	if err != nil {
		t.Fatalf("ParseCapabilitiesReply(final): %v", err)
	}
	if !parsedFinal.Final {
		t.Error("zero-length fragment should be marked Final")
	}
}

func TestDetectEdgeCases(t *testing.T) {
	req := BuildGetVCPFeature(0x10)

	doubleByte, _, allZero := DetectEdgeCase(req, bytes.Repeat([]byte{0x00}, 8))
	if !doubleByte || !allZero {
		t.Errorf("all-zero response should be both double-byte and all-zero, got doubleByte=%v allZero=%v", doubleByte, allZero)
	}

	_, readEqualsWrite, _ := DetectEdgeCase(req, req)
	if !readEqualsWrite {
		t.Error("identical request/response should be detected as read-equals-write")
	}

	doubleByte2, _, allZero2 := DetectEdgeCase(req, bytes.Repeat([]byte{0x7f}, 8))
	if !doubleByte2 {
		t.Error("repeated non-zero byte should be detected as double-byte")
	}
	if allZero2 {
		t.Error("repeated non-zero byte should not be detected as all-zero")
	}
}
