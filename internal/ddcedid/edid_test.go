package ddcedid

import "testing"

// fakeTransport serves one "block" per attempt: SetAddr (called once
// at the start of every Read attempt) advances to the next queued
// block and resets the read cursor, so a bytewise attempt's many
// single-byte ReadBytes calls and a bulk attempt's one big ReadBytes
// call both just walk the same underlying block.
type fakeTransport struct {
	addr     byte
	blocks   [][]byte
	blockIdx int
	pos      int
	started  bool
}

func (f *fakeTransport) SetAddr(addr byte) error {
	f.addr = addr
	if f.started {
		f.blockIdx++
	}
	f.started = true
	f.pos = 0
	return nil
}

func (f *fakeTransport) WriteBytes(data []byte) error { return nil }

func (f *fakeTransport) ReadBytes(n int) ([]byte, error) {
	block := f.blocks[f.blockIdx]
	end := f.pos + n
	out := make([]byte, n)
	if end <= len(block) {
		copy(out, block[f.pos:end])
	} else {
		copy(out, block[f.pos:])
	}
	f.pos = end
	return out, nil
}

// buildValidEDID constructs a minimally valid 128-byte base EDID block
// with a manufacturer ID, product code, serial, and a model-name
// descriptor, checksummed to sum-to-zero.
func buildValidEDID(mfg string, product uint16, model string) []byte {
	raw := make([]byte, 128)
	copy(raw, edidMagic)

	// Pack mfg back into the 5-bit-per-letter big-endian field.
	var v uint16
	for _, c := range mfg {
		v = v<<5 | uint16(byte(c)-'A'+1)
	}
	raw[8] = byte(v >> 8)
	raw[9] = byte(v)

	raw[10] = byte(product)
	raw[11] = byte(product >> 8)

	// Descriptor block 1 at offset 54: model-name tag 0xfc.
	desc := raw[54:72]
	desc[3] = 0xfc
	copy(desc[5:18], model)
	for i := 5 + len(model); i < 18; i++ {
		if i == 5+len(model) {
			desc[i] = 0x0a
		} else {
			desc[i] = ' '
		}
	}

	var sum byte
	for _, b := range raw[:127] {
		sum += b
	}
	raw[127] = byte(256 - int(sum)%256)
	return raw
}

func TestParseValidEDID(t *testing.T) {
	raw := buildValidEDID("DEL", 0x1234, "U2720Q")
	e, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ManufacturerID != "DEL" {
		t.Errorf("got manufacturer %q, want DEL", e.ManufacturerID)
	}
	if e.ProductCode != 0x1234 {
		t.Errorf("got product code 0x%04x, want 0x1234", e.ProductCode)
	}
	if e.ModelName != "U2720Q" {
		t.Errorf("got model %q, want U2720Q", e.ModelName)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildValidEDID("DEL", 1, "X")
	raw[0] = 0x01 // corrupt header magic
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected an error for corrupted header")
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	raw := buildValidEDID("DEL", 1, "X")
	raw[127] ^= 0xff
	_, err := Parse(raw)
	if err == nil {
		t.Fatal("expected an error for bad checksum")
	}
}

func TestReadRetriesOnCorruptBlockThenSucceeds(t *testing.T) {
	bad := buildValidEDID("DEL", 1, "X")
	bad[0] = 0xff
	good := buildValidEDID("DEL", 1, "X")

	tr := &fakeTransport{blocks: [][]byte{bad, good}}
	e, err := Read(tr, ReadBlock, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ManufacturerID != "DEL" {
		t.Errorf("got %q, want DEL", e.ManufacturerID)
	}
	if tr.addr != SlaveAddr {
		t.Errorf("got addr 0x%02x, want 0x%02x", tr.addr, SlaveAddr)
	}
}

func TestReadExhaustsAttemptsAndReturnsError(t *testing.T) {
	bad := buildValidEDID("DEL", 1, "X")
	bad[0] = 0xff
	tr := &fakeTransport{blocks: [][]byte{bad, bad, bad, bad}}
	_, err := Read(tr, ReadBlock, false)
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
}

func TestReadAlternatesBytewiseAndWriteBeforeReadAcrossAttempts(t *testing.T) {
	bad := buildValidEDID("DEL", 1, "X")
	bad[0] = 0xff
	good := buildValidEDID("DEL", 1, "X")

	// The first three combinations (bulk/no-wbr, bytewise/no-wbr,
	// bulk/wbr) all see a corrupt block; only the fourth
	// (bytewise+write-before-read) sees a good one.
	tr := &fakeTransport{blocks: [][]byte{bad, bad, bad, good}}
	e, err := Read(tr, ReadBlock, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ManufacturerID != "DEL" {
		t.Errorf("got %q, want DEL", e.ManufacturerID)
	}
}

func TestReadTreatsBlockOneAsBlockZeroWhenBlockZeroInvalid(t *testing.T) {
	good := buildValidEDID("DEL", 1, "X")
	raw := make([]byte, blockSize*2)
	// raw[:128] is left as all zeros: no valid EDID magic.
	copy(raw[blockSize:], good)

	tr := &fakeTransport{blocks: [][]byte{raw}}
	e, err := Read(tr, ReadBlock, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ManufacturerID != "DEL" {
		t.Errorf("got %q, want DEL (from block 1 treated as block 0)", e.ManufacturerID)
	}
}
