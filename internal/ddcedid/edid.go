// Package ddcedid reads and parses a display's EDID block (spec.md §4.7).
// The read itself goes over the same raw I²C primitive as the DDC/CI
// command channel (internal/ddci2c), but against the fixed EDID slave
// address 0x50 with no DDC/CI framing — grounded on
// other_examples/c2a032bd_SPDG-dell-monitor-tool__main.go.go, which
// reads a bare 128-byte block from that same address and pulls the
// monitor name out of its descriptor blocks.
package ddcedid

import (
	"bytes"
	"strings"

	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// SlaveAddr is the fixed I²C address EDID is read from.
const SlaveAddr = 0x50

const (
	blockSize      = 128
	magicLen       = 8
	maxReadAttempts = 4
)

var edidMagic = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// ReadOption selects how the bytes are pulled off the bus (spec.md §4.7
// "bytewise vs block read").
type ReadOption int

const (
	// ReadBlock issues one 128-byte (or 256-byte) read.
	ReadBlock ReadOption = iota
	// ReadWriteBeforeRead writes a zero offset byte before reading, for
	// controllers that require an explicit current-address reset.
	ReadWriteBeforeRead
)

// Transport is the minimal bus surface EDID reading needs: set the
// target slave address, then read.
type Transport interface {
	SetAddr(addr byte) error
	WriteBytes(data []byte) error
	ReadBytes(n int) ([]byte, error)
}

// EDID is the parsed subset of fields the DDC layer needs to identify a
// display (spec.md §4.7 "parsed fields").
type EDID struct {
	Raw             []byte
	ManufacturerID  string // three-letter PNP ID, e.g. "DEL"
	ProductCode     uint16
	SerialBinary    uint32
	ModelName       string
	SerialString    string
	DigitalInput    bool
	HasExtensionCEA bool
}

// readAttempt is one (bulk-vs-bytewise, write-before-read-vs-not)
// combination. Read cycles through all four combinations (spec.md
// §4.6 "up to 4 attempts alternating options") rather than repeating
// the same one four times, since a bad read is usually specific to one
// combination of the two axes, not a transient fluke worth repeating.
type readAttempt struct {
	bytewise        bool
	writeBeforeRead bool
}

// attemptOrder lists the four combinations, the first matching opt
// tried first so a caller's preference still gets the first shot.
func attemptOrder(opt ReadOption) []readAttempt {
	all := []readAttempt{
		{bytewise: false, writeBeforeRead: false},
		{bytewise: false, writeBeforeRead: true},
		{bytewise: true, writeBeforeRead: false},
		{bytewise: true, writeBeforeRead: true},
	}
	preferWBR := opt == ReadWriteBeforeRead
	ordered := make([]readAttempt, 0, len(all))
	for _, a := range all {
		if a.writeBeforeRead == preferWBR {
			ordered = append(ordered, a)
		}
	}
	for _, a := range all {
		if a.writeBeforeRead != preferWBR {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

// Read performs up to 4 read attempts (spec.md §4.7 "up to 4 fallback
// attempts"), alternating bulk/bytewise reads and write-before-read
// against tr, validating the EDID header and checksum on each attempt
// before giving up and returning the last failure. If block 0 never
// validates but block 1 of a 256-byte read does, block 1 is treated as
// block 0 (spec.md §4.7's observed quirk) rather than failing outright.
func Read(tr Transport, opt ReadOption, includeExtension bool) (*EDID, *ddcstatus.ErrorInfo) {
	size := blockSize
	if includeExtension {
		size = blockSize * 2
	}

	var lastErr *ddcstatus.ErrorInfo
	for _, attempt := range attemptOrder(opt) {
		raw, err := readOnce(tr, attempt, size)
		if err != nil {
			lastErr = ddcstatus.New(ddcstatus.ReadEDID, "Read", err.Error())
			continue
		}
		if edid, verr := Parse(raw); verr == nil {
			return edid, nil
		} else {
			lastErr = verr
		}
		if len(raw) >= blockSize*2 {
			if edid, verr := Parse(raw[blockSize : blockSize*2]); verr == nil {
				return edid, nil
			}
		}
	}
	return nil, lastErr
}

func readOnce(tr Transport, attempt readAttempt, size int) ([]byte, error) {
	if err := tr.SetAddr(SlaveAddr); err != nil {
		return nil, err
	}
	if attempt.writeBeforeRead {
		if err := tr.WriteBytes([]byte{0x00}); err != nil {
			return nil, err
		}
	}
	if !attempt.bytewise {
		return tr.ReadBytes(size)
	}

	buf := make([]byte, 0, size)
	for len(buf) < size {
		b, err := tr.ReadBytes(1)
		if err != nil {
			return nil, err
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

// Parse validates and decodes a raw EDID block (spec.md §4.7 "header
// and checksum validation").
func Parse(raw []byte) (*EDID, *ddcstatus.ErrorInfo) {
	if len(raw) < blockSize {
		return nil, ddcstatus.New(ddcstatus.InvalidEDID, "Parse", "block shorter than 128 bytes")
	}
	if !bytes.Equal(raw[:magicLen], edidMagic) {
		return nil, ddcstatus.New(ddcstatus.InvalidEDID, "Parse", "missing EDID header magic")
	}
	if !validChecksum(raw[:blockSize]) {
		return nil, ddcstatus.New(ddcstatus.InvalidEDID, "Parse", "base block checksum failed")
	}

	e := &EDID{
		Raw:            append([]byte(nil), raw...),
		ManufacturerID: decodeManufacturerID(raw[8], raw[9]),
		ProductCode:    uint16(raw[10]) | uint16(raw[11])<<8,
		SerialBinary:   uint32(raw[12]) | uint32(raw[13])<<8 | uint32(raw[14])<<16 | uint32(raw[15])<<24,
		DigitalInput:   raw[20]&0x80 != 0,
	}

	for _, desc := range [][]byte{raw[54:72], raw[72:90], raw[90:108], raw[108:126]} {
		if desc[0] != 0 || desc[1] != 0 || desc[2] != 0 {
			continue // not a descriptor block (an actual detailed timing descriptor)
		}
		switch desc[3] {
		case 0xfc:
			e.ModelName = trimDescriptorText(desc[5:18])
		case 0xff:
			e.SerialString = trimDescriptorText(desc[5:18])
		}
	}

	if len(raw) >= blockSize*2 && raw[blockSize] == 0x02 {
		e.HasExtensionCEA = validChecksum(raw[blockSize : blockSize*2])
	}

	return e, nil
}

func validChecksum(block []byte) bool {
	var sum byte
	for _, b := range block {
		sum += b
	}
	return sum == 0
}

// decodeManufacturerID unpacks the three 5-bit letters packed into bytes
// 8-9 big-endian, offset from 'A'-1 (VESA EDID §3.4.1).
func decodeManufacturerID(b8, b9 byte) string {
	v := uint16(b8)<<8 | uint16(b9)
	letters := [3]byte{
		byte((v>>10)&0x1f) + 'A' - 1,
		byte((v>>5)&0x1f) + 'A' - 1,
		byte(v&0x1f) + 'A' - 1,
	}
	return string(letters[:])
}

func trimDescriptorText(b []byte) string {
	if i := bytes.IndexByte(b, 0x0a); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}
