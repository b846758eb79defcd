// Package ddcfeature is the dynamic feature record loader (spec.md
// §4.11, C11): it locates, parses, and indexes a per-monitor `.mccs`
// file describing feature codes the built-in MCCS dictionary doesn't
// know about. File lookup goes through spf13/afero so the search path
// and file contents can be faked in tests without touching the real
// filesystem.
package ddcfeature

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// AttrFlag is one of an NC/Continuous/Table feature's attribute bits
// (spec.md §4.11 "ATTRS").
type AttrFlag int

const (
	AttrReadWrite AttrFlag = 1 << iota
	AttrReadOnly
	AttrWriteOnly
	AttrContinuous
	AttrContinuousC // "CCONT" — explicit alias some files use for Continuous
	AttrNonContinuous
	AttrTable
)

// ValueEntry is one named NC value (spec.md §4.11 "VALUE").
type ValueEntry struct {
	Code byte
	Name string
}

// FeatureEntry is one `FEATURE_CODE` block (spec.md §4.11).
type FeatureEntry struct {
	Code   byte
	Name   string
	Attrs  AttrFlag
	Values []ValueEntry
	// Kind is filled in by finalize: "SIMPLE_NC", "WO_NC", "CONT",
	// "TABLE", or "" when no classifying attribute was present.
	Kind string
}

// Record is a parsed dynamic feature record (spec.md §3 "Dynamic
// Features Record").
type Record struct {
	MfgID          string
	ModelName      string
	ProductCode    int
	SourceFilename string
	MCCSVersion    string
	Features       map[byte]*FeatureEntry
}

// SearchPaths are tried in order; the first readable
// `<key>.mccs` file wins (spec.md §4.11 "Search in order").
var SearchPaths = []string{
	".",
	"~/.local/share/ddcutil",
	"/usr/local/share/ddcutil",
	"/usr/share/ddcutil",
}

// Load finds and parses the `.mccs` file for key
// (`<MFG>-<MODEL>-<PRODUCT_CODE>`), validating it against the expected
// mfg/model/product code the caller already knows from EDID.
func Load(fs afero.Fs, homeDir string, key string, expectMfg, expectModel string, expectProductCode int) (*Record, *ddcstatus.ErrorInfo) {
	filename := key + ".mccs"
	for _, dir := range SearchPaths {
		if strings.HasPrefix(dir, "~/") {
			dir = filepath.Join(homeDir, dir[2:])
		}
		path := filepath.Join(dir, filename)
		f, err := fs.Open(path)
		if err != nil {
			continue
		}
		data, rerr := afero.ReadAll(f)
		f.Close()
		if rerr != nil {
			continue
		}
		return Parse(data, path, expectMfg, expectModel, expectProductCode)
	}
	return nil, ddcstatus.New(ddcstatus.Arg, "Load", fmt.Sprintf("no readable %s in any search path", filename))
}

// IsReadable reports whether code is a known feature whose attributes
// permit a read (anything other than the write-only NC kind). An
// unrecognized code is not readable: this repository carries no static
// MCCS dictionary to fall back to, only the dynamic record a .mccs file
// supplies, so callers without a loaded Record should treat "unknown"
// as "try it and see" rather than consult these predicates at all.
func (rec *Record) IsReadable(code byte) bool {
	f, ok := rec.Features[code]
	if !ok {
		return false
	}
	return f.Attrs&AttrWriteOnly == 0
}

// IsWritable reports whether code is a known feature whose attributes
// permit a write (read-write or write-only).
func (rec *Record) IsWritable(code byte) bool {
	f, ok := rec.Features[code]
	if !ok {
		return false
	}
	return f.Attrs&(AttrReadWrite|AttrWriteOnly) != 0
}

// IsTable reports whether code is a known Table-type feature, which
// callers must read/write via GetTableFeature/SetTableFeature rather
// than GetVCPFeature/SetVCPFeature.
func (rec *Record) IsTable(code byte) bool {
	f, ok := rec.Features[code]
	if !ok {
		return false
	}
	return f.Attrs&AttrTable != 0
}

// Parse parses the contents of one `.mccs` file (spec.md §4.11 "Parse
// line by line"). Errors are accumulated rather than short-circuited;
// the returned ErrorInfo (if any) carries one cause per error line.
func Parse(data []byte, sourceFilename, expectMfg, expectModel string, expectProductCode int) (*Record, *ddcstatus.ErrorInfo) {
	rec := &Record{SourceFilename: sourceFilename, MCCSVersion: "unknown", Features: make(map[byte]*FeatureEntry)}
	var causes []*ddcstatus.ErrorInfo
	var current *FeatureEntry

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		keyword := strings.ToUpper(fields[0])
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

		switch keyword {
		case "MFG_ID":
			rec.MfgID = rest
		case "MODEL":
			rec.ModelName = rest
		case "PRODUCT_CODE":
			n, perr := strconv.Atoi(rest)
			if perr != nil {
				causes = append(causes, lineErr(lineNo, "PRODUCT_CODE is not an integer: %q", rest))
				continue
			}
			rec.ProductCode = n
		case "MCCS_VERSION", "VCP_VERSION":
			rec.MCCSVersion = rest
		case "FEATURE_CODE":
			if len(fields) < 2 {
				causes = append(causes, lineErr(lineNo, "FEATURE_CODE missing hex byte"))
				continue
			}
			code, herr := parseHexByte(fields[1])
			if herr != nil {
				causes = append(causes, lineErr(lineNo, "FEATURE_CODE: %v", herr))
				continue
			}
			name := strings.TrimSpace(strings.Join(fields[2:], " "))
			current = &FeatureEntry{Code: code, Name: name}
			rec.Features[code] = current
		case "ATTRS":
			if current == nil {
				causes = append(causes, lineErr(lineNo, "ATTRS with no preceding FEATURE_CODE"))
				continue
			}
			for _, a := range fields[1:] {
				flag, ok := attrFlagFor(a)
				if !ok {
					causes = append(causes, lineErr(lineNo, "unrecognized ATTRS keyword %q", a))
					continue
				}
				current.Attrs |= flag
			}
		case "VALUE":
			if current == nil {
				causes = append(causes, lineErr(lineNo, "VALUE with no preceding FEATURE_CODE"))
				continue
			}
			if len(fields) < 2 {
				causes = append(causes, lineErr(lineNo, "VALUE missing hex byte"))
				continue
			}
			code, herr := parseHexByte(fields[1])
			if herr != nil {
				causes = append(causes, lineErr(lineNo, "VALUE: %v", herr))
				continue
			}
			name := strings.TrimSpace(strings.Join(fields[2:], " "))
			current.Values = append(current.Values, ValueEntry{Code: code, Name: name})
		default:
			causes = append(causes, lineErr(lineNo, "unrecognized keyword %q", fields[0]))
		}
	}

	causes = append(causes, finalize(rec, expectMfg, expectModel, expectProductCode)...)

	if len(causes) > 0 {
		return nil, ddcstatus.NewWithCauses(ddcstatus.BadData, "Parse", sourceFilename, causes...)
	}
	return rec, nil
}

func finalize(rec *Record, expectMfg, expectModel string, expectProductCode int) []*ddcstatus.ErrorInfo {
	var causes []*ddcstatus.ErrorInfo

	if rec.MfgID == "" {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", "missing MFG_ID"))
	} else if expectMfg != "" && rec.MfgID != expectMfg {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", fmt.Sprintf("MFG_ID %q does not match EDID %q", rec.MfgID, expectMfg)))
	}
	if rec.ModelName == "" {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", "missing MODEL"))
	} else if expectModel != "" && rec.ModelName != expectModel {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", fmt.Sprintf("MODEL %q does not match EDID %q", rec.ModelName, expectModel)))
	}
	if rec.ProductCode == 0 {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", "missing PRODUCT_CODE"))
	} else if expectProductCode != 0 && rec.ProductCode != expectProductCode {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", fmt.Sprintf("PRODUCT_CODE %d does not match EDID %d", rec.ProductCode, expectProductCode)))
	}
	if len(rec.Features) == 0 {
		causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", "zero features defined"))
	}

	for _, f := range rec.Features {
		isNC := f.Attrs&AttrNonContinuous != 0
		isCont := f.Attrs&(AttrContinuous|AttrContinuousC) != 0
		isTable := f.Attrs&AttrTable != 0
		isWO := f.Attrs&AttrWriteOnly != 0

		if len(f.Values) > 0 && (isCont || isTable) {
			causes = append(causes, ddcstatus.New(ddcstatus.BadData, "finalize", fmt.Sprintf("feature 0x%02x: VALUEs on a Continuous/Table feature", f.Code)))
			continue
		}
		switch {
		case isNC && isWO:
			f.Kind = "WO_NC"
		case isNC && len(f.Values) > 0:
			f.Kind = "SIMPLE_NC"
		case isCont:
			f.Kind = "CONT"
		case isTable:
			f.Kind = "TABLE"
		}
	}

	return causes
}

func lineErr(lineNo int, format string, a ...any) *ddcstatus.ErrorInfo {
	return ddcstatus.New(ddcstatus.BadData, "Parse", fmt.Sprintf("line %d: %s", lineNo, fmt.Sprintf(format, a...)))
}

func attrFlagFor(s string) (AttrFlag, bool) {
	switch strings.ToUpper(s) {
	case "RW":
		return AttrReadWrite, true
	case "RO":
		return AttrReadOnly, true
	case "WO":
		return AttrWriteOnly, true
	case "C":
		return AttrContinuous, true
	case "CCONT":
		return AttrContinuousC, true
	case "NC":
		return AttrNonContinuous, true
	case "T":
		return AttrTable, true
	default:
		return 0, false
	}
}

// parseHexByte canonicalizes the five hex-byte spellings spec.md §4.11
// allows: 0xHH, xHH, Xhh, HHh, HHH.
func parseHexByte(s string) (byte, error) {
	orig := s
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s = s[2:]
	case strings.HasPrefix(s, "x"), strings.HasPrefix(s, "X"):
		s = s[1:]
	case strings.HasSuffix(s, "h"), strings.HasSuffix(s, "H"):
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid hex byte %q", orig)
	}
	return byte(n), nil
}
