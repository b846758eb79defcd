// Package ddcstatus merges OS errno, DDC protocol, and library-synthesized
// codes into a single signed integer space, per spec.md §4.1 and §7.
package ddcstatus

import (
	"fmt"
	"strings"
)

// Status is the core's unified return code. Zero is success, negative
// values are errors (either a negated errno or a library/protocol code),
// positive values are reserved for qualified success and currently unused.
type Status int32

const (
	// RCRangeErrnoLo and RCRangeErrnoHi bound the negated-errno range.
	RCRangeErrnoLo = -999
	RCRangeErrnoHi = -1

	// RCRangeDDCStart is added to a library code's ordinal to produce its
	// negative Status, e.g. code 5 -> Status(-(3000+5)).
	RCRangeDDCStart = 3000

	// MaxMaxTries bounds every retry-class max-tries setting (spec.md §4.5).
	MaxMaxTries = 15
)

// OK is the zero/success status.
const OK Status = 0

// FromErrno negates a positive errno value into the errno range. Passing 0
// returns OK.
func FromErrno(errno int) Status {
	if errno == 0 {
		return OK
	}
	return Status(-errno)
}

// library/protocol code ordinals, offset from RCRangeDDCStart.
const (
	codeDDCData = iota
	codeNullResponse
	codeAllResponsesNull
	codeMultiPartReadFragment
	codeReportedUnsupported
	codeDeterminedUnsupported
	codeReadAllZero
	codeRetries
	codeVerify
	codeReadEDID
	codeInvalidEDID
	codeInvalidDisplay
	codeLocked
	codeAlreadyOpen
	codeInvalidOperation
	codeUnimplemented
	codeArg
	codeBadData
	codeOther
	codeDisconnected
	codeBusy
	codeDoubleByte
	codeReadEqualsWrite
	codeChecksum
)

// Symbolic DDC/library statuses, expressed as negative Status values in
// the -3999..-3000 range per spec.md §6.
var (
	DDCData               = ddc(codeDDCData)
	NullResponse          = ddc(codeNullResponse)
	AllResponsesNull      = ddc(codeAllResponsesNull)
	MultiPartReadFragment = ddc(codeMultiPartReadFragment)
	ReportedUnsupported   = ddc(codeReportedUnsupported)
	DeterminedUnsupported = ddc(codeDeterminedUnsupported)
	ReadAllZero           = ddc(codeReadAllZero)
	Retries               = ddc(codeRetries)
	Verify                = ddc(codeVerify)
	ReadEDID              = ddc(codeReadEDID)
	InvalidEDID           = ddc(codeInvalidEDID)
	InvalidDisplay        = ddc(codeInvalidDisplay)
	Locked                = ddc(codeLocked)
	AlreadyOpen           = ddc(codeAlreadyOpen)
	InvalidOperation      = ddc(codeInvalidOperation)
	Unimplemented         = ddc(codeUnimplemented)
	Arg                   = ddc(codeArg)
	BadData               = ddc(codeBadData)
	Other                 = ddc(codeOther)
	Disconnected          = ddc(codeDisconnected)
	Busy                  = ddc(codeBusy)
	DoubleByte            = ddc(codeDoubleByte)
	ReadEqualsWrite       = ddc(codeReadEqualsWrite)
	Checksum              = ddc(codeChecksum)
)

func ddc(ordinal int) Status {
	return Status(-(RCRangeDDCStart + ordinal))
}

type info struct {
	name string
	desc string
	// notError marks codes that merely classify an observation rather
	// than report a failure (spec.md §4.1).
notError bool
}

var ddcInfo = map[Status]info{
	DDCData:               {"DDC_DATA", "invalid DDC response data", false},
	NullResponse:          {"NULL_RESPONSE", "received DDC Null Message", true},
	AllResponsesNull:      {"ALL_RESPONSES_NULL", "every retry attempt received a Null Message", true},
	MultiPartReadFragment: {"MULTI_PART_READ_FRAGMENT", "invalid multi-part read fragment", false},
	ReportedUnsupported:   {"REPORTED_UNSUPPORTED", "monitor reported feature unsupported", true},
	DeterminedUnsupported: {"DETERMINED_UNSUPPORTED", "core determined feature unsupported", true},
	ReadAllZero:           {"READ_ALL_ZERO", "read returned only zero bytes", false},
	Retries:               {"RETRIES", "retry budget exhausted", false},
	Verify:                {"VERIFY", "post-set value did not verify", false},
	ReadEDID:              {"READ_EDID", "failed to read EDID", false},
	InvalidEDID:           {"INVALID_EDID", "EDID failed validation", false},
	InvalidDisplay:        {"INVALID_DISPLAY", "display identifier did not resolve", false},
	Locked:                {"LOCKED", "display lock held by another owner", false},
	AlreadyOpen:           {"ALREADY_OPEN", "display already open by calling thread", false},
	InvalidOperation:      {"INVALID_OPERATION", "operation not valid for this feature", false},
	Unimplemented:         {"UNIMPLEMENTED", "known gap", false},
	Arg:                   {"ARG", "caller-supplied argument invalid", false},
	BadData:               {"BAD_DATA", "caller-supplied data invalid", false},
	Other:                 {"OTHER", "development placeholder", false},
	Disconnected:          {"DISCONNECTED", "display was disconnected", false},
	Busy:                  {"BUSY", "display is busy", false},
	DoubleByte:            {"DOUBLE_BYTE", "monitor echoed the same byte repeatedly", false},
	ReadEqualsWrite:       {"READ_EQUALS_WRITE", "response equalled request verbatim", false},
	Checksum:              {"CHECKSUM", "packet checksum mismatch", false},
}

// IsErrno reports whether s falls in the negated-errno range.
func (s Status) IsErrno() bool {
	return s <= RCRangeErrnoHi && s >= RCRangeErrnoLo
}

// IsDDC reports whether s falls in the DDC/library range.
func (s Status) IsDDC() bool {
	return s <= -RCRangeDDCStart && s > -(RCRangeDDCStart+1000)
}

// Name returns the short symbolic name for s, e.g. "RETRIES" or "EIO".
func (s Status) Name() string {
	if s == OK {
		return "OK"
	}
	if s.IsDDC() {
		if i, ok := ddcInfo[s]; ok {
			return i.name
		}
		return fmt.Sprintf("DDC_UNKNOWN(%d)", int32(s))
	}
	if s.IsErrno() {
		return errnoName(int(-s))
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

// Desc returns a short human description of s.
func (s Status) Desc() string {
	if s == OK {
		return "success"
	}
	if s.IsDDC() {
		if i, ok := ddcInfo[s]; ok {
			return i.desc
		}
		return "unrecognized DDC/library status"
	}
	if s.IsErrno() {
		return errnoDesc(int(-s))
	}
	return "unrecognized status"
}

// IsNotError reports whether s merely classifies an observation (e.g. the
// monitor telling us a feature is unsupported) rather than reporting a
// genuine failure. Callers may choose to suppress these from error logs.
func (s Status) IsNotError() bool {
	if i, ok := ddcInfo[s]; ok {
		return i.notError
	}
	return false
}

// Error implements the error interface so a Status can be returned and
// compared anywhere a plain Go error is expected.
func (s Status) Error() string {
	if s == OK {
		return "OK"
	}
	return fmt.Sprintf("%s: %s", s.Name(), s.Desc())
}

// ErrorInfo is a node in a causal-chain error tree (spec.md §4.1).
type ErrorInfo struct {
	Status       Status
	FunctionName string
	Detail       string
	Causes       []*ErrorInfo
}

// New creates a leaf ErrorInfo.
func New(status Status, functionName, detail string) *ErrorInfo {
	return &ErrorInfo{Status: status, FunctionName: functionName, Detail: detail}
}

// NewChained wraps cause, inheriting its Status.
func NewChained(cause *ErrorInfo, functionName string) *ErrorInfo {
	return &ErrorInfo{Status: cause.Status, FunctionName: functionName, Causes: []*ErrorInfo{cause}}
}

// NewWithCauses creates a node with an explicit status and cause list.
func NewWithCauses(status Status, functionName, detail string, causes ...*ErrorInfo) *ErrorInfo {
	return &ErrorInfo{Status: status, FunctionName: functionName, Detail: detail, Causes: causes}
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return "OK"
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (in %s): %s", e.Status.Name(), e.FunctionName, e.Detail)
	}
	return fmt.Sprintf("%s (in %s)", e.Status.Name(), e.FunctionName)
}

// Report renders the error tree, root first, causes indented beneath,
// collapsing consecutive identical-status causes as "NAME(xN)".
func (e *ErrorInfo) Report() string {
	var b strings.Builder
	e.report(&b, 0)
	return b.String()
}

func (e *ErrorInfo) report(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s%s\n", indent, e.Error())
	for _, line := range summarizeCauses(e.Causes) {
		fmt.Fprintf(b, "%s  %s\n", indent, line)
	}
}

// summarizeCauses collapses runs of identical-status causes into
// "NAME(xN)" lines, per spec.md §9 ("retry history same-status collapse").
func summarizeCauses(causes []*ErrorInfo) []string {
	var lines []string
	i := 0
	for i < len(causes) {
		j := i + 1
		for j < len(causes) && causes[j].Status == causes[i].Status {
			j++
		}
		count := j - i
		if count > 1 {
			lines = append(lines, fmt.Sprintf("%s(x%d)", causes[i].Status.Name(), count))
		} else {
			lines = append(lines, causes[i].Status.Name())
		}
		i = j
	}
	return lines
}
