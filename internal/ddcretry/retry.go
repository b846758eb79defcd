// Package ddcretry is the DDC retry engine (spec.md §4.5): the
// write-read hot-path loop, its write-only and multi-part siblings, and
// the per-class max-tries tables. It sits directly on internal/ddci2c
// (transport), internal/ddcpacket (codec), and internal/ddcsleep (tuned
// delays), mirroring how max72bra-danklinux's ddc.go interleaves a
// single write/sleep/read/sleep/parse sequence inside its retry loop,
// generalized here into three named retry classes instead of one
// inline loop.
package ddcretry

import (
	"sync/atomic"

	"github.com/AvengeMedia/ddcgo/internal/ddcpacket"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstats"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// Transport is the subset of *ddci2c.Device the retry engine needs. A
// narrow interface so tests can supply a fake bus instead of opening a
// real /dev/i2c-N node.
type Transport interface {
	WriteBytes(data []byte) error
	ReadBytes(n int) ([]byte, error)
	WriteThenRead(w []byte, readLen int) ([]byte, error)
}

// Class names one of the three retry classes, each with its own
// configurable and independently-atomic max-tries ceiling (spec.md
// §4.5).
type Class int

const (
	ClassWriteOnly Class = iota
	ClassWriteRead
	ClassMultiPart
)

var maxTries = [3]atomic.Int32{}

func init() {
	maxTries[ClassWriteOnly].Store(4)
	maxTries[ClassWriteRead].Store(4)
	maxTries[ClassMultiPart].Store(8)
}

// SetMaxTries overrides the max-tries ceiling for class, clamped to
// [1, ddcstatus.MaxMaxTries].
func SetMaxTries(class Class, n int) {
	if n < 1 {
		n = 1
	}
	if n > ddcstatus.MaxMaxTries {
		n = ddcstatus.MaxMaxTries
	}
	maxTries[class].Store(int32(n))
}

// MaxTries returns the current ceiling for class.
func MaxTries(class Class) int {
	return int(maxTries[class].Load())
}

const vcpReplyLen = 11 // marker + length + opcode + result + feature + type + max(2) + cur(2) + checksum

// classifyFatal reports whether status should abort the retry loop
// immediately rather than be retried — a communication failure the
// monitor reported deliberately, as opposed to noise on the bus
// (spec.md §4.5 "fatal vs retryable").
func classifyFatal(status ddcstatus.Status) bool {
	switch status {
	case ddcstatus.ReportedUnsupported, ddcstatus.InvalidOperation, ddcstatus.Arg:
		return true
	default:
		return false
	}
}

// exhausted builds the final ErrorInfo once a retry loop's tries are
// spent: if every cause was a Null Message, the loop reports
// ALL_RESPONSES_NULL (spec.md §9 "all-causes-same-status promotion"),
// otherwise it reports RETRIES chained over the observed causes.
func exhausted(functionName string, causes []*ddcstatus.ErrorInfo) *ddcstatus.ErrorInfo {
	allNull := len(causes) > 0
	for _, c := range causes {
		if c.Status != ddcstatus.NullResponse {
			allNull = false
			break
		}
	}
	if allNull {
		return ddcstatus.NewWithCauses(ddcstatus.AllResponsesNull, functionName, "", causes...)
	}
	return ddcstatus.NewWithCauses(ddcstatus.Retries, functionName, "retry budget exhausted", causes...)
}

// GetVCPFeature runs the write-read retry loop for a Get-VCP-Feature
// request (spec.md §4.5 pseudocode: write, sleep, read, parse,
// classify, repeat).
func GetVCPFeature(tr Transport, sl *ddcsleep.Sleeper, dyn *ddcsleep.DynamicController, featureCode byte) (*ddcpacket.NonTableResponse, *ddcstatus.ErrorInfo) {
	req := ddcpacket.BuildGetVCPFeature(featureCode)
	var causes []*ddcstatus.ErrorInfo

	for try := 1; try <= MaxTries(ClassWriteRead); try++ {
		ddcstats.RecordRetryAttempt()

		if err := tr.WriteBytes(req); err != nil {
			causes = append(causes, wrapErr(err, "GetVCPFeature/write"))
			continue
		}
		sl.Sleep(ddcsleep.WriteToRead)

		resp, err := tr.ReadBytes(vcpReplyLen)
		if err != nil {
			causes = append(causes, wrapErr(err, "GetVCPFeature/read"))
			continue
		}

		if ddcpacket.ParseNullResponse(resp) {
			if dyn != nil {
				dyn.RecordOutcome(ddcstatus.NullResponse)
			}
			causes = append(causes, ddcstatus.New(ddcstatus.NullResponse, "GetVCPFeature", ""))
			sl.Sleep(ddcsleep.DDCNull)
			continue
		}

		parsed, perr := ddcpacket.ParseVCPReply(resp, featureCode)
		if perr != nil {
			if dyn != nil {
				dyn.RecordOutcome(ddcstatus.DDCData)
			}
			causes = append(causes, ddcstatus.New(ddcstatus.DDCData, "GetVCPFeature/parse", perr.Error()))
			continue
		}

		if dyn != nil {
			dyn.RecordOutcome(ddcstatus.OK)
		}
		sl.Sleep(ddcsleep.PostRead)

		if !parsed.SupportedOpcode {
			return parsed, ddcstatus.New(ddcstatus.ReportedUnsupported, "GetVCPFeature", "monitor returned unsupported-feature reply")
		}
		return parsed, nil
	}

	return nil, exhausted("GetVCPFeature", causes)
}

// SetVCPFeature runs the write-only retry loop for a Set-VCP-Feature
// request, optionally following it with a verification read that does
// not itself feed the dynamic-sleep controller (spec.md §9 "verify
// reads do not contribute to the success counter").
func SetVCPFeature(tr Transport, sl *ddcsleep.Sleeper, dyn *ddcsleep.DynamicController, featureCode byte, value uint16, verify bool) *ddcstatus.ErrorInfo {
	req := ddcpacket.BuildSetVCPFeature(featureCode, value)
	var causes []*ddcstatus.ErrorInfo

	for try := 1; try <= MaxTries(ClassWriteOnly); try++ {
		ddcstats.RecordRetryAttempt()

		if err := tr.WriteBytes(req); err != nil {
			wrapped := wrapErr(err, "SetVCPFeature/write")
			if classifyFatal(wrapped.Status) {
				return wrapped
			}
			causes = append(causes, wrapped)
			continue
		}

		if dyn != nil {
			dyn.RecordOutcome(ddcstatus.OK)
		}
		sl.Sleep(ddcsleep.PostWrite)

		if !verify {
			return nil
		}
		sl.Sleep(ddcsleep.WriteToRead)
		parsed, verr := GetVCPFeature(tr, sl, nil, featureCode)
		if verr != nil {
			return ddcstatus.NewChained(verr, "SetVCPFeature/verify")
		}
		if parsed.Cur != value {
			return ddcstatus.New(ddcstatus.Verify, "SetVCPFeature/verify", "post-set value did not match requested value")
		}
		return nil
	}

	return exhausted("SetVCPFeature", causes)
}

// WriteOnly runs the write-only retry loop for an arbitrary pre-built
// request, such as a table-write, that expects no reply.
func WriteOnly(tr Transport, sl *ddcsleep.Sleeper, req []byte, functionName string) *ddcstatus.ErrorInfo {
	var causes []*ddcstatus.ErrorInfo

	for try := 1; try <= MaxTries(ClassWriteOnly); try++ {
		ddcstats.RecordRetryAttempt()
		if err := tr.WriteBytes(req); err != nil {
			causes = append(causes, wrapErr(err, functionName))
			continue
		}
		sl.Sleep(ddcsleep.PostWrite)
		return nil
	}
	return exhausted(functionName, causes)
}

// SaveCurrentSettings runs the write-only retry loop for the
// save-current-settings command, which expects no reply.
func SaveCurrentSettings(tr Transport, sl *ddcsleep.Sleeper) *ddcstatus.ErrorInfo {
	req := ddcpacket.BuildSaveCurrentSettings()
	var causes []*ddcstatus.ErrorInfo

	for try := 1; try <= MaxTries(ClassWriteOnly); try++ {
		ddcstats.RecordRetryAttempt()
		if err := tr.WriteBytes(req); err != nil {
			causes = append(causes, wrapErr(err, "SaveCurrentSettings/write"))
			continue
		}
		sl.Sleep(ddcsleep.PostSaveSettings)
		return nil
	}
	return exhausted("SaveCurrentSettings", causes)
}

// MultiPartRead drives a repeated table-read/capabilities-read exchange
// until the monitor signals its final fragment, capping total payload
// at maxTotal bytes and validating that fragment offsets are
// contiguous and strictly increasing (spec.md §4.6 "multi-part read").
// parseFn selects ParseCapabilitiesReply or ParseTableReadReply;
// buildFn selects the matching request builder for the next offset.
func MultiPartRead(tr Transport, sl *ddcsleep.Sleeper, buildFn func(offset uint16) []byte, parseFn func(resp []byte) (*ddcpacket.MultiPartFragment, error), maxTotal int) ([]byte, *ddcstatus.ErrorInfo) {
	var out []byte
	var offset uint16

	for {
		frag, err := multiPartFragment(tr, sl, buildFn(offset), parseFn)
		if err != nil {
			return nil, err
		}
		if frag.Offset != offset {
			return nil, ddcstatus.New(ddcstatus.MultiPartReadFragment, "MultiPartRead", "fragment offset was not contiguous")
		}
		out = append(out, frag.Data...)
		if len(out) > maxTotal {
			return nil, ddcstatus.New(ddcstatus.MultiPartReadFragment, "MultiPartRead", "payload exceeded cap")
		}
		if frag.Final {
			return out, nil
		}
		offset += uint16(len(frag.Data))
	}
}

const multiPartReplyLen = 40

func multiPartFragment(tr Transport, sl *ddcsleep.Sleeper, req []byte, parseFn func(resp []byte) (*ddcpacket.MultiPartFragment, error)) (*ddcpacket.MultiPartFragment, *ddcstatus.ErrorInfo) {
	var causes []*ddcstatus.ErrorInfo

	for try := 1; try <= MaxTries(ClassMultiPart); try++ {
		ddcstats.RecordRetryAttempt()

		if err := tr.WriteBytes(req); err != nil {
			causes = append(causes, wrapErr(err, "MultiPartRead/write"))
			continue
		}
		sl.Sleep(ddcsleep.WriteToRead)

		resp, err := tr.ReadBytes(multiPartReplyLen)
		if err != nil {
			causes = append(causes, wrapErr(err, "MultiPartRead/read"))
			continue
		}
		if ddcpacket.ParseNullResponse(resp) {
			causes = append(causes, ddcstatus.New(ddcstatus.NullResponse, "MultiPartRead", ""))
			sl.Sleep(ddcsleep.DDCNull)
			continue
		}

		frag, perr := parseFn(resp)
		if perr != nil {
			causes = append(causes, ddcstatus.New(ddcstatus.DDCData, "MultiPartRead/parse", perr.Error()))
			continue
		}
		sl.Sleep(ddcsleep.PostRead)
		return frag, nil
	}
	return nil, exhausted("MultiPartRead", causes)
}

func wrapErr(err error, functionName string) *ddcstatus.ErrorInfo {
	if ei, ok := err.(*ddcstatus.ErrorInfo); ok {
		return ei
	}
	if st, ok := err.(ddcstatus.Status); ok {
		return ddcstatus.New(st, functionName, "")
	}
	return ddcstatus.New(ddcstatus.Other, functionName, err.Error())
}
