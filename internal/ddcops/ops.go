// Package ddcops is the higher-level save-settings/capabilities/
// multi-part read surface (spec.md §4.10, C10), built directly on
// internal/ddcretry (C5) and internal/ddcpacket (C2) against an open
// internal/ddcdisplay.Handle.
package ddcops

import (
	"fmt"

	"github.com/AvengeMedia/ddcgo/internal/ddcconfig"
	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddcpacket"
	"github.com/AvengeMedia/ddcgo/internal/ddcretry"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
)

// maxCapabilitiesBytes caps the assembled capabilities/table-read
// buffer (spec.md §4.5 "Cap total size at 32 KiB").
const maxCapabilitiesBytes = 32 * 1024

// mccsVersionFeature is the VCP version feature code (0xDF).
const mccsVersionFeature = 0xdf

func sleeperFor(dh *ddcdisplay.Handle) *ddcsleep.Sleeper {
	return ddcsleep.New().WithDynamic(dh.Ref.Dynamic())
}

// GetVCPFeature reads one VCP feature's current/max value.
func GetVCPFeature(dh *ddcdisplay.Handle, featureCode byte) (*ddcpacket.NonTableResponse, *ddcstatus.ErrorInfo) {
	return ddcretry.GetVCPFeature(dh.Device, sleeperFor(dh), dh.Ref.Dynamic(), featureCode)
}

// SetVCPFeature sets one VCP feature's value, verifying it with a
// follow-up read when verify is true or ddcconfig.VerifyAfterSet is on
// (spec.md §4.5 "Set-and-verify").
func SetVCPFeature(dh *ddcdisplay.Handle, featureCode byte, value uint16, verify bool) *ddcstatus.ErrorInfo {
	verify = verify || ddcconfig.VerifyAfterSet()
	return ddcretry.SetVCPFeature(dh.Device, sleeperFor(dh), dh.Ref.Dynamic(), featureCode, value, verify)
}

// SaveCurrentSettings issues the write-only save-current-settings
// command (spec.md §4.10).
func SaveCurrentSettings(dh *ddcdisplay.Handle) *ddcstatus.ErrorInfo {
	return ddcretry.SaveCurrentSettings(dh.Device, sleeperFor(dh))
}

// GetCapabilitiesString runs the capabilities multi-part read sequence
// and returns the reassembled bytes as a string verbatim — the core
// guarantees faithful reassembly only; parsing the vcp()/mccs_ver()/
// cmds() capabilities DSL is an external concern (spec.md §4.10).
func GetCapabilitiesString(dh *ddcdisplay.Handle) (string, *ddcstatus.ErrorInfo) {
	buf, err := ddcretry.MultiPartRead(dh.Device, sleeperFor(dh), ddcpacket.BuildCapabilitiesRequest, ddcpacket.ParseCapabilitiesReply, maxCapabilitiesBytes)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// GetTableFeature runs the table-read multi-part sequence for
// featureCode and returns the reassembled bytes.
func GetTableFeature(dh *ddcdisplay.Handle, featureCode byte) ([]byte, *ddcstatus.ErrorInfo) {
	buildFn := func(offset uint16) []byte { return ddcpacket.BuildTableReadRequest(featureCode, offset) }
	return ddcretry.MultiPartRead(dh.Device, sleeperFor(dh), buildFn, ddcpacket.ParseTableReadReply, maxCapabilitiesBytes)
}

// SetTableFeature writes bytes to featureCode via a single table-write
// request, retried under the write-only policy (spec.md §4.2
// "Table-Write").
func SetTableFeature(dh *ddcdisplay.Handle, featureCode byte, offset uint16, bytes []byte) *ddcstatus.ErrorInfo {
	req := ddcpacket.BuildTableWrite(featureCode, offset, bytes)
	return ddcretry.WriteOnly(dh.Device, sleeperFor(dh), req, "SetTableFeature")
}

// GetMCCSVersion queries VCP feature 0xDF (VCP version), caches the
// resulting "major.minor" string on dh.Ref, and returns it. Any
// communication failure or an unsupported-opcode reply is not an error
// to the caller (spec.md §D-2): the cached version falls back to
// "unqueried" and GetMCCSVersion still returns normally.
func GetMCCSVersion(dh *ddcdisplay.Handle) string {
	resp, err := ddcretry.GetVCPFeature(dh.Device, sleeperFor(dh), dh.Ref.Dynamic(), mccsVersionFeature)
	if err != nil || !resp.SupportedOpcode {
		dh.Ref.SetMCCSVersion("unqueried")
		return "unqueried"
	}
	version := fmt.Sprintf("%d.%d", resp.Cur>>8, resp.Cur&0xff)
	dh.Ref.SetMCCSVersion(version)
	return version
}
