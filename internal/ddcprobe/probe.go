// Package ddcprobe is the initial-checks probe (spec.md §4.9, C9): a
// one-shot classification, run on a display's first open, of how that
// monitor signals "I don't support this feature" — four mutually
// exclusive quirks ddcutil-style tooling has to special-case — plus the
// ordinary supported-feature communication check that precedes it.
// Grounded on max72bra-danklinux's ddc.go retry loop, generalized from
// its single inline "treat EIO as unsupported" comment into the full
// four-way classification spec.md describes.
package ddcprobe

import (
	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddcretry"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
	"github.com/AvengeMedia/ddcgo/internal/ddcstatus"
	"github.com/AvengeMedia/ddcgo/internal/log"
)

const (
	luminanceFeature     = 0x10 // every MCCS monitor implements this
	undefinedFeature     = 0xdd // cannot legally exist
	digitalInputFeature  = 0x41
	reservedZeroFeature  = 0x00
)

// Run executes the probe against dh, setting flags on dh.Ref as it
// goes. It must only be invoked once per Reference, under the caller's
// FlagCommunicationChecked guard (spec.md §4.9 "Executed once per dref,
// under the DDC_COMMUNICATION_CHECKED guard bit").
func Run(dh *ddcdisplay.Handle, busResponsiveAt0x37 bool, isLaptopPanel bool) {
	run(dh.Device, dh.Ref, &dh.TestingUnsupported, busResponsiveAt0x37, isLaptopPanel)
}

// run is Run's transport-agnostic core: it takes a ddcretry.Transport
// directly rather than a *ddcdisplay.Handle, so tests can exercise the
// full classification against a hand-written fake bus instead of a real
// /dev/i2c-N node.
func run(tr ddcretry.Transport, ref *ddcdisplay.Reference, testingUnsupported *bool, busResponsiveAt0x37 bool, isLaptopPanel bool) {
	if !busResponsiveAt0x37 || isLaptopPanel {
		ref.SetFlag(ddcdisplay.FlagCommunicationChecked)
		return
	}

	if !probeCommunication(tr, ref) {
		return
	}
	probeUnsupportedQuirk(tr, ref, testingUnsupported)
}

// probeCommunication runs step 1 ("Supported-feature test") and returns
// whether step 2 should proceed.
func probeCommunication(tr ddcretry.Transport, ref *ddcdisplay.Reference) bool {
	sl := ddcsleep.New().WithDynamic(ref.Dynamic())

	_, err := ddcretry.GetVCPFeature(tr, sl, ref.Dynamic(), luminanceFeature)
	switch {
	case err == nil:
		ref.SetFlag(ddcdisplay.FlagCommunicationChecked | ddcdisplay.FlagCommunicationWorking)
		return true

	case err.Status == ddcstatus.ReportedUnsupported || err.Status == ddcstatus.DeterminedUnsupported:
		ref.SetFlag(ddcdisplay.FlagCommunicationChecked | ddcdisplay.FlagCommunicationWorking)
		return true

	case err.Status == ddcstatus.Busy:
		ref.SetFlag(ddcdisplay.FlagDDCBusy)
		return false

	case err.Status == ddcstatus.Disconnected:
		ref.MarkRemoved()
		return false

	case err.Status == ddcstatus.Retries:
		if ddcsleep.GlobalMultiplier() < 1.0 && ref.Dynamic().Enabled() {
			ref.Dynamic().SetEnabled(false)
			_, retryErr := ddcretry.GetVCPFeature(tr, sl, nil, luminanceFeature)
			if retryErr == nil || retryErr.Status == ddcstatus.ReportedUnsupported {
				ref.SetFlag(ddcdisplay.FlagCommunicationChecked | ddcdisplay.FlagCommunicationWorking)
				return true
			}
		}
		// Persistent RETRIES: assume communication works but guess the
		// DDC-flag-for-unsupported policy (spec.md §4.9).
		ref.SetFlag(ddcdisplay.FlagCommunicationChecked | ddcdisplay.FlagCommunicationWorking |
			ddcdisplay.FlagUnsupportedChecked | ddcdisplay.FlagUsesDDCFlagForUnsupported)
		return false

	default:
		ref.SetFlag(ddcdisplay.FlagCommunicationChecked)
		return false
	}
}

// probeUnsupportedQuirk runs step 2: probing features that cannot
// legally exist and classifying how the monitor signals that.
func probeUnsupportedQuirk(tr ddcretry.Transport, ref *ddcdisplay.Reference, testingUnsupported *bool) {
	sl := ddcsleep.New().WithDynamic(ref.Dynamic())
	*testingUnsupported = true
	defer func() { *testingUnsupported = false }()

	candidates := []byte{undefinedFeature}
	if ref.EDID() != nil && ref.EDID().DigitalInput {
		candidates = append(candidates, digitalInputFeature)
	}
	candidates = append(candidates, reservedZeroFeature)

	sawNonZeroSuccess := false
	for _, feature := range candidates {
		resp, err := ddcretry.GetVCPFeature(tr, sl, nil, feature)

		switch {
		case err == nil && resp.IsAmbiguousZero():
			ref.SetFlag(ddcdisplay.FlagUnsupportedChecked | ddcdisplay.FlagUsesZeroBytesForUnsupported)
			return

		case err == nil:
			sawNonZeroSuccess = true
			continue

		case err != nil && err.Status == ddcstatus.AllResponsesNull:
			ref.SetFlag(ddcdisplay.FlagUnsupportedChecked | ddcdisplay.FlagUsesNullResponseForUnsupported)
			return

		case err != nil && err.Status == ddcstatus.ReportedUnsupported:
			ref.SetFlag(ddcdisplay.FlagUnsupportedChecked | ddcdisplay.FlagUsesDDCFlagForUnsupported)
			return

		case err != nil && err.Status.IsErrno() && err.Status == ddcstatus.EIO:
			// spec.md §4.9: "-EIO => warn; do not classify."
			log.Warn("unsupported-feature probe got EIO; leaving the quirk unclassified", "feature", feature)
			return
		}
	}

	if sawNonZeroSuccess {
		ref.SetFlag(ddcdisplay.FlagUnsupportedChecked | ddcdisplay.FlagDoesNotIndicateUnsupported)
	}
}
