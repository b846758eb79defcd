package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/AvengeMedia/ddcgo/internal/ddcdisplay"
	"github.com/AvengeMedia/ddcgo/internal/ddcfeature"
	"github.com/AvengeMedia/ddcgo/internal/ddcops"
	"github.com/AvengeMedia/ddcgo/internal/log"
	"github.com/AvengeMedia/ddcgo/pkg/ddc"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List attached DDC/CI displays",
	Run:   runDetect,
}

var getvcpCmd = &cobra.Command{
	Use:   "getvcp <display> <feature-hex>",
	Short: "Read a VCP feature value",
	Args:  cobra.ExactArgs(2),
	Run:   runGetVCP,
}

var setvcpCmd = &cobra.Command{
	Use:   "setvcp <display> <feature-hex> <value>",
	Short: "Write a VCP feature value",
	Args:  cobra.ExactArgs(3),
	Run:   runSetVCP,
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities <display>",
	Short: "Dump a display's raw capabilities string",
	Args:  cobra.ExactArgs(1),
	Run:   runCapabilities,
}

func init() {
	setvcpCmd.Flags().Bool("verify", false, "read the value back and confirm it took")
}

func withLibrary(fn func(lib *ddc.Library)) {
	lib := ddc.New()
	if err := lib.Init(ddc.Options{}); err != nil {
		log.Fatalf("initializing ddc library: %v", err)
	}
	defer lib.Teardown()

	if _, err := lib.ScanOnce(busScanSource{}); err != nil {
		log.Fatalf("scanning for displays: %v", err)
	}

	fn(lib)
}

func findDisplay(lib *ddc.Library, displayArg string) *ddcdisplay.Reference {
	n, err := strconv.Atoi(displayArg)
	if err != nil {
		log.Fatalf("invalid display number %q", displayArg)
	}
	for _, ref := range lib.Displays() {
		if int(ref.Number) == n {
			return ref
		}
	}
	log.Fatalf("no display numbered %d (run `ddcctl detect`)", n)
	return nil
}

func parseFeatureCode(s string) byte {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		log.Fatalf("invalid feature code %q: %v", s, err)
	}
	return byte(n)
}

// loadFeatureRecord loads ref's dynamic .mccs feature record, if one is
// installed for this model; it returns nil rather than an error when
// none is found, since most monitors have no such file and that is not
// a fault.
func loadFeatureRecord(ref *ddcdisplay.Reference) *ddcfeature.Record {
	edid := ref.EDID()
	if edid == nil {
		return nil
	}
	home, _ := os.UserHomeDir()
	rec, err := ddcfeature.Load(afero.NewOsFs(), home, ref.ModelKey(), edid.ManufacturerID, edid.ModelName, int(edid.ProductCode))
	if err != nil {
		return nil
	}
	return rec
}

// checkFeatureAccess warns (without aborting) when a loaded feature
// record explicitly marks code as not permitting the requested access,
// using IsReadable/IsWritable/IsTable instead of hand-rolled attribute
// bit tests. An unrecognized code is not flagged: this repository has
// no static MCCS dictionary, so "not in the dynamic record" does not
// mean "unsupported."
func checkFeatureAccess(rec *ddcfeature.Record, code byte, wantWrite bool) {
	if rec == nil {
		return
	}
	if _, known := rec.Features[code]; !known {
		return
	}
	if rec.IsTable(code) {
		log.Warn("feature is a Table feature; use a table-read/write command instead", "code", fmt.Sprintf("0x%02x", code))
		return
	}
	if wantWrite && !rec.IsWritable(code) {
		log.Warn("feature record marks this code read-only", "code", fmt.Sprintf("0x%02x", code))
	}
	if !wantWrite && !rec.IsReadable(code) {
		log.Warn("feature record marks this code write-only", "code", fmt.Sprintf("0x%02x", code))
	}
}

func runDetect(cmd *cobra.Command, args []string) {
	withLibrary(func(lib *ddc.Library) {
		displays := lib.Displays()
		if len(displays) == 0 {
			fmt.Println("No DDC/CI displays found")
			return
		}
		fmt.Printf("%-8s %-10s %-20s %s\n", "Display", "Bus", "Model", "Communication")
		for _, ref := range displays {
			model := ref.ModelKey()
			if model == "" {
				model = "(unknown)"
			}
			comm := "not working"
			if ref.HasFlag(ddcdisplay.FlagCommunicationWorking) {
				comm = "working"
			}
			fmt.Printf("%-8d /dev/i2c-%-4d %-20s %s\n", ref.Number, ref.IOPath.Number, model, comm)
		}
	})
}

func runGetVCP(cmd *cobra.Command, args []string) {
	withLibrary(func(lib *ddc.Library) {
		ref := findDisplay(lib, args[0])
		code := parseFeatureCode(args[1])

		dh, err := lib.OpenDisplay(ref, false)
		if err != nil {
			log.Fatalf("opening display %d: %v", ref.Number, err)
		}
		defer dh.Close()

		checkFeatureAccess(loadFeatureRecord(ref), code, false)

		resp, verr := ddcops.GetVCPFeature(dh, code)
		if verr != nil {
			log.Fatalf("getvcp 0x%02x: %v", code, verr)
		}
		fmt.Printf("VCP 0x%02x: current=%d max=%d\n", code, resp.Cur, resp.Max)
	})
}

func runSetVCP(cmd *cobra.Command, args []string) {
	withLibrary(func(lib *ddc.Library) {
		ref := findDisplay(lib, args[0])
		code := parseFeatureCode(args[1])
		value, err := strconv.ParseUint(args[2], 0, 16)
		if err != nil {
			log.Fatalf("invalid value %q: %v", args[2], err)
		}
		verify, _ := cmd.Flags().GetBool("verify")

		dh, derr := lib.OpenDisplay(ref, false)
		if derr != nil {
			log.Fatalf("opening display %d: %v", ref.Number, derr)
		}
		defer dh.Close()

		checkFeatureAccess(loadFeatureRecord(ref), code, true)

		if serr := ddcops.SetVCPFeature(dh, code, uint16(value), verify); serr != nil {
			log.Fatalf("setvcp 0x%02x: %v", code, serr)
		}
		fmt.Printf("VCP 0x%02x set to %d\n", code, value)
	})
}

func runCapabilities(cmd *cobra.Command, args []string) {
	withLibrary(func(lib *ddc.Library) {
		ref := findDisplay(lib, args[0])

		dh, err := lib.OpenDisplay(ref, false)
		if err != nil {
			log.Fatalf("opening display %d: %v", ref.Number, err)
		}
		defer dh.Close()

		caps, cerr := ddcops.GetCapabilitiesString(dh)
		if cerr != nil {
			log.Fatalf("capabilities: %v", cerr)
		}
		fmt.Println(caps)
	})
}
