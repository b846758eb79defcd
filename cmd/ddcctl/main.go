// Command ddcctl is a thin CLI over the ddcgo library: detect attached
// DDC/CI monitors, read and write VCP feature values, dump capability
// strings, and watch connect/DPMS events live. It is intentionally
// small — output formatting and flag parsing, nothing that belongs in
// the library itself.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AvengeMedia/ddcgo/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "ddcctl",
	Short: "Query and control DDC/CI monitors over I2C",
	Long:  "ddcctl talks directly to monitors over /dev/i2c-* using the DDC/CI (MCCS) protocol: no X11 or Wayland compositor involvement required.",
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		log.SetLevel(level)
	}
	rootCmd.AddCommand(detectCmd, getvcpCmd, setvcpCmd, capabilitiesCmd, monitorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
