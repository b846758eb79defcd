// Package ddcconfig holds the process-wide tunables every other
// component reads at call time rather than at construction time, so a
// running process can be reconfigured (e.g. from cmd/ddcctl flags or a
// config-reload signal) without tearing down open displays. Grounded on
// the same "package-level atomics, no singleton struct pointer" shape
// internal/ddcsleep and internal/ddcretry already use.
package ddcconfig

import (
	"sync/atomic"

	"github.com/AvengeMedia/ddcgo/internal/ddci2c"
	"github.com/AvengeMedia/ddcgo/internal/ddcsleep"
)

var (
	i2cStrategy        atomic.Int32 // ddci2c.Strategy
	dynamicSleep       atomic.Bool
	verifyAfterSet     atomic.Bool
	skipInitialChecks  atomic.Bool
	edidIncludeCEABlk  atomic.Bool
	watchModeEnabled   atomic.Bool
)

func init() {
	i2cStrategy.Store(int32(ddci2c.StrategyIOCTL))
	dynamicSleep.Store(true)
	verifyAfterSet.Store(false)
	skipInitialChecks.Store(false)
	edidIncludeCEABlk.Store(false)
	watchModeEnabled.Store(false)
}

// I2CStrategy returns the strategy new displays should open their bus
// with.
func I2CStrategy() ddci2c.Strategy {
	return ddci2c.Strategy(i2cStrategy.Load())
}

// SetI2CStrategy changes the strategy used for displays opened after
// the call; already-open displays keep whatever strategy they opened
// with.
func SetI2CStrategy(s ddci2c.Strategy) {
	i2cStrategy.Store(int32(s))
}

// DynamicSleepEnabled reports the stored dynamic-sleep setting. No
// other package reads it: ddcdisplay.NewReference always creates its
// DynamicController enabled, whatever this reports.
func DynamicSleepEnabled() bool {
	return dynamicSleep.Load()
}

// SetDynamicSleepEnabled stores the dynamic-sleep setting; it does not
// change any display's DynamicController.
func SetDynamicSleepEnabled(enabled bool) {
	dynamicSleep.Store(enabled)
}

// VerifyAfterSet reports whether Set-VCP-Feature calls should read back
// and confirm the value by default.
func VerifyAfterSet() bool {
	return verifyAfterSet.Load()
}

// SetVerifyAfterSet toggles the default.
func SetVerifyAfterSet(enabled bool) {
	verifyAfterSet.Store(enabled)
}

// SkipInitialChecks reports whether the initial-checks probe (C9)
// should be bypassed on open, trading quirk detection for a faster
// first call.
func SkipInitialChecks() bool {
	return skipInitialChecks.Load()
}

// SetSkipInitialChecks toggles the default.
func SetSkipInitialChecks(enabled bool) {
	skipInitialChecks.Store(enabled)
}

// EDIDIncludeExtensionBlock reports whether EDID reads should also pull
// the 128-byte CEA-861 extension block.
func EDIDIncludeExtensionBlock() bool {
	return edidIncludeCEABlk.Load()
}

// SetEDIDIncludeExtensionBlock toggles the default.
func SetEDIDIncludeExtensionBlock(enabled bool) {
	edidIncludeCEABlk.Store(enabled)
}

// WatchModeEnabled reports whether the registry's hotplug reconciler
// should run its poll loop.
func WatchModeEnabled() bool {
	return watchModeEnabled.Load()
}

// SetWatchModeEnabled toggles watch mode.
func SetWatchModeEnabled(enabled bool) {
	watchModeEnabled.Store(enabled)
}

// NewSleeper builds a *ddcsleep.Sleeper honoring the current global
// multiplier; a thin convenience so call sites don't import ddcsleep
// just to call New().
func NewSleeper() *ddcsleep.Sleeper {
	return ddcsleep.New()
}
