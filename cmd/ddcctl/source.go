package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AvengeMedia/ddcgo/internal/ddclock"
	"github.com/AvengeMedia/ddcgo/internal/ddcregistry"
)

// busScanSource is the default ddcregistry.Source: it globs /dev/i2c-*
// on every Poll rather than subscribing to udev drm events, matching
// spec.md's "two-function contract" for a hotplug watcher external to
// the core (a real udev-driven Source can satisfy the same interface
// without any change to the library side).
type busScanSource struct{}

func (busScanSource) Poll() ([]ddcregistry.Connector, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("globbing /dev/i2c-*: %w", err)
	}

	conns := make([]ddcregistry.Connector, 0, len(matches))
	for _, m := range matches {
		numStr := strings.TrimPrefix(filepath.Base(m), "i2c-")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		conns = append(conns, ddcregistry.Connector{
			IOPath:        ddclock.IOPath{Number: n},
			ConnectorName: fmt.Sprintf("i2c-%d", n),
		})
	}
	return conns, nil
}

func (busScanSource) Close() error { return nil }
