// Package ddcstats holds the process-wide, atomically-updated counters
// C14 initializes as "sleep_stats" and "execution_stats". Counters are
// read without locking; tearing under concurrent reads is acceptable
// (spec.md §5 "Shared mutable state").
package ddcstats

import (
	"sync/atomic"
	"time"
)

// IOEventType classifies a recorded syscall for the execution-stats
// counters (spec.md §4.3).
type IOEventType int

const (
	IOOpen IOEventType = iota
	IOWrite
	IORead
	IOIoctl
)

// IOEvent is one recorded syscall (spec.md §4.3 "record each syscall as
// an IO event {type, location, start_ns, end_ns}").
type IOEvent struct {
	Type     IOEventType
	Location string
	StartNS  int64
	EndNS    int64
}

var (
	ioEventCount   atomic.Int64
	sleepEventCount atomic.Int64
	sleepNanosTotal atomic.Int64
	retryCount      atomic.Int64
)

// RecordIOEvent is called once per completed syscall by internal/ddci2c.
// It currently only maintains a running count; the full per-event
// history is not retained to keep this process-wide sink allocation
// free on the hot path.
func RecordIOEvent(_ IOEvent) {
	ioEventCount.Add(1)
}

// RecordSleep is called once per tuned sleep by internal/ddcsleep.
func RecordSleep(d time.Duration) {
	sleepEventCount.Add(1)
	sleepNanosTotal.Add(int64(d))
}

// RecordRetryAttempt is called once per retry-loop attempt by
// internal/ddcretry.
func RecordRetryAttempt() {
	retryCount.Add(1)
}

// Snapshot is a point-in-time read of the counters, for diagnostics.
type Snapshot struct {
	IOEvents     int64
	Sleeps       int64
	SleepNanos   int64
	RetryAttempts int64
}

func Get() Snapshot {
	return Snapshot{
		IOEvents:      ioEventCount.Load(),
		Sleeps:        sleepEventCount.Load(),
		SleepNanos:    sleepNanosTotal.Load(),
		RetryAttempts: retryCount.Load(),
	}
}

// Reset clears all counters.
func Reset() {
	ioEventCount.Store(0)
	sleepEventCount.Store(0)
	sleepNanosTotal.Store(0)
	retryCount.Store(0)
}
