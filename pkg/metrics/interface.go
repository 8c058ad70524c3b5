// Package metrics implements a read-only resource collector: it samples
// OS process statistics and never acts on them (no violation policies,
// no auto-restart-on-resource threshold — the supervisor's only
// liveness signal is exit).
package metrics

import "time"

// Sample is a point-in-time snapshot of one process's resource usage,
// rendered by the `status --detailed` command.
type Sample struct {
	Timestamp    time.Time
	CPUPercent   float64
	RSSBytes     uint64
	PeakRSSBytes uint64
	OpenFDs      int
}

// Collector samples the resource usage of a running process by PID.
type Collector interface {
	Sample(pid int) (Sample, error)
}

// New returns the platform-appropriate Collector.
func New() Collector {
	return newPlatformCollector()
}
