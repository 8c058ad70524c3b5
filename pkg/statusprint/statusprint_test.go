package statusprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/core-tools/taskmaster/pkg/process"
)

func TestStatusRunningIncludesPIDAndUptime(t *testing.T) {
	now := time.Now()
	snapshots := []process.Snapshot{
		{InstanceName: "web", State: process.Running, PID: 1234, StartTime: now.Add(-2 * time.Second)},
	}
	out := Status(snapshots, "", now)
	assert.Contains(t, out, "web: RUNNING (PID: 1234, Uptime: 2s)")
}

func TestStatusFilterNotFound(t *testing.T) {
	out := Status(nil, "ghost", time.Now())
	assert.Equal(t, "Process not found: ghost", out)
}

func TestStatusFilterFound(t *testing.T) {
	now := time.Now()
	snapshots := []process.Snapshot{
		{InstanceName: "db", State: process.Stopped},
	}
	out := Status(snapshots, "db", now)
	assert.Equal(t, "db: STOPPED", out)
}

func TestStatsCountsEachState(t *testing.T) {
	now := time.Now()
	snapshots := []process.Snapshot{
		{InstanceName: "a", State: process.Running, StartTime: now},
		{InstanceName: "b", State: process.Fatal},
		{InstanceName: "c", State: process.Stopped},
	}
	out := Stats(snapshots, now)
	assert.Contains(t, out, "Total Processes:     3")
	assert.Contains(t, out, "Failed:")
}

func TestDetailedNoMatchReportsFilter(t *testing.T) {
	out := Detailed(nil, "missing", time.Now(), nil)
	assert.Contains(t, out, "No processes found matching: missing")
}
