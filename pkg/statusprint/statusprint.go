// Package statusprint renders process state as ANSI-colored text for the
// `status`, `status --detailed` and `stats` shell commands. The SGR
// escape codes below are hand-written rather than pulled from a color
// library, since the palette is small and fixed.
package statusprint

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/core-tools/taskmaster/pkg/metrics"
	"github.com/core-tools/taskmaster/pkg/process"
)

const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	cyan    = "\033[36m"
	magenta = "\033[35m"
	gray    = "\033[90m"
)

func colorFor(state process.State) string {
	switch state {
	case process.Running:
		return green
	case process.Stopped:
		return gray
	case process.Fatal:
		return red
	case process.Starting:
		return cyan
	case process.Stopping, process.Backoff:
		return magenta
	case process.Exited:
		return gray
	default:
		return reset
	}
}

// Status renders the plain, single-line-per-instance report used by the
// bare `status` and `status <name>` commands.
func Status(snapshots []process.Snapshot, filter string, now time.Time) string {
	var b strings.Builder
	if filter == "" {
		b.WriteString("Process Status:\n")
		b.WriteString("=====================================\n")
		for _, s := range sortedByName(snapshots) {
			b.WriteString(statusLine(s, now))
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, s := range snapshots {
		if s.InstanceName == filter {
			return s.InstanceName + ": " + string(s.State) + runningSuffix(s, now)
		}
	}
	return "Process not found: " + filter
}

func statusLine(s process.Snapshot, now time.Time) string {
	return s.InstanceName + ": " + string(s.State) + runningSuffix(s, now)
}

func runningSuffix(s process.Snapshot, now time.Time) string {
	if s.State != process.Running {
		return ""
	}
	uptime := now.Sub(s.StartTime)
	return fmt.Sprintf(" (PID: %d, Uptime: %ds)", s.PID, int(uptime.Seconds()))
}

// Detailed renders the per-instance multi-line report for
// `status --detailed [filter]`, including a metrics sample for RUNNING
// instances when a Collector is supplied (nil skips the metrics lines).
func Detailed(snapshots []process.Snapshot, filter string, now time.Time, collector metrics.Collector) string {
	var b strings.Builder
	b.WriteString("\nProcess Status (Detailed):\n")
	b.WriteString("==========================================\n")

	foundAny := false
	for _, s := range sortedByName(snapshots) {
		if filter != "" && !strings.Contains(s.InstanceName, filter) {
			continue
		}
		writeDetail(&b, s, now, collector)
		b.WriteString("\n")
		foundAny = true
	}

	if filter != "" && !foundAny {
		b.WriteString("No processes found matching: " + filter + "\n")
	}
	return b.String()
}

func writeDetail(b *strings.Builder, s process.Snapshot, now time.Time, collector metrics.Collector) {
	color := colorFor(s.State)
	fmt.Fprintf(b, "%s%s: %s%s", color, s.InstanceName, s.State, reset)

	switch s.State {
	case process.Running:
		uptime := now.Sub(s.StartTime)
		fmt.Fprintf(b, " (PID: %d, Uptime: %s)\n", s.PID, formatDuration(uptime))

		if collector != nil {
			if sample, err := collector.Sample(s.PID); err == nil {
				fmt.Fprintf(b, "  ├─ CPU: %.1f%% | Memory: %s", sample.CPUPercent, formatBytes(sample.RSSBytes))
				if sample.PeakRSSBytes > 0 {
					fmt.Fprintf(b, " (peak: %s)", formatBytes(sample.PeakRSSBytes))
				}
				b.WriteString("\n")
				fmt.Fprintf(b, "  ├─ FDs: %d | Restarts: %d\n", sample.OpenFDs, s.RestartCount)
			} else {
				fmt.Fprintf(b, "  ├─ Restarts: %d\n", s.RestartCount)
			}
		} else {
			fmt.Fprintf(b, "  ├─ Restarts: %d\n", s.RestartCount)
		}
		fmt.Fprintf(b, "  └─ Last Health Check: %sOK%s (active)\n", green, reset)

	case process.Fatal:
		fmt.Fprintf(b, " (Last exit: %d, Restarts: %d)\n", s.LastExitStatus, s.RestartCount)
		b.WriteString("  └─ Process failed to start or crashed\n")

	default:
		b.WriteString("\n")
	}
}

// Stats renders the aggregate fleet summary for the `stats` command.
func Stats(snapshots []process.Snapshot, now time.Time) string {
	var running, stopped, starting, stopping, failed, exited, backoff int
	var totalRestarts int
	var totalUptime time.Duration

	for _, s := range snapshots {
		switch s.State {
		case process.Running:
			running++
			totalUptime += now.Sub(s.StartTime)
		case process.Stopped:
			stopped++
		case process.Starting:
			starting++
		case process.Stopping:
			stopping++
		case process.Fatal:
			failed++
		case process.Exited:
			exited++
		case process.Backoff:
			backoff++
		}
		totalRestarts += s.RestartCount
	}

	total := len(snapshots)
	avgUptime := "0s"
	if running > 0 {
		avgUptime = formatDuration(totalUptime / time.Duration(running))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%sProcess Statistics:%s\n", bold, reset)
	b.WriteString("==========================================\n")
	fmt.Fprintf(&b, "Total Processes:     %d\n", total)

	fmt.Fprintf(&b, "%sRunning:%s             %d", green, reset, running)
	if starting > 0 {
		fmt.Fprintf(&b, " (+%d starting)", starting)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%sStopped:%s             %d", gray, reset, stopped)
	if stopping > 0 {
		fmt.Fprintf(&b, " (+%d stopping)", stopping)
	}
	b.WriteString("\n")

	if failed > 0 {
		fmt.Fprintf(&b, "%sFailed:%s              %d\n", red, reset, failed)
	}
	if exited > 0 {
		fmt.Fprintf(&b, "%sExited:%s              %d\n", gray, reset, exited)
	}
	if backoff > 0 {
		fmt.Fprintf(&b, "%sBackoff:%s             %d\n", magenta, reset, backoff)
	}

	fmt.Fprintf(&b, "Total Restarts:      %d\n", totalRestarts)
	fmt.Fprintf(&b, "Average Uptime:      %s\n", avgUptime)

	healthScore := 0.0
	if total > 0 {
		healthScore = float64(running) / float64(total) * 100
	}
	b.WriteString("System Health:       ")
	fmt.Fprintf(&b, "%s%.1f%% (%s)%s\n", healthColor(healthScore), healthScore, healthLabel(healthScore), reset)

	return b.String()
}

func healthColor(score float64) string {
	switch {
	case score >= 80:
		return green
	case score >= 40:
		return yellow
	default:
		return red
	}
}

func healthLabel(score float64) string {
	switch {
	case score >= 80:
		return "EXCELLENT"
	case score >= 60:
		return "GOOD"
	case score >= 40:
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

func formatDuration(d time.Duration) string {
	seconds := int64(d.Seconds())
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func sortedByName(snapshots []process.Snapshot) []process.Snapshot {
	out := make([]process.Snapshot, len(snapshots))
	copy(out, snapshots)
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceName < out[j].InstanceName })
	return out
}
