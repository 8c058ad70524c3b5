//go:build linux

package metrics

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var clockTicksPerSecond = int64(100) // getconf CLK_TCK is 100 on essentially every Linux target

type linuxCollector struct{}

func newPlatformCollector() Collector {
	return &linuxCollector{}
}

// Sample reads /proc/<pid>/stat for RSS/CPU ticks and /proc/<pid>/status
// for peak RSS, then counts entries under /proc/<pid>/fd for the open
// descriptor count.
func (c *linuxCollector) Sample(pid int) (Sample, error) {
	sample := Sample{Timestamp: time.Now()}

	stat, err := readStat(pid)
	if err != nil {
		return sample, fmt.Errorf("read /proc/%d/stat: %w", pid, err)
	}
	sample.CPUPercent = stat.cpuPercentEstimate()
	sample.RSSBytes = stat.rssBytes()

	if peak, err := readPeakRSS(pid); err == nil {
		sample.PeakRSSBytes = peak
	}

	if fds, err := countOpenFDs(pid); err == nil {
		sample.OpenFDs = fds
	}

	return sample, nil
}

type procStat struct {
	utimeTicks int64
	stimeTicks int64
	startTicks int64
	rssPages   int64
}

func (s procStat) rssBytes() uint64 {
	pageSize := int64(os.Getpagesize())
	return uint64(s.rssPages * pageSize)
}

// cpuPercentEstimate reports lifetime CPU usage as a percentage of wall
// time since process start. It is intentionally an estimate, not a
// windowed rate: the supervisor samples on demand (`status --detailed`), not on a
// ticker, so there is no prior sample to diff against.
func (s procStat) cpuPercentEstimate() float64 {
	uptimeTicks := processUptimeTicks(s.startTicks)
	if uptimeTicks <= 0 {
		return 0
	}
	busyTicks := s.utimeTicks + s.stimeTicks
	return 100 * float64(busyTicks) / float64(uptimeTicks)
}

func processUptimeTicks(startTicks int64) int64 {
	systemUptimeSeconds, err := readSystemUptimeSeconds()
	if err != nil {
		return 0
	}
	systemUptimeTicks := int64(systemUptimeSeconds * float64(clockTicksPerSecond))
	return systemUptimeTicks - startTicks
}

func readSystemUptimeSeconds() (float64, error) {
	data, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected /proc/uptime format")
	}
	return strconv.ParseFloat(fields[0], 64)
}

// readStat parses the fixed-position fields of /proc/<pid>/stat that
// matter here. The process name field (2) is parenthesized and may
// contain spaces, so we locate it by the closing paren rather than by
// naive whitespace splitting.
func readStat(pid int) (procStat, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return procStat{}, err
	}
	line := string(data)
	closeParen := strings.LastIndex(line, ")")
	if closeParen < 0 {
		return procStat{}, fmt.Errorf("unexpected /proc/%d/stat format", pid)
	}
	fields := strings.Fields(line[closeParen+1:])
	// Fields after the comm field, 1-indexed from field 3 in the full
	// record: fields[0] is field 3 (state), so utime is fields[11],
	// stime fields[12], starttime fields[19], rss fields[21].
	const (
		utimeIdx = 11
		stimeIdx = 12
		startIdx = 19
		rssIdx   = 21
	)
	if len(fields) <= rssIdx {
		return procStat{}, fmt.Errorf("unexpected /proc/%d/stat field count: %d", pid, len(fields))
	}
	utime, _ := strconv.ParseInt(fields[utimeIdx], 10, 64)
	stime, _ := strconv.ParseInt(fields[stimeIdx], 10, 64)
	start, _ := strconv.ParseInt(fields[startIdx], 10, 64)
	rss, _ := strconv.ParseInt(fields[rssIdx], 10, 64)
	return procStat{utimeTicks: utime, stimeTicks: stime, startTicks: start, rssPages: rss}, nil
}

func readPeakRSS(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "VmHWM:") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				continue
			}
			return kb * 1024, nil
		}
	}
	return 0, fmt.Errorf("VmHWM not found")
}

func countOpenFDs(pid int) (int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/fd", pid))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
