//go:build !linux

package metrics

import (
	"fmt"
	"time"
)

// genericCollector is the non-Linux fallback. It deliberately does not
// shell out to `ps`/`lsof`; wiring that up is future work if a
// non-Linux target becomes a first-class platform for this supervisor.
type genericCollector struct{}

func newPlatformCollector() Collector {
	return &genericCollector{}
}

func (c *genericCollector) Sample(pid int) (Sample, error) {
	return Sample{Timestamp: time.Now()}, fmt.Errorf("resource sampling not implemented on this platform")
}
