//go:build !windows

package process

import (
	"sync"
	"syscall"
)

// umaskMutex guards the process-wide umask across the brief window between
// setting it and the fork inside cmd.Start(); Go has no per-child umask
// hook (the setup wants this applied "after fork, before exec", but
// os/exec performs fork+exec atomically), so spawns are serialized through
// this instead.
var umaskMutex sync.Mutex

// applyUmask sets the process umask for the duration of a spawn and
// returns a function that restores the previous value.
func applyUmask(mask uint32) func() {
	umaskMutex.Lock()
	previous := syscall.Umask(int(mask))
	return func() {
		syscall.Umask(previous)
		umaskMutex.Unlock()
	}
}
