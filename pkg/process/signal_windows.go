//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup has no process-group equivalent wired up on Windows;
// the child stays in the supervisor's group.
func setupProcessGroup(cmd *exec.Cmd) {}

// signalGroup is not supported on Windows: it always returns
// errUnsupportedSignal, so Stop cannot deliver a signal there.
func signalGroup(pid int, sig syscall.Signal) error {
	return errUnsupportedSignal
}

// probeAlive always reports alive on Windows: os.Process.Wait is reliable
// there, so is_alive() relies only on the wait goroutine's report and
// never on a signal-0 probe.
func probeAlive(pid int) bool {
	return true
}
