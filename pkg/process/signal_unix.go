//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so that a
// signal sent to -pid reaches the whole subtree it may have forked.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// signalGroup sends sig to the process group rooted at pid.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

// probeAlive issues a signal-0 liveness probe, the is_alive() fallback
// used when a non-hanging wait reports a transient error.
func probeAlive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	if errno, ok := err.(syscall.Errno); ok {
		switch errno {
		case syscall.ESRCH:
			return false
		case syscall.EPERM:
			// process exists but we can't signal it: still alive.
			return true
		}
	}
	return false
}
