package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	taskmastererrors "github.com/core-tools/taskmaster/pkg/errors"
	"github.com/core-tools/taskmaster/pkg/config"
	"github.com/core-tools/taskmaster/pkg/logging"
)

var errUnsupportedSignal = errors.New("process group signaling not supported on this platform")

// killGracePeriod is the extra wait after a SIGKILL before stop() gives up
// and reports FATAL.
const killGracePeriod = 1 * time.Second

// Process is the live state of one instance: owns the child PID, state,
// retry counter and timestamps.
type Process struct {
	instanceName string
	config       *config.ProgramConfig
	logger       logging.Logger

	state          State
	pid            int
	restartCount   int
	lastExitStatus int
	startTime      time.Time
	lastRestart    time.Time

	cmd        *exec.Cmd
	doneCh     chan waitResult
	stdoutFile *os.File
	stderrFile *os.File
}

type waitResult struct {
	exitCode int
	err      error
}

// Snapshot is a read-only copy of a Process's observable fields, safe to
// hand to status/metrics rendering without holding the supervisor lock.
type Snapshot struct {
	InstanceName   string
	State          State
	PID            int
	RestartCount   int
	LastExitStatus int
	StartTime      time.Time
	LastRestart    time.Time
}

// New constructs a Process in the STOPPED state. cfg is cloned so later
// mutation of the caller's copy cannot reach into this Process.
func New(instanceName string, cfg *config.ProgramConfig, logger logging.Logger) *Process {
	return &Process{
		instanceName: instanceName,
		config:       cfg.Clone(),
		logger:       logging.WithPrefix(logger, instanceName),
		state:        Stopped,
	}
}

func (p *Process) State() State   { return p.state }
func (p *Process) PID() int       { return p.pid }
func (p *Process) RestartCount() int { return p.restartCount }
func (p *Process) Config() *config.ProgramConfig { return p.config }

func (p *Process) Snapshot() Snapshot {
	return Snapshot{
		InstanceName:   p.instanceName,
		State:          p.state,
		PID:            p.pid,
		RestartCount:   p.restartCount,
		LastExitStatus: p.lastExitStatus,
		StartTime:      p.startTime,
		LastRestart:    p.lastRestart,
	}
}

// Uptime returns time since the last successful spawn, or zero if the
// process is not currently running.
func (p *Process) Uptime(now time.Time) time.Duration {
	if p.state != Running || p.startTime.IsZero() {
		return 0
	}
	return now.Sub(p.startTime)
}

// IsExpectedExit reports membership in config.ExpectedExitCodes.
func (p *Process) IsExpectedExit(code int) bool {
	return p.config.IsExpectedExitCode(code)
}

// Start is a no-op success if already RUNNING. Otherwise it spawns the
// child and transitions to RUNNING, or to FATAL if the fork/exec failed.
func (p *Process) Start() error {
	if p.state == Running {
		return nil
	}

	p.state = Starting
	p.logger.Infof("starting instance")

	cmd, stdoutFile, stderrFile, err := p.buildCmd()
	if err != nil {
		p.logger.Errorf("failed to build command: %v", err)
		p.state = Fatal
		return taskmastererrors.NewSpawnError("failed to build command", err).WithContext("instance", p.instanceName)
	}

	restoreUmask := applyUmask(p.config.Umask)
	err = cmd.Start()
	restoreUmask()

	if err != nil {
		closeFiles(stdoutFile, stderrFile)
		p.logger.Errorf("spawn failed: %v", err)
		p.state = Fatal
		return taskmastererrors.NewSpawnError("failed to spawn process", err).WithContext("instance", p.instanceName)
	}

	p.cmd = cmd
	p.stdoutFile = stdoutFile
	p.stderrFile = stderrFile
	p.pid = cmd.Process.Pid
	p.startTime = time.Now()
	p.state = Running

	done := make(chan waitResult, 1)
	p.doneCh = done
	go func(cmd *exec.Cmd, done chan waitResult) {
		err := cmd.Wait()
		done <- waitResultFromError(err)
	}(cmd, done)

	p.logger.Infof("started, pid: %d", p.pid)
	return nil
}

func waitResultFromError(err error) waitResult {
	if err == nil {
		return waitResult{exitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return waitResult{exitCode: exitErr.ExitCode(), err: nil}
	}
	return waitResult{exitCode: -1, err: err}
}

func (p *Process) buildCmd() (*exec.Cmd, *os.File, *os.File, error) {
	argv := Tokenize(p.config.Command)
	if len(argv) == 0 {
		return nil, nil, nil, fmt.Errorf("empty command")
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, nil, nil, err
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = p.config.WorkingDir

	env := os.Environ()
	for k, v := range p.config.Environment {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdoutFile, ownsStdout, err := openLogDestination(p.config.StdoutLog, os.Stdout)
	if err != nil {
		return nil, nil, nil, err
	}
	cmd.Stdout = stdoutFile

	stderrFile, ownsStderr, err := openLogDestination(p.config.StderrLog, os.Stderr)
	if err != nil {
		if ownsStdout {
			stdoutFile.Close()
		}
		return nil, nil, nil, err
	}
	cmd.Stderr = stderrFile

	setupProcessGroup(cmd)

	var ownedStdout, ownedStderr *os.File
	if ownsStdout {
		ownedStdout = stdoutFile
	}
	if ownsStderr {
		ownedStderr = stderrFile
	}

	return cmd, ownedStdout, ownedStderr, nil
}

// openLogDestination opens path (empty -> fallback fd, "/dev/null" ->
// null device, otherwise append-create at 0644). The bool
// result reports whether the caller now owns the returned file and must
// close it once the child has been reaped.
func openLogDestination(path string, fallback *os.File) (*os.File, bool, error) {
	switch path {
	case "":
		return fallback, false, nil
	case config.DevNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		return f, true, err
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		return f, true, err
	}
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// IsAlive performs the non-blocking reap step: if the child has
// already exited (reported on the done channel fed by the goroutine
// blocked in cmd.Wait, the channel-based stand-in for WNOHANG), records
// last_exit_status, clears the PID, transitions to EXITED and returns
// false. If nothing has been reported yet, a signal-0 probe decides: a PID
// that still answers is alive; one that does not is treated as exited.
func (p *Process) IsAlive() bool {
	if p.pid == 0 {
		return false
	}

	select {
	case result := <-p.doneCh:
		p.handleExit(result)
		return false
	default:
	}

	if probeAlive(p.pid) {
		return true
	}

	// The probe disagrees with our bookkeeping: the child is gone but the
	// wait goroutine hasn't reported yet. Treat as exited defensively.
	select {
	case result := <-p.doneCh:
		p.handleExit(result)
	default:
		p.handleExit(waitResult{exitCode: -1})
	}
	return false
}

func (p *Process) handleExit(result waitResult) {
	closeFiles(p.stdoutFile, p.stderrFile)
	p.stdoutFile = nil
	p.stderrFile = nil

	p.lastExitStatus = result.exitCode
	p.pid = 0
	p.cmd = nil
	p.doneCh = nil
	p.state = Exited

	if result.err != nil {
		p.logger.Warnf("wait reported an error: %v", result.err)
	} else {
		p.logger.Infof("exited with status %d", result.exitCode)
	}
}

// Stop is a no-op success unless RUNNING or STARTING. Otherwise it sends
// the configured stop signal, polls for up to stop_secs, escalates to
// SIGKILL if the child is still alive, and waits one more grace period.
func (p *Process) Stop() error {
	if p.state != Running && p.state != Starting {
		return nil
	}

	pid := p.pid
	p.state = Stopping
	p.logger.Infof("stopping, signal: %s", p.config.StopSignal)

	if err := p.sendSignal(p.config.StopSignal.OSSignal()); err != nil {
		p.logger.Warnf("failed to send stop signal: %v", err)
	}

	deadline := time.Now().Add(time.Duration(p.config.StopSecs) * time.Second)
	for time.Now().Before(deadline) {
		if !p.IsAlive() {
			p.state = Stopped
			p.logger.Infof("stopped gracefully")
			return nil
		}
		time.Sleep(1 * time.Second)
	}

	if !p.IsAlive() {
		p.state = Stopped
		p.logger.Infof("stopped gracefully")
		return nil
	}

	p.logger.Warnf("did not stop within %ds, sending SIGKILL", p.config.StopSecs)
	if err := p.sendSignal(syscall.SIGKILL); err != nil {
		p.logger.Errorf("failed to send SIGKILL: %v", err)
		p.state = Fatal
		p.pid = 0
		return taskmastererrors.NewStopError("failed to deliver SIGKILL", err).WithContext("instance", p.instanceName).WithContext("pid", pid)
	}

	time.Sleep(killGracePeriod)
	if p.IsAlive() {
		p.logger.Errorf("process did not die even after SIGKILL")
		p.state = Fatal
		p.pid = 0
		return taskmastererrors.NewStopError("process survived SIGKILL", nil).WithContext("instance", p.instanceName).WithContext("pid", pid)
	}

	p.state = Stopped
	p.logger.Infof("force-stopped")
	return nil
}

func (p *Process) sendSignal(sig syscall.Signal) error {
	if p.pid == 0 {
		return nil
	}
	return signalGroup(p.pid, sig)
}

// Restart stops then starts the instance. When resetCounter is true
// (an explicit user-initiated restart), restart_count returns
// to zero before the new start; automatic restarts from the monitor loop
// pass false and increment it instead.
func (p *Process) Restart(resetCounter bool) error {
	if p.state == Running || p.state == Starting {
		if err := p.Stop(); err != nil {
			return err
		}
	}

	if resetCounter {
		p.restartCount = 0
	} else {
		p.restartCount++
	}
	p.lastRestart = time.Now()

	return p.Start()
}

// SetState forces the state field directly, used by the supervisor's
// monitor loop to apply the BACKOFF reclassification and restart-decision
// transitions that don't go through Start/Stop/Restart.
func (p *Process) SetState(state State) {
	p.state = state
}

// ResetRestartCount zeroes restart_count without otherwise touching
// state, used by the supervisor's explicit start() command, which resets
// the counter even when the instance is already running.
func (p *Process) ResetRestartCount() {
	p.restartCount = 0
}

// ForceStopped transitions a non-running Process directly to STOPPED,
// used by the reconciliation pass when removing an instance that is
// neither RUNNING nor STARTING.
func (p *Process) ForceStopped() {
	if p.state.HasPID() {
		p.logger.Warnf("forcing stopped state while pid still tracked")
	}
	p.state = Stopped
	p.pid = 0
}
