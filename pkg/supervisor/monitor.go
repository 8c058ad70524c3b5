package supervisor

import (
	"time"

	"github.com/core-tools/taskmaster/pkg/config"
	"github.com/core-tools/taskmaster/pkg/process"
)

// monitorLoop is the ticker-based sweep, its own goroutine separate from
// the command shell. It uses a stop channel rather than context
// cancellation since it has no per-call deadline to thread through.
func (s *Supervisor) monitorLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Supervisor) sweep() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.healthSweep()
	s.restartSweep()
}

// healthSweep reaps every RUNNING instance; exits within start_secs of
// spawn are reclassified as BACKOFF rather than EXITED.
func (s *Supervisor) healthSweep() {
	now := time.Now()
	for name, inst := range s.instances {
		if inst.State() != process.Running {
			continue
		}

		if inst.IsAlive() {
			continue
		}

		uptime := now.Sub(inst.Snapshot().StartTime)
		cfg := inst.Config()
		startGrace := time.Duration(cfg.StartSecs) * time.Second

		if uptime < startGrace {
			s.logger.Errorf("%s died during startup period (uptime: %s < start_secs: %ds)", name, uptime, cfg.StartSecs)
			inst.SetState(process.Backoff)
			continue
		}

		exitCode := inst.Snapshot().LastExitStatus
		if inst.IsExpectedExit(exitCode) {
			s.logger.Infof("%s exited with expected status %d", name, exitCode)
		} else {
			s.logger.Warnf("%s died unexpectedly with status %d", name, exitCode)
		}
		inst.SetState(process.Exited)
	}
}

// restartSweep walks every EXITED or BACKOFF instance and applies the
// restart decision table.
func (s *Supervisor) restartSweep() {
	for name, inst := range s.instances {
		state := inst.State()
		if state != process.Exited && state != process.Backoff {
			continue
		}

		cfg := inst.Config()
		shouldRestart := decideShouldRestart(state, cfg, inst)

		if !shouldRestart {
			s.logReasonNotRestarting(name, cfg, inst)
			inst.SetState(process.Stopped)
			continue
		}

		if inst.RestartCount() >= cfg.StartRetries {
			s.logger.Errorf("%s exceeded max restart attempts (%d), marking FATAL", name, cfg.StartRetries)
			inst.SetState(process.Fatal)
			continue
		}

		nextAttempt := inst.RestartCount() + 1
		s.logger.Warnf("restarting %s (attempt %d/%d)", name, nextAttempt, cfg.StartRetries)

		time.Sleep(1 * time.Second)
		if err := inst.Restart(false); err != nil {
			s.logger.Errorf("restart attempt failed for %s: %v", name, err)
		}
	}
}

// decideShouldRestart applies the autorestart/expected-exit-code restart
// decision table.
func decideShouldRestart(state process.State, cfg *config.ProgramConfig, inst *process.Process) bool {
	if state == process.Backoff {
		return true
	}

	exitCode := inst.Snapshot().LastExitStatus
	expected := inst.IsExpectedExit(exitCode)
	exitCodesEmpty := len(cfg.ExpectedExitCodes) == 0

	switch cfg.AutoRestart {
	case config.AutoAlways:
		if exitCodesEmpty {
			return true
		}
		return !expected
	case config.AutoUnexpected:
		return !expected
	case config.AutoNever:
		return false
	default:
		return false
	}
}

func (s *Supervisor) logReasonNotRestarting(name string, cfg *config.ProgramConfig, inst *process.Process) {
	exitCode := inst.Snapshot().LastExitStatus
	if cfg.AutoRestart == config.AutoNever {
		s.logger.Infof("%s exited with code %d, not restarting (autorestart=NEVER)", name, exitCode)
	} else {
		s.logger.Infof("%s exited with expected exit code %d, not restarting", name, exitCode)
	}
}
