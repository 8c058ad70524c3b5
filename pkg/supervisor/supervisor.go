// Package supervisor owns the instance map, the monitor loop, and the
// external command surface: start/stop/restart/status/
// reload/shutdown, plus the supplemented stats and status --detailed
// operations (the shell's clear command never reaches the supervisor). Everything here serializes on one coarse lock rather than
// per-instance locks, since the instance map itself can grow or shrink
// under reload.
package supervisor

import (
	"sort"
	"sync"
	"time"

	"github.com/core-tools/taskmaster/pkg/config"
	"github.com/core-tools/taskmaster/pkg/diff"
	"github.com/core-tools/taskmaster/pkg/logging"
	"github.com/core-tools/taskmaster/pkg/metrics"
	"github.com/core-tools/taskmaster/pkg/process"
	"github.com/core-tools/taskmaster/pkg/statusprint"
)

// MonitorInterval is the period of the health/restart sweep.
const MonitorInterval = 1 * time.Second

// Supervisor owns every Process instance and the goroutine that sweeps
// them for exits and restart decisions.
type Supervisor struct {
	configPath string
	logger     logging.Logger
	metrics    metrics.Collector

	mutex     sync.Mutex
	instances map[string]*process.Process
	programs  map[string]*config.ProgramConfig

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// New parses configPath and constructs a Process (in STOPPED) for every
// expanded instance. A parse failure here is fatal to the supervisor.
func New(configPath string, logger logging.Logger) (*Supervisor, error) {
	programs, err := config.Load(configPath, logger)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		configPath: configPath,
		logger:     logger,
		metrics:    metrics.New(),
		instances:  make(map[string]*process.Process),
		programs:   programs,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	for _, cfg := range programs {
		for _, instanceName := range diff.InstanceNames(cfg) {
			s.instances[instanceName] = process.New(instanceName, cfg, logger)
		}
	}

	total := 0
	for range s.instances {
		total++
	}
	s.logger.Infof("supervisor initialized with %d program configurations (%d total processes)", len(programs), total)

	return s, nil
}

// Run starts every instance whose program is autostart=ALWAYS and launches
// the monitor goroutine. It does not block; the caller (the shell) owns
// the blocking read loop.
func (s *Supervisor) Run() {
	s.mutex.Lock()
	s.running = true
	for _, inst := range s.instances {
		if inst.Config().AutoStart == config.AutoAlways {
			if err := inst.Start(); err != nil {
				s.logger.Errorf("autostart failed for %s: %v", inst.Config().Name, err)
			}
		}
	}
	s.mutex.Unlock()

	go s.monitorLoop()

	s.logger.Infof("supervisor is running")
}

// Shutdown clears running, wakes the monitor, waits for it to exit, then
// stops every RUNNING instance. Idempotent under repeated calls.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh

		s.mutex.Lock()
		defer s.mutex.Unlock()
		for name, inst := range s.instances {
			if inst.State() == process.Running || inst.State() == process.Starting {
				s.logger.Infof("stopping %s for shutdown", name)
				if err := inst.Stop(); err != nil {
					s.logger.Errorf("failed to stop %s during shutdown: %v", name, err)
				}
			}
		}
		s.running = false
	})
}

// StartInstance looks up name and starts it, resetting restart_count
// since an explicit start always gets a clean slate.
func (s *Supervisor) StartInstance(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	inst, ok := s.instances[name]
	if !ok {
		return false
	}
	inst.ResetRestartCount()
	if err := inst.Start(); err != nil {
		s.logger.Errorf("start failed for %s: %v", name, err)
		return false
	}
	return true
}

// StopInstance looks up name and stops it.
func (s *Supervisor) StopInstance(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	inst, ok := s.instances[name]
	if !ok {
		return false
	}
	if err := inst.Stop(); err != nil {
		s.logger.Errorf("stop failed for %s: %v", name, err)
		return false
	}
	return true
}

// RestartInstance looks up name and restarts it with the retry counter
// reset, since this is an explicit, user-initiated restart.
func (s *Supervisor) RestartInstance(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	inst, ok := s.instances[name]
	if !ok {
		return false
	}
	if err := inst.Restart(true); err != nil {
		s.logger.Errorf("restart failed for %s: %v", name, err)
		return false
	}
	return true
}

// Status renders the plain status report, optionally filtered to one
// instance name.
func (s *Supervisor) Status(filter string) string {
	s.mutex.Lock()
	snapshots := s.snapshotsLocked()
	s.mutex.Unlock()

	return statusprint.Status(snapshots, filter, time.Now())
}

// DetailedStatus renders the per-instance multi-line report, including a
// metrics sample for RUNNING instances.
func (s *Supervisor) DetailedStatus(filter string) string {
	s.mutex.Lock()
	snapshots := s.snapshotsLocked()
	s.mutex.Unlock()

	return statusprint.Detailed(snapshots, filter, time.Now(), s.metrics)
}

// Stats renders the aggregate fleet summary.
func (s *Supervisor) Stats() string {
	s.mutex.Lock()
	snapshots := s.snapshotsLocked()
	s.mutex.Unlock()

	return statusprint.Stats(snapshots, time.Now())
}

func (s *Supervisor) snapshotsLocked() []process.Snapshot {
	snapshots := make([]process.Snapshot, 0, len(s.instances))
	for _, inst := range s.instances {
		snapshots = append(snapshots, inst.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].InstanceName < snapshots[j].InstanceName })
	return snapshots
}

// InstanceCount reports the number of managed instances.
func (s *Supervisor) InstanceCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.instances)
}

// ProgramCount reports the number of distinct program configurations.
func (s *Supervisor) ProgramCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.programs)
}

