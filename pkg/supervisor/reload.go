package supervisor

import (
	"github.com/core-tools/taskmaster/pkg/config"
	"github.com/core-tools/taskmaster/pkg/diff"
	"github.com/core-tools/taskmaster/pkg/process"
)

// Reload re-reads the configuration file and applies the reconciliation
// plan: removed instances are stopped and dropped, added instances are
// constructed and autostarted, replaced instances are stopped and
// rebuilt from the new configuration, and unchanged instances are left
// running untouched. A parse failure leaves the running configuration in
// place and reports the error to the caller rather than tearing
// anything down.
func (s *Supervisor) Reload() error {
	newPrograms, err := config.Load(s.configPath, s.logger)
	if err != nil {
		s.logger.Errorf("reload failed, keeping previous configuration: %v", err)
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	old := make(map[string]diff.Existing, len(s.instances))
	for name, inst := range s.instances {
		old[name] = diff.Existing{Config: inst.Config()}
	}

	actions := diff.Reconcile(old, newPrograms)

	for _, action := range actions {
		switch action.Kind {
		case diff.ActionRemove:
			s.applyRemove(action)
		case diff.ActionAdd:
			s.applyAdd(action)
		case diff.ActionReplace:
			s.applyReplace(action)
		case diff.ActionKeep:
			// Nothing to do; the running instance already reflects this
			// configuration.
		}
	}

	s.programs = newPrograms
	s.logger.Infof("reload applied %d action(s)", len(actions))
	return nil
}

func (s *Supervisor) applyRemove(action diff.Action) {
	inst, ok := s.instances[action.InstanceName]
	if !ok {
		return
	}
	if inst.State() == process.Running || inst.State() == process.Starting {
		s.logger.Infof("stopping %s for removal", action.InstanceName)
		if err := inst.Stop(); err != nil {
			s.logger.Errorf("failed to stop %s during reload: %v", action.InstanceName, err)
		}
	} else {
		inst.ForceStopped()
	}
	delete(s.instances, action.InstanceName)
	s.logger.Infof("removed %s", action.InstanceName)
}

func (s *Supervisor) applyAdd(action diff.Action) {
	inst := process.New(action.InstanceName, action.NewConfig, s.logger)
	s.instances[action.InstanceName] = inst
	s.logger.Infof("added %s", action.InstanceName)

	if action.NewConfig.AutoStart == config.AutoAlways {
		if err := inst.Start(); err != nil {
			s.logger.Errorf("autostart failed for %s: %v", action.InstanceName, err)
		}
	}
}

func (s *Supervisor) applyReplace(action diff.Action) {
	old, ok := s.instances[action.InstanceName]
	if ok && (old.State() == process.Running || old.State() == process.Starting) {
		s.logger.Infof("stopping %s to apply changed configuration", action.InstanceName)
		if err := old.Stop(); err != nil {
			s.logger.Errorf("failed to stop %s during reload: %v", action.InstanceName, err)
		}
	}

	inst := process.New(action.InstanceName, action.NewConfig, s.logger)
	s.instances[action.InstanceName] = inst
	s.logger.Infof("replaced %s with updated configuration", action.InstanceName)

	if action.NewConfig.AutoStart == config.AutoAlways {
		if err := inst.Start(); err != nil {
			s.logger.Errorf("autostart failed for %s: %v", action.InstanceName, err)
		}
	}
}
