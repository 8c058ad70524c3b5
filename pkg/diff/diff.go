// Package diff implements the pure reconciliation function that maps a
// freshly parsed configuration onto the currently installed instance set
//  It has no side effects and no dependency on the
// supervisor's locking or process lifecycle — it is handed two plain maps
// and returns a list of actions for the caller to apply.
package diff

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/core-tools/taskmaster/pkg/config"
)

// ActionKind is one of the four reconciliation outcomes for an instance.
type ActionKind string

const (
	// ActionAdd: the instance doesn't exist yet and must be constructed.
	ActionAdd ActionKind = "add"
	// ActionRemove: the instance's program no longer exists in the new
	// configuration and must be torn down.
	ActionRemove ActionKind = "remove"
	// ActionReplace: the instance exists but its effective configuration
	// changed; it must be stopped and rebuilt.
	ActionReplace ActionKind = "replace"
	// ActionKeep: the instance exists and its effective configuration is
	// unchanged; it must be left untouched.
	ActionKeep ActionKind = "keep"
)

// Action is one reconciliation step for a single instance name.
type Action struct {
	Kind         ActionKind
	InstanceName string
	ProgramName  string
	NewConfig    *config.ProgramConfig // nil for ActionRemove
}

var trailingIndexSuffix = regexp.MustCompile(`_\d+$`)

// BaseName strips a trailing `_<digits>` suffix, letting the removal pass
// match indexed instances against the (un-indexed) new program set.
func BaseName(instanceName string) string {
	return trailingIndexSuffix.ReplaceAllString(instanceName, "")
}

// InstanceNames expands a program into its numprocs instance names:
// `name` alone when numprocs == 1, else `name_0 .. name_{numprocs-1}`.
func InstanceNames(cfg *config.ProgramConfig) []string {
	if cfg.NumProcs <= 1 {
		return []string{cfg.Name}
	}
	names := make([]string, cfg.NumProcs)
	for i := 0; i < cfg.NumProcs; i++ {
		names[i] = fmt.Sprintf("%s_%d", cfg.Name, i)
	}
	return names
}

// Existing is the minimal view of an installed instance the diff needs:
// its program's current configuration, to run the effective-change test.
type Existing struct {
	Config *config.ProgramConfig
}

// Reconcile computes the ordered action list: every removal first, then
// additions/updates/keeps in sorted program-name order. Any application
// order is correct; sorting just keeps the output deterministic for
// tests and logs.
func Reconcile(old map[string]Existing, newPrograms map[string]*config.ProgramConfig) []Action {
	var actions []Action

	newBaseNames := make(map[string]struct{}, len(newPrograms))
	for name := range newPrograms {
		newBaseNames[name] = struct{}{}
	}

	oldNames := make([]string, 0, len(old))
	for name := range old {
		oldNames = append(oldNames, name)
	}
	sort.Strings(oldNames)

	for _, instanceName := range oldNames {
		base := BaseName(instanceName)
		if _, stillPresent := newBaseNames[base]; !stillPresent {
			actions = append(actions, Action{
				Kind:         ActionRemove,
				InstanceName: instanceName,
				ProgramName:  base,
			})
		}
	}

	programNames := make([]string, 0, len(newPrograms))
	for name := range newPrograms {
		programNames = append(programNames, name)
	}
	sort.Strings(programNames)

	for _, programName := range programNames {
		newCfg := newPrograms[programName]
		for _, instanceName := range InstanceNames(newCfg) {
			existing, present := old[instanceName]
			switch {
			case !present:
				actions = append(actions, Action{
					Kind:         ActionAdd,
					InstanceName: instanceName,
					ProgramName:  programName,
					NewConfig:    newCfg,
				})
			case existing.Config.Same(newCfg):
				actions = append(actions, Action{
					Kind:         ActionKeep,
					InstanceName: instanceName,
					ProgramName:  programName,
					NewConfig:    newCfg,
				})
			default:
				actions = append(actions, Action{
					Kind:         ActionReplace,
					InstanceName: instanceName,
					ProgramName:  programName,
					NewConfig:    newCfg,
				})
			}
		}
	}

	return actions
}

func (a Action) String() string {
	return strings.ToUpper(string(a.Kind)) + " " + a.InstanceName
}
