package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/taskmaster/pkg/logging"
	"github.com/core-tools/taskmaster/pkg/process"
)

func noopLogger() logging.Logger {
	noop := func(string, ...interface{}) {}
	return logging.NewLogger("", logging.LogFuncs{Debugf: noop, Infof: noop, Warnf: noop, Errorf: noop})
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmaster.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestRunStartsAutostartAlwaysOnly covers S1: a happy autostart run.
func TestRunStartsAutostartAlwaysOnly(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 5
autostart=true

[program:worker]
command=/bin/sleep 5
autostart=false
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	sup.mutex.Lock()
	webState := sup.instances["web"].State()
	workerState := sup.instances["worker"].State()
	sup.mutex.Unlock()

	assert.Equal(t, process.Running, webState)
	assert.Equal(t, process.Stopped, workerState)
}

// TestStartInstanceResetsRestartCount covers the explicit-start reset rule.
func TestStartInstanceResetsRestartCount(t *testing.T) {
	path := writeConfig(t, `
[program:one]
command=/bin/sleep 5
autostart=false
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	sup.mutex.Lock()
	sup.instances["one"].Restart(false)
	sup.instances["one"].Restart(false)
	sup.mutex.Unlock()

	assert.True(t, sup.StartInstance("one"))

	sup.mutex.Lock()
	count := sup.instances["one"].RestartCount()
	sup.mutex.Unlock()
	assert.Equal(t, 0, count)
}

// TestStartStopRestartUnknownInstanceReturnsFalse covers lookup-failure
// behavior: unknown names return false, no state change.
func TestStartStopRestartUnknownInstanceReturnsFalse(t *testing.T) {
	path := writeConfig(t, `
[program:one]
command=/bin/sleep 5
autostart=false
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	assert.False(t, sup.StartInstance("ghost"))
	assert.False(t, sup.StopInstance("ghost"))
	assert.False(t, sup.RestartInstance("ghost"))
}

// TestGracefulStop covers S4: stop() within stop_secs.
func TestGracefulStop(t *testing.T) {
	path := writeConfig(t, `
[program:one]
command=/bin/sleep 30
autostart=true
stoptime=2
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		return sup.instances["one"].State() == process.Running
	})

	assert.True(t, sup.StopInstance("one"))

	sup.mutex.Lock()
	state := sup.instances["one"].State()
	sup.mutex.Unlock()
	assert.Equal(t, process.Stopped, state)
}

// TestShutdownIsIdempotent covers Shutdown's idempotence requirement.
func TestShutdownIsIdempotent(t *testing.T) {
	path := writeConfig(t, `
[program:one]
command=/bin/sleep 5
autostart=true
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()

	sup.Shutdown()
	sup.Shutdown()

	sup.mutex.Lock()
	state := sup.instances["one"].State()
	sup.mutex.Unlock()
	assert.Equal(t, process.Stopped, state)
}

func TestInstanceAndProgramCounts(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 5
numprocs=3
autostart=false

[program:worker]
command=/bin/sleep 5
autostart=false
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, sup.ProgramCount())
	assert.Equal(t, 4, sup.InstanceCount())
}
