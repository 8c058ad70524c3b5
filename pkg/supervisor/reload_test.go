package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/taskmaster/pkg/process"
)

// TestReloadIdempotentOnUnchangedConfig covers S6 / invariant 3: reloading
// with a byte-identical configuration leaves a RUNNING instance's PID and
// start_time untouched.
func TestReloadIdempotentOnUnchangedConfig(t *testing.T) {
	contents := `
[program:web]
command=/bin/sleep 30
autostart=true
`
	path := writeConfig(t, contents)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		return sup.instances["web"].State() == process.Running
	})

	sup.mutex.Lock()
	pidBefore := sup.instances["web"].PID()
	startBefore := sup.instances["web"].Snapshot().StartTime
	sup.mutex.Unlock()

	require.NoError(t, sup.Reload())

	sup.mutex.Lock()
	pidAfter := sup.instances["web"].PID()
	startAfter := sup.instances["web"].Snapshot().StartTime
	sup.mutex.Unlock()

	assert.Equal(t, pidBefore, pidAfter)
	assert.Equal(t, startBefore, startAfter)
}

// TestReloadAddsNewProgramAndAutostarts covers the addition pass.
func TestReloadAddsNewProgramAndAutostarts(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 30
autostart=true
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	require.NoError(t, os.WriteFile(path, []byte(`
[program:web]
command=/bin/sleep 30
autostart=true

[program:worker]
command=/bin/sleep 30
autostart=true
`), 0644))

	require.NoError(t, sup.Reload())

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		inst, ok := sup.instances["worker"]
		return ok && inst.State() == process.Running
	})
}

// TestReloadRemovesDroppedProgramGracefully covers the removal pass and
// the Open Question resolution: removal of a RUNNING instance stops it
// gracefully, respecting stop_secs, rather than killing it outright.
func TestReloadRemovesDroppedProgramGracefully(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 30
autostart=true

[program:worker]
command=/bin/sleep 30
autostart=true
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		inst, ok := sup.instances["worker"]
		return ok && inst.State() == process.Running
	})

	require.NoError(t, os.WriteFile(path, []byte(`
[program:web]
command=/bin/sleep 30
autostart=true
`), 0644))

	require.NoError(t, sup.Reload())

	sup.mutex.Lock()
	_, stillPresent := sup.instances["worker"]
	sup.mutex.Unlock()
	assert.False(t, stillPresent)
}

// TestReloadReplacesChangedProgram covers the replace pass: a changed
// command forces a stop-and-rebuild, resetting the PID.
func TestReloadReplacesChangedProgram(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 30
autostart=true
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		return sup.instances["web"].State() == process.Running
	})

	sup.mutex.Lock()
	pidBefore := sup.instances["web"].PID()
	sup.mutex.Unlock()

	require.NoError(t, os.WriteFile(path, []byte(`
[program:web]
command=/bin/sleep 31
autostart=true
`), 0644))

	require.NoError(t, sup.Reload())

	waitFor(t, time.Second, func() bool {
		sup.mutex.Lock()
		defer sup.mutex.Unlock()
		return sup.instances["web"].State() == process.Running
	})

	sup.mutex.Lock()
	pidAfter := sup.instances["web"].PID()
	sup.mutex.Unlock()
	assert.NotEqual(t, pidBefore, pidAfter)
}

// TestReloadOnParseFailureKeepsOldConfiguration covers the ConfigError
// recovery policy for reload.
func TestReloadOnParseFailureKeepsOldConfiguration(t *testing.T) {
	path := writeConfig(t, `
[program:web]
command=/bin/sleep 30
autostart=true
`)
	sup, err := New(path, noopLogger())
	require.NoError(t, err)
	sup.Run()
	defer sup.Shutdown()

	require.NoError(t, os.Remove(path))

	err = sup.Reload()
	assert.Error(t, err)

	sup.mutex.Lock()
	_, stillPresent := sup.instances["web"]
	sup.mutex.Unlock()
	assert.True(t, stillPresent)
}
