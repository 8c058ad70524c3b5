package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/taskmaster/pkg/config"
	"github.com/core-tools/taskmaster/pkg/logging"
)

func noopLogger() logging.Logger {
	noop := func(string, ...interface{}) {}
	return logging.NewLogger("", logging.LogFuncs{Debugf: noop, Infof: noop, Warnf: noop, Errorf: noop})
}

func baseConfig(name, command string) *config.ProgramConfig {
	cfg := config.Default(name)
	cfg.Command = command
	return cfg
}

func TestProcessStartRunningAndStop(t *testing.T) {
	cfg := baseConfig("sleeper", "/bin/sleep 5")
	cfg.StopSecs = 2

	p := New("sleeper", cfg, noopLogger())
	require.NoError(t, p.Start())
	assert.Equal(t, Running, p.State())
	assert.NotZero(t, p.PID())

	require.NoError(t, p.Stop())
	assert.Equal(t, Stopped, p.State())
	assert.Equal(t, 0, p.PID())
}

func TestProcessForcefulKillFallback(t *testing.T) {
	// The shell ignores TERM, and so does the sleep it runs (an ignored
	// signal stays ignored across exec): Stop must escalate to SIGKILL
	// once stop_secs elapses.
	cfg := baseConfig("stubborn", `/bin/sh -c "trap '' TERM; sleep 30"`)
	cfg.StopSecs = 1

	p := New("stubborn", cfg, noopLogger())
	require.NoError(t, p.Start())

	start := time.Now()
	require.NoError(t, p.Stop())
	elapsed := time.Since(start)

	assert.Equal(t, Stopped, p.State())
	assert.True(t, elapsed >= time.Duration(cfg.StopSecs)*time.Second)
}

func TestProcessExpectedExitClassification(t *testing.T) {
	cfg := baseConfig("truthy", "/bin/true")
	cfg.ExpectedExitCodes = map[int]struct{}{0: {}}

	p := New("truthy", cfg, noopLogger())
	require.NoError(t, p.Start())

	deadline := time.Now().Add(3 * time.Second)
	for p.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, Exited, p.State())
	assert.Equal(t, 0, p.lastExitStatus)
	assert.True(t, p.IsExpectedExit(p.lastExitStatus))
}

func TestProcessUnexpectedExitClassification(t *testing.T) {
	cfg := baseConfig("falsy", "/bin/false")
	cfg.ExpectedExitCodes = map[int]struct{}{0: {}}

	p := New("falsy", cfg, noopLogger())
	require.NoError(t, p.Start())

	deadline := time.Now().Add(3 * time.Second)
	for p.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, Exited, p.State())
	assert.False(t, p.IsExpectedExit(p.lastExitStatus))
}

func TestProcessRestartResetsCounterWhenExplicit(t *testing.T) {
	cfg := baseConfig("flappy", "/bin/true")

	p := New("flappy", cfg, noopLogger())
	require.NoError(t, p.Start())
	p.restartCount = 5

	require.NoError(t, p.Restart(true))
	assert.Equal(t, 0, p.RestartCount())
}

func TestProcessRestartIncrementsWhenAutomatic(t *testing.T) {
	cfg := baseConfig("flappy", "/bin/true")

	p := New("flappy", cfg, noopLogger())
	require.NoError(t, p.Start())
	p.restartCount = 1

	require.NoError(t, p.Restart(false))
	assert.Equal(t, 2, p.RestartCount())
}

func TestProcessStopIsNoopWhenNotRunning(t *testing.T) {
	cfg := baseConfig("idle", "/bin/true")
	p := New("idle", cfg, noopLogger())
	assert.Equal(t, Stopped, p.State())
	require.NoError(t, p.Stop())
	assert.Equal(t, Stopped, p.State())
}

func TestProcessStartIsNoopWhenAlreadyRunning(t *testing.T) {
	cfg := baseConfig("sleeper", "/bin/sleep 5")
	p := New("sleeper", cfg, noopLogger())
	require.NoError(t, p.Start())
	firstPID := p.PID()

	require.NoError(t, p.Start())
	assert.Equal(t, firstPID, p.PID())

	require.NoError(t, p.Stop())
}

func TestProcessFatalOnUnknownExecutable(t *testing.T) {
	cfg := baseConfig("ghost", "/no/such/executable-taskmaster-test")
	p := New("ghost", cfg, noopLogger())
	err := p.Start()
	assert.Error(t, err)
	assert.Equal(t, Fatal, p.State())
}
