package config

// Default returns a ProgramConfig for name populated with the documented
// defaults, before any key from the section overrides them.
func Default(name string) *ProgramConfig {
	return &ProgramConfig{
		Name:              name,
		NumProcs:          1,
		Priority:          999,
		AutoStart:         AutoAlways,
		AutoRestart:       AutoAlways,
		ExpectedExitCodes: map[int]struct{}{},
		StartRetries:      3,
		StartSecs:         1,
		StopSignal:        SignalTERM,
		StopSecs:          10,
		WorkingDir:        "/tmp",
		Environment:       make(map[string]string),
		Umask:             022,
	}
}
