package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/core-tools/taskmaster/pkg/errors"
	"github.com/core-tools/taskmaster/pkg/logging"
)

const programSectionPrefix = "program:"

// rawSection is everything the scanner collected for one `[section]` block,
// in declaration order (so warnings about unrecognized keys read sensibly).
type rawSection struct {
	name string
	keys []string
	vals map[string]string
}

// Load reads an INI-style configuration file and returns the
// set of ProgramConfig, keyed by program name. Unrecognized keys within a
// program section emit a warning through logger and are otherwise ignored.
func Load(path string, logger logging.Logger) (map[string]*ProgramConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewConfigError("failed to open configuration file", err).WithContext("path", path)
	}
	defer f.Close()

	sections, err := scanSections(f)
	if err != nil {
		return nil, errors.NewConfigError("failed to parse configuration file", err).WithContext("path", path)
	}

	configs := make(map[string]*ProgramConfig)
	for _, section := range sections {
		if !strings.HasPrefix(section.name, programSectionPrefix) {
			continue
		}
		name := section.name[len(programSectionPrefix):]
		if name == "" {
			logger.Warnf("Skipping program section with empty name: %q", section.name)
			continue
		}
		cfg, err := parseProgramSection(name, section, logger)
		if err != nil {
			logger.Warnf("Skipping program %q: %v", name, err)
			continue
		}
		if cfg == nil {
			continue
		}
		if _, exists := configs[name]; exists {
			logger.Warnf("Duplicate program section %q, overriding previous definition", name)
		}
		configs[name] = cfg
	}

	return configs, nil
}

// scanSections performs the line-oriented scan: `[section]` headers,
// `key = value` lines, `;`/`#` comments, blank lines skipped. This is a
// small hand-written scanner rather than a pulled-in INI library (see
// DESIGN.md).
func scanSections(r io.Reader) ([]*rawSection, error) {
	var sections []*rawSection
	var current *rawSection

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			end := strings.Index(line, "]")
			if end < 0 {
				return nil, fmt.Errorf("line %d: unterminated section header %q", lineNo, line)
			}
			name := strings.TrimSpace(line[1:end])
			current = &rawSection{name: name, vals: make(map[string]string)}
			sections = append(sections, current)
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("line %d: key/value outside of any section: %q", lineNo, line)
		}

		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := strings.TrimSpace(line[eq+1:])
		current.keys = append(current.keys, key)
		current.vals[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

func parseProgramSection(name string, section *rawSection, logger logging.Logger) (*ProgramConfig, error) {
	cfg := Default(name)

	for _, key := range section.keys {
		value := section.vals[key]
		var err error
		switch key {
		case "command":
			cfg.Command = value
		case "numprocs":
			cfg.NumProcs, err = strconv.Atoi(value)
		case "priority":
			cfg.Priority, err = strconv.Atoi(value)
		case "autostart":
			cfg.AutoStart, err = parseAutoMode(value)
		case "autorestart":
			cfg.AutoRestart, err = parseAutoMode(value)
		case "autorestart_exit_codes", "exitcodes":
			cfg.ExpectedExitCodes, err = parseExitCodes(value)
		case "startretries":
			cfg.StartRetries, err = strconv.Atoi(value)
		case "starttime":
			cfg.StartSecs, err = strconv.Atoi(value)
		case "stopsignal":
			cfg.StopSignal, err = parseStopSignal(value)
		case "stoptime":
			cfg.StopSecs, err = strconv.Atoi(value)
		case "stdout_logfile":
			cfg.StdoutLog = value
		case "stderr_logfile":
			cfg.StderrLog = value
		case "directory":
			cfg.WorkingDir = value
		case "environment":
			cfg.Environment, err = parseEnvironment(value)
		case "umask":
			var umask uint64
			umask, err = strconv.ParseUint(value, 8, 32)
			cfg.Umask = uint32(umask)
		default:
			logger.Warnf("Unrecognized key %q in program %q, ignoring", key, name)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
	}

	if cfg.Command == "" {
		logger.Warnf("Program %q has no command, skipping", name)
		return nil, nil
	}
	if cfg.NumProcs <= 0 {
		return nil, fmt.Errorf("numprocs must be positive, got %d", cfg.NumProcs)
	}

	return cfg, nil
}

func parseAutoMode(value string) (AutoMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true":
		return AutoAlways, nil
	case "false":
		return AutoNever, nil
	case "unexpected":
		return AutoUnexpected, nil
	default:
		return "", fmt.Errorf("expected true, false or unexpected, got %q", value)
	}
}

func parseStopSignal(value string) (StopSignal, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(SignalTERM):
		return SignalTERM, nil
	case string(SignalKILL):
		return SignalKILL, nil
	case string(SignalINT):
		return SignalINT, nil
	case string(SignalQUIT):
		return SignalQUIT, nil
	case string(SignalHUP):
		return SignalHUP, nil
	case string(SignalUSR1):
		return SignalUSR1, nil
	case string(SignalUSR2):
		return SignalUSR2, nil
	default:
		return "", fmt.Errorf("unknown stop signal %q", value)
	}
}

func parseExitCodes(value string) (map[int]struct{}, error) {
	codes := make(map[int]struct{})
	value = strings.TrimSpace(value)
	if value == "" {
		return codes, nil
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid exit code %q: %w", part, err)
		}
		codes[code] = struct{}{}
	}
	return codes, nil
}

func parseEnvironment(value string) (map[string]string, error) {
	env := make(map[string]string)
	value = strings.TrimSpace(value)
	if value == "" {
		return env, nil
	}
	for _, pair := range splitEnvironmentPairs(value) {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.Index(pair, "=")
		if eq < 0 {
			return nil, fmt.Errorf("invalid environment entry %q, expected K=V", pair)
		}
		k := strings.TrimSpace(pair[:eq])
		v := strings.TrimSpace(pair[eq+1:])
		v = unquote(v)
		env[k] = v
	}
	return env, nil
}

// splitEnvironmentPairs splits on commas that are not inside a
// double-quoted value, so `A="x,y",B=z` yields ["A=\"x,y\"", "B=z"].
func splitEnvironmentPairs(value string) []string {
	var parts []string
	var buf strings.Builder
	inQuotes := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case '"':
			inQuotes = !inQuotes
			buf.WriteByte(c)
		case ',':
			if inQuotes {
				buf.WriteByte(c)
			} else {
				parts = append(parts, buf.String())
				buf.Reset()
			}
		default:
			buf.WriteByte(c)
		}
	}
	parts = append(parts, buf.String())
	return parts
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
