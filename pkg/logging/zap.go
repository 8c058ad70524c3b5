package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapOptions configures the default EventSink-backed logger.
type ZapOptions struct {
	// LogFile is the path appended to for the structured event log
	// (typically taskmaster.log). Empty disables file output.
	LogFile string
	// Console, when true, also writes human-readable output to stdout.
	Console bool
	// Debug enables debug-level output on both sinks.
	Debug bool
}

// NewZapLogger builds the process-wide default EventSink: a Logger backed by
// a zap.SugaredLogger, writing JSON lines to LogFile and, optionally, a
// console-encoded copy to stdout. zap stays an implementation detail
// behind the simple four-method Logger interface.
func NewZapLogger(opts ZapOptions) (Logger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core
	var closers []func() error

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		fileEncoderCfg := zap.NewProductionEncoderConfig()
		fileEncoderCfg.TimeKey = "ts"
		fileEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), zapcore.AddSync(f), level))
		closers = append(closers, f.Close)
	}

	if opts.Console || len(cores) == 0 {
		consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), zapcore.AddSync(os.Stdout), level))
	}

	core := zapcore.NewTee(cores...)
	zapLogger := zap.New(core)
	sugar := zapLogger.Sugar()

	logger := NewLogger("", LogFuncs{
		Debugf: sugar.Debugf,
		Infof:  sugar.Infof,
		Warnf:  sugar.Warnf,
		Errorf: sugar.Errorf,
	})

	closeFn := func() error {
		_ = zapLogger.Sync()
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return logger, closeFn, nil
}

// WithPrefix returns a Logger that prefixes every message with
// "<prefix>: ", forwarding to base.
func WithPrefix(base Logger, prefix string) Logger {
	return NewLogger(prefix+": ", LogFuncs{
		Debugf: base.Debugf,
		Infof:  base.Infof,
		Warnf:  base.Warnf,
		Errorf: base.Errorf,
	})
}
