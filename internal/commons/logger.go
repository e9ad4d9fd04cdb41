// Package commons provides the logging contract shared by every subsystem
// of the call engine. It mirrors the teacher's pkg/commons.Logger surface:
// a small, interface-first wrapper around zap that every component depends
// on by interface, never by concrete type, so tests can inject a no-op or
// observed logger.
package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging contract used throughout the engine. Structured
// fields use the "w" suffix (key, value, key, value, ...) following zap's
// SugaredLogger convention.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})

	// Benchmark records a named duration at debug level. Call-path timing
	// that doesn't warrant a dedicated metric goes through this.
	Benchmark(name string, d interface{})

	// Sync flushes any buffered log entries. Safe to call on process exit.
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Config controls how the application logger is constructed.
type Config struct {
	// Development selects human-readable console output instead of JSON
	// and a rolling file sink.
	Development bool

	// FilePath is the log file path used in production mode. Defaults to
	// "voicecore.log" in the working directory when empty.
	FilePath string

	// MaxSizeMB, MaxBackups, MaxAgeDays configure lumberjack rotation.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewApplicationLogger builds the process-wide Logger. In development mode
// it logs human-readable lines to stderr; otherwise it writes JSON lines to
// a lumberjack-rotated file, mirroring the teacher's zap+lumberjack stack.
func NewApplicationLogger(cfg Config) (Logger, error) {
	var core zapcore.Core

	if cfg.Development {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(os.Stderr),
			zapcore.DebugLevel,
		)
	} else {
		path := cfg.FilePath
		if path == "" {
			path = "voicecore.log"
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		maxAge := cfg.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 28
		}
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		}
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			zapcore.InfoLevel,
		)
	}

	logger := zap.New(core, zap.AddCaller())
	return &zapLogger{s: logger.Sugar()}, nil
}

// NewNopLogger returns a Logger that discards everything. Used by tests
// that don't care about log output.
func NewNopLogger() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) Benchmark(name string, d interface{}) {
	l.s.Debugw("benchmark", "name", name, "duration", d)
}

func (l *zapLogger) Sync() error { return l.s.Sync() }
