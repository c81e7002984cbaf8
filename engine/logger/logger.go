package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled logging surface shared by the renderer, the worker provider and the engine.
// Implementations must be safe for concurrent use since render passes log from worker goroutines.
type Logger interface {
	// DebugEnabled reports whether Debugf output is emitted.
	DebugEnabled() bool

	// SetDebug toggles Debugf output.
	SetDebug(enabled bool)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger is a Logger over a zap.SugaredLogger. Debug and info lines go to the out writer,
// warnings and errors to the err writer, both through zap's console encoder.
type DefaultLogger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

var _ Logger = &DefaultLogger{}

// NewDefaultLogger creates a DefaultLogger that writes to stdout and stderr.
//
// Parameters:
//   - prefix: the logger name printed after the level, omitted when empty
//   - debug: whether Debugf output is enabled initially
//
// Returns:
//   - *DefaultLogger: the new logger
func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewWriterLogger(prefix, debug, os.Stdout, os.Stderr)
}

// NewWriterLogger creates a DefaultLogger over arbitrary writers.
//
// Parameters:
//   - prefix: the logger name printed after the level, omitted when empty
//   - debug: whether Debugf output is enabled initially
//   - out: destination for debug and info lines
//   - errOut: destination for warning and error lines
//
// Returns:
//   - *DefaultLogger: the new logger
func NewWriterLogger(prefix string, debug bool, out, errOut io.Writer) *DefaultLogger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	encoder := zapcore.NewConsoleEncoder(cfg)

	outSink := zapcore.Lock(zapcore.AddSync(out))
	errSink := outSink
	if errOut != out {
		errSink = zapcore.Lock(zapcore.AddSync(errOut))
	}
	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.WarnLevel && level.Enabled(l)
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && level.Enabled(l)
	})

	z := zap.New(zapcore.NewTee(
		zapcore.NewCore(encoder, outSink, low),
		zapcore.NewCore(encoder.Clone(), errSink, high),
	))
	if prefix != "" {
		z = z.Named(prefix)
	}
	return &DefaultLogger{level: level, sugar: z.Sugar()}
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	if enabled {
		l.level.SetLevel(zapcore.DebugLevel)
		return
	}
	l.level.SetLevel(zapcore.InfoLevel)
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes any buffered log entries.
func (l *DefaultLogger) Sync() error {
	return l.sugar.Sync()
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool                { return false }
func (nopLogger) SetDebug(enabled bool)             {}
func (nopLogger) Debugf(format string, args ...any) {}
func (nopLogger) Infof(format string, args ...any)  {}
func (nopLogger) Warnf(format string, args ...any)  {}
func (nopLogger) Errorf(format string, args ...any) {}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
