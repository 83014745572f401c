// Package logging provides structured logging for the vdx engine.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug is the most verbose level.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Format represents the log output format.
type Format int

const (
	// FormatText outputs logs in human-readable console format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// ParseFormat parses a string into a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// RequestIDKey is the field name carrying request ids.
const RequestIDKey = "request_id"

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})
	// Info logs an info message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
	// WithRequestID returns a new logger with the given request ID.
	WithRequestID(requestID string) Logger
	// WithFields returns a new logger with the given fields.
	WithFields(keysAndValues ...interface{}) Logger
}

// Config holds the logger configuration.
type Config struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output" default:"stdout"`
}

// logger adapts a zap SugaredLogger to Logger.
type logger struct {
	sugar *zap.SugaredLogger
}

// New creates a new Logger with the given configuration. A file output
// that cannot be opened falls back to stdout.
func New(cfg Config) Logger {
	return NewWithCore(zapcore.NewCore(encoder(ParseFormat(cfg.Format)), output(cfg.Output), ParseLevel(cfg.Level).zap()))
}

// NewDefault creates a new Logger with default settings: info level,
// text format, stdout.
func NewDefault() Logger {
	return New(Config{})
}

// NewNop creates a no-op logger that discards all output.
func NewNop() Logger {
	return &logger{sugar: zap.NewNop().Sugar()}
}

// NewWithCore creates a Logger writing to core.
func NewWithCore(core zapcore.Core) Logger {
	return &logger{sugar: zap.New(core).Sugar()}
}

// Zap returns the underlying zap logger of l, or a no-op logger when l
// is not backed by zap.
func Zap(l Logger) *zap.Logger {
	if zl, ok := l.(*logger); ok {
		return zl.sugar.Desugar()
	}
	return zap.NewNop()
}

func encoder(format Format) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func output(path string) zapcore.WriteSyncer {
	switch path {
	case "", "stdout":
		return zapcore.Lock(os.Stdout)
	case "stderr":
		return zapcore.Lock(os.Stderr)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zapcore.Lock(os.Stdout)
	}
	return zapcore.AddSync(f)
}

// Debug logs a debug message.
func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message.
func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message.
func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message.
func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// WithRequestID returns a new logger with the given request ID.
func (l *logger) WithRequestID(requestID string) Logger {
	return &logger{sugar: l.sugar.With(RequestIDKey, requestID)}
}

// WithFields returns a new logger with the given fields.
func (l *logger) WithFields(keysAndValues ...interface{}) Logger {
	return &logger{sugar: l.sugar.With(keysAndValues...)}
}
