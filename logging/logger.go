// Package logging configures the application's zap logger: console plus a
// rotating JSON file, secret redaction and typed stylization metrics.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures NewLogger.
type Options struct {
	// Level is debug, info, warn or error (default info)
	Level string
	// FilePath enables the rotating JSON log file when non-empty
	FilePath string
	// DevMode switches the console to colored text
	DevMode bool
	// Console defaults to stderr so command output on stdout stays clean
	Console zapcore.WriteSyncer
	File    FileWriterConfig
}

// Logger wraps zap.Logger. Every entry passes through the redacting core,
// including entries written through Zap().
//
//	logger, err := logging.NewLogger(logging.Options{Level: "info", FilePath: "paprika.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info("predictor ready", zap.String("device", "cuda:0"))
type Logger struct {
	base     *zap.Logger // callers outside this package
	zap      *zap.Logger // skips the wrapper frame
	sugar    *zap.SugaredLogger
	isDev    bool
	filePath string
}

// NewLogger builds a Logger from opts.
func NewLogger(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = zapcore.Lock(os.Stderr)
	}
	var file zapcore.WriteSyncer
	if opts.FilePath != "" {
		file = NewFileWriter(opts.FilePath, opts.File)
	}

	l := NewWithCore(NewTeeCore(level, console, file, opts.DevMode), opts.DevMode)
	l.filePath = opts.FilePath
	return l, nil
}

// NewWithCore wraps an existing core, for example a zaptest observer.
func NewWithCore(core zapcore.Core, isDev bool) *Logger {
	base := zap.New(NewRedactingCore(core), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return wrap(base, isDev, "")
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return wrap(zap.NewNop(), false, "")
}

func wrap(base *zap.Logger, isDev bool, filePath string) *Logger {
	skipped := base.WithOptions(zap.AddCallerSkip(1))
	return &Logger{
		base:     base,
		zap:      skipped,
		sugar:    skipped.Sugar(),
		isDev:    isDev,
		filePath: filePath,
	}
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored.
func (l *Logger) Sync() error {
	if l == nil || l.base == nil {
		return nil
	}
	if err := l.base.Sync(); err != nil && !isIgnorableSyncError(err) {
		return fmt.Errorf("sync logger: %w", err)
	}
	return nil
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Debugw logs with loosely typed key-value pairs.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Infow logs with loosely typed key-value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs with loosely typed key-value pairs.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Errorw logs with loosely typed key-value pairs.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return wrap(l.base.With(fields...), l.isDev, l.filePath)
}

// Named returns a child logger with name appended ("paprika.server").
func (l *Logger) Named(name string) *Logger {
	return wrap(l.base.Named(name), l.isDev, l.filePath)
}

// Zap returns the underlying logger for packages that take *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// IsDevelopment reports whether the console uses the dev encoder.
func (l *Logger) IsDevelopment() bool {
	return l.isDev
}

// LogFilePath returns the log file, or "" when logging to the console only.
func (l *Logger) LogFilePath() string {
	return l.filePath
}
