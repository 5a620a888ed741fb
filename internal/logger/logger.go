// Package logger wraps zap with the printf-style helpers used across the
// service and an optional rotating file sink.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a logging severity.
type Level = zapcore.Level

const (
	TraceLevel = zapcore.DebugLevel
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
	PanicLevel = zapcore.PanicLevel
)

// Config controls where and how log entries are written.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

var (
	atom = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	mu    sync.RWMutex
	base  *zap.Logger
	sugar *zap.SugaredLogger
	file  *zapcore.BufferedWriteSyncer
)

func init() {
	setLogger(zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), atom), zap.AddCaller()))
}

// ParseLevel converts a level name into a Level. "trace" maps to debug.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "panic":
		return PanicLevel, nil
	}
	return InfoLevel, fmt.Errorf("invalid log level %q (want trace, debug, info, warn, error, fatal, panic)", s)
}

// SetLevel changes the minimum level of the active logger.
func SetLevel(l Level) {
	atom.SetLevel(l)
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	return atom.Level()
}

// Init rebuilds the global logger from cfg. Console output is always kept;
// cfg.File adds a rotating JSON file sink.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	atom.SetLevel(level)

	enc := consoleEncoder()
	if cfg.Format == "json" {
		enc = jsonEncoder()
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)}

	var buffered *zapcore.BufferedWriteSyncer
	if cfg.File != "" {
		buffered = &zapcore.BufferedWriteSyncer{
			WS: zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}),
			Size:          256 * 1024,
			FlushInterval: 5 * time.Second,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder(), buffered, atom))
	}

	mu.Lock()
	prev := file
	file = buffered
	mu.Unlock()
	if prev != nil {
		_ = prev.Stop()
	}

	setLogger(zap.New(zapcore.NewTee(cores...), zap.AddCaller()))
	return nil
}

// Replace swaps the global logger, returning a func that restores the old one.
// Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.RLock()
	prev := base
	mu.RUnlock()
	setLogger(l)
	return func() { setLogger(prev) }
}

// L returns the structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func Trace(format string, args ...any) { s().Debugf(format, args...) }
func Debug(format string, args ...any) { s().Debugf(format, args...) }
func Info(format string, args ...any)  { s().Infof(format, args...) }
func Warn(format string, args ...any)  { s().Warnf(format, args...) }
func Error(format string, args ...any) { s().Errorf(format, args...) }

func setLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func s() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}
