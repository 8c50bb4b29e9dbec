// Package observability owns the process-wide zap logger that every formrelay component
// derives its named logger from.
package observability

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/formrelay/internal/config"
)

var (
	current  atomic.Pointer[zap.Logger]
	initOnce sync.Once
)

const ansiReset = "\x1b[0m"

// palette maps the color names accepted in logger.colors to ANSI escape codes.
var palette = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// Initialize builds the global logger writing to console, plus the rotated JSON file when
// logger.log_file is set. Only the first call has an effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	initOnce.Do(func() {
		level := parseLevel(cfg.Level)

		cores := []zapcore.Core{zapcore.NewCore(newEncoder(cfg.Format, cfg.Colors), console, level)}
		if cfg.LogFile != "" {
			cores = append(cores, fileCore(cfg, level))
		}

		opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			opts = append(opts, zap.AddCaller())
		}
		logger := zap.New(zapcore.NewTee(cores...), opts...)
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}

		current.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// InitializeLogger logs to stderr so stdout carries only command output.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stderr))
}

// ResetForTest clears the global logger so the next Initialize takes effect. Tests only.
func ResetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
}

// parseLevel falls back to info for an unknown level name.
func parseLevel(name string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

// fileCore always writes JSON, whatever the console format.
func fileCore(cfg config.LoggerConfig, level zapcore.LevelEnabler) zapcore.Core {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	return zapcore.NewCore(newEncoder("json", config.ColorConfig{}), w, level)
}

func newEncoder(format string, colors config.ColorConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	if format != "console" {
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = levelEncoder(colors)
	// "formrelay.service." reads better than the default tab-separated name.
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// levelEncoder prints upper-case levels, wrapped in the configured color if there is one.
func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	codes := map[zapcore.Level]string{
		zapcore.DebugLevel:  palette[colors.Debug],
		zapcore.InfoLevel:   palette[colors.Info],
		zapcore.WarnLevel:   palette[colors.Warn],
		zapcore.ErrorLevel:  palette[colors.Error],
		zapcore.DPanicLevel: palette[colors.DPanic],
		zapcore.PanicLevel:  palette[colors.Panic],
		zapcore.FatalLevel:  palette[colors.Fatal],
	}
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		text := strings.ToUpper(level.String())
		if code := codes[level]; code != "" {
			text = code + text + ansiReset
		}
		enc.AppendString(text)
	}
}

// GetLogger returns the global logger. Before Initialize it hands out a development logger
// named "fallback" so early callers still get output.
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. main calls it on the way out.
func Sync() {
	l := current.Load()
	if l == nil {
		return
	}
	if err := l.Sync(); err != nil && !ignorableSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// ignorableSyncError reports errors from fsync on a terminal or pipe, which cannot be synced.
func ignorableSyncError(err error) bool {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.ENOTSUP) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stdout") || strings.Contains(msg, "sync /dev/stderr")
}
