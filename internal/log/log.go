package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Logger is the subset of zap's SugaredLogger that components accept when a
// logger is injected instead of using the package-level functions.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

var (
	mu         sync.RWMutex
	base       *zap.Logger
	atomicLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerOnce sync.Once
)

// initLogger builds the global logger once, in development mode by default.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if base == nil {
			base = build(false)
		}
	})
}

func build(production bool) *zap.Logger {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = atomicLvl
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init rebuilds the global logger for the given environment ("production"
// selects the JSON encoder) and level name.
func Init(env, level string) {
	loggerOnce.Do(func() {})
	SetLevel(ParseLevel(level))
	l := build(strings.EqualFold(env, "production"))

	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
}

// Replace swaps the global logger; tests use it with zaptest/observer cores.
func Replace(l *zap.Logger) {
	loggerOnce.Do(func() {})
	mu.Lock()
	base = l
	mu.Unlock()
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		atomicLvl.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomicLvl.SetLevel(zapcore.ErrorLevel)
	default:
		atomicLvl.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	sugar().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	sugar().Infow(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	sugar().Errorw(msg, extended...)
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// Default returns the global logger as an injectable Logger.
func Default() Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1)).Sugar()
}

// Named returns a child of the global logger scoped to a component.
func Named(name string) Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1)).Named(name).Sugar()
}

// Nop discards everything.
func Nop() Logger {
	return zap.NewNop().Sugar()
}

func sugar() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return base.Sugar()
}
