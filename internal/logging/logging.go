// Package logging wraps go.uber.org/zap the way the teacher's main.go
// wraps its own log.Init(log.Resource{...}) call: one process-wide logger,
// configured once in the CLI's Before hook from the global -v flag, fetched
// from anywhere via Get.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger = zap.NewNop()
)

// Init configures the process-wide logger. verbose selects debug-level
// output to stderr; otherwise only warnings and above are shown. It returns
// a sync function the caller should defer, mirroring the teacher's
// log.Init return value.
func Init(verbose bool) (sync func()) {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		// Logging must never be why the tool can't run.
		l = zap.NewNop()
	}

	mu.Lock()
	logger = l
	mu.Unlock()

	return func() { _ = l.Sync() }
}

// Get returns the process-wide logger.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// WarnErr logs err at warn level under msg if err is non-nil. It is the one
// place every tolerated-but-diagnostic error - chiefly registry.Store.Load's
// go-multierror of dropped malformed lines (spec.md §4.2/§7's "skip the
// offending line rather than aborting" policy) - is actually surfaced on
// stderr (warn level, shown with or without -v), instead of being silently
// discarded at the call site.
func WarnErr(msg string, err error) {
	if err == nil {
		return
	}
	Get().Warn(msg, zap.Error(err))
}
