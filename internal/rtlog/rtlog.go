// Package rtlog provides the runner's operational logger.
//
// tap captures supervised-child output exclusively in the in-memory ring
// buffer; it never writes a log file to disk. Operational diagnostics
// about the runner itself (bind failures, restart attempts, signal
// handling) go to stderr through log/slog, not to a file.
package rtlog

import (
	"log/slog"
	"os"
	"sync"
)

var (
	mu       sync.Mutex
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
)

func ensureInit() {
	if root != nil {
		return
	}
	if os.Getenv("TAP_DEBUG") != "" {
		levelVar.Set(slog.LevelDebug)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})
	root = slog.New(handler)
}

// Get returns the root logger, initializing it on first use.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	ensureInit()
	return root
}

// WithComponent returns a logger tagged with a component name, for
// subsystem-scoped logging (e.g. "ring", "supervisor", "control").
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// WithService returns a logger tagged with the supervised service name.
func WithService(name string) *slog.Logger {
	return Get().With("service", name)
}

// SetDebug enables or disables debug-level logging regardless of the
// TAP_DEBUG environment variable, primarily for use by tests and by CLI
// flags that want to override the environment.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	ensureInit()
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Reset clears cached logger state. Intended for tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	root = nil
	levelVar = new(slog.LevelVar)
}
