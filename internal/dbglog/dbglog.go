// Package dbglog is the engine's leveled logger. It follows the teacher's
// plain-log-package convention (internal/debug) rather than pulling in a
// structured logging framework the corpus never imports.
package dbglog

import (
	"log"
	"os"
	"sync"
)

var (
	verbose   = os.Getenv("SHARDCORE_DEBUG") != ""
	mu        sync.Mutex
	std       = log.New(os.Stderr, "", log.LstdFlags)
)

// SetVerbose toggles Debugf output at runtime (e.g. from a CLI flag).
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// Debugf logs only when verbose mode is enabled.
func Debugf(format string, args ...any) {
	mu.Lock()
	v := verbose
	mu.Unlock()
	if v {
		std.Printf("debug: "+format, args...)
	}
}

// Warnf always logs, prefixed so operators can grep it out of debug noise.
func Warnf(format string, args ...any) {
	std.Printf("warn: "+format, args...)
}

// Infof always logs at informational level.
func Infof(format string, args ...any) {
	std.Printf("info: "+format, args...)
}
