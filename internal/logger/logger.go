// Package logger provides leveled logging for librarian.
//
// Only errors are printed by default. The --verbose flag lowers the level
// to debug so users can follow indexing and search; --log-level picks any
// level. Verbose lines carry the time elapsed since logging started,
// which makes slow books and embedding retries easy to spot.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel reads a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	if want == "WARNING" {
		want = "WARN"
	}
	for l, name := range levelNames {
		if name == want {
			return l, nil
		}
	}
	return LevelError, fmt.Errorf("unknown log level %q", s)
}

var (
	mu      sync.RWMutex
	level             = LevelError
	output  io.Writer = os.Stderr
	now               = time.Now
	started           = time.Now()
)

// SetVerbose switches between debug logging and errors only.
func SetVerbose(v bool) {
	if v {
		SetLevel(LevelDebug)
		return
	}
	SetLevel(LevelError)
}

// IsVerbose returns true if anything below errors is printed.
func IsVerbose() bool {
	return GetLevel() < LevelError
}

// SetLevel sets the lowest level printed.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// GetLevel returns the lowest level printed.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetOutput sets the output writer. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetClock replaces the time source and restarts the elapsed counter.
// Passing nil restores the wall clock.
func SetClock(fn func() time.Time) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	now = fn
	started = fn()
}

func logf(l Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if l < level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if level < LevelError {
		elapsed := now().Sub(started).Seconds()
		fmt.Fprintf(output, "%8.3fs [%s] %s\n", elapsed, l, msg)
		return
	}
	fmt.Fprintf(output, "[%s] %s\n", l, msg)
}

// Debug prints per-book and per-query detail.
func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }

// Info prints run-level progress.
func Info(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warn prints recoverable problems such as a skipped book.
func Warn(format string, args ...any) { logf(LevelWarn, format, args...) }

// Error prints failures. Always shown.
func Error(format string, args ...any) { logf(LevelError, format, args...) }

// Section prints a header when debug logging is on.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if level == LevelDebug {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}
