// Package logger is a small dispatching facade over one or more logging
// backends. Calls before Init are dropped, which keeps package tests quiet.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Backend is implemented by anything that can receive leveled log records.
// The signatures match *log.Logger from charmbracelet/log.
type Backend interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

var (
	mu       sync.RWMutex
	backends []Backend
)

// Init replaces the active backends.
func Init(b ...Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends = b
}

func each(fn func(Backend)) {
	mu.RLock()
	defer mu.RUnlock()
	for _, b := range backends {
		fn(b)
	}
}

// Debug logs at DEBUG level.
func Debug(message string, keyvals ...any) {
	each(func(b Backend) { b.Debug(message, keyvals...) })
}

// Info logs at INFO level.
func Info(message string, keyvals ...any) {
	each(func(b Backend) { b.Info(message, keyvals...) })
}

// Warn logs at WARN level.
func Warn(message string, keyvals ...any) {
	each(func(b Backend) { b.Warn(message, keyvals...) })
}

// Error logs at ERROR level.
func Error(message string, keyvals ...any) {
	each(func(b Backend) { b.Error(message, keyvals...) })
}

// ConsoleParams configures the console backend.
type ConsoleParams struct {
	Level  string // debug, info, warn, error
	Writer io.Writer
	Prefix string
}

// NewConsole creates a charmbracelet/log backend. Writer defaults to stderr
// and an unparsable level falls back to info.
func NewConsole(p ConsoleParams) *log.Logger {
	w := p.Writer
	if w == nil {
		w = os.Stderr
	}
	level, err := log.ParseLevel(p.Level)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          p.Prefix,
	})
}
