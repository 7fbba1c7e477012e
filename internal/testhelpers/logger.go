// Package testhelpers holds fixtures shared by the tests of several packages.
package testhelpers

import (
	"github.com/chatscope/chatscope/internal/logging"
	"io"
	"log/slog"
)

// NewLogger creates a debug level logger writing to logSink, usually io.Discard.
func NewLogger(logSink io.Writer) *slog.Logger {
	return logging.New(logSink, "text", slog.LevelDebug)
}

// LookupEnv returns a function with the signature of [os.LookupEnv] that only sees env.
func LookupEnv(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
