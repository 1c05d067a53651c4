package common

import (
	"io"
	"log/slog"
)

// NewDefaultLogger returns a *slog.Logger at info level writing to
// io.Discard. Callers that want console output build their own handler
// (cmd/iauth-probe wires github.com/lmittmann/tint for that); this is only
// a safe non-nil default for library consumers that don't pass one in.
func NewDefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
