package adapter

import (
	"fmt"
	"log/slog"

	"github.com/brookline/iauth/pkg/iauth/core"
)

// LogRegistration implements core.Registration by logging the admit/reject
// decision. A real chat server would resume or tear down the underlying
// client connection here instead.
type LogRegistration struct {
	Logger *slog.Logger
}

func (l *LogRegistration) Admit(cl core.Client) {
	l.Logger.Info("iauth: client admitted", "nick", cl.Name())
}

func (l *LogRegistration) Reject(cl core.Client, reason string) {
	l.Logger.Warn("iauth: client rejected", "nick", cl.Name(), "reason", reason)
}

// LogOperatorNotify implements core.OperatorNotify by logging the
// formatted violation instead of broadcasting it to connected operators.
type LogOperatorNotify struct {
	Logger *slog.Logger
}

func (l *LogOperatorNotify) Violation(format string, args ...any) {
	l.Logger.Warn(fmt.Sprintf(format, args...))
}
