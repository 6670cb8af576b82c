package types

import (
	"time"
)

// Clock supplies the current time, so schedulers and the orchestrator can be
// tested against a fixed instant.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock. All times are UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger is the narrow structured-logging surface packages depend on instead
// of a concrete slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
