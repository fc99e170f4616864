package device

import (
	"context"
	"time"
)

// CurtainActuator moves a curtain. percent is the scene position (0..100);
// each backend maps it onto its own device scale.
type CurtainActuator interface {
	SetPercent(ctx context.Context, percent int) error
}

// CurtainStateSink receives confirmed curtain outcomes.
// *state.Store satisfies it.
type CurtainStateSink interface {
	SetCurtainPosition(percent int)
	SetCurtainError(tag string)
}

// Logger defines the logging interface for device clients.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopSink struct{}

func (noopSink) SetCurtainPosition(int) {}
func (noopSink) SetCurtainError(string) {}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validPercent(p int) bool { return p >= 0 && p <= 100 }
