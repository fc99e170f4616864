package audit

import (
	"context"
	"time"
)

const writeTimeout = 5 * time.Second

// Logger defines the logging interface for the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder is the write side used by the rest of the service. A failed
// write is logged and never propagated to the caller.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder wraps repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record appends one entry. An empty ip is stored as "--".
func (r *Recorder) Record(ctx context.Context, source, actionType, details, ip string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	e := &Entry{
		Source:     source,
		ActionType: actionType,
		Details:    details,
		IPAddress:  ip,
	}
	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Warn("audit write failed",
			"source", source,
			"action_type", actionType,
			"error", err,
		)
	}
}
