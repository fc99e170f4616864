// Package announce speaks short messages through an external
// text-to-speech command such as espeak-ng.
package announce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/process"
)

const sayTimeout = 30 * time.Second

// ErrNoCommand is returned when no TTS command is configured.
var ErrNoCommand = errors.New("announce: no command configured")

// Logger defines the logging interface for the announcer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Announcer runs the TTS command with the message as its last argument.
type Announcer struct {
	command []string
	runner  process.Runner
	logger  Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an announcer. command is argv without the message.
func New(command []string, runner process.Runner) *Announcer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Announcer{
		command: command,
		runner:  runner,
		logger:  noopLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetLogger sets the logger.
func (a *Announcer) SetLogger(logger Logger) {
	a.logger = logger
}

// Say speaks text and waits for the command to finish.
func (a *Announcer) Say(ctx context.Context, text string) error {
	if len(a.command) == 0 {
		return ErrNoCommand
	}
	args := append(append([]string{}, a.command[1:]...), text)

	a.logger.Info("announcement", "text", text)
	_, err := a.runner.Run(ctx, process.RunConfig{
		Name:    "announce",
		Binary:  a.command[0],
		Args:    args,
		Timeout: sayTimeout,
	})
	if err != nil {
		return fmt.Errorf("speaking: %w", err)
	}
	return nil
}

// SayAsync speaks text in the background. Errors are logged.
func (a *Announcer) SayAsync(text string) {
	a.mu.Lock()
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		if err := a.Say(ctx, text); err != nil {
			a.logger.Warn("announcement failed", "text", text, "error", err)
		}
	}()
}

// Close cancels running announcements and waits for them.
func (a *Announcer) Close() {
	a.mu.Lock()
	a.cancel()
	a.mu.Unlock()
	a.wg.Wait()
}

// Discard is an announcer that says nothing, used when announcements are
// disabled.
type Discard struct{}

// SayAsync does nothing.
func (Discard) SayAsync(string) {}
