package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
	StatusStarting Status = "starting"
)

// Config holds configuration for a long-running subprocess such as the
// camera encoder.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// Stdout receives the raw stdout stream. Nil discards it.
	Stdout io.Writer

	// RestartOnFailure restarts the process after RestartDelay when it exits
	// without Stop being called.
	RestartOnFailure bool
	RestartDelay     time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the process manager.
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

// Manager supervises one subprocess, restarting it on failure.
type Manager struct {
	config Config
	logger Logger

	mu            sync.Mutex
	cmd           *exec.Cmd
	status        Status
	restarts      int
	lastErr       error
	stopRequested bool
	done          chan struct{}
}

// NewManager creates a manager. Zero delays get defaults of 5s restart and
// 5s graceful shutdown.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 5 * time.Second
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the process and a goroutine that supervises it until ctx
// is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	_, exited, err := m.spawn(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastErr = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx, exited)
	return nil
}

// spawn starts one instance and returns a channel that yields its exit error.
func (m *Manager) spawn(ctx context.Context) (*exec.Cmd, <-chan error, error) {
	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // argv comes from config.yaml
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = m.config.Stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() {
		m.logStderr(stderr)
		exited <- cmd.Wait()
	}()

	return cmd, exited, nil
}

// logStderr forwards stderr lines at debug level until the pipe closes.
func (m *Manager) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Debug("process output", "name", m.config.Name, "line", scanner.Text())
	}
}

func (m *Manager) supervise(ctx context.Context, exited <-chan error) {
	defer close(m.done)

	for {
		err := <-exited

		m.mu.Lock()
		stopping := m.stopRequested
		if stopping || ctx.Err() != nil {
			m.status = StatusStopped
			m.mu.Unlock()
			m.logger.Info("process stopped", "name", m.config.Name)
			return
		}
		m.status = StatusFailed
		m.lastErr = err
		m.restarts++
		attempt := m.restarts
		m.mu.Unlock()

		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)

		if !m.config.RestartOnFailure {
			return
		}
		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		select {
		case <-ctx.Done():
			m.setStatus(StatusStopped)
			return
		case <-time.After(m.config.RestartDelay):
		}

		m.mu.Lock()
		stopping = m.stopRequested
		m.mu.Unlock()
		if stopping {
			m.setStatus(StatusStopped)
			return
		}

		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt)
		var spawnErr error
		_, exited, spawnErr = m.spawn(ctx)
		if spawnErr != nil {
			m.logger.Error("failed to restart process", "name", m.config.Name, "error", spawnErr)
			failed := make(chan error, 1)
			failed <- spawnErr
			exited = failed
		}
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Stop sends SIGTERM to the process group, waits for GracefulTimeout, then
// SIGKILLs. It blocks until supervision has ended.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RestartCount returns how many times the process exited unexpectedly.
func (m *Manager) RestartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}

// LastError returns the error from the most recent unexpected exit.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
