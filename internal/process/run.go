package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultRunTimeout bounds one-shot commands that set no timeout.
const defaultRunTimeout = 10 * time.Second

// RunConfig describes a one-shot command.
type RunConfig struct {
	// Name is used in errors and logs.
	Name   string
	Binary string
	Args   []string

	// Stdin is written to the process and then closed. Empty means no input.
	Stdin string

	// Timeout kills the process when exceeded. Zero uses 10s.
	Timeout time.Duration
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs one-shot commands. Exec is the real implementation; tests
// substitute a fake.
type Runner interface {
	Run(ctx context.Context, cfg RunConfig) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cfg RunConfig) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cfg RunConfig) (Result, error) {
	return f(ctx, cfg)
}

// Exec is the Runner backed by os/exec.
var Exec Runner = RunnerFunc(Run)

// Run executes a command to completion and captures its output.
//
// A non-zero exit status is returned as an error wrapping ErrExitStatus,
// with the Result still populated. A timeout returns ErrTimeout.
//
// Parameters:
//   - ctx: Cancels the command when done
//   - cfg: Command, arguments, stdin and timeout
//
// Returns:
//   - Result: Captured output (valid even on ErrExitStatus)
//   - error: ErrTimeout, ErrExitStatus, or a start failure
func Run(ctx context.Context, cfg RunConfig) (Result, error) {
	if cfg.Binary == "" {
		return Result{}, fmt.Errorf("%w: empty binary for %s", ErrInvalidCommand, cfg.Name)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.Binary, cfg.Args...) //nolint:gosec // argv comes from config.yaml
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if cfg.Stdin != "" {
		cmd.Stdin = strings.NewReader(cfg.Stdin)
	}

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, cfg.Name, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%w: %s exited %d", ErrExitStatus, cfg.Name, res.ExitCode)
		}
		return res, fmt.Errorf("running %s: %w", cfg.Name, err)
	}

	return res, nil
}
