package process

import "errors"

var (
	// ErrInvalidCommand is returned when a command has no binary.
	ErrInvalidCommand = errors.New("process: invalid command")

	// ErrTimeout is returned when a one-shot command exceeds its timeout.
	ErrTimeout = errors.New("process: timed out")

	// ErrExitStatus is returned when a one-shot command exits non-zero.
	ErrExitStatus = errors.New("process: non-zero exit status")

	// ErrAlreadyRunning is returned by Manager.Start on a running process.
	ErrAlreadyRunning = errors.New("process: already running")
)
