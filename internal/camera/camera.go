// Package camera turns the MJPEG byte stream of a camera process into
// individual JPEG frames.
//
// The encoder (rpicam-vid by default) runs under process.Manager with its
// stdout wired to a Streamer. The Streamer splits the stream on the JPEG
// start (FF D8) and end (FF D9) markers and keeps only the latest frame;
// HTTP clients wait for frames with Next.
package camera

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/process"
)

var (
	// ErrStopped is returned by Next once the streamer has been stopped.
	ErrStopped = errors.New("camera: stopped")

	// ErrNoFrame is returned by Latest before the first frame arrives.
	ErrNoFrame = errors.New("camera: no frame yet")
)

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// maxPending caps buffered bytes without a complete frame.
const maxPending = 4 << 20

// Process is satisfied by *process.Manager.
type Process interface {
	Start(ctx context.Context) error
	Stop() error
}

// Logger defines the logging interface for the camera.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Streamer owns the camera process and the latest frame.
//
// Thread Safety:
//   - Write is called from the process output goroutine; Latest and Next
//     may be called concurrently from any number of readers.
type Streamer struct {
	proc     Process
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	pending []byte
	frame   []byte
	seq     uint64
	changed chan struct{}
	stopped chan struct{}
	stop    sync.Once
}

// New creates a streamer for the configured camera command. The process is
// restarted 5s after an unexpected exit.
func New(cfg config.CameraConfig) *Streamer {
	s := newStreamer(cfg.FPS)
	mgr := process.NewManager(process.Config{
		Name:             "camera",
		Binary:           cfg.Binary,
		Args:             cfg.Args,
		Stdout:           s,
		RestartOnFailure: true,
		RestartDelay:     5 * time.Second,
	})
	s.proc = mgr
	return s
}

func newStreamer(fps int) *Streamer {
	if fps <= 0 {
		fps = 10
	}
	return &Streamer{
		interval: time.Second / time.Duration(fps),
		logger:   noopLogger{},
		changed:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetLogger sets the logger. A *process.Manager built by New keeps its
// own logger; main sets both.
func (s *Streamer) SetLogger(logger Logger) {
	s.logger = logger
}

// Manager returns the underlying process manager, or nil for a streamer
// fed by other means.
func (s *Streamer) Manager() *process.Manager {
	m, _ := s.proc.(*process.Manager)
	return m
}

// FrameInterval is the minimum gap between frames sent to one client.
func (s *Streamer) FrameInterval() time.Duration {
	return s.interval
}

// Start launches the camera process.
func (s *Streamer) Start(ctx context.Context) error {
	return s.proc.Start(ctx)
}

// Stop terminates the camera process and releases waiting readers.
func (s *Streamer) Stop() error {
	var err error
	s.stop.Do(func() {
		if s.proc != nil {
			err = s.proc.Stop()
		}
		close(s.stopped)
	})
	return err
}

// Write consumes raw MJPEG bytes. It never fails, so the process's output
// copy is never interrupted.
func (s *Streamer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, p...)
	for {
		start := bytes.Index(s.pending, soi)
		if start < 0 {
			// A trailing FF may be the first half of the next SOI.
			if n := len(s.pending); n > 0 && s.pending[n-1] == 0xFF {
				s.pending = append(s.pending[:0], 0xFF)
			} else {
				s.pending = s.pending[:0]
			}
			break
		}
		end := bytes.Index(s.pending[start+len(soi):], eoi)
		if end < 0 {
			s.pending = append(s.pending[:0], s.pending[start:]...)
			break
		}
		end += start + len(soi) + len(eoi)

		s.publishLocked(bytes.Clone(s.pending[start:end]))
		s.pending = s.pending[end:]
	}

	if len(s.pending) > maxPending {
		s.logger.Warn("discarding oversized partial frame", "bytes", len(s.pending))
		s.pending = s.pending[:0]
	}
	return len(p), nil
}

func (s *Streamer) publishLocked(frame []byte) {
	s.frame = frame
	s.seq++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Latest returns the most recent frame and its sequence number.
func (s *Streamer) Latest() ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, 0, ErrNoFrame
	}
	return s.frame, s.seq, nil
}

// Next blocks until a frame newer than after is available.
//
// Returns:
//   - []byte: the JPEG frame (shared; callers must not modify it)
//   - uint64: its sequence number, to pass as after on the next call
//   - error: ctx.Err() or ErrStopped
func (s *Streamer) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		s.mu.Lock()
		frame, seq, changed := s.frame, s.seq, s.changed
		s.mu.Unlock()

		if seq > after && frame != nil {
			return frame, seq, nil
		}

		select {
		case <-changed:
		case <-s.stopped:
			return nil, 0, ErrStopped
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}
