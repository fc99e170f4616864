package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the writer goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "cam", Binary: "/usr/bin/true"})

	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want 5s", m.config.RestartDelay)
	}
	if m.config.GracefulTimeout != 5*time.Second {
		t.Errorf("GracefulTimeout = %v, want 5s", m.config.GracefulTimeout)
	}
	if m.config.Stdout == nil {
		t.Error("Stdout should default to a discarding writer")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want stopped", m.Status())
	}
}

func TestManager_StreamsStdoutAndStops(t *testing.T) {
	requireShell(t)

	out := &syncBuffer{}
	m := NewManager(Config{
		Name:            "printer",
		Binary:          "sh",
		Args:            []string{"-c", "echo frame; sleep 30"},
		Stdout:          out,
		GracefulTimeout: time.Second,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, 2*time.Second, func() bool { return strings.Contains(out.String(), "frame") })

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q, want stopped", m.Status())
	}
	if m.RestartCount() != 0 {
		t.Errorf("RestartCount() = %d, want 0 after requested stop", m.RestartCount())
	}
}

func TestManager_RestartsOnFailure(t *testing.T) {
	requireShell(t)

	m := NewManager(Config{
		Name:               "flaky",
		Binary:             "sh",
		Args:               []string{"-c", "exit 3"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartAttempts: 2,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return m.RestartCount() >= 3 })

	if m.LastError() == nil {
		t.Error("LastError() should record the exit status")
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestManager_StartFailure(t *testing.T) {
	m := NewManager(Config{Name: "missing", Binary: "/nonexistent/binary"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for missing binary")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want failed", m.Status())
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestManager_StopBeforeStart(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "sh"})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
