package gpio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// fakeSysfs builds a directory tree that looks like /sys/class/gpio with
// the given lines already exported.
func fakeSysfs(t *testing.T, lines ...int) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"export", "unexport"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	for _, line := range lines {
		dir := filepath.Join(root, "gpio"+strconv.Itoa(line))
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"direction", "value"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("0"), 0600); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestChip_OutputWritesValue(t *testing.T) {
	root := fakeSysfs(t, 512+17)
	chip := NewChip(root, 512, nil)

	pin, err := chip.Output(17)
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}

	if got := readFile(t, filepath.Join(root, "gpio529", "direction")); got != "out" {
		t.Errorf("direction = %q, want out", got)
	}
	if err := pin.Write(true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := readFile(t, filepath.Join(root, "gpio529", "value")); got != "1" {
		t.Errorf("value = %q, want 1", got)
	}

	if err := chip.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := readFile(t, filepath.Join(root, "gpio529", "value")); got != "0" {
		t.Errorf("value after Close = %q, want 0", got)
	}
	if got := readFile(t, filepath.Join(root, "unexport")); got != "529" {
		t.Errorf("unexport = %q, want 529", got)
	}
}

func TestChip_InputReadsAndPullsDown(t *testing.T) {
	root := fakeSysfs(t, 26)
	var pulled []int
	chip := NewChip(root, 0, func(_ context.Context, bcm int) error {
		pulled = append(pulled, bcm)
		return nil
	})

	pin, err := chip.Input(context.Background(), 26)
	if err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	defer pin.Close() //nolint:errcheck // test cleanup

	if len(pulled) != 1 || pulled[0] != 26 {
		t.Errorf("pull-down calls = %v, want [26]", pulled)
	}

	if err := os.WriteFile(filepath.Join(root, "gpio26", "value"), []byte("1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	high, err := pin.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !high {
		t.Error("Read() = false, want true")
	}
}

func TestChip_PullDownFailureReleasesPin(t *testing.T) {
	root := fakeSysfs(t, 19)
	chip := NewChip(root, 0, func(context.Context, int) error { return errors.New("pinctrl missing") })

	if _, err := chip.Input(context.Background(), 19); err == nil {
		t.Fatal("Input() expected pull-down error")
	}
	// The line is free again.
	chip.pullDown = nil
	if _, err := chip.Input(context.Background(), 19); err != nil {
		t.Errorf("Input() after failure error = %v", err)
	}
}

func TestChip_DoubleExport(t *testing.T) {
	root := fakeSysfs(t, 5)
	chip := NewChip(root, 0, nil)

	if _, err := chip.Output(5); err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if _, err := chip.Output(5); err == nil {
		t.Error("second Output() on same pin should fail")
	}
}

func TestPin_ClosedOperations(t *testing.T) {
	root := fakeSysfs(t, 24)
	chip := NewChip(root, 0, nil)

	pin, err := chip.Output(24)
	if err != nil {
		t.Fatalf("Output() error = %v", err)
	}
	if err := pin.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pin.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := pin.Write(true); !errors.Is(err, ErrPinClosed) {
		t.Errorf("Write() after Close error = %v, want ErrPinClosed", err)
	}
}

func TestChip_InvalidPin(t *testing.T) {
	chip := NewChip(t.TempDir(), 0, nil)
	if _, err := chip.Output(-1); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("Output(-1) error = %v, want ErrInvalidPin", err)
	}
}
