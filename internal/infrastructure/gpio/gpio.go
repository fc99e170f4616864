// Package gpio drives Raspberry Pi pins through the sysfs GPIO interface.
//
// Pins are addressed by BCM number. Kernels from 6.6 number the main
// controller from 512, so Chip adds a configurable base before exporting.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRoot is the sysfs GPIO class directory.
const DefaultRoot = "/sys/class/gpio"

// exportSettle is how long udev needs to fix permissions on a new pin.
const exportSettle = 100 * time.Millisecond

var (
	// ErrPinClosed is returned by operations on a released pin.
	ErrPinClosed = errors.New("gpio: pin closed")

	// ErrInvalidPin is returned for negative pin numbers.
	ErrInvalidPin = errors.New("gpio: invalid pin")
)

// Direction is the pin direction.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// PullDownFunc enables the pull-down bias on a BCM pin. sysfs cannot set
// bias, so this is normally an external helper such as pinctrl.
type PullDownFunc func(ctx context.Context, bcm int) error

// Chip exports and releases pins.
type Chip struct {
	root     string
	base     int
	pullDown PullDownFunc
	settle   time.Duration

	mu   sync.Mutex
	pins map[int]*Pin
}

// NewChip returns a chip rooted at root (DefaultRoot when empty) that adds
// base to every BCM number. pullDown may be nil.
func NewChip(root string, base int, pullDown PullDownFunc) *Chip {
	if root == "" {
		root = DefaultRoot
	}
	settle := exportSettle
	if root != DefaultRoot {
		settle = 0
	}
	return &Chip{
		root:     root,
		base:     base,
		pullDown: pullDown,
		settle:   settle,
		pins:     make(map[int]*Pin),
	}
}

// Pin is one exported line.
type Pin struct {
	chip   *Chip
	bcm    int
	dir    Direction
	value  *os.File
	mu     sync.Mutex
	closed bool
}

// Input exports bcm as an input with pull-down bias.
func (c *Chip) Input(ctx context.Context, bcm int) (*Pin, error) {
	p, err := c.export(bcm, In)
	if err != nil {
		return nil, err
	}
	if c.pullDown != nil {
		if err := c.pullDown(ctx, bcm); err != nil {
			p.Close() //nolint:errcheck // best effort on error path
			return nil, fmt.Errorf("gpio %d: pull-down: %w", bcm, err)
		}
	}
	return p, nil
}

// Output exports bcm as an output driven low.
func (c *Chip) Output(bcm int) (*Pin, error) {
	p, err := c.export(bcm, Out)
	if err != nil {
		return nil, err
	}
	if err := p.Write(false); err != nil {
		p.Close() //nolint:errcheck // best effort on error path
		return nil, err
	}
	return p, nil
}

func (c *Chip) export(bcm int, dir Direction) (*Pin, error) {
	if bcm < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPin, bcm)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.pins[bcm]; ok {
		return nil, fmt.Errorf("gpio %d: already exported as %s", bcm, existing.dir)
	}

	line := c.base + bcm
	dirPath := filepath.Join(c.root, "gpio"+strconv.Itoa(line))
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(c.root, "export"), strconv.Itoa(line)); err != nil {
			return nil, fmt.Errorf("gpio %d: export: %w", bcm, err)
		}
		time.Sleep(c.settle)
	}

	if err := writeFile(filepath.Join(dirPath, "direction"), string(dir)); err != nil {
		return nil, fmt.Errorf("gpio %d: direction: %w", bcm, err)
	}

	flag := os.O_RDONLY
	if dir == Out {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(filepath.Join(dirPath, "value"), flag, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio %d: open value: %w", bcm, err)
	}

	p := &Pin{chip: c, bcm: bcm, dir: dir, value: f}
	c.pins[bcm] = p
	return p, nil
}

// Close releases every pin still exported through this chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	pins := make([]*Pin, 0, len(c.pins))
	for _, p := range c.pins {
		pins = append(pins, p)
	}
	c.mu.Unlock()

	var errs []error
	for _, p := range pins {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BCM returns the pin's BCM number.
func (p *Pin) BCM() int { return p.bcm }

// Read returns true when the line is high.
func (p *Pin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrPinClosed
	}

	var b [1]byte
	if _, err := p.value.ReadAt(b[:], 0); err != nil {
		return false, fmt.Errorf("gpio %d: read: %w", p.bcm, err)
	}
	return b[0] == '1', nil
}

// Write drives an output high or low.
func (p *Pin) Write(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPinClosed
	}

	v := "0"
	if high {
		v = "1"
	}
	if _, err := p.value.WriteAt([]byte(v), 0); err != nil {
		return fmt.Errorf("gpio %d: write: %w", p.bcm, err)
	}
	return nil
}

// Close drives outputs low, closes the value file and unexports the line.
// Safe to call more than once.
func (p *Pin) Close() error {
	if p.dir == Out {
		_ = p.Write(false) //nolint:errcheck // best effort before release
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	c := p.chip
	c.mu.Lock()
	delete(c.pins, p.bcm)
	c.mu.Unlock()

	var errs []error
	if err := p.value.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := writeFile(filepath.Join(c.root, "unexport"), strconv.Itoa(c.base+p.bcm)); err != nil {
		errs = append(errs, fmt.Errorf("gpio %d: unexport: %w", p.bcm, err))
	}
	return errors.Join(errs...)
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(strings.TrimSpace(value)), 0)
}
