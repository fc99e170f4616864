// Package display drives the 16x2 HD44780 character LCD that sits behind
// a PCF8574 I2C expander.
//
// The expander maps P0=RS, P1=RW, P2=E, P3=backlight and P4..P7 onto the
// LCD's D4..D7, so every byte reaches the controller as two 4-bit writes
// each strobed with E.
package display

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/state"
)

// Columns and Rows of the panel.
const (
	Columns = 16
	Rows    = 2
)

const (
	bitRS        = 0x01
	bitEnable    = 0x04
	bitBacklight = 0x08

	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0C // display on, cursor off, blink off
	cmdFunctionSet = 0x28 // 4-bit, 2 lines, 5x8
	cmdSetDDRAM    = 0x80

	rowOffset2 = 0x40

	clearDelay = 2 * time.Millisecond
	pulseDelay = 50 * time.Microsecond
)

// ErrNotInitialised is returned before Init has succeeded.
var ErrNotInitialised = errors.New("display: not initialised")

// Writer sends raw bytes to the expander. i2c.Conn satisfies it.
type Writer interface {
	Write(p []byte) error
}

// Logger defines the logging interface for the display.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// LCD is a 16x2 character display.
//
// Thread Safety: all methods are safe for concurrent use; each screen
// update is written atomically.
type LCD struct {
	mu        sync.Mutex
	w         Writer
	backlight byte
	ready     bool
	sleep     func(time.Duration)
	logger    Logger
}

// New creates an LCD on w. Call Init before use.
func New(w Writer) *LCD {
	return &LCD{
		w:         w,
		backlight: bitBacklight,
		sleep:     time.Sleep,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (l *LCD) SetLogger(logger Logger) {
	l.logger = logger
}

// Init runs the HD44780 4-bit initialisation sequence and clears the panel.
func (l *LCD) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sleep(50 * time.Millisecond)
	// Three 8-bit function sets put the controller in a known state from
	// any prior mode, then 0x2 switches it to 4-bit.
	for _, nibble := range []byte{0x30, 0x30, 0x30, 0x20} {
		if err := l.writeNibble(nibble, 0); err != nil {
			return fmt.Errorf("initialising LCD: %w", err)
		}
		l.sleep(5 * time.Millisecond)
	}
	for _, cmd := range []byte{cmdFunctionSet, cmdDisplayOn, cmdClear, cmdEntryMode} {
		if err := l.command(cmd); err != nil {
			return fmt.Errorf("initialising LCD: %w", err)
		}
	}
	l.sleep(clearDelay)
	l.ready = true
	return nil
}

func (l *LCD) writeNibble(nibble, mode byte) error {
	b := nibble&0xF0 | mode | l.backlight
	if err := l.w.Write([]byte{b | bitEnable}); err != nil {
		return err
	}
	l.sleep(pulseDelay)
	if err := l.w.Write([]byte{b}); err != nil {
		return err
	}
	l.sleep(pulseDelay)
	return nil
}

func (l *LCD) send(value, mode byte) error {
	if err := l.writeNibble(value&0xF0, mode); err != nil {
		return err
	}
	return l.writeNibble(value<<4, mode)
}

func (l *LCD) command(cmd byte) error {
	if err := l.send(cmd, 0); err != nil {
		return err
	}
	if cmd == cmdClear {
		l.sleep(clearDelay)
	}
	return nil
}

// WriteLines clears the panel and writes up to two lines. Text is cut to
// 16 columns and characters outside printable ASCII become '?'.
func (l *LCD) WriteLines(lines ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return ErrNotInitialised
	}

	if err := l.command(cmdClear); err != nil {
		return fmt.Errorf("clearing LCD: %w", err)
	}
	for row, text := range lines {
		if row >= Rows {
			break
		}
		addr := byte(cmdSetDDRAM)
		if row == 1 {
			addr |= rowOffset2
		}
		if err := l.command(addr); err != nil {
			return fmt.Errorf("positioning LCD row %d: %w", row, err)
		}
		for _, ch := range []byte(fit(text)) {
			if err := l.send(ch, bitRS); err != nil {
				return fmt.Errorf("writing LCD row %d: %w", row, err)
			}
		}
	}
	return nil
}

// fit truncates to the panel width and replaces non-ASCII runes.
func fit(text string) string {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n == Columns {
			break
		}
		if r < 0x20 || r > 0x7E {
			r = '?'
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// StatusLines renders the idle screen for s.
func StatusLines(s state.Snapshot) (string, string) {
	return fmt.Sprintf("Curtain: %v%% ", s.Curtain.Label()),
		fmt.Sprintf("Projector: %s", s.Projector)
}

// ShowStatus writes the idle screen.
func (l *LCD) ShowStatus(s state.Snapshot) error {
	line1, line2 := StatusLines(s)
	return l.WriteLines(line1, line2)
}

// ShowScene shows a triggered scene until the next refresh. Failures are
// logged only.
func (l *LCD) ShowScene(id string) {
	if err := l.WriteLines("Scene:", id); err != nil {
		l.logger.Warn("LCD scene display failed", "scene_id", id, "error", err)
	}
}

// ShowInitFailure shows the startup failure screen.
func (l *LCD) ShowInitFailure() error {
	return l.WriteLines("System Init", "FAIL")
}

// Close clears the panel and turns the backlight off.
func (l *LCD) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil
	}
	l.ready = false
	if err := l.command(cmdClear); err != nil {
		return fmt.Errorf("clearing LCD: %w", err)
	}
	l.backlight = 0
	return l.w.Write([]byte{0})
}
