// Package keypad scans the 4x4 matrix keypad and turns key presses into
// operator commands.
//
// Columns are driven high one at a time and the rows are read back; a
// pressed key connects its column to its row. A press is reported once,
// after the key has been released.
package keypad

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/state"
)

// ErrLayout is returned when the pin lists do not form a 4x4 matrix.
var ErrLayout = errors.New("keypad: need 4 row and 4 column pins")

const (
	releasePoll  = 100 * time.Millisecond
	beepDuration = 50 * time.Millisecond
)

// layout is the printed legend, indexed [row][col].
var layout = [4][4]rune{
	{'1', '2', '3', 'A'},
	{'4', '5', '6', 'B'},
	{'7', '8', '9', 'C'},
	{'*', '0', '#', 'D'},
}

// InputPin is a row line. *gpio.Pin satisfies it.
type InputPin interface {
	Read() (bool, error)
}

// OutputPin is a column line or the buzzer. *gpio.Pin satisfies it.
type OutputPin interface {
	Write(high bool) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scanner reads the matrix.
type Scanner struct {
	rows  []InputPin
	cols  []OutputPin
	sleep SleepFunc
}

// NewScanner creates a scanner for 4 row inputs and 4 column outputs.
func NewScanner(rows []InputPin, cols []OutputPin, sleep SleepFunc) (*Scanner, error) {
	if len(rows) != len(layout) || len(cols) != len(layout[0]) {
		return nil, ErrLayout
	}
	return &Scanner{rows: rows, cols: cols, sleep: sleep}, nil
}

// Scan performs one pass over the matrix.
//
// Returns the first pressed key after it has been released, or ok=false
// when nothing is pressed. At most one key is reported per pass.
func (s *Scanner) Scan(ctx context.Context) (key rune, ok bool, err error) {
	for c, col := range s.cols {
		if err := col.Write(true); err != nil {
			return 0, false, fmt.Errorf("driving column %d: %w", c, err)
		}
		key, ok, err = s.scanRows(ctx, c)
		if lowErr := col.Write(false); lowErr != nil && err == nil {
			err = fmt.Errorf("releasing column %d: %w", c, lowErr)
		}
		if err != nil || ok {
			return key, ok, err
		}
	}
	return 0, false, nil
}

func (s *Scanner) scanRows(ctx context.Context, c int) (rune, bool, error) {
	for r, row := range s.rows {
		high, err := row.Read()
		if err != nil {
			return 0, false, fmt.Errorf("reading row %d: %w", r, err)
		}
		if !high {
			continue
		}
		for high {
			if err := s.sleep(ctx, releasePoll); err != nil {
				return 0, false, err
			}
			if high, err = row.Read(); err != nil {
				return 0, false, fmt.Errorf("reading row %d: %w", r, err)
			}
		}
		return layout[r][c], true, nil
	}
	return 0, false, nil
}

// Controller is the set of operator actions the keypad can issue.
// *automation.Arbiter satisfies it.
type Controller interface {
	Manual(ctx context.Context, id automation.SceneID, source, ip string) error
	HDMI(ctx context.Context, port int, source, ip string) error
	Projector(ctx context.Context, on bool, source, ip string) error
	SetMode(ctx context.Context, mode state.Mode, source, ip string)
	SetLogging(ctx context.Context, paused bool, source, ip string)
}

var sceneKeys = map[rune]automation.SceneID{
	'1': automation.SceneSet0,
	'2': automation.SceneSet25,
	'3': automation.SceneSet50,
	'4': automation.SceneSet75,
	'5': automation.SceneSet100,
}

// Assigned reports whether key has a command.
func Assigned(key rune) bool {
	if _, ok := sceneKeys[key]; ok {
		return true
	}
	switch key {
	case '7', '8', '*', '0', '9', 'C', '#', 'D':
		return true
	}
	return false
}

// Dispatcher maps keys onto Controller calls and sounds the buzzer for
// every assigned key.
type Dispatcher struct {
	ctrl   Controller
	buzzer OutputPin
	sleep  SleepFunc
}

// NewDispatcher creates a dispatcher. buzzer may be nil.
func NewDispatcher(ctrl Controller, buzzer OutputPin, sleep SleepFunc) *Dispatcher {
	return &Dispatcher{ctrl: ctrl, buzzer: buzzer, sleep: sleep}
}

// Beep pulses the buzzer for 50ms.
func (d *Dispatcher) Beep(ctx context.Context) {
	if d.buzzer == nil {
		return
	}
	if err := d.buzzer.Write(true); err != nil {
		return
	}
	_ = d.sleep(ctx, beepDuration) //nolint:errcheck // the buzzer is switched off either way
	_ = d.buzzer.Write(false) //nolint:errcheck // nothing to do if the buzzer line fails
}

// Handle runs the command for key.
//
// Returns:
//   - bool: false for unassigned keys, which are ignored without a beep
//   - error: from the controller, if any
func (d *Dispatcher) Handle(ctx context.Context, key rune) (bool, error) {
	if !Assigned(key) {
		return false, nil
	}
	d.Beep(ctx)

	const src = audit.SourceKeypad
	if id, ok := sceneKeys[key]; ok {
		return true, d.ctrl.Manual(ctx, id, src, "")
	}

	switch key {
	case '7':
		return true, d.ctrl.HDMI(ctx, 1, src, "")
	case '8':
		return true, d.ctrl.HDMI(ctx, 2, src, "")
	case '*':
		return true, d.ctrl.Projector(ctx, false, src, "")
	case '0':
		return true, d.ctrl.Projector(ctx, true, src, "")
	case '9':
		d.ctrl.SetMode(ctx, state.ModeAuto, src, "")
	case 'C':
		d.ctrl.SetMode(ctx, state.ModeManual, src, "")
	case '#':
		d.ctrl.SetLogging(ctx, true, src, "")
	case 'D':
		d.ctrl.SetLogging(ctx, false, src, "")
	}
	return true, nil
}
