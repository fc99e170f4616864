package keypad

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/state"
)

// ─── Mock Dependencies ──────────────────────────────────────────────

// matrix simulates one held key. While the key's column is driven, its
// row reads high for holdReads reads, then the key is released.
type matrix struct {
	mu        sync.Mutex
	colHigh   [4]bool
	pressed   bool
	row, col  int
	holdReads int
	readErr   error
}

func (m *matrix) press(row, col, holdReads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed, m.row, m.col, m.holdReads = true, row, col, holdReads
}

type rowPin struct {
	m *matrix
	r int
}

func (p rowPin) Read() (bool, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.readErr != nil {
		return false, p.m.readErr
	}
	if !p.m.pressed || p.m.row != p.r || !p.m.colHigh[p.m.col] {
		return false, nil
	}
	if p.m.holdReads <= 0 {
		p.m.pressed = false
		return false, nil
	}
	p.m.holdReads--
	return true, nil
}

type colPin struct {
	m *matrix
	c int
}

func (p colPin) Write(high bool) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.colHigh[p.c] = high
	return nil
}

func newMatrixScanner(t *testing.T, sleeps *int) (*Scanner, *matrix) {
	t.Helper()
	m := &matrix{}
	rows := make([]InputPin, 4)
	cols := make([]OutputPin, 4)
	for i := 0; i < 4; i++ {
		rows[i] = rowPin{m: m, r: i}
		cols[i] = colPin{m: m, c: i}
	}
	s, err := NewScanner(rows, cols, func(ctx context.Context, _ time.Duration) error {
		*sleeps++
		return ctx.Err()
	})
	require.NoError(t, err)
	return s, m
}

func TestScanNoKey(t *testing.T) {
	var sleeps int
	s, m := newMatrixScanner(t, &sleeps)

	_, ok, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, [4]bool{}, m.colHigh, "all columns low after a pass")
}

func TestScanKeyMap(t *testing.T) {
	want := [4]string{"123A", "456B", "789C", "*0#D"}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sleeps int
			s, m := newMatrixScanner(t, &sleeps)
			m.press(r, c, 1)

			key, ok, err := s.Scan(context.Background())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, rune(want[r][c]), key)
		}
	}
}

func TestScanWaitsForRelease(t *testing.T) {
	var sleeps int
	s, m := newMatrixScanner(t, &sleeps)
	m.press(1, 1, 4)

	key, ok, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, '5', key)
	assert.Equal(t, 4, sleeps)
	assert.Equal(t, [4]bool{}, m.colHigh)
}

func TestScanReadError(t *testing.T) {
	var sleeps int
	s, m := newMatrixScanner(t, &sleeps)
	m.readErr = errors.New("sysfs gone")

	_, _, err := s.Scan(context.Background())
	assert.Error(t, err)
	assert.Equal(t, [4]bool{}, m.colHigh)
}

func TestNewScannerRejectsWrongLayout(t *testing.T) {
	_, err := NewScanner(make([]InputPin, 3), make([]OutputPin, 4), nil)
	assert.ErrorIs(t, err, ErrLayout)
}

type call struct {
	op  string
	arg any
}

type mockController struct {
	calls []call
}

func (m *mockController) Manual(_ context.Context, id automation.SceneID, source, _ string) error {
	m.calls = append(m.calls, call{"manual:" + source, id})
	return nil
}

func (m *mockController) HDMI(_ context.Context, port int, _, _ string) error {
	m.calls = append(m.calls, call{"hdmi", port})
	return nil
}

func (m *mockController) Projector(_ context.Context, on bool, _, _ string) error {
	m.calls = append(m.calls, call{"projector", on})
	return nil
}

func (m *mockController) SetMode(_ context.Context, mode state.Mode, _, _ string) {
	m.calls = append(m.calls, call{"mode", mode})
}

func (m *mockController) SetLogging(_ context.Context, paused bool, _, _ string) {
	m.calls = append(m.calls, call{"logging_paused", paused})
}

type buzzer struct {
	levels []bool
}

func (b *buzzer) Write(high bool) error {
	b.levels = append(b.levels, high)
	return nil
}

func TestDispatcherKeyCommands(t *testing.T) {
	tests := []struct {
		key  rune
		want call
	}{
		{'1', call{"manual:Keypad", automation.SceneSet0}},
		{'2', call{"manual:Keypad", automation.SceneSet25}},
		{'3', call{"manual:Keypad", automation.SceneSet50}},
		{'4', call{"manual:Keypad", automation.SceneSet75}},
		{'5', call{"manual:Keypad", automation.SceneSet100}},
		{'7', call{"hdmi", 1}},
		{'8', call{"hdmi", 2}},
		{'*', call{"projector", false}},
		{'0', call{"projector", true}},
		{'9', call{"mode", state.ModeAuto}},
		{'C', call{"mode", state.ModeManual}},
		{'#', call{"logging_paused", true}},
		{'D', call{"logging_paused", false}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			ctrl := &mockController{}
			bz := &buzzer{}
			d := NewDispatcher(ctrl, bz, func(context.Context, time.Duration) error { return nil })

			handled, err := d.Handle(context.Background(), tt.key)
			require.NoError(t, err)
			assert.True(t, handled)
			assert.Equal(t, []call{tt.want}, ctrl.calls)
			assert.Equal(t, []bool{true, false}, bz.levels)
		})
	}
}

func TestDispatcherIgnoresUnassignedKeys(t *testing.T) {
	for _, key := range []rune{'6', 'A', 'B'} {
		ctrl := &mockController{}
		bz := &buzzer{}
		d := NewDispatcher(ctrl, bz, func(context.Context, time.Duration) error { return nil })

		handled, err := d.Handle(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, handled)
		assert.Empty(t, ctrl.calls)
		assert.Empty(t, bz.levels, "no beep for %c", key)
	}
}
