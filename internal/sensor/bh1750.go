package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/homesense-core/internal/infrastructure/i2c"
)

const (
	bh1750OneTimeHighRes = 0x20
	bh1750Measurement    = 180 * time.Millisecond
	bh1750CountsPerLux   = 1.2
)

// BH1750 reads ambient light in lux.
type BH1750 struct {
	conn  i2c.Conn
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	present bool
}

// NewBH1750 wraps conn. Call Init before reading.
func NewBH1750(conn i2c.Conn) *BH1750 {
	return &BH1750{conn: conn, sleep: sleepCtx}
}

// Init probes the device with a single byte read.
func (s *BH1750) Init() error {
	if _, err := s.conn.ReadByte(); err != nil {
		return fmt.Errorf("%w: bh1750 probe: %w", ErrNotPresent, err)
	}
	s.mu.Lock()
	s.present = true
	s.mu.Unlock()
	return nil
}

// Present reports whether Init succeeded.
func (s *BH1750) Present() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// ReadLux triggers a one-time high-resolution measurement and returns lux.
func (s *BH1750) ReadLux(ctx context.Context) (float64, error) {
	if !s.Present() {
		return 0, ErrNotPresent
	}

	if err := s.conn.Write([]byte{bh1750OneTimeHighRes}); err != nil {
		return 0, fmt.Errorf("%w: bh1750: %w", ErrIO, err)
	}
	if err := s.sleep(ctx, bh1750Measurement); err != nil {
		return 0, err
	}

	buf := make([]byte, 2)
	if err := s.conn.Read(buf); err != nil {
		return 0, fmt.Errorf("%w: bh1750: %w", ErrIO, err)
	}

	return LuxFromRaw(buf), nil
}

// LuxFromRaw converts the big-endian measurement word to lux.
func LuxFromRaw(b []byte) float64 {
	return float64(uint16(b[0])<<8|uint16(b[1])) / bh1750CountsPerLux
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
