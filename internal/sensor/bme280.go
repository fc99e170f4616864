package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/homesense-core/internal/infrastructure/i2c"
)

// BME280 registers.
const (
	regCalib00   = 0x88
	regCalibH1   = 0xA1
	regCalibE1   = 0xE1
	regCtrlHum   = 0xF2
	regCtrlMeas  = 0xF4
	regPressMSB  = 0xF7
	ctrlHumX1    = 0x01
	ctrlMeasNorm = 0x27 // temp x1, pressure x1, normal mode
)

// BME280 reads temperature, humidity and pressure from a Bosch BME280.
type BME280 struct {
	conn i2c.Conn

	mu      sync.Mutex
	cal     Calibration
	present bool
}

// NewBME280 wraps conn. Call Init before reading.
func NewBME280(conn i2c.Conn) *BME280 {
	return &BME280{conn: conn}
}

// Init reads the calibration blocks and configures oversampling. A failure
// leaves the sensor marked not present; readings then return ErrNotPresent.
func (s *BME280) Init() error {
	c1 := make([]byte, 26)
	c2 := make([]byte, 1)
	c3 := make([]byte, 7)

	if err := s.conn.ReadReg(regCalib00, c1); err != nil {
		return fmt.Errorf("%w: bme280 calibration: %w", ErrNotPresent, err)
	}
	if err := s.conn.ReadReg(regCalibH1, c2); err != nil {
		return fmt.Errorf("%w: bme280 calibration: %w", ErrNotPresent, err)
	}
	if err := s.conn.ReadReg(regCalibE1, c3); err != nil {
		return fmt.Errorf("%w: bme280 calibration: %w", ErrNotPresent, err)
	}

	cal, ok := ParseCalibration(c1, c2, c3)
	if !ok {
		return fmt.Errorf("%w: bme280 calibration truncated", ErrNotPresent)
	}

	if err := s.conn.WriteReg(regCtrlHum, ctrlHumX1); err != nil {
		return fmt.Errorf("%w: bme280 ctrl_hum: %w", ErrNotPresent, err)
	}
	if err := s.conn.WriteReg(regCtrlMeas, ctrlMeasNorm); err != nil {
		return fmt.Errorf("%w: bme280 ctrl_meas: %w", ErrNotPresent, err)
	}

	s.mu.Lock()
	s.cal = cal
	s.present = true
	s.mu.Unlock()
	return nil
}

// Present reports whether Init succeeded.
func (s *BME280) Present() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present
}

// ReadEnvironment takes one compensated reading.
func (s *BME280) ReadEnvironment(ctx context.Context) (Environment, error) {
	if err := ctx.Err(); err != nil {
		return Environment{}, err
	}

	s.mu.Lock()
	cal, present := s.cal, s.present
	s.mu.Unlock()
	if !present {
		return Environment{}, ErrNotPresent
	}

	data := make([]byte, 8)
	if err := s.conn.ReadReg(regPressMSB, data); err != nil {
		return Environment{}, fmt.Errorf("%w: bme280: %w", ErrIO, err)
	}

	return cal.Compensate(ParseRaw(data)), nil
}
