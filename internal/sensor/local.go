package sensor

import (
	"context"
	"errors"
	"time"
)

// Source identifies where a reading came from.
type Source string

const (
	SourceLocal Source = "local"
	SourceHub   Source = "hub"
)

// Reading is one snapshot from a sensor source. Nil fields were unavailable.
type Reading struct {
	Timestamp   time.Time
	Source      Source
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Illuminance *float64
}

// EnvironmentReader is satisfied by *BME280.
type EnvironmentReader interface {
	ReadEnvironment(ctx context.Context) (Environment, error)
}

// LightReader is satisfied by *BH1750.
type LightReader interface {
	ReadLux(ctx context.Context) (float64, error)
}

// Logger defines the logging interface for sensors.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Local combines the on-board sensors into one Reading.
type Local struct {
	env    EnvironmentReader
	light  LightReader
	logger Logger
	now    func() time.Time
}

// NewLocal returns a reader over the given sensors. Either may be nil.
func NewLocal(env EnvironmentReader, light LightReader) *Local {
	return &Local{env: env, light: light, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger.
func (l *Local) SetLogger(logger Logger) {
	l.logger = logger
}

// Read samples both sensors. Missing or failing sensors leave their fields
// nil; failures are logged and never returned.
func (l *Local) Read(ctx context.Context) Reading {
	r := Reading{Timestamp: l.now(), Source: SourceLocal}

	if l.env != nil {
		env, err := l.env.ReadEnvironment(ctx)
		switch {
		case err == nil:
			r.Temperature = &env.TemperatureC
			r.Humidity = &env.HumidityPct
			r.Pressure = &env.PressureHPa
		case errors.Is(err, ErrNotPresent):
			l.logger.Debug("bme280 not present")
		default:
			l.logger.Warn("bme280 read failed", "error", err)
		}
	}

	if l.light != nil {
		lux, err := l.light.ReadLux(ctx)
		switch {
		case err == nil:
			r.Illuminance = &lux
		case errors.Is(err, ErrNotPresent):
			l.logger.Debug("bh1750 not present")
		default:
			l.logger.Warn("bh1750 read failed", "error", err)
		}
	}

	return r
}
