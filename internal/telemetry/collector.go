package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/homesense-core/internal/device"
	"github.com/nerrad567/homesense-core/internal/sensor"
	"github.com/nerrad567/homesense-core/internal/state"
)

// LocalSensors is satisfied by *sensor.Local.
type LocalSensors interface {
	Read(ctx context.Context) sensor.Reading
}

// HubReader is satisfied by *device.SwitchBot.
type HubReader interface {
	HubStatus(ctx context.Context) (device.HubStatus, error)
}

// StateReader supplies the last commanded curtain position.
type StateReader interface {
	Snapshot() state.Snapshot
}

// Logger defines the logging interface for the telemetry package.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Collector assembles a telemetry snapshot from every source.
type Collector struct {
	local  LocalSensors
	hub    HubReader
	state  StateReader
	logger Logger
	now    func() time.Time
}

// NewCollector creates a collector. local and hub may be nil when the
// hardware or gateway is not configured.
func NewCollector(local LocalSensors, hub HubReader, st StateReader) *Collector {
	return &Collector{local: local, hub: hub, state: st, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger.
func (c *Collector) SetLogger(logger Logger) {
	c.logger = logger
}

// Collect reads every source once. Unavailable readings stay nil; the
// curtain percent is set only when the position is known.
func (c *Collector) Collect(ctx context.Context) state.Telemetry {
	t := state.Telemetry{Timestamp: c.now()}

	if c.local != nil {
		r := c.local.Read(ctx)
		t.LocalTempC = r.Temperature
		t.LocalHumidityPercent = r.Humidity
		t.LocalPressureHPa = r.Pressure
		t.LocalLightLux = r.Illuminance
	}

	if c.hub != nil {
		hub, err := c.hub.HubStatus(ctx)
		if err != nil {
			c.logger.Warn("hub status unavailable", "error", err)
		} else {
			t.HubTempC = hub.Temperature
			t.HubHumidityPercent = hub.Humidity
			t.HubLightLevel = hub.LightLevel
		}
	}

	if pos := c.state.Snapshot().Curtain.Position; pos != nil {
		p := *pos
		t.CurtainPercent = &p
	}

	return t
}
