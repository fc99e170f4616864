package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/homesense-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homesense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homesense-core/internal/sensor"
	"github.com/nerrad567/homesense-core/internal/state"
)

// TelemetryStream is the MQTT telemetry stream name for snapshots.
const TelemetryStream = "environment"

// SnapshotStore is satisfied by *state.Store.
type SnapshotStore interface {
	SetTelemetry(t state.Telemetry)
}

// PointWriter is satisfied by *influxdb.Client.
type PointWriter interface {
	WriteEnvironment(source string, env influxdb.Environment, ts time.Time)
	WriteCurtain(percent int, ts time.Time)
}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Recorder fans a snapshot out to the state store, the SQLite trail and,
// when set, InfluxDB and MQTT.
type Recorder struct {
	repo   Repository
	store  SnapshotStore
	points PointWriter
	pub    Publisher
	logger Logger
}

// NewRecorder creates a recorder writing to repo and store.
func NewRecorder(repo Repository, store SnapshotStore) *Recorder {
	return &Recorder{repo: repo, store: store, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetPointWriter enables InfluxDB points.
func (r *Recorder) SetPointWriter(w PointWriter) {
	r.points = w
}

// SetPublisher enables MQTT telemetry events.
func (r *Recorder) SetPublisher(p Publisher) {
	r.pub = p
}

// Record stores t as the latest snapshot and appends it to the trail.
// InfluxDB and MQTT failures are logged; only the trail error is returned.
func (r *Recorder) Record(ctx context.Context, t state.Telemetry) error {
	r.store.SetTelemetry(t)

	if r.points != nil {
		r.points.WriteEnvironment(string(sensor.SourceLocal), influxdb.Environment{
			Temperature: t.LocalTempC,
			Humidity:    t.LocalHumidityPercent,
			Pressure:    t.LocalPressureHPa,
			Light:       t.LocalLightLux,
		}, t.Timestamp)
		r.points.WriteEnvironment(string(sensor.SourceHub), influxdb.Environment{
			Temperature: t.HubTempC,
			Humidity:    t.HubHumidityPercent,
			Light:       t.HubLightLevel,
		}, t.Timestamp)
		if t.CurtainPercent != nil {
			r.points.WriteCurtain(*t.CurtainPercent, t.Timestamp)
		}
	}

	if r.pub != nil {
		if err := r.pub.PublishJSON(mqtt.Topics{}.Telemetry(TelemetryStream), t, false); err != nil {
			r.logger.Warn("telemetry publish failed", "error", err)
		}
	}

	if err := r.repo.Append(ctx, t); err != nil {
		return fmt.Errorf("recording telemetry: %w", err)
	}
	return nil
}
