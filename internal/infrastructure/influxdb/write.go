package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementEnvironment = "environment"
	MeasurementCurtain     = "curtain"
)

// Environment is one sensor sample. Nil fields are omitted from the point.
type Environment struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	Light       *float64
}

// WriteEnvironment records a sample from one sensor source ("local" or
// "hub"). Samples with no fields are dropped.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteEnvironment(source string, env Environment, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{}, 4)
	addField(fields, "temperature_c", env.Temperature)
	addField(fields, "humidity_percent", env.Humidity)
	addField(fields, "pressure_hpa", env.Pressure)
	addField(fields, "light", env.Light)
	if len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementEnvironment,
		map[string]string{"source": source},
		fields,
		ts,
	))
}

// WriteCurtain records the commanded curtain position.
func (c *Client) WriteCurtain(percent int, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementCurtain,
		map[string]string{"backend": "tuya"},
		map[string]interface{}{"percent": percent},
		ts,
	))
}

func addField(fields map[string]interface{}, name string, v *float64) {
	if v != nil {
		fields[name] = *v
	}
}
