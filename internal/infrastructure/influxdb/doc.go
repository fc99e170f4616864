// Package influxdb provides InfluxDB connectivity for the sensor time series.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes and health monitoring.
//
// # Measurements
//
//   - environment (tag source=local|hub): temperature_c, humidity_percent,
//     pressure_hpa, light
//   - curtain (tag backend=tuya): percent
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteEnvironment("local", influxdb.Environment{Temperature: &t}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; write errors
// are delivered to the SetOnError callback.
package influxdb
