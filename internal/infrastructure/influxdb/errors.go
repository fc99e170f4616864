package influxdb

import "errors"

// Sentinel errors returned by Connect and the write helpers. Async write
// failures never surface here; they go to the SetOnError callback.
var (
	// ErrNotConnected is returned after Close or before a successful ping.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps the ping failure seen by Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// The telemetry recorder then runs with SQLite history only.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
