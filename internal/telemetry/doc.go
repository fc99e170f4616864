// Package telemetry collects the periodic sensor snapshot and records it.
//
// A snapshot combines the on-board sensors, the SwitchBot hub and the
// last commanded curtain position. Recorder appends it to the SQLite
// telemetry table, keeps it as the latest snapshot in the state store and
// forwards it to InfluxDB and MQTT when those are configured.
//
// The table is append-only; WriteCSV renders rows in the column order
// used by the training tooling and served at /api/telemetry.csv.
package telemetry
