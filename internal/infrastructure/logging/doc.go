// Package logging provides structured logging for HomeSense Core.
//
// It wraps log/slog so every entry carries the service name and build
// version. Subsystems take a child logger via Component:
//
//	logger := logging.New(cfg.Logging, version)
//	sched := logger.Component("scheduler")
//	sched.Info("loop started", "name", "auto_control", "interval", "300s")
//
// Configuration lives in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Never log cloud credentials. Tuya and SwitchBot secrets are only ever
// referenced by their config key.
package logging
