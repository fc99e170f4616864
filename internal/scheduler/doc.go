// Package scheduler runs the controller's background loops.
//
// Each loop is a fixed-interval ticker owned by one goroutine; Run
// supervises them with an errgroup and returns once ctx is cancelled and
// every loop has exited.
//
//	AutoControl        sensors → /predict → Arbiter.AI        (Auto mode only)
//	ConnectivityCheck  /ping → State.SetAIConnected → audit on change
//	StatusPoll         CEC power poll (one retry after 2s)
//	PeriodicLogging    snapshot → telemetry trail → training upload
//	InputScan          keypad scan every 50ms, LCD refresh every 5s
//	WeatherUpdate      forecast scrape → State.SetWeather → audit
//
// An iteration that fails or panics is logged and the loop carries on
// at its next tick.
package scheduler
