package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/inference"
	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/state"
)

// StateStore is the part of *state.Store the loops use.
type StateStore interface {
	Snapshot() state.Snapshot
	SetAIConnected(connected bool) bool
	SetProjectorPower(p state.PowerStatus)
	SetWeather(w state.Weather)
}

// AIDispatcher is satisfied by *automation.Arbiter.
type AIDispatcher interface {
	AI(ctx context.Context, label int) (*automation.Execution, error)
}

// Inference is satisfied by *inference.Client.
type Inference interface {
	Predict(ctx context.Context, f inference.Features) (int, error)
	Ping(ctx context.Context) error
	AddTrainingData(ctx context.Context, s inference.TrainingSample) error
}

// Collector is satisfied by *telemetry.Collector.
type Collector interface {
	Collect(ctx context.Context) state.Telemetry
}

// TelemetryRecorder is satisfied by *telemetry.Recorder.
type TelemetryRecorder interface {
	Record(ctx context.Context, t state.Telemetry) error
}

// PowerPoller is satisfied by *device.Projector.
type PowerPoller interface {
	PollPowerWithRetry(ctx context.Context) state.PowerStatus
}

// KeyScanner is satisfied by *keypad.Scanner.
type KeyScanner interface {
	Scan(ctx context.Context) (key rune, ok bool, err error)
}

// KeyHandler is satisfied by *keypad.Dispatcher.
type KeyHandler interface {
	Handle(ctx context.Context, key rune) (bool, error)
}

// StatusDisplay is satisfied by *display.LCD.
type StatusDisplay interface {
	ShowStatus(s state.Snapshot) error
}

// IndicatorPanel is satisfied by *indicator.Indicators.
type IndicatorPanel interface {
	Apply(s state.Snapshot)
}

// WeatherFetcher is satisfied by *weather.Client.
type WeatherFetcher interface {
	Fetch(ctx context.Context) (state.Weather, error)
}

// AuditRecorder is satisfied by *audit.Recorder.
type AuditRecorder interface {
	Record(ctx context.Context, source, actionType, details, ip string)
}

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Intervals are the loop periods.
type Intervals struct {
	AutoControl    time.Duration
	Connectivity   time.Duration
	StatusPoll     time.Duration
	Logging        time.Duration
	Weather        time.Duration
	DisplayRefresh time.Duration
	InputScan      time.Duration
}

// IntervalsFrom converts the schedule section of the config.
func IntervalsFrom(cfg config.ScheduleConfig) Intervals {
	return Intervals{
		AutoControl:    time.Duration(cfg.AutoControl) * time.Second,
		Connectivity:   time.Duration(cfg.Connectivity) * time.Second,
		StatusPoll:     time.Duration(cfg.StatusPoll) * time.Second,
		Logging:        time.Duration(cfg.Logging) * time.Second,
		Weather:        time.Duration(cfg.Weather) * time.Second,
		DisplayRefresh: time.Duration(cfg.DisplayReset) * time.Second,
		InputScan:      time.Duration(cfg.InputScanMS) * time.Millisecond,
	}
}

// Deps are the collaborators of the loops. A loop whose collaborators are
// nil is not started: no Inference disables AutoControl, ConnectivityCheck
// and training uploads; no Keys disables InputScan; no Weather disables
// WeatherUpdate.
type Deps struct {
	State     StateStore
	Arbiter   AIDispatcher
	Inference Inference
	Collector Collector
	Telemetry TelemetryRecorder
	Projector PowerPoller
	Keypad    KeyScanner
	Keys      KeyHandler
	Display   StatusDisplay
	LEDs      IndicatorPanel
	Weather   WeatherFetcher
	Audit     AuditRecorder
	Logger    Logger
}

// Scheduler owns the background loops.
type Scheduler struct {
	deps   Deps
	iv     Intervals
	logger Logger
	now    func() time.Time
}

// DefaultIntervals returns the standard loop periods.
func DefaultIntervals() Intervals {
	return Intervals{
		AutoControl:    300 * time.Second,
		Connectivity:   60 * time.Second,
		StatusPoll:     30 * time.Second,
		Logging:        300 * time.Second,
		Weather:        1800 * time.Second,
		DisplayRefresh: 5 * time.Second,
		InputScan:      50 * time.Millisecond,
	}
}

// New creates a scheduler. Zero intervals fall back to DefaultIntervals.
func New(deps Deps, iv Intervals) *Scheduler {
	def := DefaultIntervals()
	fill := func(d *time.Duration, fallback time.Duration) {
		if *d <= 0 {
			*d = fallback
		}
	}
	fill(&iv.AutoControl, def.AutoControl)
	fill(&iv.Connectivity, def.Connectivity)
	fill(&iv.StatusPoll, def.StatusPoll)
	fill(&iv.Logging, def.Logging)
	fill(&iv.Weather, def.Weather)
	fill(&iv.DisplayRefresh, def.DisplayRefresh)
	fill(&iv.InputScan, def.InputScan)

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{deps: deps, iv: iv, logger: logger, now: time.Now}
}

// Run starts every configured loop and blocks until ctx is cancelled and
// all loops have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	start := func(name string, interval time.Duration, immediate bool, fn func(context.Context)) {
		g.Go(func() error {
			return s.every(ctx, name, interval, immediate, fn)
		})
	}

	if s.deps.Inference != nil {
		start("auto_control", s.iv.AutoControl, false, s.autoControl)
		start("connectivity", s.iv.Connectivity, true, s.checkConnectivity)
	}
	if s.deps.Projector != nil {
		start("status_poll", s.iv.StatusPoll, true, s.pollStatus)
	}
	if s.deps.Collector != nil && s.deps.Telemetry != nil {
		start("periodic_logging", s.iv.Logging, true, s.logTelemetry)
	}
	if (s.deps.Keypad != nil && s.deps.Keys != nil) || s.deps.Display != nil {
		in := newInputLoop(s)
		start("input_scan", s.iv.InputScan, true, in.tick)
	}
	if s.deps.Weather != nil {
		start("weather", s.iv.Weather, true, s.updateWeather)
	}

	s.logger.Info("scheduler started")
	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// every calls fn on a fixed ticker until ctx is done. immediate runs the
// first iteration before the first tick. Iterations never overlap.
func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if immediate {
		s.safely(ctx, name, fn)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.safely(ctx, name, fn)
		}
	}
}

func (s *Scheduler) safely(ctx context.Context, name string, fn func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("loop iteration panicked",
				"loop", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(ctx)
}
