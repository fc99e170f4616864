// HomeSense Core - curtain, projector and sensor controller
//
// This is the main entry point for the HomeSense appliance. It wires the
// keypad, LCD, indicator LEDs and local sensors to the scene engine, the
// background scheduler and the HTTP control panel, and releases every
// resource through a single defer chain on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/homesense-core/internal/announce"
	"github.com/nerrad567/homesense-core/internal/api"
	"github.com/nerrad567/homesense-core/internal/audit"
	"github.com/nerrad567/homesense-core/internal/automation"
	"github.com/nerrad567/homesense-core/internal/camera"
	"github.com/nerrad567/homesense-core/internal/device"
	"github.com/nerrad567/homesense-core/internal/inference"
	"github.com/nerrad567/homesense-core/internal/infrastructure/config"
	"github.com/nerrad567/homesense-core/internal/infrastructure/database"
	"github.com/nerrad567/homesense-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/homesense-core/internal/infrastructure/logging"
	"github.com/nerrad567/homesense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homesense-core/internal/process"
	"github.com/nerrad567/homesense-core/internal/scheduler"
	"github.com/nerrad567/homesense-core/internal/state"
	"github.com/nerrad567/homesense-core/internal/telemetry"
	"github.com/nerrad567/homesense-core/internal/weather"
	"github.com/nerrad567/homesense-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Every resource acquired here is released by a defer registered right
// after it was acquired, so the teardown order is the reverse of startup
// on every exit path.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,funlen // linear wiring of every component
	log := logging.Default()
	log.Info("starting HomeSense Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)
	go toggleDebugOnSignal(ctx, log, cfg.Logging.Level)

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

	pruneHistory(ctx, db, cfg.Database.RetentionDays, log)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo)
	recorder.SetLogger(log.Component("audit"))

	store := state.New()

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it", "error", err)
			mqttClient = nil
		} else {
			mqttClient.SetLogger(log.Component("mqtt"))
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "error", err)
			influxClient = nil
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	// Local hardware
	hw, err := openHardware(ctx, cfg.Hardware, log)
	if err != nil {
		return fmt.Errorf("initialising hardware: %w", err)
	}
	defer hw.Close(log)

	// Curtains, projector and announcements
	tuya := device.NewTuyaCurtain(device.TuyaConfig{
		Endpoint:    cfg.Tuya.Endpoint,
		AccessID:    cfg.Tuya.AccessID,
		AccessKey:   cfg.Tuya.AccessKey,
		DeviceID:    cfg.Tuya.DeviceID,
		ControlCode: cfg.Tuya.ControlCode,
	}, store)
	tuya.SetLogger(log.Component("tuya"))
	if err := tuya.Connect(ctx); err != nil {
		hw.showInitFailure(log)
		return fmt.Errorf("connecting to Tuya: %w", err)
	}
	log.Info("Tuya cloud connected", "device_id", cfg.Tuya.DeviceID)

	switchBot := device.NewSwitchBot(device.SwitchBotConfig{
		BaseURL:         cfg.SwitchBot.BaseURL,
		Token:           cfg.SwitchBot.Token,
		OwnerPassword:   cfg.SwitchBot.OwnerPassword,
		HubDeviceID:     cfg.SwitchBot.HubDeviceID,
		CurtainDeviceID: cfg.SwitchBot.CurtainDeviceID,
	})
	switchBot.SetLogger(log.Component("switchbot"))
	defer switchBot.Wait()

	projector := device.NewProjector(device.ProjectorConfig{
		Binary: cfg.CEC.Binary,
		Args:   cfg.CEC.Args,
		Device: cfg.CEC.Device,
	}, process.Exec)
	projector.SetLogger(log.Component("cec"))
	defer projector.Close()

	var announcer automation.Announcer
	if cfg.Announce.Enabled {
		a := announce.New(cfg.Announce.Command, process.Exec)
		a.SetLogger(log.Component("announce"))
		defer a.Close()
		announcer = a
	}

	// WebSocket hub, shared by the scene engine and the API server
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go hub.Run(hubCtx)

	// Scene engine and mode arbiter
	engineDeps := automation.Deps{
		Curtains: map[automation.Backend]device.CurtainActuator{
			automation.BackendPrimary:   tuya,
			automation.BackendSecondary: switchBot.Curtain(),
		},
		Projector: projector,
		State:     store,
		Hub:       hub,
		Announcer: announcer,
		Logger:    log.Component("automation"),
		Warmup:    config.Every(cfg.Schedule.WarmupSeconds),
	}
	if mqttClient != nil {
		engineDeps.MQTT = mqttClient
	}
	engine := automation.NewEngine(engineDeps)

	arbiter := automation.NewArbiter(engine, store, recorder)
	arbiter.SetLogger(log.Component("arbiter"))
	if hw.lcd != nil {
		arbiter.SetDisplay(hw.lcd)
	}
	arbiter.Start(ctx)
	defer arbiter.Close()

	dispatcher := hw.dispatcher(arbiter)

	// State observers: LEDs, panel clients and the retained MQTT snapshot
	if hw.leds != nil {
		store.Subscribe(hw.leds.Apply)
		hw.leds.Apply(store.Snapshot())
	}
	store.Subscribe(hub.StateObserver())
	if mqttClient != nil {
		topics := mqtt.Topics{}
		publishState := func(snap state.Snapshot) {
			if pubErr := mqttClient.PublishJSON(topics.SystemState(), snap, true); pubErr != nil {
				log.Debug("state publish failed", "error", pubErr)
			}
		}
		store.Subscribe(publishState)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected, republishing state")
			publishState(store.Snapshot())
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		publishState(store.Snapshot())
	}

	// Telemetry
	collector := telemetry.NewCollector(hw.local, switchBot, store)
	collector.SetLogger(log.Component("telemetry"))
	telemetryRepo := telemetry.NewSQLiteRepository(db.DB)
	telemetryRecorder := telemetry.NewRecorder(telemetryRepo, store)
	telemetryRecorder.SetLogger(log.Component("telemetry"))
	if influxClient != nil {
		telemetryRecorder.SetPointWriter(influxClient)
	}
	if mqttClient != nil {
		telemetryRecorder.SetPublisher(mqttClient)
	}

	// Camera (optional)
	var frames api.FrameSource
	if cfg.Camera.Enabled {
		cam := camera.New(cfg.Camera)
		cam.SetLogger(log.Component("camera"))
		if startErr := cam.Start(ctx); startErr != nil {
			log.Warn("camera failed to start, /video_feed disabled", "error", startErr)
		} else {
			defer func() {
				if stopErr := cam.Stop(); stopErr != nil {
					log.Error("error stopping camera", "error", stopErr)
				}
			}()
			frames = cam
		}
	}

	// HTTP server
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		State:    store,
		Control:  arbiter,
		AuditLog: auditRepo,
		Audit:    recorder,
		History:  telemetryRepo,
		Camera:   frames,
		Hub:      hub,
		Version:  version,
	}
	if dispatcher != nil {
		apiDeps.Beeper = dispatcher
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Background loops
	schedDeps := scheduler.Deps{
		State:     store,
		Arbiter:   arbiter,
		Inference: inference.NewClient(cfg.Inference.BaseURL),
		Collector: collector,
		Telemetry: telemetryRecorder,
		Projector: projector,
		Audit:     recorder,
		Logger:    log.Component("scheduler"),
	}
	if hw.scanner != nil && dispatcher != nil {
		schedDeps.Keypad = hw.scanner
		schedDeps.Keys = dispatcher
	}
	if hw.lcd != nil {
		schedDeps.Display = hw.lcd
	}
	if hw.leds != nil {
		schedDeps.LEDs = hw.leds
	}
	if cfg.Weather.Enabled {
		schedDeps.Weather = weather.NewClient(cfg.Weather.URL)
	}
	sched := scheduler.New(schedDeps, scheduler.IntervalsFrom(cfg.Schedule))

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	recorder.Record(ctx, audit.SourceSystem, audit.ActionSystem, "system started", "")
	defer recorder.Record(context.Background(), audit.SourceSystem, audit.ActionSystem, "system stopped", "")

	log.Info("initialisation complete, waiting for shutdown signal",
		"http", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if schedErr := <-schedDone; schedErr != nil && !errors.Is(schedErr, context.Canceled) {
		log.Error("scheduler stopped with error", "error", schedErr)
	}

	log.Info("HomeSense Core stopped")
	return nil
}

// toggleDebugOnSignal flips the log level between debug and the
// configured level on every SIGUSR1 until ctx is cancelled.
func toggleDebugOnSignal(ctx context.Context, log *logging.Logger, base string) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			level := log.ToggleDebug(base)
			log.Warn("log level changed", "level", level.String())
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses HOMESENSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMESENSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotEnv reads secrets from ./.env (or HOMESENSE_ENV_FILE) into the
// environment. A missing file is not an error; variables already set win.
func loadDotEnv() error {
	path := ".env"
	if p := os.Getenv("HOMESENSE_ENV_FILE"); p != "" {
		path = p
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// retentionTables are the append-only tables pruned at startup.
var retentionTables = []string{"audit_logs", "telemetry"}

// pruneHistory removes rows older than days. Failures are logged only.
func pruneHistory(ctx context.Context, db *database.DB, days int, log *logging.Logger) {
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	for _, table := range retentionTables {
		n, err := db.Prune(ctx, table, cutoff)
		if err != nil {
			log.Warn("pruning history failed", "table", table, "error", err)
			continue
		}
		if n > 0 {
			log.Info("pruned history", "table", table, "rows", n, "retention_days", days)
		}
	}
}
