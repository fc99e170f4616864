package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HomeSense Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Tuya      TuyaConfig      `yaml:"tuya"`
	SwitchBot SwitchBotConfig `yaml:"switchbot"`
	CEC       CECConfig       `yaml:"cec"`
	Inference InferenceConfig `yaml:"inference"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Announce  AnnounceConfig  `yaml:"announce"`
	Weather   WeatherConfig   `yaml:"weather"`
	Camera    CameraConfig    `yaml:"camera"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes audit and telemetry rows older than this at
	// startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; state is still served over HTTP without it.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// WebDir serves the control panel from disk instead of the embedded copy.
	WebDir string `yaml:"web_dir"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
// Write is 0 by default because /video_feed is a never-ending response.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HardwareConfig describes the local buses and pin assignments (BCM numbering).
type HardwareConfig struct {
	I2C    I2CConfig    `yaml:"i2c"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	Keypad KeypadConfig `yaml:"keypad"`
	LEDs   LEDConfig    `yaml:"leds"`
	Buzzer int          `yaml:"buzzer"`
}

// I2CConfig holds the I2C bus number and device addresses.
type I2CConfig struct {
	Bus    int `yaml:"bus"`
	BME280 int `yaml:"bme280"`
	BH1750 int `yaml:"bh1750"`
	LCD    int `yaml:"lcd"`
}

// GPIOConfig configures sysfs GPIO access.
type GPIOConfig struct {
	// SysfsBase is added to BCM numbers (512 on recent Raspberry Pi kernels).
	SysfsBase int `yaml:"sysfs_base"`
	// PullDownCommand is run once per input pin to enable the pull-down
	// bias. "{pin}" is replaced with the BCM number. Empty disables it.
	PullDownCommand []string `yaml:"pull_down_command"`
}

// KeypadConfig holds the 4x4 matrix wiring.
type KeypadConfig struct {
	Rows []int `yaml:"rows"`
	Cols []int `yaml:"cols"`
}

// LEDConfig holds indicator LED pins.
type LEDConfig struct {
	Red   int `yaml:"red"`
	Green int `yaml:"green"`
	Blue  int `yaml:"blue"`
}

// TuyaConfig contains Tuya cloud credentials for the primary curtain.
type TuyaConfig struct {
	Endpoint    string `yaml:"endpoint"`
	AccessID    string `yaml:"access_id"`
	AccessKey   string `yaml:"access_key"`
	DeviceID    string `yaml:"device_id"`
	ControlCode string `yaml:"control_code"`
}

// SwitchBotConfig contains the SwitchBot gateway settings.
type SwitchBotConfig struct {
	BaseURL         string `yaml:"base_url"`
	Token           string `yaml:"token"`
	OwnerPassword   string `yaml:"owner_password"`
	HubDeviceID     string `yaml:"hub_device_id"`
	CurtainDeviceID string `yaml:"curtain_device_id"`
}

// CECConfig configures the cec-client bridge.
type CECConfig struct {
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args"`
	Device int      `yaml:"device"`
}

// InferenceConfig configures the AI inference service.
type InferenceConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ScheduleConfig holds the background loop periods in seconds
// (InputScan in milliseconds).
type ScheduleConfig struct {
	AutoControl   int `yaml:"auto_control"`
	Connectivity  int `yaml:"connectivity"`
	StatusPoll    int `yaml:"status_poll"`
	Logging       int `yaml:"logging"`
	Weather       int `yaml:"weather"`
	DisplayReset  int `yaml:"display_refresh"`
	InputScanMS   int `yaml:"input_scan_ms"`
	WarmupSeconds int `yaml:"projector_warmup"`
}

// AnnounceConfig configures voice announcements.
type AnnounceConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command []string `yaml:"command"`
}

// WeatherConfig configures the forecast scraper.
type WeatherConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// CameraConfig configures the MJPEG camera process.
type CameraConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	FPS     int      `yaml:"fps"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMESENSE_SECTION_KEY
// For example: HOMESENSE_DATABASE_PATH, HOMESENSE_TUYA_ACCESS_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the values the appliance ships with.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home-001",
			Name:     "HomeSense",
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Path:        "./data/homesense.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homesense-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read: 30,
				Idle: 60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hardware: HardwareConfig{
			I2C: I2CConfig{
				Bus:    1,
				BME280: 0x76,
				BH1750: 0x23,
				LCD:    0x3f,
			},
			GPIO: GPIOConfig{
				PullDownCommand: []string{"pinctrl", "set", "{pin}", "ip", "pd"},
			},
			Keypad: KeypadConfig{
				Rows: []int{26, 19, 13, 6},
				Cols: []int{21, 20, 16, 12},
			},
			LEDs: LEDConfig{
				Red:   17,
				Green: 27,
				Blue:  24,
			},
			Buzzer: 5,
		},
		Tuya: TuyaConfig{
			Endpoint:    "https://openapi.tuyaus.com",
			ControlCode: "percent_control",
		},
		CEC: CECConfig{
			Binary: "cec-client",
			Args:   []string{"-s", "-d", "1"},
			Device: 0,
		},
		Schedule: ScheduleConfig{
			AutoControl:   300,
			Connectivity:  60,
			StatusPoll:    30,
			Logging:       300,
			Weather:       1800,
			DisplayReset:  5,
			InputScanMS:   50,
			WarmupSeconds: 60,
		},
		Announce: AnnounceConfig{
			Command: []string{"espeak-ng", "-v", "en"},
		},
		Camera: CameraConfig{
			Binary: "rpicam-vid",
			Args:   []string{"-t", "0", "--nopreview", "--codec", "mjpeg", "--width", "640", "--height", "480", "-o", "-"},
			FPS:    10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets are expected here rather than in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMESENSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HOMESENSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMESENSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMESENSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HOMESENSE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("HOMESENSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HOMESENSE_TUYA_ACCESS_ID"); v != "" {
		cfg.Tuya.AccessID = v
	}
	if v := os.Getenv("HOMESENSE_TUYA_ACCESS_KEY"); v != "" {
		cfg.Tuya.AccessKey = v
	}

	if v := os.Getenv("HOMESENSE_SWITCHBOT_TOKEN"); v != "" {
		cfg.SwitchBot.Token = v
	}
	if v := os.Getenv("HOMESENSE_SWITCHBOT_PASSWORD"); v != "" {
		cfg.SwitchBot.OwnerPassword = v
	}

	if v := os.Getenv("HOMESENSE_INFERENCE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent checks
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(c.Hardware.Keypad.Rows) != 4 || len(c.Hardware.Keypad.Cols) != 4 {
		errs = append(errs, "hardware.keypad must have 4 rows and 4 cols")
	}

	if c.Tuya.DeviceID == "" {
		errs = append(errs, "tuya.device_id is required")
	}
	if c.Tuya.AccessID == "" || c.Tuya.AccessKey == "" {
		errs = append(errs, "tuya.access_id and tuya.access_key are required (set HOMESENSE_TUYA_ACCESS_ID / HOMESENSE_TUYA_ACCESS_KEY)")
	}

	if c.SwitchBot.BaseURL == "" {
		errs = append(errs, "switchbot.base_url is required")
	}

	if c.Inference.BaseURL == "" {
		errs = append(errs, "inference.base_url is required")
	} else if strings.HasSuffix(c.Inference.BaseURL, "/predict") {
		errs = append(errs, "inference.base_url must be the service root, not the /predict endpoint")
	}

	if c.Schedule.InputScanMS <= 0 {
		errs = append(errs, "schedule.input_scan_ms must be positive")
	}
	for name, v := range map[string]int{
		"auto_control":    c.Schedule.AutoControl,
		"connectivity":    c.Schedule.Connectivity,
		"status_poll":     c.Schedule.StatusPoll,
		"logging":         c.Schedule.Logging,
		"weather":         c.Schedule.Weather,
		"display_refresh": c.Schedule.DisplayReset,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("schedule.%s must be positive", name))
		}
	}

	if c.Weather.Enabled && c.Weather.URL == "" {
		errs = append(errs, "weather.url is required when weather is enabled")
	}
	if c.Announce.Enabled && len(c.Announce.Command) == 0 {
		errs = append(errs, "announce.command is required when announcements are enabled")
	}
	if c.Camera.Enabled && c.Camera.Binary == "" {
		errs = append(errs, "camera.binary is required when the camera is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Every converts a period in seconds to a Duration.
func Every(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
