// YAML config loader with CUE validation and environment overrides
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Location is a named position such as a robot's home.
type Location struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Robot declares one robot to monitor.
type Robot struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Model     string   `yaml:"model"`
	StreamURL string   `yaml:"stream_url"`
	Home      Location `yaml:"home"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MonitorConfig tunes ingest and the periodic sweep.
type MonitorConfig struct {
	TickInterval             time.Duration     `yaml:"tick_interval" env:"ROBOTOPS_TICK_INTERVAL"`
	OfflineAfter             time.Duration     `yaml:"offline_after" env:"ROBOTOPS_OFFLINE_AFTER"`
	LowBatteryThreshold      float64           `yaml:"low_battery_threshold" env:"ROBOTOPS_LOW_BATTERY_THRESHOLD"`
	DetectionTTL             time.Duration     `yaml:"detection_ttl" env:"ROBOTOPS_DETECTION_TTL"`
	DetectionAlertConfidence float64           `yaml:"detection_alert_confidence" env:"ROBOTOPS_DETECTION_ALERT_CONFIDENCE"`
	DetectionAlertClasses    map[string]string `yaml:"detection_alert_classes"`
}

// StreamConfig tunes viewer feeds.
type StreamConfig struct {
	Source               string        `yaml:"source" env:"ROBOTOPS_STREAM_SOURCE"`
	MaxRetries           int           `yaml:"max_retries" env:"ROBOTOPS_STREAM_MAX_RETRIES"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	AutoRetry            bool          `yaml:"auto_retry" env:"ROBOTOPS_STREAM_AUTO_RETRY"`
	RetryBackoff         time.Duration `yaml:"retry_backoff"`
	SimulatedDelay       time.Duration `yaml:"simulated_delay"`
	SimulatedFailureRate float64       `yaml:"simulated_failure_rate"`
}

// OverlayConfig tunes detection overlays.
type OverlayConfig struct {
	Threshold   float64           `yaml:"threshold" env:"ROBOTOPS_OVERLAY_THRESHOLD"`
	ClassStyles map[string]string `yaml:"class_styles"`
}

// TeleopConfig tunes command channels.
type TeleopConfig struct {
	Cadence          time.Duration `yaml:"cadence"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	DiscreteAttempts int           `yaml:"discrete_attempts"`
}

// SimulatorConfig drives the built-in demo fleet.
type SimulatorConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ROBOTOPS_SIMULATOR"`
	Interval  time.Duration `yaml:"interval"`
	Intruders int           `yaml:"intruders"`
	Seed      int64         `yaml:"seed"`
}

// AdminConfig configures the HTTP surface.
type AdminConfig struct {
	Addr string `yaml:"addr" env:"ROBOTOPS_ADMIN_ADDR"`
}

// MQTTConfig configures the broker transport.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"MQTT_ENABLED"`
	Broker      string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID    string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"MQTT_TOPIC_PREFIX"`
	Username    string `yaml:"username" env:"MQTT_USERNAME"`
	Password    string `yaml:"password" env:"MQTT_PASSWORD"`
}

// FileSinkConfig enables JSONL sinks; empty paths are skipped.
type FileSinkConfig struct {
	Telemetry string `yaml:"telemetry"`
	Alerts    string `yaml:"alerts"`
	Commands  string `yaml:"commands"`
	Events    string `yaml:"events" env:"ROBOTOPS_EVENT_LOG"`
}

// GreptimeConfig configures the GreptimeDB sink.
type GreptimeConfig struct {
	Enabled        bool   `yaml:"enabled" env:"GREPTIMEDB_ENABLED"`
	Host           string `yaml:"host" env:"GREPTIMEDB_HOST"`
	Port           int    `yaml:"port" env:"GREPTIMEDB_PORT"`
	Database       string `yaml:"database" env:"GREPTIMEDB_DATABASE"`
	TelemetryTable string `yaml:"telemetry_table" env:"GREPTIMEDB_TABLE"`
	AlertTable     string `yaml:"alert_table" env:"GREPTIMEDB_ALERT_TABLE"`
	CommandTable   string `yaml:"command_table" env:"GREPTIMEDB_COMMAND_TABLE"`
}

// KafkaConfig configures the Kafka export sink.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers        []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	TelemetryTopic string   `yaml:"telemetry_topic" env:"KAFKA_TELEMETRY_TOPIC"`
	AlertTopic     string   `yaml:"alert_topic" env:"KAFKA_ALERT_TOPIC"`
	CommandTopic   string   `yaml:"command_topic" env:"KAFKA_COMMAND_TOPIC"`
}

// SinkConfig lists the enabled record sinks.
type SinkConfig struct {
	Stdout   bool           `yaml:"stdout" env:"ROBOTOPS_STDOUT_SINK"`
	File     FileSinkConfig `yaml:"file"`
	Greptime GreptimeConfig `yaml:"greptime"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Stream    StreamConfig    `yaml:"stream"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Teleop    TeleopConfig    `yaml:"teleop"`
	Robots    []Robot         `yaml:"robots"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Admin     AdminConfig     `yaml:"admin"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Sinks     SinkConfig      `yaml:"sinks"`
}

// Load reads configPath, validates it against the CUE schema at schemaPath,
// applies environment overrides and fills defaults. An empty schemaPath skips
// schema validation.
func Load(configPath, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if schemaPath != "" {
		schema, err := os.ReadFile(schemaPath)
		if err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		if err := Validate(configPath, data, schema); err != nil {
			return nil, err
		}
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	m := &c.Monitor
	if m.TickInterval <= 0 {
		m.TickInterval = time.Second
	}
	if m.OfflineAfter <= 0 {
		m.OfflineAfter = 30 * time.Second
	}
	if m.LowBatteryThreshold <= 0 {
		m.LowBatteryThreshold = 50
	}
	if m.DetectionTTL <= 0 {
		m.DetectionTTL = time.Second
	}
	if m.DetectionAlertConfidence <= 0 {
		m.DetectionAlertConfidence = 0.8
	}
	if m.DetectionAlertClasses == nil {
		m.DetectionAlertClasses = map[string]string{
			"person": "human",
			"human":  "human",
			"dog":    "animal",
			"cat":    "animal",
			"animal": "animal",
		}
	}
	s := &c.Stream
	if s.Source == "" {
		s.Source = "probe"
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = 5 * time.Second
	}
	if s.RetryBackoff <= 0 {
		s.RetryBackoff = 2 * time.Second
	}
	if s.SimulatedDelay <= 0 {
		s.SimulatedDelay = 300 * time.Millisecond
	}
	t := &c.Teleop
	if t.Cadence <= 0 {
		t.Cadence = 150 * time.Millisecond
	}
	if t.CommandTimeout <= 0 {
		t.CommandTimeout = 500 * time.Millisecond
	}
	if t.DiscreteAttempts <= 0 {
		t.DiscreteAttempts = 1
	}
	if c.Simulator.Interval <= 0 {
		c.Simulator.Interval = time.Second
	}
	if c.Simulator.Intruders <= 0 {
		c.Simulator.Intruders = 3
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = ":8080"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "robotops"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "robotops-monitor"
	}
	g := &c.Sinks.Greptime
	if g.Port == 0 {
		g.Port = 4001
	}
	if g.Database == "" {
		g.Database = "public"
	}
	if g.TelemetryTable == "" {
		g.TelemetryTable = "robot_telemetry"
	}
	if g.AlertTable == "" {
		g.AlertTable = "robot_alerts"
	}
	if g.CommandTable == "" {
		g.CommandTable = "teleop_commands"
	}
	k := &c.Sinks.Kafka
	if k.TelemetryTopic == "" {
		k.TelemetryTopic = "robot-telemetry"
	}
	if k.AlertTopic == "" {
		k.AlertTopic = "robot-alerts"
	}
	if k.CommandTopic == "" {
		k.CommandTopic = "teleop-commands"
	}
}
