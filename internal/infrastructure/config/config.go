package config

import (
	"cmp"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "HAPTICS_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/config.yaml"

// Config is the whole of config.yaml. Load layers it as defaults, then
// the file, then HAPTICS_* environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Hub       HubConfig       `yaml:"hub"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig locates the SQLite history store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig is the hub bridge's broker link.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig lists what browsers may call the API. No origins means any.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig tunes the event stream; intervals are seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig enables actuator output telemetry. FlushInterval is seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PlaybackConfig drives the pattern scheduler.
type PlaybackConfig struct {
	TickIntervalMS int    `yaml:"tick_interval_ms"`
	PatternsDir    string `yaml:"patterns_dir"` // *.csv files loaded at startup

	// Strict panics on scheduler bookkeeping errors instead of logging them.
	Strict bool `yaml:"strict"`

	QueueSize     int `yaml:"queue_size"`      // commands awaiting the dispatcher
	SendTimeoutMS int `yaml:"send_timeout_ms"` // per command
}

// HubConfig describes the device hub process hapticd may supervise.
type HubConfig struct {
	// Managed starts Binary as a child process. Otherwise the hub is
	// assumed to run elsewhere and only the MQTT link is used.
	Managed bool     `yaml:"managed"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int  `yaml:"max_restart_attempts"` // 0 = unlimited
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig signs API bearer tokens.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Path returns $HAPTICS_CONFIG, falling back to DefaultPath.
func Path() string {
	return cmp.Or(os.Getenv(EnvConfigPath), DefaultPath)
}

// Load reads the YAML file at path over the built-in defaults, applies
// HAPTICS_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	var c Config

	c.Database = DatabaseConfig{Path: "./data/haptics.db", WALMode: true, BusyTimeout: 5}

	c.MQTT.Broker = MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "hapticd"}
	c.MQTT.QoS = 1
	c.MQTT.Reconnect = MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60}
	c.MQTT.TopicPrefix = "haptics"

	c.API.Host, c.API.Port = "0.0.0.0", 8080
	c.API.Timeouts = APITimeoutConfig{Read: 30, Write: 30, Idle: 60}

	c.WebSocket = WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	c.InfluxDB.BatchSize, c.InfluxDB.FlushInterval = 500, 1
	c.Logging = LoggingConfig{Level: "info", Format: "json", Output: "stdout"}

	c.Playback = PlaybackConfig{
		TickIntervalMS: 10,
		PatternsDir:    "./patterns",
		QueueSize:      1024,
		SendTimeoutMS:  2000,
	}
	c.Hub.RestartOnFailure = true
	c.Hub.RestartDelaySeconds = 5
	c.Hub.MaxRestartAttempts = 10
	c.Security.JWT.AccessTokenTTL = 60

	return &c
}

// applyEnvOverrides copies each set HAPTICS_* variable into cfg.
// Numeric variables that do not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	for _, apply := range envOverrides(cfg) {
		apply()
	}
}

func envOverrides(cfg *Config) []func() {
	str := func(name string, dst *string) func() {
		return func() {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}
	}
	num := func(name string, dst *int) func() {
		return func() {
			if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
				*dst = n
			}
		}
	}

	return []func(){
		str("HAPTICS_DATABASE_PATH", &cfg.Database.Path),
		str("HAPTICS_MQTT_HOST", &cfg.MQTT.Broker.Host),
		num("HAPTICS_MQTT_PORT", &cfg.MQTT.Broker.Port),
		str("HAPTICS_MQTT_USERNAME", &cfg.MQTT.Auth.Username),
		str("HAPTICS_MQTT_PASSWORD", &cfg.MQTT.Auth.Password),
		str("HAPTICS_API_HOST", &cfg.API.Host),
		num("HAPTICS_API_PORT", &cfg.API.Port),
		str("HAPTICS_INFLUXDB_TOKEN", &cfg.InfluxDB.Token),
		str("HAPTICS_PATTERNS_DIR", &cfg.Playback.PatternsDir),
		str("HAPTICS_LOG_LEVEL", &cfg.Logging.Level),
		// Keep the signing secret out of config.yaml in production.
		str("HAPTICS_JWT_SECRET", &cfg.Security.JWT.Secret),
	}
}

// minJWTSecretLength is the shortest accepted signing secret. A forged
// token can drive every connected actuator.
const minJWTSecretLength = 32

// Validate reports every problem in c at once, joined with "; ".
func (c *Config) Validate() error {
	var problems []string
	check := func(bad bool, msg string) {
		if bad {
			problems = append(problems, msg)
		}
	}

	check(c.Database.Path == "", "database.path is required")

	check(c.MQTT.QoS < 0 || c.MQTT.QoS > 2, "mqtt.qos must be 0, 1, or 2")
	prefix := strings.TrimSpace(c.MQTT.TopicPrefix)
	check(prefix == "", "mqtt.topic_prefix is required")
	check(strings.ContainsAny(prefix, "+#"), "mqtt.topic_prefix must not contain wildcards")

	check(c.API.Port < 1 || c.API.Port > 65535, "api.port must be between 1 and 65535")
	check(c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == ""),
		"api.tls.cert_file and api.tls.key_file are required when TLS is enabled")

	check(c.InfluxDB.Enabled && c.InfluxDB.URL == "", "influxdb.url is required when influxdb is enabled")

	check(c.Playback.TickIntervalMS < 1 || c.Playback.TickIntervalMS > 1000,
		"playback.tick_interval_ms must be between 1 and 1000")
	check(c.Playback.QueueSize < 1, "playback.queue_size must be positive")
	check(c.Playback.SendTimeoutMS < 1, "playback.send_timeout_ms must be positive")

	check(c.Hub.Managed && c.Hub.Binary == "", "hub.binary is required when hub.managed is true")
	check(c.Hub.RestartDelaySeconds < 0, "hub.restart_delay_seconds must not be negative")

	secret := c.Security.JWT.Secret
	check(secret == "", "security.jwt.secret is required (set HAPTICS_JWT_SECRET)")
	check(secret != "" && len(secret) < minJWTSecretLength,
		fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength))

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func seconds(n int) time.Duration      { return time.Duration(n) * time.Second }
func milliseconds(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// GetReadTimeout returns api.timeouts.read.
func (c *Config) GetReadTimeout() time.Duration { return seconds(c.API.Timeouts.Read) }

// GetWriteTimeout returns api.timeouts.write.
func (c *Config) GetWriteTimeout() time.Duration { return seconds(c.API.Timeouts.Write) }

// GetIdleTimeout returns api.timeouts.idle.
func (c *Config) GetIdleTimeout() time.Duration { return seconds(c.API.Timeouts.Idle) }

// GetTickInterval returns the scheduler sampling period.
func (c *Config) GetTickInterval() time.Duration { return milliseconds(c.Playback.TickIntervalMS) }

// GetSendTimeout returns the per-command delivery bound.
func (c *Config) GetSendTimeout() time.Duration { return milliseconds(c.Playback.SendTimeoutMS) }

// GetAccessTokenTTL returns the bearer token lifetime.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
