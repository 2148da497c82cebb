package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// filePermissions is the mode used when the admin surface persists config.
const filePermissions = 0600

// Config is the root configuration structure for the web mixer.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Debug       bool             `yaml:"debug"`
	Server      ServerConfig     `yaml:"server"`
	OSC         OSCConfig        `yaml:"osc"`
	Desk        DeskConfig       `yaml:"desk"`
	External    []EndpointConfig `yaml:"external"`
	Channels    []ChannelConfig  `yaml:"channels"`
	Auxiliaries []AuxConfig      `yaml:"auxiliaries"`
	Sequencer   SequencerConfig  `yaml:"sequencer"`
	WebSocket   WebSocketConfig  `yaml:"websocket"`
	Logging     LoggingConfig    `yaml:"logging"`
	MQTT        MQTTConfig       `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig   `yaml:"influxdb"`
	Database    DatabaseConfig   `yaml:"database"`
	Plugins     PluginsConfig    `yaml:"plugins"`

	// FirstRun is set by Load when no config file existed yet.
	FirstRun bool `yaml:"-"`
}

// ServerConfig contains HTTP server settings for the mixer UI and admin area.
type ServerConfig struct {
	Host      string              `yaml:"host"`
	Port      int                 `yaml:"port"`
	StaticDir string              `yaml:"static_dir"`
	Timeouts  ServerTimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig          `yaml:"cors"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// OSCConfig contains the local UDP listener settings.
type OSCConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	BufferSize int    `yaml:"buffer_size"`
}

// DeskConfig is the address of the mixing desk.
type DeskConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EndpointConfig is an external UDP relay destination.
type EndpointConfig struct {
	Name      string `yaml:"name" json:"name"`
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Broadcast bool   `yaml:"broadcast" json:"broadcast"`
	Loopback  bool   `yaml:"loopback" json:"loopback"`
}

// ChannelConfig overrides how one input channel is shown to clients.
// Nil pointers mean "use the default".
type ChannelConfig struct {
	Channel int    `yaml:"channel" json:"channel"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Order   *int   `yaml:"order,omitempty" json:"order,omitempty"`
	Title   string `yaml:"title,omitempty" json:"title,omitempty"`
	Icon    string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// AuxConfig overrides how one auxiliary bus is shown to clients.
type AuxConfig struct {
	Aux     int    `yaml:"aux" json:"aux"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Colour  string `yaml:"colour,omitempty" json:"colour,omitempty"`
	Icon    string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// SequencerConfig contains desk initialisation timings.
type SequencerConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	PrimeInterval time.Duration `yaml:"prime_interval"`
	EventBuffer   int           `yaml:"event_buffer"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	SendBuffer     int    `yaml:"send_buffer"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains the optional state mirror broker settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains the SQLite control history settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// PluginsConfig enables and parameterises the built-in plugins.
type PluginsConfig struct {
	AbletonStreamDeck AbletonStreamDeckConfig `yaml:"ableton_streamdeck"`
	CopyChannelLabels CopyChannelLabelsConfig `yaml:"copy_channel_labels"`
	AuxLeadVolume     AuxLeadVolumeConfig     `yaml:"aux_lead_volume"`
	StreamDeckLabels  StreamDeckLabelsConfig  `yaml:"streamdeck_labels"`
}

// AbletonStreamDeckConfig maps key changes from Ableton to StreamDeck presses.
type AbletonStreamDeckConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Marker   string   `yaml:"marker"`
	Endpoint string   `yaml:"endpoint"`
	Presses  []string `yaml:"presses"`
}

// CopyChannelLabelsConfig mirrors channel names from one channel to another.
type CopyChannelLabelsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Mapping map[int]int `yaml:"mapping"`
}

// AuxLeadVolumeConfig lifts vocals in the monitor mixes while they are in the lead group.
type AuxLeadVolumeConfig struct {
	Enabled  bool        `yaml:"enabled"`
	Group    int         `yaml:"group"`
	Shift    float64     `yaml:"shift"`
	Pan      float64     `yaml:"pan"`
	Auxes    []int       `yaml:"auxes"`
	Channels map[int]int `yaml:"channels"`
}

// StreamDeckLabelsConfig pushes channel names to StreamDeck buttons.
type StreamDeckLabelsConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Endpoint string         `yaml:"endpoint"`
	Suffix   string         `yaml:"suffix"`
	Buttons  map[int]string `yaml:"buttons"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file is a first run
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WEBMIXER_SECTION_KEY
// For example: WEBMIXER_DESK_HOST, WEBMIXER_SERVER_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg.FirstRun = true
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path as YAML, creating the directory if needed.
// It is the persistence hook used after admin edits.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 80,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  120,
			},
		},
		OSC: OSCConfig{
			Host:       "0.0.0.0",
			Port:       8000,
			BufferSize: 65535,
		},
		Desk: DeskConfig{
			Host: "192.168.0.5",
			Port: 9000,
		},
		External: []EndpointConfig{},
		Sequencer: SequencerConfig{
			RetryInterval: 3 * time.Second,
			PrimeInterval: 100 * time.Millisecond,
			EventBuffer:   1024,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			SendBuffer:     256,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "webmixer",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "webmixer",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "webmixer",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:          "./data/webmixer.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		Plugins: PluginsConfig{
			AbletonStreamDeck: AbletonStreamDeckConfig{
				Marker:   "/Note1",
				Endpoint: "StreamDeck",
				Presses: []string{
					"/location/2/0/0/press", // C
					"/location/2/0/1/press", // C#
					"/location/2/0/2/press", // Db
					"/location/2/1/0/press", // D
					"/location/2/1/1/press", // D#
					"/location/3/0/0/press", // Eb
					"/location/3/0/1/press", // E
					"/location/3/0/2/press", // F
					"/location/3/1/0/press", // F#
					"/location/3/1/1/press", // Gb
					"/location/4/0/0/press", // G
					"/location/4/0/1/press", // G#
					"/location/4/0/2/press", // Ab
					"/location/4/1/0/press", // A
					"/location/4/1/1/press", // A#
					"/location/5/0/0/press", // Bb
					"/location/5/0/1/press", // B
				},
			},
			CopyChannelLabels: CopyChannelLabelsConfig{
				Mapping: map[int]int{26: 1},
			},
			AuxLeadVolume: AuxLeadVolumeConfig{
				Group: 4,
				Shift: 3,
				Pan:   0.5,
				Auxes: []int{1, 2, 4, 5},
				Channels: map[int]int{
					26: 41,
					27: 42,
					28: 43,
					29: 44,
					30: 45,
				},
			},
			StreamDeckLabels: StreamDeckLabelsConfig{
				Endpoint: "StreamDeck",
				Suffix:   "Autotune",
				Buttons: map[int]string{
					26: "1/0/0",
					27: "1/0/1",
					28: "1/0/2",
					29: "1/1/0",
				},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WEBMIXER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBMIXER_DEBUG"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}

	// Server
	if v := os.Getenv("WEBMIXER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if port, ok := envPort("WEBMIXER_SERVER_PORT"); ok {
		cfg.Server.Port = port
	}

	// OSC listener
	if port, ok := envPort("WEBMIXER_OSC_PORT"); ok {
		cfg.OSC.Port = port
	}

	// Desk
	if v := os.Getenv("WEBMIXER_DESK_HOST"); v != "" {
		cfg.Desk.Host = v
	}
	if port, ok := envPort("WEBMIXER_DESK_PORT"); ok {
		cfg.Desk.Port = port
	}

	// MQTT
	if v := os.Getenv("WEBMIXER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WEBMIXER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WEBMIXER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WEBMIXER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("WEBMIXER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// envPort reads a port number from the environment, ignoring unparsable values.
func envPort(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return port, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if !validPort(c.Server.Port) {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !validPort(c.OSC.Port) {
		errs = append(errs, "osc.port must be between 1 and 65535")
	}
	if c.Desk.Host == "" {
		errs = append(errs, "desk.host is required")
	}
	if !validPort(c.Desk.Port) {
		errs = append(errs, "desk.port must be between 1 and 65535")
	}

	for i, ep := range c.External {
		if ep.Host == "" {
			errs = append(errs, fmt.Sprintf("external[%d].host is required", i))
		}
		if !validPort(ep.Port) {
			errs = append(errs, fmt.Sprintf("external[%d].port must be between 1 and 65535", i))
		}
	}
	for i, ch := range c.Channels {
		if ch.Channel < 1 {
			errs = append(errs, fmt.Sprintf("channels[%d].channel must be 1 or greater", i))
		}
	}
	for i, aux := range c.Auxiliaries {
		if aux.Aux < 1 {
			errs = append(errs, fmt.Sprintf("auxiliaries[%d].aux must be 1 or greater", i))
		}
	}

	if c.Sequencer.RetryInterval <= 0 {
		errs = append(errs, "sequencer.retry_interval must be positive")
	}
	if c.Sequencer.PrimeInterval <= 0 {
		errs = append(errs, "sequencer.prime_interval must be positive")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// LogLevel returns the effective log level; debug mode forces "debug".
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.Logging.Level
}
