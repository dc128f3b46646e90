package config

import "time"

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// GlobalConfig represents ~/.binal/config.yaml.
type GlobalConfig struct {
	Version string        `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	Peer    PeerConfig    `yaml:"peer"`
	Project ProjectConfig `yaml:"project"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains settings for `binal serve`.
type ServerConfig struct {
	// Listen is the newline-framed TCP listen address.
	Listen string `yaml:"listen" env:"BINAL_LISTEN"`

	// WebSocketListen enables the WebSocket listener when set.
	WebSocketListen string `yaml:"websocket_listen,omitempty" env:"BINAL_WS_LISTEN"`
	WebSocketPath   string `yaml:"websocket_path,omitempty" env:"BINAL_WS_PATH"`

	BatchSize       int           `yaml:"batch_size" env:"BINAL_BATCH_SIZE"`
	MaxFrameBytes   int           `yaml:"max_frame_bytes" env:"BINAL_MAX_FRAME_BYTES"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"BINAL_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"BINAL_SHUTDOWN_TIMEOUT"`
}

// PeerConfig contains settings for `binal mirror`.
type PeerConfig struct {
	// Endpoint is host:port, tcp://host:port or ws://host:port/path.
	Endpoint       string        `yaml:"endpoint,omitempty" env:"BINAL_ENDPOINT"`
	SyncOnConnect  bool          `yaml:"sync_on_connect" env:"BINAL_SYNC_ON_CONNECT"`
	MaxRetries     int           `yaml:"max_retries" env:"BINAL_MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"BINAL_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"BINAL_MAX_BACKOFF"`
}

// ProjectConfig contains project store settings.
type ProjectConfig struct {
	// Path is the DuckDB project file. Relative paths are resolved against the
	// config base directory.
	Path               string        `yaml:"path" env:"BINAL_PROJECT"`
	Disabled           bool          `yaml:"disabled" env:"BINAL_PROJECT_DISABLED"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" env:"BINAL_CHECKPOINT_INTERVAL"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BINAL_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"BINAL_LOG_PRETTY"`
}
