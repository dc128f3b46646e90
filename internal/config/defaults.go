package config

import (
	"github.com/binal-re/binal/internal/constants"
)

// DefaultGlobalConfig returns a global config with sensible defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: SchemaVersion,
		Server: ServerConfig{
			Listen:          constants.DefaultListen,
			WebSocketPath:   constants.DefaultWebSocketPath,
			BatchSize:       constants.DefaultBatchSize,
			MaxFrameBytes:   constants.DefaultMaxFrameBytes,
			WriteTimeout:    constants.DefaultWriteTimeout,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
		},
		Peer: PeerConfig{
			Endpoint:       constants.DefaultListen,
			MaxRetries:     constants.DefaultMaxRetries,
			InitialBackoff: constants.DefaultInitialBackoff,
			MaxBackoff:     constants.DefaultMaxBackoff,
		},
		Project: ProjectConfig{
			Path:               constants.DefaultProjectPath,
			CheckpointInterval: constants.DefaultCheckpointInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
