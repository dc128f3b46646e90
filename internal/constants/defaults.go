// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Ports - Service port defaults.
const (
	// DefaultPort is the TCP port of the sync server.
	DefaultPort = 12007
)

// Sync - Default synchronization settings.
const (
	// DefaultBatchSize is the number of objects sent per push frame.
	DefaultBatchSize = 50

	// DefaultMaxFrameBytes bounds one inbound frame.
	DefaultMaxFrameBytes = 16 * 1024 * 1024

	// DefaultInboundQueue is the capacity of the coordinator's inbound frame channel.
	DefaultInboundQueue = 64
)

// Timeouts - Default timeout values.
const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of the sync server.
	DefaultShutdownTimeout = 5 * time.Second
)

// Retry - Default reconnect settings for the dialing peer.
const (
	DefaultMaxRetries = 5

	DefaultInitialBackoff = 200 * time.Millisecond

	DefaultMaxBackoff = 5 * time.Second
)

// Project - Default project store settings.
const (
	// DefaultCheckpointInterval is how often a dirty view is saved to the project store.
	DefaultCheckpointInterval = 30 * time.Second
)
