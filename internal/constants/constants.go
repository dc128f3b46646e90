// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".binal"

	// DefaultProjectPath is the project database, relative to the home directory.
	DefaultProjectPath = DefaultDir + "/" + "project.duckdb"

	// DefaultListen is the loopback address the sync server binds to.
	DefaultListen = "127.0.0.1:12007"

	// DefaultWebSocketPath is the HTTP path of the WebSocket upgrade endpoint.
	DefaultWebSocketPath = "/sync"
)
