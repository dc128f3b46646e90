// Package serve implements the 'binal serve' command: a standalone sync server
// that hosts an in-memory view, persists it to a project database and relays
// changes between every connected decompiler.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/binal-re/binal/internal/cli/helpers"
	"github.com/binal-re/binal/internal/config"
	"github.com/binal-re/binal/internal/coordinator"
	binerrors "github.com/binal-re/binal/internal/errors"
	"github.com/binal-re/binal/internal/lower"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/poller"
	"github.com/binal-re/binal/internal/project"
	"github.com/binal-re/binal/internal/wire"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		listen      string
		wsListen    string
		wsPath      string
		projectPath string
		noProject   bool
		batchSize   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a sync server",
		Long: `Run a standalone sync server.

The server keeps every object pushed by its clients, relays each change to all
other clients and saves the result to a DuckDB project database, so a restarted
server hands the same state to the next client that connects.

Clients connect with newline-delimited JSON over TCP, or over WebSocket when
--ws-listen is set.

Environment Variables:
  BINAL_LISTEN       - TCP listen address (default: 127.0.0.1:12007)
  BINAL_WS_LISTEN    - WebSocket listen address (disabled by default)
  BINAL_PROJECT      - Project database path (default: ~/.binal/project.duckdb)
  BINAL_BATCH_SIZE   - Objects per push frame (default: 50)

Examples:
  binal serve
  binal serve --listen 0.0.0.0:12007 --ws-listen 0.0.0.0:12008
  binal serve --no-project`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}

			cmd.Flags().Visit(func(f *pflag.Flag) {
				switch f.Name {
				case "listen":
					cfg.Server.Listen = listen
				case "ws-listen":
					cfg.Server.WebSocketListen = wsListen
				case "ws-path":
					cfg.Server.WebSocketPath = wsPath
				case "project":
					cfg.Project.Path = projectPath
				case "no-project":
					cfg.Project.Disabled = noProject
				case "batch-size":
					cfg.Server.BatchSize = batchSize
				}
			})

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := helpers.NewLogger(cfg, "serve")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, loader, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "TCP listen address")
	cmd.Flags().StringVar(&wsListen, "ws-listen", "", "WebSocket listen address")
	cmd.Flags().StringVar(&wsPath, "ws-path", "", "WebSocket upgrade path")
	helpers.AddProjectFlag(cmd, &projectPath)
	cmd.Flags().BoolVar(&noProject, "no-project", false, "Do not load or save a project database")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Objects per push frame")

	return cmd
}

// Run serves until ctx is cancelled.
func Run(ctx context.Context, loader *config.Loader, cfg *config.GlobalConfig, logger zerolog.Logger) error {
	view := native.NewMemView()

	var store *project.Store
	if !cfg.Project.Disabled {
		path := loader.ResolvePath(cfg.Project.Path)
		s, err := project.Open(path, logger)
		if err != nil {
			return err
		}
		defer binerrors.DeferClose(logger, s, "failed to close project")
		store = s

		n, err := store.LoadInto(ctx, view)
		switch {
		case lower.IsUnresolved(err):
			logger.Warn().Err(err).Msg("Project contains unresolved entries")
		case err != nil:
			return err
		}
		logger.Info().Str("path", path).Int("objects", n).Msg("Project loaded")
	}

	listeners, err := listen(cfg, logger)
	if err != nil {
		return err
	}

	coord := coordinator.New(view, coordinator.Config{BatchSize: cfg.Server.BatchSize}, logger, listeners...)

	if store == nil {
		return coord.Run(ctx)
	}

	checkpointer := project.NewCheckpointer(store, view, logger)
	checkpoints := poller.NewBasePoller(ctx, poller.Config{
		Name:         "project_checkpoint",
		PollInterval: cfg.Project.CheckpointInterval,
		Logger:       logger,
	})
	if err := checkpoints.Start(checkpointer); err != nil {
		return fmt.Errorf("failed to start checkpoints: %w", err)
	}

	runErr := coord.Run(ctx)

	if err := checkpoints.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error stopping checkpoint poller")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := checkpointer.Flush(flushCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to save project on shutdown")
		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}

func listen(cfg *config.GlobalConfig, logger zerolog.Logger) ([]wire.Listener, error) {
	opts := wire.Options{
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		WriteTimeout:  cfg.Server.WriteTimeout,
	}

	tcp, err := wire.ListenTCP(cfg.Server.Listen, opts)
	if err != nil {
		return nil, err
	}
	listeners := []wire.Listener{tcp}

	if cfg.Server.WebSocketListen != "" {
		ws, err := wire.ListenWebSocket(cfg.Server.WebSocketListen, cfg.Server.WebSocketPath, opts, logger)
		if err != nil {
			_ = tcp.Close()
			return nil, err
		}
		listeners = append(listeners, ws)
	}

	return listeners, nil
}
