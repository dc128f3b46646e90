// Package mirror implements the 'binal mirror' command: a headless peer that
// connects to a sync server and keeps a local copy of its objects.
package mirror

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/binal-re/binal/internal/cli/helpers"
	"github.com/binal-re/binal/internal/config"
	binerrors "github.com/binal-re/binal/internal/errors"
	"github.com/binal-re/binal/internal/lower"
	"github.com/binal-re/binal/internal/native"
	"github.com/binal-re/binal/internal/peer"
	"github.com/binal-re/binal/internal/poller"
	"github.com/binal-re/binal/internal/project"
	"github.com/binal-re/binal/internal/retry"
	"github.com/binal-re/binal/internal/wire"
)

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	var (
		projectPath   string
		syncOnConnect bool
	)

	cmd := &cobra.Command{
		Use:   "mirror [endpoint]",
		Short: "Mirror a sync server into a local project",
		Long: `Connect to a sync server and mirror its objects.

The mirror receives the server's initial sync and every later change. With
--project the mirrored view is loaded from and saved to a local DuckDB project
database, and --sync-on-connect pushes the loaded objects back to the server
after each connect. A dropped connection is re-established with backoff.

The endpoint is host:port, tcp://host:port, ws://host:port/path or
wss://host:port/path. It defaults to peer.endpoint from the config.

Examples:
  binal mirror 10.0.0.5:12007
  binal mirror ws://re-server:12008/sync --project ./team.duckdb
  binal mirror --project ./seed.duckdb --sync-on-connect`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				cfg.Peer.Endpoint = args[0]
			}
			if cmd.Flags().Changed("sync-on-connect") {
				cfg.Peer.SyncOnConnect = syncOnConnect
			}
			if cfg.Peer.Endpoint == "" {
				return fmt.Errorf("no endpoint given and peer.endpoint is not configured")
			}
			if err := config.ValidateEndpoint(cfg.Peer.Endpoint); err != nil {
				return err
			}
			if projectPath != "" {
				projectPath = loader.ResolvePath(projectPath)
			}

			logger := helpers.NewLogger(cfg, "mirror")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, cfg, projectPath, logger)
		},
	}

	helpers.AddProjectFlag(cmd, &projectPath)
	cmd.Flags().BoolVar(&syncOnConnect, "sync-on-connect", false, "Push the local view to the server after connecting")

	return cmd
}

// PeerConfig converts the peer section of cfg.
func PeerConfig(cfg *config.GlobalConfig) peer.Config {
	pc := peer.DefaultConfig(cfg.Peer.Endpoint)
	pc.BatchSize = cfg.Server.BatchSize
	pc.SyncOnConnect = cfg.Peer.SyncOnConnect
	pc.Retry = retry.Config{
		MaxRetries:     cfg.Peer.MaxRetries,
		InitialBackoff: cfg.Peer.InitialBackoff,
		MaxBackoff:     cfg.Peer.MaxBackoff,
		Jitter:         0.1,
	}
	pc.Transport = wire.Options{
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		WriteTimeout:  cfg.Server.WriteTimeout,
	}
	return pc
}

// Run mirrors until ctx is cancelled or the server cannot be reached. An empty
// projectPath keeps the mirror in memory only.
func Run(ctx context.Context, cfg *config.GlobalConfig, projectPath string, logger zerolog.Logger) error {
	view := native.NewMemView()

	if projectPath == "" {
		return mirror(ctx, view, PeerConfig(cfg), logger)
	}

	store, err := project.Open(projectPath, logger)
	if err != nil {
		return err
	}
	defer binerrors.DeferClose(logger, store, "failed to close project")

	n, err := store.LoadInto(ctx, view)
	switch {
	case lower.IsUnresolved(err):
		logger.Warn().Err(err).Msg("Project contains unresolved entries")
	case err != nil:
		return err
	}
	logger.Info().Str("path", projectPath).Int("objects", n).Msg("Project loaded")

	checkpointer := project.NewCheckpointer(store, view, logger)
	checkpoints := poller.NewBasePoller(ctx, poller.Config{
		Name:         "project_checkpoint",
		PollInterval: cfg.Project.CheckpointInterval,
		Logger:       logger,
	})
	if err := checkpoints.Start(checkpointer); err != nil {
		return fmt.Errorf("failed to start checkpoints: %w", err)
	}

	runErr := mirror(ctx, view, PeerConfig(cfg), logger)

	if err := checkpoints.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error stopping checkpoint poller")
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := checkpointer.Flush(flushCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to save project")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// mirror keeps one peer session alive at a time, redialing after a dropped
// connection.
func mirror(ctx context.Context, view native.View, cfg peer.Config, logger zerolog.Logger) error {
	for {
		p, err := peer.Dial(ctx, view, cfg, logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = p.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Err(err).Str("endpoint", cfg.Endpoint).Msg("Connection lost, reconnecting")
	}
}
