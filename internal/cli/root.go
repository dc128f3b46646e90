// Package cli wires the binal command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binal-re/binal/internal/cli/config"
	"github.com/binal-re/binal/internal/cli/helpers"
	"github.com/binal-re/binal/internal/cli/mirror"
	"github.com/binal-re/binal/internal/cli/project"
	"github.com/binal-re/binal/internal/cli/serve"
	"github.com/binal-re/binal/pkg/version"
)

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "binal",
		Short: "binal - live type and symbol sync between decompilers",
		Long: `Keep the types, functions and globals of several reverse-engineering
sessions in sync.

Every session connects to one sync server. A change made in any session is
lifted into a portable object, sent to the server, relayed to every other
session and lowered back into that session's native type system.

Commands:
- serve:   standalone sync server with a DuckDB project database
- mirror:  headless client that mirrors a server into a local project
- project: inspect, import and export project databases`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(mirror.NewMirrorCmd())
	rootCmd.AddCommand(project.NewProjectCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	var format string

	supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}

			info := version.Get()
			if format == string(helpers.FormatJSON) {
				return (&helpers.JSONFormatter{}).Format(info, cmd.OutOrStdout())
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "binal version %s\n", info.Version)
			_, _ = fmt.Fprintf(w, "Git commit: %s\n", info.GitCommit)
			_, _ = fmt.Fprintf(w, "Build date: %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
			_, _ = fmt.Fprintf(w, "Platform: %s\n", info.Platform)
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supported)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
