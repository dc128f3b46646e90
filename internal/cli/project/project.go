// Package project implements the 'binal project' command family for inspecting
// and editing project databases offline.
package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/binal-re/binal/internal/cli/helpers"
	binerrors "github.com/binal-re/binal/internal/errors"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/project"
)

// NewProjectCmd creates the project command and its subcommands.
func NewProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect and edit project databases",
		Long: `Inspect and edit project databases.

A project database holds the objects a sync server or mirror saved. The
commands here work on the file directly; 'ls' and 'export' open it read-only
and may run while a server holds it.`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

type entryRow struct {
	Name    string    `header:"NAME" json:"name"`
	Kind    string    `header:"KIND" json:"kind"`
	Digest  string    `header:"DIGEST" json:"digest"`
	Updated time.Time `header:"UPDATED" json:"updated_at"`
}

func newListCmd() *cobra.Command {
	var (
		projectPath string
		kind        string
		format      string
		verbose     bool
	)

	supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV}

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored objects",
		Example: `  binal project ls
  binal project ls --kind function -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}
			switch object.Kind(kind) {
			case "", object.KindType, object.KindFunction, object.KindGlobal:
			default:
				return fmt.Errorf("unknown kind %q, must be one of: type, function, global", kind)
			}

			store, logger, err := openStore(cmd, projectPath, true)
			if err != nil {
				return err
			}
			defer binerrors.DeferClose(logger, store, "failed to close project")

			entries, err := store.List(cmd.Context(), object.Kind(kind))
			if err != nil {
				return err
			}
			if err := writeEntries(cmd.OutOrStdout(), entries, helpers.OutputFormat(format)); err != nil {
				return err
			}
			if verbose && format == string(helpers.FormatTable) {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%d objects in %s\n", len(entries), store.Path())
			}
			return err
		},
	}

	helpers.AddProjectFlag(cmd, &projectPath)
	cmd.Flags().StringVar(&kind, "kind", "", "Only list objects of this kind (type, function, global)")
	binerrors.Must(cmd.RegisterFlagCompletionFunc("kind", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(object.KindType), string(object.KindFunction), string(object.KindGlobal)}, cobra.ShellCompDirectiveNoFileComp
	}), "register --kind completion")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supported)
	helpers.AddVerboseFlag(cmd, &verbose)

	return cmd
}

func writeEntries(w io.Writer, entries []project.Entry, format helpers.OutputFormat) error {
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, entryRow{
			Name:    e.Name,
			Kind:    string(e.Kind),
			Digest:  fmt.Sprintf("%016x", e.Digest),
			Updated: e.UpdatedAt,
		})
	}

	if format == helpers.FormatTable {
		return (&helpers.TableFormatter{Empty: "No objects stored."}).Format(rows, w)
	}
	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.Format(rows, w)
}

func newImportCmd() *cobra.Command {
	var (
		projectPath string
		replace     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import objects from a JSON file",
		Long: `Import objects from a JSON file into the project.

The file holds a JSON object keyed by object name, the same shape as the
objects field of a push message and the output of 'binal project export'.
Use - to read from standard input. Existing objects with the same name are
replaced; --replace also removes every object the file does not mention.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objs, err := readObjects(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			store, logger, err := openStore(cmd, projectPath, false)
			if err != nil {
				return err
			}
			defer binerrors.DeferClose(logger, store, "failed to close project")

			if err := importObjects(cmd.Context(), store, objs, replace); err != nil {
				return err
			}
			cmd.Printf("Imported %d objects into %s\n", objs.Len(), store.Path())
			return nil
		},
	}

	helpers.AddProjectFlag(cmd, &projectPath)
	cmd.Flags().BoolVar(&replace, "replace", false, "Remove objects not present in the file")

	return cmd
}

func readObjects(stdin io.Reader, path string) (*object.Objects, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		//nolint:gosec // G304: Path is given by the user on the command line.
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	objs := object.NewObjects()
	if err := json.Unmarshal(data, objs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, o := range objs.Slice() {
		if err := o.Validate(); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

func importObjects(ctx context.Context, store *project.Store, objs *object.Objects, replace bool) error {
	if replace {
		return store.Replace(ctx, objs)
	}
	return store.Put(ctx, objs)
}

func newExportCmd() *cobra.Command {
	var (
		projectPath string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every object as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, logger, err := openStore(cmd, projectPath, true)
			if err != nil {
				return err
			}
			defer binerrors.DeferClose(logger, store, "failed to close project")

			objs, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				//nolint:gosec // G304: Path is given by the user on the command line.
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer binerrors.DeferClose(logger, f, "failed to close export file")
				w = f
			}

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(objs)
		},
	}

	helpers.AddProjectFlag(cmd, &projectPath)
	cmd.Flags().StringVarP(&output, "file", "f", "", "Write to this file instead of standard output")

	return cmd
}

// openStore opens the project named by the flag, or the configured one.
func openStore(cmd *cobra.Command, projectPath string, readOnly bool) (*project.Store, zerolog.Logger, error) {
	loader, cfg, err := helpers.LoadConfig(cmd)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := helpers.NewLogger(cfg, "project")

	if projectPath == "" {
		projectPath = cfg.Project.Path
	}
	path := loader.ResolvePath(projectPath)

	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, logger, fmt.Errorf("project %s: %w", path, err)
		}
		store, err := project.OpenReadOnly(path, logger)
		return store, logger, err
	}

	store, err := project.Open(path, logger)
	return store, logger, err
}
