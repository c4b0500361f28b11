package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/artifact"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/config"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/pack"
)

// buildService assembles a service from the CLI flags.
func buildService(opts *RootOptions) (medrecord.Service, error) {
	cfg, err := config.Load(func(c *config.ServerConfig) error {
		if opts.DatabaseURL != "" && opts.DatabaseURL != "memory" {
			c.DatabaseType = "postgres"
			c.DatabaseURL = opts.DatabaseURL
		}
		c.DBSchema = opts.DBSchema
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg.BuildService()
}

func output(w io.Writer, format string, v any, text func()) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}

			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			record, err := svc.GetRecord(context.Background(), id)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, record, func() {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Record %s (v%d, %s)\n", record.ID, record.Version, record.Status)
				fmt.Fprintf(w, "  Name:      %s\n", record.Payload.Identity.Name)
				fmt.Fprintf(w, "  Unit:      %s\n", record.Payload.Identity.Unit)
				fmt.Fprintf(w, "  Diagnosis: %s\n", record.Payload.Medical.Diagnosis)
				if record.IsArchived {
					fmt.Fprintln(w, "  Archived")
				}
				if record.SignedBy != "" {
					fmt.Fprintf(w, "  Signed by: %s\n", record.SignedBy)
				}
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var includeArchived bool
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			filters := medrecord.RecordListFilters{IncludeArchived: includeArchived}
			if status != "" {
				s := medrecord.RecordStatus(strings.ToUpper(status))
				filters.Status = &s
			}

			records, err := svc.ListRecords(context.Background(), filters)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, records, func() {
				w := cmd.OutOrStdout()
				for _, r := range records {
					fmt.Fprintf(w, "%s  v%-3d %-6s  %s\n", r.ID, r.Version, r.Status, r.Payload.Identity.Name)
				}
				fmt.Fprintf(w, "%d record(s)\n", len(records))
			})
		},
	}

	cmd.Flags().BoolVar(&includeArchived, "include-archived", false, "include archived records")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft|signed)")

	return cmd
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <record-id>",
		Short: "Show the audit trail of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}

			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			events, err := svc.ListAuditEvents(context.Background(), id)
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, events, func() {
				w := cmd.OutOrStdout()
				for _, e := range events {
					fmt.Fprintf(w, "%s  %-8s v%d->v%d  by %s (%s)\n",
						e.CreatedAt.Format("2006-01-02 15:04:05"),
						e.Action, e.ExpectedVersion, e.NewVersion, e.ActorName, e.ActorRole)
					for path, v := range e.After {
						fmt.Fprintf(w, "    %s: %v -> %v\n", path, e.Before[path], v)
					}
				}
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var ids []string

	cmd := &cobra.Command{
		Use:   "export <destination.zip>",
		Short: "Build an exchange package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			recordIDs := make([]uuid.UUID, 0, len(ids))
			for _, raw := range ids {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid record id %q", raw)
				}
				recordIDs = append(recordIDs, id)
			}

			exporter := pack.NewExporter(svc)
			result, err := exporter.Export(context.Background(), pack.ExportRequest{
				RecordIDs:   recordIDs,
				Destination: args[0],
				ExportedBy:  rootOpts.Actor,
			})
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, result, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d files, sha256 %s)\n",
					result.Path, result.FileCount, result.SHA256)
			})
		},
	}

	cmd.Flags().StringSliceVar(&ids, "record", nil, "record id to include (repeatable; default: all)")

	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var mode string
	var artifactDir string

	cmd := &cobra.Command{
		Use:   "import <source.zip>",
		Short: "Consume an exchange package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			opts := []pack.ImporterOption{}
			if artifactDir != "" {
				store, err := artifact.New(artifact.Config{BaseDir: artifactDir})
				if err != nil {
					return err
				}
				opts = append(opts, pack.WithArtifactStore(store))
			}

			importer := pack.NewImporter(svc, opts...)
			result, err := importer.Import(context.Background(), pack.ImportRequest{
				Source:  args[0],
				ActorID: rootOpts.Actor,
				Mode:    pack.ImportMode(mode),
			})
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, result, func() {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Added %d, updated %d, skipped %d\n",
					result.Added, result.Updated, result.Skipped)
				for _, msg := range result.Errors {
					fmt.Fprintf(w, "  error: %s\n", msg)
				}
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(pack.ImportModeAppend), "reconciliation mode (append|merge)")
	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "", "directory to copy package artifacts into")

	return cmd
}

// NewPackagesCommand creates the packages command.
func NewPackagesCommand(rootOpts *RootOptions) *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "packages",
		Short: "List export/import package history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(rootOpts)
			if err != nil {
				return err
			}

			packages, err := svc.ListPackages(context.Background(), medrecord.PackageDirection(direction))
			if err != nil {
				return err
			}

			return output(cmd.OutOrStdout(), rootOpts.Format, packages, func() {
				w := cmd.OutOrStdout()
				for _, p := range packages {
					fmt.Fprintf(w, "%s  %-6s %s  %d files  %s\n",
						p.CreatedAt.Format("2006-01-02 15:04:05"), p.Direction, p.Path, p.FileCount, p.SHA256)
				}
			})
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", "filter by direction (export|import)")

	return cmd
}
