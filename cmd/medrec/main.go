package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	DBSchema    string
	Actor       string
	Format      string // "json" | "text"
}

// NewRootCommand creates the root command for the medrec CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "medrec",
		Short: "Versioned clinical record store",
		Long:  "Operate on the record store: inspect records, walk audit trails, and move exchange packages.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be 'text' or 'json'", opts.Format)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "database connection string ('memory' or postgresql://...)")
	cmd.PersistentFlags().StringVar(&opts.DBSchema, "db-schema", "medrecord", "postgres schema")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "cli", "actor id stamped on mutations")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewPackagesCommand(opts))

	return cmd
}
