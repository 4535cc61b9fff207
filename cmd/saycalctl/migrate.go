package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	migrateCmd := &cobra.Command{Use: "migrate", Short: "Schema migrations"}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(d *database) error {
				return runMigrateUp(cmd.Context(), d, os.Stdout)
			})
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(d *database) error {
				return runMigrateStatus(cmd.Context(), d, os.Stdout)
			})
		},
	})
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateUp(ctx context.Context, d *database, out io.Writer) error {
	results, err := d.migrator.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "no pending migrations")
		return nil
	}
	for _, r := range results {
		_, _ = fmt.Fprintf(out, "applied %d %s (%s)\n", r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
	return nil
}

func runMigrateStatus(ctx context.Context, d *database, out io.Writer) error {
	statuses, err := d.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return tw.Flush()
}
