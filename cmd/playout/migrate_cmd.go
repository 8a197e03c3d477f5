package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-playout/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-playout/migrations"
)

func newMigrateCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back the database schema",
		Long: "Every other subcommand applies pending migrations on startup.\n" +
			"Use these to check the schema version or step back one migration before a downgrade.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), configPath(), func(db *database.DB) error {
					applied, pending, err := db.MigrationStatus(cmd.Context(), migrations.FS)
					if err != nil {
						return err
					}
					return printMigrations(cmd.OutOrStdout(), applied, pending)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recently applied migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withDatabase(cmd.Context(), configPath(), func(db *database.DB) error {
					applied, _, err := db.MigrationStatus(cmd.Context(), migrations.FS)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
						return nil
					}
					if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
						return fmt.Errorf("rolling back migration: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", applied[len(applied)-1].Version)
					return nil
				})
			},
		},
	)
	return cmd
}

// withDatabase opens the configured database without migrating it.
func withDatabase(ctx context.Context, configPath string, fn func(db *database.DB) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly CLI session

	return fn(db)
}

func printMigrations(w io.Writer, applied []database.MigrationRecord, pending []database.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
	for _, m := range applied {
		fmt.Fprintf(tw, "%s\t\t%s\n", m.Version, m.AppliedAt.Local().Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\t%s\tpending\n", m.Version, m.Name)
	}
	return tw.Flush()
}
