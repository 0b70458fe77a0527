package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fixhub/fixhub/internal/cli/ui"
	"github.com/fixhub/fixhub/internal/config"
	"github.com/fixhub/fixhub/internal/entities"
	"github.com/fixhub/fixhub/internal/logging"
	"github.com/fixhub/fixhub/internal/orm/migrate"
)

// NewMigrateCommand creates the migrate command and its subcommands
func NewMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), flags, func(ctx context.Context, r *migrate.Runner, all []*migrate.Migration) error {
				n, err := r.Up(ctx, all)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations")
					return nil
				}
				ui.Success(cmd.OutOrStdout(), fmt.Sprintf("Applied %d migration(s)", n), flags.noColor)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), flags, func(ctx context.Context, r *migrate.Runner, _ []*migrate.Migration) error {
				m, err := r.Down(ctx)
				if errors.Is(err, migrate.ErrNothingToRollback) {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				ui.Success(cmd.OutOrStdout(), fmt.Sprintf("Rolled back %04d_%s", m.Version, m.Name), flags.noColor)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd.Context(), flags, func(ctx context.Context, r *migrate.Runner, all []*migrate.Migration) error {
				status, err := r.Status(ctx, all)
				if err != nil {
					return err
				}
				printStatus(cmd, status, flags.noColor)
				return nil
			})
		},
	})

	return cmd
}

func printStatus(cmd *cobra.Command, status *migrate.Status, noColor bool) {
	table := ui.NewTable(cmd.OutOrStdout(), noColor, "Version", "Name", "Applied at")
	for _, m := range status.Applied {
		table.AddRow(fmt.Sprintf("%04d", m.Version), m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		table.AddRow(fmt.Sprintf("%04d", m.Version), m.Name, "pending")
	}
	table.Render()
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), status.Summary())
}

func withMigrations(ctx context.Context, flags *globalFlags, fn func(context.Context, *migrate.Runner, []*migrate.Migration) error) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	migrations, err := entities.Migrations()
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(ctx, migrate.NewRunner(db, logger.Named("migrate")), migrations)
}
