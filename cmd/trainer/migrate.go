package main

import (
	"context"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sharpmind/trainer-hub/config"
	"github.com/sharpmind/trainer-hub/internal/infrastructure/persistence/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, log *slog.Logger) error {
			if err := m.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, log *slog.Logger) error {
			if err := m.Rollback(ctx); err != nil {
				return fmt.Errorf("failed to roll back: %w", err)
			}
			log.Info("rolled back latest migration")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator, _ *slog.Logger) error {
			migrations, err := m.Status(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, mg := range migrations {
				applied := "no"
				if mg.IsApplied {
					applied = mg.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", mg.Version, mg.Name, applied)
			}
			return tw.Flush()
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *postgres.Migrator, *slog.Logger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	ctx := cmd.Context()

	dbConn, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	return fn(ctx, postgres.NewMigrator(dbConn), log)
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Connection, error) {
	settings := postgres.DefaultPoolSettings()
	settings.MaxConns = int32(cfg.MaxConns)
	settings.MinConns = int32(cfg.MinConns)
	settings.MaxConnLifetime = cfg.ConnMaxLifetime
	settings.MaxConnIdleTime = cfg.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, cfg.URL, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
