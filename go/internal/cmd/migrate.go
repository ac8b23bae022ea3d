package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/duel/go/internal/match/history"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the match history schema",
		Long: `Apply the embedded match history migrations.

Postgres schemas are applied through pgx. SQLite databases are migrated when
opened, so for the sqlite driver this only creates and migrates the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), opts)
		},
	}
}

func runMigrate(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled() {
		return errors.New("history is disabled, nothing to migrate")
	}

	dialect, err := history.ParseDialect(cfg.History.Driver)
	if err != nil {
		return err
	}

	if dialect == history.DialectSQLite {
		store, err := setupHistory(ctx, cfg.History)
		if err != nil {
			return err
		}
		return store.Close()
	}

	dsn, err := cfg.History.DataSource(dialect)
	if err != nil {
		return err
	}
	applied, err := migratePostgres(ctx, dsn)
	if err != nil {
		return err
	}
	log.Info().Int("applied", applied).Msg("migrations complete")
	return nil
}
