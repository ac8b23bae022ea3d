package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/config"
	"github.com/mcdev12/duel/go/internal/match/history"
)

func setupHistory(ctx context.Context, cfg config.HistoryConfig) (*history.Store, error) {
	dialect, err := history.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DataSource(dialect)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	log.Info().Str("driver", string(dialect)).Msg("connected to history store")
	return store, nil
}

// migratePostgres applies the embedded history migrations through pgx. Each migration
// and its bookkeeping row commit together.
func migratePostgres(ctx context.Context, dsn string) (int, error) {
	ms, err := history.Migrations()
	if err != nil {
		return 0, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, history.CreateMigrationTable); err != nil {
		return 0, fmt.Errorf("ensure migration table: %w", err)
	}

	applied := 0
	for _, m := range ms {
		var found int
		err := pool.QueryRow(ctx, history.IsAppliedQuery, m.Name).Scan(&found)
		if err == nil {
			log.Debug().Str("migration", m.Name).Msg("migration already applied")
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return applied, fmt.Errorf("check migration %s: %w", m.Name, err)
		}

		if err := applyPostgresMigration(ctx, pool, m); err != nil {
			return applied, err
		}
		applied++
		log.Info().Str("migration", m.Name).Msg("applied migration")
	}
	return applied, nil
}

func applyPostgresMigration(ctx context.Context, pool *pgxpool.Pool, m history.Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.Up); err != nil && !history.IsAlreadyExistsError(err) {
		return fmt.Errorf("exec migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx, history.RecordMigration, m.Name, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}
