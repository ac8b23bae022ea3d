package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/duel/go/internal/match/history/migrations"
	"github.com/mcdev12/duel/go/internal/sqlutil"
)

const migrationTable = "schema_migrations"

// Migration is one embedded schema file.
type Migration struct {
	Name string
	Up   string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrations.FS)
}

func loadMigrations(migrationFS fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, Up: ExtractUpMigration(string(content))})
	}
	return out, nil
}

// CreateMigrationTable is the bookkeeping DDL shared by every runner.
const CreateMigrationTable = `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`

// ApplyMigrations executes each embedded migration at most once.
func ApplyMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	ms, err := Migrations()
	if err != nil {
		return err
	}
	return applyMigrations(ctx, db, dialect, ms)
}

func applyMigrations(ctx context.Context, db *sql.DB, dialect Dialect, ms []Migration) error {
	if db == nil {
		return errors.New("sql db is required")
	}
	if _, err := db.ExecContext(ctx, CreateMigrationTable); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range ms {
		applied, err := isApplied(ctx, db, dialect, m.Name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied || strings.TrimSpace(m.Up) == "" {
			continue
		}

		err = sqlutil.Run(ctx, db, sqlutil.Tx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil && !IsAlreadyExistsError(err) {
				return fmt.Errorf("exec migration %s: %w", m.Name, err)
			}
			if _, err := tx.ExecContext(ctx, dialect.bind(RecordMigration), m.Name, time.Now().UTC().UnixMilli()); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Info().Str("migration", m.Name).Str("dialect", string(dialect)).Msg("applied migration")
	}
	return nil
}

// RecordMigration marks a migration as applied; written with postgres placeholders.
const RecordMigration = `INSERT INTO ` + migrationTable + ` (name, applied_at) VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING`

// IsAppliedQuery reports a migration row; written with postgres placeholders.
const IsAppliedQuery = `SELECT 1 FROM ` + migrationTable + ` WHERE name = $1`

func isApplied(ctx context.Context, db *sql.DB, dialect Dialect, name string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, dialect.bind(IsAppliedQuery), name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// IsAlreadyExistsError reports whether this error indicates idempotent DDL success.
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}
