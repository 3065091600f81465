package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var files embed.FS

const migrationsTable = "public.schema_migrations_tourbooking"

// Up applies every embedded migration that is not yet recorded, each in its
// own transaction, in file name order.
func Up(ctx context.Context, db *sqlx.DB, logger *slog.Logger) error {
	if db == nil {
		return errors.New("db is required")
	}

	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	pending, err := Pending(ctx, db)
	if err != nil {
		return err
	}

	for _, name := range pending {
		if err := apply(ctx, db, name); err != nil {
			return err
		}
		logger.Info("migration applied", "file", name)
	}

	return nil
}

// Pending lists embedded migrations that have not been recorded as applied.
func Pending(ctx context.Context, db *sqlx.DB) ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list embedded migrations: %w", err)
	}
	sort.Strings(names)

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT filename FROM `+migrationsTable); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	var pending []string
	for _, name := range names {
		if _, ok := done[name]; !ok {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func apply(ctx context.Context, db *sqlx.DB, name string) error {
	sqlBytes, err := files.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		if !isIgnorableMigrationError(err) {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := markApplied(ctx, db, name); err != nil {
			return fmt.Errorf("record migration %s after ignored error: %w", name, err)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationsTable+` (filename) VALUES ($1)`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	const query = `
CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
	filename text PRIMARY KEY,
	applied_at timestamptz NOT NULL DEFAULT now()
)
`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table %s: %w", migrationsTable, err)
	}
	return nil
}

func markApplied(ctx context.Context, db *sqlx.DB, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO `+migrationsTable+` (filename) VALUES ($1) ON CONFLICT (filename) DO NOTHING`,
		name,
	)
	return err
}

func isIgnorableMigrationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case "42P07", // duplicate_table
		"42710", // duplicate_object
		"42P06", // duplicate_schema
		"42701": // duplicate_column
		return true
	default:
		return false
	}
}
