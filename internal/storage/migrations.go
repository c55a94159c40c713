package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = `CREATE TABLE IF NOT EXISTS _migrations (
	name TEXT PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// RunMigrations applies the embedded SQL files that have not run yet, in
// file name order, each in its own transaction.
func RunMigrations(db *DB, logger *zap.SugaredLogger) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	done, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		base := path.Base(name)
		if done[base] {
			continue
		}

		script, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", base, err)
		}
		if err := applyMigration(ctx, db, base, string(script)); err != nil {
			return fmt.Errorf("applying migration %s: %w", base, err)
		}
		logger.Infow("applied migration", "name", base)
		applied++
	}

	logger.Debugw("database schema up to date", "applied", applied, "total", len(names))
	return nil
}

func appliedMigrations(ctx context.Context, db *DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning migration name: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

func applyMigration(ctx context.Context, db *DB, name, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}
