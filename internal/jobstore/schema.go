package jobstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var initialSchema string

// migrations[i] upgrades a database from version i to i+1. Append only.
var migrations = []string{
	initialSchema,
}

// requiredTables are verified by CheckHealth.
var requiredTables = []string{"jobs", "job_stages", "job_events"}

// ErrSchemaMismatch reports a database written by a newer release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func currentSchemaVersion() int { return len(migrations) }

// migrate brings the database up to currentSchemaVersion, one transaction per
// step. A database newer than this binary is refused.
func (s *Store) migrate(ctx context.Context) error {
	version, err := s.readSchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion() {
		return fmt.Errorf("%w: %s is at version %d, this build supports %d",
			ErrSchemaMismatch, s.path, version, currentSchemaVersion())
	}
	for v := version; v < currentSchemaVersion(); v++ {
		if err := s.applyMigration(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// readSchemaVersion returns 0 for a database without a schema_version table.
func (s *Store) readSchemaVersion(ctx context.Context) (int, error) {
	var present int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&present); err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}
	if present == 0 {
		return 0, nil
	}
	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(ctx context.Context, from int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", from+1, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return fmt.Errorf("apply migration %d: %w", from+1, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("clear schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, from+1); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
