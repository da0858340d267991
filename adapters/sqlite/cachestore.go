package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irusland/pyroto/ports"
)

// CacheStore implements ports.CacheStore using SQLite.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a cache store over a migrated database.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

var _ ports.CacheStore = (*CacheStore)(nil)

// Lookup retrieves the record of one module.
func (s *CacheStore) Lookup(ctx context.Context, module string) (ports.CachedModule, bool, error) {
	var (
		m           ports.CachedModule
		generatedAt string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT module, source_path, fingerprint, output_path, declarations, imports, generated_at
		 FROM generated_modules WHERE module = ?`,
		module,
	).Scan(&m.Module, &m.SourcePath, &m.Fingerprint, &m.OutputPath, &m.Declarations, &m.Imports, &generatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.CachedModule{}, false, nil
		}
		return ports.CachedModule{}, false, fmt.Errorf("lookup %s: %w", module, err)
	}

	m.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
	return m, true, nil
}

// Store inserts or replaces the record of m.Module.
func (s *CacheStore) Store(ctx context.Context, m ports.CachedModule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_modules (module, source_path, fingerprint, output_path, declarations, imports, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(module) DO UPDATE SET
			source_path = excluded.source_path,
			fingerprint = excluded.fingerprint,
			output_path = excluded.output_path,
			declarations = excluded.declarations,
			imports = excluded.imports,
			generated_at = excluded.generated_at`,
		m.Module, m.SourcePath, m.Fingerprint, m.OutputPath, m.Declarations, m.Imports,
		m.GeneratedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store %s: %w", m.Module, err)
	}
	return nil
}

// Forget deletes the record of one module. Forgetting an unknown module is
// not an error.
func (s *CacheStore) Forget(ctx context.Context, module string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM generated_modules WHERE module = ?`, module); err != nil {
		return fmt.Errorf("forget %s: %w", module, err)
	}
	return nil
}

// RecordRun stores a finished build run.
func (s *CacheStore) RecordRun(ctx context.Context, run ports.BuildRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_runs (id, started_at, finished_at, generated, skipped, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Generated, run.Skipped, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns up to limit runs, newest first.
func (s *CacheStore) Runs(ctx context.Context, limit int) ([]ports.BuildRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, generated, skipped, failed
		 FROM build_runs ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []ports.BuildRun
	for rows.Next() {
		var (
			run               ports.BuildRun
			started, finished string
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Generated, &run.Skipped, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
