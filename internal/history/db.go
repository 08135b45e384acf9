// Package history persists analysis snapshots in SQLite and fits trends
// over them.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	pmerrors "pmat/internal/errors"
)

// FileName is the database file inside the cache directory.
const FileName = "history.db"

const schemaVersion = 1

// Store is a snapshot database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	path   string
}

// Open opens or creates the history database under dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pmerrors.Cache("mkdir", dir, err)
	}
	path := filepath.Join(dir, FileName)

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pmerrors.Cache("open", path, err)
	}
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, pmerrors.Cache("pragma", path, err)
		}
	}

	s := &Store{conn: conn, logger: logger, path: path}
	if err := s.migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when it fails.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return pmerrors.Cache("begin", s.path, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("history rollback failed", "error", err, "rollback_error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return pmerrors.Cache("commit", s.path, err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	version, err := s.version(ctx)
	if err != nil {
		return pmerrors.Cache("schema", s.path, err)
	}
	if version == schemaVersion {
		s.logger.Debug("history schema up to date", "version", version)
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return pmerrors.Cache("schema", s.path, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
			return pmerrors.Cache("schema", s.path, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return pmerrors.Cache("schema", s.path, err)
		}
		s.logger.Info("history schema initialized", "version", schemaVersion, "path", s.path)
		return nil
	})
}

func (s *Store) version(ctx context.Context) (int, error) {
	var name string
	err := s.conn.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	err = s.conn.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		root        TEXT NOT NULL,
		commit_sha  TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		value       REAL NOT NULL,
		file_count  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_kind_time ON runs(kind, root, recorded_at)`,
	`CREATE TABLE IF NOT EXISTS file_scores (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		path   TEXT NOT NULL,
		value  REAL NOT NULL,
		PRIMARY KEY (run_id, path)
	)`,
}
