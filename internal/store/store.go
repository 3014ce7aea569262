// Package store implements Cobble's crash-consistent record store: a
// SQLite database of workspace.TaskRecord values keyed by task name.
// All access goes through a single pooled connection, so reads and
// writes are serialized; concurrent readers do not run in parallel.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jdarais/cobble/internal/cobleerr"
	"github.com/jdarais/cobble/internal/workspace"
)

// schemaVersion is stamped on every row written by this binary. A row
// stamped with a different version is treated as absent rather than
// migrated in place — the store is safe to delete and rebuild at any
// time, so there is nothing to preserve across a version bump.
const schemaVersion = 1

// ErrNotFound is returned by Get when no current-schema record exists
// for a task. Callers should treat it the same as "no prior run":
// compute fresh rather than surfacing it as a failure.
var ErrNotFound = errors.New("task record not found")

// Store is a handle to one workspace's .cobble.db.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the record store at path, applies
// WAL journaling and a single-writer connection pool the way the
// teacher's persistence layer tunes its own SQLite handle, and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	const op = "store.Open"

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, cobleerr.Wrap(cobleerr.IO, op, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	const op = "store.init"
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return cobleerr.Wrap(cobleerr.IO, op, fmt.Errorf("applying %q: %w", p, err))
		}
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS task_records (
			name           TEXT PRIMARY KEY,
			input_hash     TEXT NOT NULL,
			output         BLOB NOT NULL,
			schema_version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return cobleerr.Wrap(cobleerr.IO, op, err)
	}
	return nil
}

// recordRow is the JSON-serialized form of a TaskRecord's Output; the
// input hash is stored in its own column. Get reads and deserializes
// both.
type recordRow struct {
	Value          workspace.ScriptValue `json:"value"`
	ArtifactHashes map[string]string     `json:"artifact_hashes"`
}

// Get returns the persisted record for task, or ErrNotFound if none
// exists at the current schema version.
func (s *Store) Get(ctx context.Context, task string) (*workspace.TaskRecord, error) {
	const op = "store.Get"

	var inputHash string
	var rowVersion int
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT input_hash, output, schema_version FROM task_records WHERE name = ?`, task,
	).Scan(&inputHash, &raw, &rowVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, cobleerr.Wrap(cobleerr.IO, op, err)
	}
	if rowVersion != schemaVersion {
		return nil, ErrNotFound
	}

	var row recordRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, cobleerr.Wrap(cobleerr.IO, op, err)
	}

	return &workspace.TaskRecord{
		InputHash: inputHash,
		Output: workspace.TaskOutput{
			Value:          row.Value,
			ArtifactHashes: row.ArtifactHashes,
		},
	}, nil
}

// Put persists rec as task's current record, retrying on transient
// SQLITE_BUSY contention the way the teacher's retry helper backs off
// a flaky external call.
func (s *Store) Put(ctx context.Context, task string, rec *workspace.TaskRecord) error {
	const op = "store.Put"

	raw, err := json.Marshal(recordRow{Value: rec.Output.Value, ArtifactHashes: rec.Output.ArtifactHashes})
	if err != nil {
		return cobleerr.Wrap(cobleerr.IO, op, err)
	}

	return Retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO task_records (name, input_hash, output, schema_version)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET input_hash=excluded.input_hash, output=excluded.output, schema_version=excluded.schema_version
		`, task, rec.InputHash, raw, schemaVersion)
		return err
	}, func(err error) bool { return isBusy(err) })
}

// Delete removes any persisted record for task. Used by clean jobs to
// forget a task's last-known state along with its artifacts.
func (s *Store) Delete(ctx context.Context, task string) error {
	const op = "store.Delete"
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_records WHERE name = ?`, task)
	if err != nil {
		return cobleerr.Wrap(cobleerr.IO, op, err)
	}
	return nil
}

// Path returns the filesystem path this store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return cobleerr.Wrap(cobleerr.IO, "store.Close", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
