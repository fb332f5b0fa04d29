// Package store is the pipeline's crash-safe state database: a single
// logical database with concurrent readers and a bounded-contention
// writer, exposing typed repositories per entity so no ad-hoc SQL leaks
// to callers. SQLite-backed with WAL journaling, a bounded busy_timeout,
// and single-writer discipline.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	_ "modernc.org/sqlite"

	"github.com/dsa110/continuum-pipeline/internal/logging"
)

// CurrentSchemaVersion is bumped whenever the schema changes shape.
const CurrentSchemaVersion = 1

// AcquireTimeout bounds how long a writer waits for the single logical
// write lock before surfacing DatabaseLockError.
const AcquireTimeout = 30 * time.Second

// DatabaseLockError is returned when sustained write contention prevents a
// writer from acquiring the store's logical lock within AcquireTimeout.
type DatabaseLockError struct{ Cause error }

func (e *DatabaseLockError) Error() string { return fmt.Sprintf("store: lock acquire timed out: %v", e.Cause) }
func (e *DatabaseLockError) Unwrap() error { return e.Cause }

// DatabaseMigrationError is returned at startup when the on-disk schema
// version does not match CurrentSchemaVersion. The process must refuse to
// serve until an operator runs a migration.
type DatabaseMigrationError struct {
	FoundVersion, WantVersion int
}

func (e *DatabaseMigrationError) Error() string {
	return fmt.Sprintf("store: schema version %d does not match expected %d; run migration", e.FoundVersion, e.WantVersion)
}

// Store is the single logical database handle. All repository methods are
// defined on Store (one file per entity) and route mutations through
// writeMu so that, even though sqlite's own single-writer semantics would
// serialize them anyway, the acquire-with-timeout-and-jittered-retry
// contract is explicit and testable.
type Store struct {
	writeDB *sql.DB // single connection, serializes writers
	readDB  *sql.DB // pool of read-only connections, never blocks on writes
	writeMu sync.Mutex
	path    string
}

// Open opens (creating if necessary) the state store at <stateDir>/pipeline.db,
// enables WAL journaling, verifies or stamps the schema version, and
// returns a ready Store. Callers must call Close at shutdown.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create state dir: %w", err)
	}
	dbPath := filepath.Join(stateDir, "pipeline.db")

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("store: open reader pool: %w", err)
	}
	readDB.SetMaxOpenConns(8)

	for _, db := range []*sql.DB{writeDB, readDB} {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to set WAL mode: %v", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to set busy_timeout: %v", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to enable foreign keys: %v", err)
		}
	}

	s := &Store{writeDB: writeDB, readDB: readDB, path: dbPath}
	if err := s.runMigrations(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}
	logging.Store("state store opened at %s (schema v%d)", dbPath, CurrentSchemaVersion)
	return s, nil
}

// Close releases both connections.
func (s *Store) Close() error {
	err1 := s.writeDB.Close()
	err2 := s.readDB.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Path returns the on-disk database file path.
func (s *Store) Path() string { return s.path }

// withWrite runs fn holding the logical write lock, retrying lock
// acquisition (and transient "database is locked" errors from sqlite
// itself) with jittered exponential backoff up to AcquireTimeout before
// surfacing a *DatabaseLockError.
func (s *Store) withWrite(fn func(*sql.Tx) error) error {
	var execErr error
	op := func() error {
		if !s.writeMu.TryLock() {
			return fmt.Errorf("writer mutex held")
		}
		defer s.writeMu.Unlock()

		tx, err := s.writeDB.Begin()
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			execErr = err
			if isBusyErr(err) {
				// Worth a bounded retry; anything else is terminal.
				return err
			}
			return backoff.Permanent(err)
		}
		return tx.Commit()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = AcquireTimeout

	if err := backoff.Retry(op, b); err != nil {
		if execErr != nil && !isBusyErr(execErr) {
			return execErr
		}
		return &DatabaseLockError{Cause: err}
	}
	return nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "database is locked", "busy", "SQLITE_BUSY")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(sub) > 0 && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// Checkpoint forces a WAL checkpoint, bounding the ahead-of-durable tail.
// Invoked by Housekeeping when WAL size crosses a configured threshold.
func (s *Store) Checkpoint() error {
	_, err := s.writeDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// WALSizeBytes returns the size of the -wal file, or 0 if absent.
func (s *Store) WALSizeBytes() int64 {
	info, err := os.Stat(s.path + "-wal")
	if err != nil {
		return 0
	}
	return info.Size()
}
