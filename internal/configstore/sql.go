package configstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLStore is a Store backed by a single-table SQL database, queried
// through the standard database/sql interface so the concrete driver
// (modernc.org/sqlite by default) is swappable and mockable.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a modernc.org/sqlite-backed
// SQLStore at dsn (a file path, or ":memory:").
func OpenSQLite(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("configstore: open sqlite: %w", err)
	}
	store := NewSQLStore(db)
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an already-open *sql.DB (e.g. a go-sqlmock
// connection under test) as a Store. Callers of NewSQLStore directly are
// responsible for the table existing or mocking its statements.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS config_store (key TEXT PRIMARY KEY, value BLOB NOT NULL)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("configstore: create schema: %w", err)
	}
	return nil
}

// Load returns the value stored under key, or (nil, nil) if absent.
func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM config_store WHERE key = ?`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("configstore: load %s: %w", key, err)
	}
	return value, nil
}

// Save upserts value under key.
func (s *SQLStore) Save(ctx context.Context, key string, value []byte) error {
	const upsert = `INSERT INTO config_store (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("configstore: save %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }
