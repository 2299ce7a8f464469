package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	format     TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
)`

// SQLiteStore keeps all namespaces in a single SQLite database file. It suits
// hosts where many small files are undesirable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// One writer per process; other processes wait on busy_timeout.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Backend.
func (s *SQLiteStore) Get(namespace, key string) (Entry, bool, error) {
	var (
		e       = Entry{Namespace: namespace, Key: key}
		payload []byte
		updated int64
	)
	err := s.db.QueryRow(
		`SELECT format, payload, updated_at FROM entries WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&e.FormatTag, &payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.Payload = payload
	e.UpdatedAt = time.Unix(0, updated).UTC()
	return e, true, nil
}

// Put implements Backend. The upsert makes concurrent writers last-writer-wins.
func (s *SQLiteStore) Put(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO entries (namespace, key, format, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
		   format = excluded.format,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		e.Namespace, e.Key, e.FormatTag, []byte(e.Payload), e.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", e.Namespace, e.Key, err)
	}
	return nil
}

// Delete implements Backend.
func (s *SQLiteStore) Delete(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// Clear implements Backend.
func (s *SQLiteStore) Clear(namespace string) error {
	_, err := s.db.Exec(`DELETE FROM entries WHERE namespace = ?`, namespace)
	return err
}

// Close implements Backend.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
