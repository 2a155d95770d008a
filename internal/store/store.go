package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const timeFormat = time.RFC3339Nano

// Store provides durable access to all outreachd record collections.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if necessary) the SQLite database at path and runs
// schema migration. Use ":memory:" for an in-process test database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating data directory: %w", ErrUnavailable, err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrUnavailable, err)
	}

	// SQLite allows a single writer; keeping one connection avoids
	// SQLITE_BUSY churn under concurrent submits.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: applying %q: %w", ErrUnavailable, pragma, err)
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: migrating schema: %w", ErrUnavailable, err)
		}
	}

	logger.Info("document store opened", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// checkOpen returns ErrClosed once Close has been called.
func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// begin starts a transaction on the pool's single connection. The
// SetMaxOpenConns(1) pool is what serializes the read-merge-write
// sequences in this package; the transaction itself is a plain deferred
// SQLite transaction.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	return tx, nil
}

func marshalDoc(doc Document) (string, error) {
	if doc == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling document: %w", err)
	}
	return string(raw), nil
}

func unmarshalDoc(raw string) (Document, error) {
	if raw == "" {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
