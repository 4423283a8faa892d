package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (collection, key)
)`

// SQLite is a Store backed by a single SQLite file. Updates use a version
// column for optimistic concurrency so several processes can share the file.
type SQLite struct {
	db         *sql.DB
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, maxRetries int, backoff time.Duration, logger *zap.Logger) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes
	// writers within this process.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing database: %w", err)
		}
	}

	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLite{db: db, logger: logger, maxRetries: maxRetries, backoff: backoff}, nil
}

func (s *SQLite) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM documents WHERE collection = ? AND key = ?`, collection, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return value, nil
}

func (s *SQLite) Put(ctx context.Context, collection, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, value, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (collection, key) DO UPDATE SET
			value = excluded.value,
			version = documents.version + 1,
			updated_at = excluded.updated_at`,
		collection, key, value, now())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, collection, key string, fn UpdateFunc) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		applied, err := s.tryUpdate(ctx, collection, key, fn)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}

		s.logger.Debug("sqlite update conflict, retrying",
			zap.String("collection", collection),
			zap.String("key", key),
			zap.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
	return fmt.Errorf("update %s/%s: %w", collection, key, ErrConflict)
}

// tryUpdate runs one optimistic attempt. It reports false when another
// writer changed the row between read and write.
func (s *SQLite) tryUpdate(ctx context.Context, collection, key string, fn UpdateFunc) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		current []byte
		version int64
		exists  = true
	)
	err = tx.QueryRowContext(ctx,
		`SELECT value, version FROM documents WHERE collection = ? AND key = ?`, collection, key,
	).Scan(&current, &version)
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", collection, key, err)
	}

	next, err := fn(current, exists)
	if errors.Is(err, ErrSkip) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	var res sql.Result
	if exists {
		res, err = tx.ExecContext(ctx,
			`UPDATE documents SET value = ?, version = version + 1, updated_at = ?
			 WHERE collection = ? AND key = ? AND version = ?`,
			next, now(), collection, key, version)
	} else {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, key, value, version, updated_at)
			 VALUES (?, ?, ?, 1, ?) ON CONFLICT (collection, key) DO NOTHING`,
			collection, key, next, now())
	}
	if err != nil {
		return false, fmt.Errorf("write %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLite) List(ctx context.Context, collection, prefix string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM documents
		 WHERE collection = ? AND substr(key, 1, ?) = ?
		 ORDER BY key`,
		collection, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
