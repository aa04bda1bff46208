package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SqliteSettings is the durable Settings implementation, one row per key in
// a single sqlite database file. Use ":memory:" for tests.
type SqliteSettings struct {
	db *sql.DB
}

// OpenSqlite opens (creating if needed) the settings database at dsn.
func OpenSqlite(dsn string) (*SqliteSettings, error) {
	connStr := dsn
	if dsn != ":memory:" {
		connStr = dsn + "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping settings database: %w", err)
	}
	if _, err := db.Exec(settingsSchema); err != nil {
		return nil, fmt.Errorf("failed to apply settings schema: %w", err)
	}

	return &SqliteSettings{db: db}, nil
}

func (s *SqliteSettings) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("error reading setting %s: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

func (s *SqliteSettings) Set(ctx context.Context, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("error encoding setting %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(encoded))
	if err != nil {
		return fmt.Errorf("error writing setting %s: %w", key, err)
	}
	return nil
}

func (s *SqliteSettings) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("error deleting settings: %w", err)
	}
	return nil
}

func (s *SqliteSettings) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("error listing setting keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("error scanning setting key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error listing setting keys: %w", err)
	}
	return keys, nil
}

func (s *SqliteSettings) Close() error {
	return s.db.Close()
}
