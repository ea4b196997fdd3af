package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coffee-ai-tgbot-go/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStorage persists history in a single local user_history table.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens (or creates) the database and its schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStorage{db: db, path: path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStorage) init() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS user_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_history_user ON user_history (user_id, id)`)
	return err
}

func (s *SQLiteStorage) Append(ctx context.Context, entry models.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		entry.UserID,
		entry.Role,
		entry.Content,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStorage) Recent(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM user_history
		WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var entry models.HistoryEntry
		var ts string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Role, &entry.Content, &ts); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.CreatedAt = t
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// newest-first from the query; callers want chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *SQLiteStorage) Trim(ctx context.Context, userID int64, keep int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_history WHERE user_id = ? AND id NOT IN (
			SELECT id FROM user_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
		)`,
		userID, userID, keep,
	)
	return err
}

func (s *SQLiteStorage) Clear(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_history WHERE user_id = ?`, userID)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the sqlite database path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

var _ Storage = (*SQLiteStorage)(nil)
