package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/maine/startup_intel_bot/internal/news"
)

const (
	metaLastRun = "last_run"
	metaPending = "pending"

	// insertChunk ограничивает число параметров в одном INSERT.
	insertChunk = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_ids (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteStore хранит историю в файле SQLite. Save выполняется одной транзакцией.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore открывает (или создаёт) базу и применяет схему.
// Файл, который не удаётся открыть как базу, переименовывается в <path>.broken
// и история начинается заново.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := openSQLite(ctx, path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, err
		}

		brokenPath := path + ".broken"
		slog.Warn("history database corrupted, starting fresh", "path", path, "broken_copy", brokenPath, "err", err)
		if err := os.Rename(path, brokenPath); err != nil {
			return nil, fmt.Errorf("move corrupted history database: %w", err)
		}

		db, err = openSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	return &SQLiteStore{db: db}, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// Close закрывает соединение с базой.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load читает историю. Ошибки чтения не фатальны и дают пустую историю.
func (s *SQLiteStore) Load(ctx context.Context) (news.History, error) {
	history, err := s.load(ctx)
	if err != nil {
		slog.Warn("sqlite history unreadable, starting fresh", "err", err)
		return news.NewHistory(), nil
	}
	return history, nil
}

func (s *SQLiteStore) load(ctx context.Context) (news.History, error) {
	query, args, err := sq.Select("id").From("seen_ids").ToSql()
	if err != nil {
		return news.History{}, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return news.History{}, fmt.Errorf("query seen ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return news.History{}, fmt.Errorf("scan seen id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return news.History{}, fmt.Errorf("iterate seen ids: %w", err)
	}

	history := news.NewHistory().Merge(ids)

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return news.History{}, err
	}

	if raw, ok := meta[metaLastRun]; ok && raw != "" {
		if lastRun, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			history.LastRun = lastRun
		}
	}
	if raw, ok := meta[metaPending]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &history.Pending); err != nil {
			slog.Warn("pending articles unreadable, dropping", "err", err)
			history.Pending = nil
		}
	}

	return history, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context) (map[string]string, error) {
	query, args, err := sq.Select("key", "value").From("meta").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build meta select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// Save дописывает новые идентификаторы и перезаписывает метаданные в одной транзакции.
func (s *SQLiteStore) Save(ctx context.Context, history news.History) error {
	pending, err := json.Marshal(history.Pending)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := history.SortedIDs()
	for start := 0; start < len(ids); start += insertChunk {
		end := min(start+insertChunk, len(ids))

		insert := sq.Insert("seen_ids").Options("OR IGNORE").Columns("id")
		for _, id := range ids[start:end] {
			insert = insert.Values(id)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert seen ids: %w", err)
		}
	}

	lastRun := ""
	if !history.LastRun.IsZero() {
		lastRun = history.LastRun.Format(time.RFC3339Nano)
	}

	query, args, err := sq.Replace("meta").
		Columns("key", "value").
		Values(metaLastRun, lastRun).
		Values(metaPending, string(pending)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build meta replace: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replace meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}

	slog.Info("history saved", "backend", "sqlite", "seen_ids", len(ids), "pending", len(history.Pending))
	return nil
}
