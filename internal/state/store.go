package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maine/startup_intel_bot/internal/news"
)

// historyFile - формат файла истории на диске. Неизвестные поля игнорируются при чтении.
type historyFile struct {
	SeenIDs []string              `json:"seen_ids"`
	LastRun *time.Time            `json:"last_run,omitempty"`
	Pending []news.PendingArticle `json:"pending,omitempty"`
}

// FileStore хранит историю в JSON-файле.
type FileStore struct {
	path string
}

// NewFileStore создаёт новый файловый стор.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load читает историю из файла.
// Отсутствующий, нечитаемый или повреждённый файл даёт пустую историю без ошибки:
// потеря истории приводит лишь к повторным уведомлениям.
func (s *FileStore) Load(ctx context.Context) (news.History, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("history file unreadable, starting fresh", "path", s.path, "err", err)
		} else {
			slog.Info("history file not found, starting fresh", "path", s.path)
		}
		return news.NewHistory(), nil
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Повреждённый файл сохраняем рядом для диагностики
		brokenPath := s.path + ".broken"
		_ = os.WriteFile(brokenPath, data, 0644)
		slog.Warn("history file corrupted, starting fresh", "path", s.path, "broken_copy", brokenPath, "err", err)
		return news.NewHistory(), nil
	}

	history := news.NewHistory().Merge(file.SeenIDs)
	if file.LastRun != nil {
		history.LastRun = *file.LastRun
	}
	history.Pending = file.Pending
	return history, nil
}

// Save записывает историю атомарно (через временный файл).
func (s *FileStore) Save(ctx context.Context, history news.History) error {
	file := historyFile{
		SeenIDs: history.SortedIDs(),
		Pending: history.Pending,
	}
	if !history.LastRun.IsZero() {
		lastRun := history.LastRun
		file.LastRun = &lastRun
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp history file: %w", err)
	}

	// rename атомарен в пределах одной файловой системы
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp history file: %w", err)
	}

	slog.Info("history saved", "path", s.path, "seen_ids", len(file.SeenIDs), "pending", len(file.Pending))
	return nil
}
