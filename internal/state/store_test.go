package state

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/maine/startup_intel_bot/internal/news"
)

func TestFileStore_Load_Save(t *testing.T) {
	tmpDir := t.TempDir()
	historyPath := filepath.Join(tmpDir, "history.json")
	store := NewFileStore(historyPath)
	ctx := context.Background()

	t.Run("load non-existent file returns empty history", func(t *testing.T) {
		history, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}
		if !history.LastRun.IsZero() {
			t.Errorf("Load() LastRun should be zero")
		}
		if len(history.SeenIDs) != 0 {
			t.Errorf("Load() SeenIDs should be empty")
		}
	})

	t.Run("save and load history", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("Asia/Almaty", 5*60*60))
		history := news.NewHistory().Merge([]string{"b", "a"})
		history.LastRun = now
		history.Pending = []news.PendingArticle{
			{Article: news.Article{ID: "p1", URL: "https://example.com/p1"}, Attempts: 1},
		}

		if err := store.Save(ctx, history); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		loaded, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if !loaded.LastRun.Equal(now) {
			t.Errorf("Load() LastRun = %v, want %v", loaded.LastRun, now)
		}
		if diff := cmp.Diff([]string{"a", "b"}, loaded.SortedIDs()); diff != "" {
			t.Errorf("Load() SeenIDs mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(history.Pending, loaded.Pending); diff != "" {
			t.Errorf("Load() Pending mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ids are written sorted", func(t *testing.T) {
		data, err := os.ReadFile(historyPath)
		if err != nil {
			t.Fatalf("read history: %v", err)
		}
		if strings.Index(string(data), `"a"`) > strings.Index(string(data), `"b"`) {
			t.Errorf("seen_ids are not sorted: %s", data)
		}
	})

	t.Run("load corrupted JSON returns empty history", func(t *testing.T) {
		corruptedPath := filepath.Join(tmpDir, "corrupted.json")
		corruptedStore := NewFileStore(corruptedPath)
		if err := os.WriteFile(corruptedPath, []byte("invalid json {"), 0644); err != nil {
			t.Fatalf("failed to write corrupted file: %v", err)
		}

		history, err := corruptedStore.Load(ctx)
		if err != nil {
			t.Fatalf("Load() should not return error for corrupted JSON, got %v", err)
		}
		if len(history.SeenIDs) != 0 || !history.LastRun.IsZero() {
			t.Errorf("Load() should return empty history for corrupted JSON")
		}

		if _, err := os.Stat(corruptedPath + ".broken"); os.IsNotExist(err) {
			t.Error("Load() should save corrupted file as .broken")
		}
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		futurePath := filepath.Join(tmpDir, "future.json")
		content := `{"seen_ids": ["A1"], "last_run": "2025-01-01T00:00:00Z", "schema_version": 4, "extra": {"x": 1}}`
		if err := os.WriteFile(futurePath, []byte(content), 0644); err != nil {
			t.Fatalf("write file: %v", err)
		}

		history, err := NewFileStore(futurePath).Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !history.Seen("A1") {
			t.Errorf("Load() lost seen id A1")
		}
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		nestedPath := filepath.Join(tmpDir, "nested", "path", "history.json")
		nestedStore := NewFileStore(nestedPath)

		if err := nestedStore.Save(ctx, news.NewHistory()); err != nil {
			t.Fatalf("Save() should create directory, error = %v", err)
		}

		if _, err := os.Stat(nestedPath); os.IsNotExist(err) {
			t.Error("Save() should create nested directory")
		}
	})
}

func TestFileStore_Save_Atomic(t *testing.T) {
	tmpDir := t.TempDir()
	historyPath := filepath.Join(tmpDir, "atomic.json")
	store := NewFileStore(historyPath)
	ctx := context.Background()

	history := news.NewHistory().Merge([]string{"test"})
	history.LastRun = time.Now()

	if err := store.Save(ctx, history); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(historyPath); os.IsNotExist(err) {
		t.Error("Save() should create history file")
	}
	if _, err := os.Stat(historyPath + ".tmp"); err == nil {
		t.Error("Save() should remove temporary file")
	}
}

func TestSQLiteStore_Load_Save(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "history.sqlite")

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	empty, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(empty.SeenIDs) != 0 {
		t.Fatalf("Load() on fresh db returned %d ids", len(empty.SeenIDs))
	}

	now := time.Date(2025, 3, 1, 4, 0, 0, 0, time.UTC)
	first := news.NewHistory().Merge([]string{"A1", "A2"})
	first.LastRun = now
	first.Pending = []news.PendingArticle{{Article: news.Article{ID: "A2"}, Attempts: 2}}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := first.Merge([]string{"A3"})
	second.Pending = nil
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A1", "A2", "A3"}, loaded.SortedIDs()); diff != "" {
		t.Errorf("Load() SeenIDs mismatch (-want +got):\n%s", diff)
	}
	if !loaded.LastRun.Equal(now) {
		t.Errorf("Load() LastRun = %v, want %v", loaded.LastRun, now)
	}
	if len(loaded.Pending) != 0 {
		t.Errorf("Load() Pending = %v, want empty", loaded.Pending)
	}
}

func TestSQLiteStore_CorruptedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	garbage := []byte(strings.Repeat("this is not a sqlite database, just plain text\n", 200))
	if err := os.WriteFile(path, garbage, 0644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	store, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v, want fresh store", err)
	}
	defer store.Close()

	broken, err := os.ReadFile(path + ".broken")
	if err != nil {
		t.Fatalf("corrupted file was not kept as .broken: %v", err)
	}
	if string(broken) != string(garbage) {
		t.Error(".broken copy differs from the corrupted file")
	}

	history, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(history.SeenIDs) != 0 {
		t.Errorf("Load() returned %d ids, want empty history", len(history.SeenIDs))
	}

	if err := store.Save(ctx, news.NewHistory().Merge([]string{"A1"})); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A1"}, loaded.SortedIDs()); diff != "" {
		t.Errorf("Load() SeenIDs mismatch (-want +got):\n%s", diff)
	}
}
