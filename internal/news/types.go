package news

import (
	"sort"
	"time"
)

// Article описывает одну единицу контента сразу после получения из источника.
// Два Article с одинаковым ID обозначают один и тот же материал.
type Article struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	RawContent  string `json:"raw_content"`
	PublishedAt string `json:"published_at,omitempty"` // best-effort, только для информации
}

// ScoredItem - оценка одной статьи, полученная от модели.
type ScoredItem struct {
	ID      string `json:"id"`
	Score   int    `json:"score"`
	Summary string `json:"summary"`
}

// Approved связывает статью с её оценкой, прошедшей порог.
type Approved struct {
	Article Article
	Score   ScoredItem
}

// PendingArticle - статья, уже отмеченная как увиденная, но не получившая оценку
// из-за сбоя сервиса оценки.
type PendingArticle struct {
	Article  Article `json:"article"`
	Attempts int     `json:"attempts"`
}

// History - персистентное состояние между запусками.
type History struct {
	SeenIDs map[string]struct{}
	LastRun time.Time
	Pending []PendingArticle
}

// NewHistory создаёт пустую историю.
func NewHistory() History {
	return History{SeenIDs: make(map[string]struct{})}
}

// Seen сообщает, встречался ли id ранее.
func (h History) Seen(id string) bool {
	_, ok := h.SeenIDs[id]
	return ok
}

// SortedIDs возвращает идентификаторы в стабильном порядке для записи на диск.
func (h History) SortedIDs() []string {
	ids := make([]string, 0, len(h.SeenIDs))
	for id := range h.SeenIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge возвращает копию истории, в которую добавлены ids. Исходная история не меняется.
func (h History) Merge(ids []string) History {
	merged := make(map[string]struct{}, len(h.SeenIDs)+len(ids))
	for id := range h.SeenIDs {
		merged[id] = struct{}{}
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		merged[id] = struct{}{}
	}
	h.SeenIDs = merged
	return h
}

// RunReport собирает счётчики одного запуска для итогового сообщения и логов.
type RunReport struct {
	Fetched  int
	New      int
	Scored   int
	Approved int
	Sent     int
}
