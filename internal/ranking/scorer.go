package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/maine/startup_intel_bot/internal/gemini"
	"github.com/maine/startup_intel_bot/internal/news"
)

const (
	DefaultThreshold     = 7
	DefaultTruncateChars = 800
	DefaultAudience      = "an 11th-grade student in Kazakhstan (Physics/Math track) who is passionate about entrepreneurship and building startups"

	minScore = 0
	maxScore = 10
)

// ErrScoringFailed возвращается, когда единственный запрос к сервису оценки не дал результата.
var ErrScoringFailed = errors.New("scoring request failed")

// Config - параметры оценщика.
type Config struct {
	Model         string
	Audience      string
	Threshold     int
	TruncateChars int
}

// Result - итог оценки одного батча.
type Result struct {
	// Approved - статьи с оценкой не ниже порога, в порядке входного батча.
	Approved []news.Approved
	// Scored - все валидные оценки, полученные от модели.
	Scored []news.ScoredItem
}

// Scorer оценивает релевантность статей одним батч-запросом к Gemini.
type Scorer struct {
	client gemini.GeminiClient
	cfg    Config
}

// NewScorer создаёт оценщик, подставляя значения по умолчанию.
func NewScorer(client gemini.GeminiClient, cfg Config) *Scorer {
	if cfg.TruncateChars <= 0 {
		cfg.TruncateChars = DefaultTruncateChars
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		cfg.Audience = DefaultAudience
	}
	return &Scorer{client: client, cfg: cfg}
}

// Score реализует app.Scorer.
// Пустой вход не приводит к внешним вызовам.
func (s *Scorer) Score(ctx context.Context, articles []news.Article) (Result, error) {
	if len(articles) == 0 {
		slog.Info("no articles to score, skipping request")
		return Result{}, nil
	}

	input := make([]articleInput, 0, len(articles))
	for _, article := range articles {
		input = append(input, articleInput{
			ID:      article.ID,
			Source:  article.Source,
			Title:   article.Title,
			Content: truncateRunes(article.RawContent, s.cfg.TruncateChars),
		})
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("marshal input: %w", err)
	}

	slog.Info("scoring articles in one request", "count", len(articles), "model", s.cfg.Model)

	responseText, err := s.client.GenerateText(ctx, s.cfg.Model, s.buildPrompt(string(inputJSON)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	records, err := decodeRecords(responseText)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	byID := make(map[string]news.Article, len(articles))
	for _, article := range articles {
		byID[strings.TrimSpace(article.ID)] = article
	}

	scores := make(map[string]news.ScoredItem, len(records))
	var scored []news.ScoredItem
	for i, raw := range records {
		item, err := parseRecord(raw)
		if err != nil {
			slog.Warn("dropping malformed score record", "index", i, "err", err)
			continue
		}
		if _, ok := byID[item.ID]; !ok {
			slog.Warn("dropping score for unknown article id", "id", item.ID)
			continue
		}
		if _, dup := scores[item.ID]; dup {
			continue
		}
		scores[item.ID] = item
		scored = append(scored, item)
	}

	var approved []news.Approved
	for _, article := range articles {
		item, ok := scores[strings.TrimSpace(article.ID)]
		if !ok || item.Score < s.cfg.Threshold {
			continue
		}
		approved = append(approved, news.Approved{Article: article, Score: item})
	}

	slog.Info("scoring complete", "requested", len(articles), "scored", len(scored), "approved", len(approved), "threshold", s.cfg.Threshold)

	return Result{Approved: approved, Scored: scored}, nil
}

func (s *Scorer) buildPrompt(inputJSON string) string {
	return fmt.Sprintf(`You are an expert startup ecosystem analyst selecting news for %s.
You will receive a JSON array of articles, each with a unique "id", its "source", "title" and "content".
For EVERY article, rate from 0 to 10 how relevant and useful it is for that reader (10 = must read: grants, hackathons, accelerators, funding, startup opportunities and tools they can act on; 0 = irrelevant or spam) and write one sentence explaining why it matters to them.
Return exactly one object per input article, using the same "id".
Respond EXCLUSIVELY with a JSON array, no comments:
[{"id": "<article id>", "score": <integer 0-10>, "summary": "<one sentence>"}]

Articles:
%s`, s.cfg.Audience, inputJSON)
}

// decodeRecords разбирает ответ модели на отдельные записи.
// Запись, которую не удаётся разобрать, отбрасывается позже, не ломая весь батч.
func decodeRecords(text string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &records); err == nil {
		return records, nil
	}

	// Модель могла добавить лишний текст или markdown-ограждение
	cleaned := extractJSON(text)
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON array in response (raw: %.200s)", text)
	}
	if err := json.Unmarshal([]byte(cleaned), &records); err != nil {
		return nil, fmt.Errorf("unmarshal cleaned response: %w", err)
	}
	return records, nil
}

func parseRecord(raw json.RawMessage) (news.ScoredItem, error) {
	var rec scoreRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return news.ScoredItem{}, fmt.Errorf("unmarshal record: %w", err)
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return news.ScoredItem{}, errors.New("record without id")
	}

	score, err := parseScore(rec.Score)
	if err != nil {
		return news.ScoredItem{}, fmt.Errorf("record %s: %w", id, err)
	}

	return news.ScoredItem{
		ID:      id,
		Score:   score,
		Summary: strings.TrimSpace(rec.Summary),
	}, nil
}

// parseScore принимает целое число или числовую строку в диапазоне 0..10.
// Дробные значения (6.6, 9.5) отбрасываются, 7.0 принимается как 7.
func parseScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing score")
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("score is not a number: %s", raw)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, fmt.Errorf("score is not a number: %q", str)
		}
		value = parsed
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("score is not finite: %v", value)
	}

	if value < minScore || value > maxScore {
		return 0, fmt.Errorf("score %v out of range %d..%d", value, minScore, maxScore)
	}
	if value != math.Trunc(value) {
		return 0, fmt.Errorf("score %v is not an integer", value)
	}
	return int(value), nil
}

// extractJSON извлекает первый JSON-массив из текста, учитывая строки с скобками.
func extractJSON(text string) string {
	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

type articleInput struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type scoreRecord struct {
	ID      string          `json:"id"`
	Score   json.RawMessage `json:"score"`
	Summary string          `json:"summary"`
}
