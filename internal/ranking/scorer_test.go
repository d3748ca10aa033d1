package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maine/startup_intel_bot/internal/news"
)

// mockGeminiClient - мок для тестирования Scorer
type mockGeminiClient struct {
	calls            int
	lastPrompt       string
	generateTextFunc func(ctx context.Context, model string, prompt string) (string, error)
}

func (m *mockGeminiClient) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.generateTextFunc != nil {
		return m.generateTextFunc(ctx, model, prompt)
	}
	return "", errors.New("not implemented")
}

func respond(text string) func(ctx context.Context, model string, prompt string) (string, error) {
	return func(ctx context.Context, model string, prompt string) (string, error) {
		return text, nil
	}
}

func approvedIDs(res Result) []string {
	out := []string{}
	for _, a := range res.Approved {
		out = append(out, a.Article.ID)
	}
	return out
}

func TestScorer_Score(t *testing.T) {
	articles := []news.Article{
		{ID: "A2", Title: "Hackathon Grant", URL: "https://example.com/a2", RawContent: "grant for student teams"},
		{ID: "A3", Title: "Crypto Pump", URL: "https://example.com/a3", RawContent: "to the moon"},
		{ID: "A4", Title: "Accelerator", URL: "https://example.com/a4", RawContent: "apply now"},
	}

	tests := []struct {
		name         string
		response     string
		wantApproved []string
		wantScored   int
		wantErr      bool
	}{
		{
			name:         "threshold boundary: 6 excluded, 7 included",
			response:     `[{"id":"A2","score":7,"summary":"s2"},{"id":"A3","score":6,"summary":"s3"},{"id":"A4","score":10,"summary":"s4"}]`,
			wantApproved: []string{"A2", "A4"},
			wantScored:   3,
		},
		{
			name:         "approved keep fetch order, not score order",
			response:     `[{"id":"A4","score":9,"summary":"s4"},{"id":"A2","score":8,"summary":"s2"}]`,
			wantApproved: []string{"A2", "A4"},
			wantScored:   2,
		},
		{
			name:         "unknown id is dropped",
			response:     `[{"id":"ZZ","score":10,"summary":"x"},{"id":"A2","score":8,"summary":"s2"}]`,
			wantApproved: []string{"A2"},
			wantScored:   1,
		},
		{
			name:         "out of range and malformed records are dropped",
			response:     `[{"id":"A2","score":11,"summary":"x"},{"id":"A3","score":-1},"garbage",{"id":"A4","score":"high"},{"score":9}]`,
			wantApproved: []string{},
			wantScored:   0,
		},
		{
			name:         "numeric strings and integral floats are accepted",
			response:     `[{"id":"A2","score":"8","summary":"s2"},{"id":"A4","score":7.0,"summary":"s4"}]`,
			wantApproved: []string{"A2", "A4"},
			wantScored:   2,
		},
		{
			name:         "fractional scores are dropped, never rounded past the threshold",
			response:     `[{"id":"A2","score":6.6,"summary":"s2"},{"id":"A3","score":"6.5","summary":"s3"},{"id":"A4","score":9.5,"summary":"s4"}]`,
			wantApproved: []string{},
			wantScored:   0,
		},
		{
			name:         "fractional scores just outside the range are dropped",
			response:     `[{"id":"A2","score":10.4,"summary":"s2"},{"id":"A3","score":-0.4,"summary":"s3"},{"id":"A4","score":10,"summary":"s4"}]`,
			wantApproved: []string{"A4"},
			wantScored:   1,
		},
		{
			name:         "duplicate ids keep the first record",
			response:     `[{"id":"A2","score":3,"summary":"first"},{"id":"A2","score":9,"summary":"second"}]`,
			wantApproved: []string{},
			wantScored:   1,
		},
		{
			name:         "array wrapped in code fence",
			response:     "```json\n[{\"id\":\"A2\",\"score\":8,\"summary\":\"uses [brackets] inside\"}]\n```",
			wantApproved: []string{"A2"},
			wantScored:   1,
		},
		{
			name:     "not JSON at all",
			response: "I cannot help with that.",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockGeminiClient{generateTextFunc: respond(tt.response)}
			scorer := NewScorer(client, Config{Model: "gemini-test", Threshold: DefaultThreshold})

			res, err := scorer.Score(context.Background(), articles)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Score() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrScoringFailed) {
					t.Errorf("Score() error = %v, want ErrScoringFailed", err)
				}
				return
			}
			if client.calls != 1 {
				t.Errorf("GenerateText calls = %d, want exactly 1", client.calls)
			}
			if diff := cmp.Diff(tt.wantApproved, approvedIDs(res)); diff != "" {
				t.Errorf("approved mismatch (-want +got):\n%s", diff)
			}
			if len(res.Scored) != tt.wantScored {
				t.Errorf("Scored len = %d, want %d", len(res.Scored), tt.wantScored)
			}
		})
	}
}

func TestScorer_Score_EmptyInput(t *testing.T) {
	client := &mockGeminiClient{generateTextFunc: respond("[]")}
	scorer := NewScorer(client, Config{Threshold: DefaultThreshold})

	res, err := scorer.Score(context.Background(), nil)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if client.calls != 0 {
		t.Errorf("GenerateText calls = %d, want 0", client.calls)
	}
	if len(res.Approved) != 0 || len(res.Scored) != 0 {
		t.Errorf("Score() = %+v, want empty result", res)
	}
}

func TestScorer_Score_ServiceFailure(t *testing.T) {
	client := &mockGeminiClient{
		generateTextFunc: func(ctx context.Context, model string, prompt string) (string, error) {
			return "", errors.New("Error 503: model overloaded")
		},
	}
	scorer := NewScorer(client, Config{Threshold: DefaultThreshold})

	_, err := scorer.Score(context.Background(), []news.Article{{ID: "A1"}})
	if !errors.Is(err, ErrScoringFailed) {
		t.Fatalf("Score() error = %v, want ErrScoringFailed", err)
	}
}

func TestScorer_Score_JoinsArticleAndSummary(t *testing.T) {
	client := &mockGeminiClient{generateTextFunc: respond(`[{"id":"A2","score":8,"summary":"Grant for student founders."}]`)}
	scorer := NewScorer(client, Config{Threshold: 7})

	article := news.Article{ID: "A2", Title: "Hackathon Grant", URL: "https://example.com/a2", RawContent: "text"}
	res, err := scorer.Score(context.Background(), []news.Article{article})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	want := []news.Approved{{
		Article: article,
		Score:   news.ScoredItem{ID: "A2", Score: 8, Summary: "Grant for student founders."},
	}}
	if diff := cmp.Diff(want, res.Approved); diff != "" {
		t.Errorf("Approved mismatch (-want +got):\n%s", diff)
	}
}

func TestScorer_Score_MatchesPaddedArticleID(t *testing.T) {
	client := &mockGeminiClient{generateTextFunc: respond(`[{"id":"A2","score":9,"summary":"s2"}]`)}
	scorer := NewScorer(client, Config{Threshold: 7})

	res, err := scorer.Score(context.Background(), []news.Article{{ID: " A2 ", Title: "Hackathon Grant"}})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(res.Approved) != 1 {
		t.Fatalf("Approved len = %d, want 1", len(res.Approved))
	}
	if res.Approved[0].Article.Title != "Hackathon Grant" {
		t.Errorf("Approved article = %+v, want the padded-id article", res.Approved[0].Article)
	}
}

func TestScorer_buildPrompt_TruncatesContent(t *testing.T) {
	client := &mockGeminiClient{generateTextFunc: respond("[]")}
	scorer := NewScorer(client, Config{Threshold: 7, TruncateChars: 5, Audience: "test readers"})

	_, err := scorer.Score(context.Background(), []news.Article{{ID: "A1", RawContent: "абвгдежзик"}})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if !strings.Contains(client.lastPrompt, "test readers") {
		t.Errorf("prompt does not mention the audience profile")
	}

	const marker = "Articles:\n"
	start := strings.Index(client.lastPrompt, marker)
	if start == -1 {
		t.Fatalf("prompt has no input array: %s", client.lastPrompt)
	}
	start += len(marker)
	var input []articleInput
	if err := json.Unmarshal([]byte(client.lastPrompt[start:]), &input); err != nil {
		t.Fatalf("prompt input is not JSON: %v", err)
	}
	if len(input) != 1 || input[0].Content != "абвгд" {
		t.Errorf("prompt input = %+v, want content truncated to 5 runes", input)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "plain array", text: `[1,2]`, want: `[1,2]`},
		{name: "surrounding text", text: `Here you go: [{"a":"]"}] thanks`, want: `[{"a":"]"}]`},
		{name: "nested arrays", text: `x [[1],[2]] y`, want: `[[1],[2]]`},
		{name: "no array", text: `{"a":1}`, want: ``},
		{name: "unterminated", text: `[1,2`, want: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.text); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
