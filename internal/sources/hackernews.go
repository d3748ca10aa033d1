package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/news"
)

const (
	hackerNewsAPI       = "https://hacker-news.firebaseio.com/v0"
	hackerNewsItemURL   = "https://news.ycombinator.com/item?id="
	defaultHNMaxStories = 15
)

// HackerNewsFetcher берёт верхние истории через Firebase API HackerNews.
type HackerNewsFetcher struct {
	name    string
	apiBase string
	limit   int
	client  *http.Client
	ua      string
}

// NewHackerNewsFetcher создаёт фетчер. limit <= 0 означает 15 историй.
func NewHackerNewsFetcher(name string, limit int, deps Deps) *HackerNewsFetcher {
	if limit <= 0 {
		limit = defaultHNMaxStories
	}
	return &HackerNewsFetcher{
		name:    name,
		apiBase: hackerNewsAPI,
		limit:   limit,
		client:  deps.HTTP,
		ua:      deps.UserAgent,
	}
}

func newHackerNewsFromConfig(src config.Source, deps Deps) (Fetcher, error) {
	name := src.Name
	if name == "" {
		name = "hackernews"
	}
	f := NewHackerNewsFetcher(name, src.Limit, deps)
	if src.URL != "" {
		f.apiBase = strings.TrimSuffix(src.URL, "/")
	}
	return f, nil
}

type hnItem struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
	Time  int64  `json:"time"`
}

// Name реализует Fetcher.
func (f *HackerNewsFetcher) Name() string { return f.name }

// Fetch реализует Fetcher. Ошибка списка историй - ошибка источника,
// ошибка отдельной истории - только пропуск.
func (f *HackerNewsFetcher) Fetch(ctx context.Context) ([]news.Article, error) {
	var ids []int64
	if err := f.getJSON(ctx, f.apiBase+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("top stories: %w", err)
	}
	if len(ids) > f.limit {
		ids = ids[:f.limit]
	}

	articles := make([]news.Article, 0, len(ids))
	for _, id := range ids {
		var item hnItem
		if err := f.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", f.apiBase, id), &item); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("skipping hackernews item", "id", id, "err", err)
			continue
		}
		if item.Type != "story" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		link := strings.TrimSpace(item.URL)
		if link == "" {
			link = hackerNewsItemURL + strconv.FormatInt(id, 10)
		}

		title := normalizeText(item.Title)
		var published string
		if item.Time > 0 {
			published = time.Unix(item.Time, 0).UTC().Format(time.RFC3339)
		}

		articles = append(articles, news.Article{
			ID:          ArticleID(link),
			Source:      f.name,
			URL:         link,
			Title:       title,
			RawContent:  joinContent(title, CleanHTML(item.Text)),
			PublishedAt: published,
		})
	}

	return articles, nil
}

func (f *HackerNewsFetcher) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := getBody(ctx, f.client, f.ua, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
