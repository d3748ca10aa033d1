package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/news"
)

// maxArticlesPerFeed - сколько первых (обычно самых свежих) записей ленты обрабатывать.
const maxArticlesPerFeed = 100

// RSSFetcher загружает RSS/Atom-ленту.
type RSSFetcher struct {
	name      string
	url       string
	limit     int
	client    *http.Client
	userAgent string
	parser    *gofeed.Parser
}

// NewRSSFetcher создаёт фетчер ленты.
func NewRSSFetcher(name, url string, limit int, deps Deps) *RSSFetcher {
	if limit <= 0 {
		limit = maxArticlesPerFeed
	}
	return &RSSFetcher{
		name:      name,
		url:       url,
		limit:     limit,
		client:    deps.HTTP,
		userAgent: deps.UserAgent,
		parser:    gofeed.NewParser(),
	}
}

func newRSSFromConfig(src config.Source, deps Deps) (Fetcher, error) {
	if strings.TrimSpace(src.URL) == "" {
		return nil, errors.New("rss source requires url")
	}
	return NewRSSFetcher(src.DisplayName(), src.URL, src.Limit, deps), nil
}

// Name реализует Fetcher.
func (f *RSSFetcher) Name() string { return f.name }

// Fetch реализует Fetcher.
func (f *RSSFetcher) Fetch(ctx context.Context) ([]news.Article, error) {
	body, err := getBody(ctx, f.client, f.userAgent, f.url, "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := feed.Items
	if len(items) > f.limit {
		items = items[:f.limit]
	}

	articles := make([]news.Article, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		title := CleanHTML(item.Title)
		body := CleanHTML(selectContent(item))

		articles = append(articles, news.Article{
			ID:          ArticleID(link),
			Source:      f.name,
			URL:         link,
			Title:       title,
			RawContent:  joinContent(title, body),
			PublishedAt: publishedAt(item),
		})
	}

	return articles, nil
}

func selectContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

func publishedAt(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.Format(time.RFC3339)
	default:
		return strings.TrimSpace(item.Published)
	}
}
