package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/news"
)

const (
	defaultTitleSelector   = "h1, h2, h3, h4, .title, .headline"
	defaultSummarySelector = "p, .excerpt, .description, .desc, .summary"
	defaultDateSelector    = "time, .date, .published"
	defaultHTMLMaxItems    = 30
)

// HTMLFetcher разбирает страницу-ленту сайта без RSS по CSS-селекторам.
type HTMLFetcher struct {
	name      string
	pageURL   *url.URL
	src       config.Source
	maxItems  int
	client    *http.Client
	userAgent string
}

// NewHTMLFetcher создаёт фетчер по записи конфигурации.
func NewHTMLFetcher(src config.Source, deps Deps) (*HTMLFetcher, error) {
	if strings.TrimSpace(src.URL) == "" {
		return nil, errors.New("html source requires url")
	}
	if strings.TrimSpace(src.ItemSelector) == "" {
		return nil, errors.New("html source requires item_selector")
	}
	pageURL, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	if src.TitleSelector == "" {
		src.TitleSelector = defaultTitleSelector
	}
	if src.SummarySelector == "" {
		src.SummarySelector = defaultSummarySelector
	}
	if src.DateSelector == "" {
		src.DateSelector = defaultDateSelector
	}
	maxItems := src.Limit
	if maxItems <= 0 {
		maxItems = defaultHTMLMaxItems
	}

	return &HTMLFetcher{
		name:      src.DisplayName(),
		pageURL:   pageURL,
		src:       src,
		maxItems:  maxItems,
		client:    deps.HTTP,
		userAgent: deps.UserAgent,
	}, nil
}

func newHTMLFromConfig(src config.Source, deps Deps) (Fetcher, error) {
	return NewHTMLFetcher(src, deps)
}

// Name реализует Fetcher.
func (f *HTMLFetcher) Name() string { return f.name }

// Fetch реализует Fetcher.
func (f *HTMLFetcher) Fetch(ctx context.Context) ([]news.Article, error) {
	body, err := getBody(ctx, f.client, f.userAgent, f.pageURL.String(), "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	articles := f.extract(doc)

	if f.src.ExtractContent {
		for i := range articles {
			if ctx.Err() != nil {
				// Статьи из листинга уже собраны, отдаём их без полного текста.
				slog.Warn("content extraction interrupted",
					"source", f.Name(),
					"enriched", i,
					"total", len(articles),
					"err", ctx.Err(),
				)
				break
			}
			f.enrich(ctx, &articles[i])
		}
	}

	return articles, nil
}

func (f *HTMLFetcher) extract(doc *goquery.Document) []news.Article {
	var articles []news.Article
	seen := make(map[string]struct{})

	exclude := make(map[string]struct{}, len(f.src.ExcludeURLs))
	for _, u := range f.src.ExcludeURLs {
		exclude[strings.TrimSuffix(u, "/")] = struct{}{}
	}

	doc.Find(f.src.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item
		if goquery.NodeName(item) != "a" {
			link = item.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}

		abs, ok := f.resolve(href)
		if !ok {
			return true
		}
		if f.src.LinkContains != "" && !strings.Contains(abs, f.src.LinkContains) {
			return true
		}
		if _, skip := exclude[strings.TrimSuffix(abs, "/")]; skip {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}

		title := normalizeText(item.Find(f.src.TitleSelector).First().Text())
		if title == "" {
			title = truncateRunes(normalizeText(link.Text()), maxTitleRunes)
		}
		if title == "" {
			return true
		}
		seen[abs] = struct{}{}

		snippet := normalizeText(item.Find(f.src.SummarySelector).First().Text())
		if snippet == "" && goquery.NodeName(item) == "a" {
			snippet = normalizeText(item.Closest("article, li, div").Find(f.src.SummarySelector).First().Text())
		}

		articles = append(articles, news.Article{
			ID:          ArticleID(abs),
			Source:      f.name,
			URL:         abs,
			Title:       title,
			RawContent:  joinContent(title, snippet),
			PublishedAt: itemDate(item, f.src.DateSelector),
		})

		return len(articles) < f.maxItems
	})

	return articles
}

// enrich заменяет пустой сниппет текстом статьи, извлечённым readability.
func (f *HTMLFetcher) enrich(ctx context.Context, article *news.Article) {
	if article.RawContent != article.Title {
		return
	}

	pageURL, err := url.Parse(article.URL)
	if err != nil {
		return
	}
	body, err := getBody(ctx, f.client, f.userAgent, article.URL, "text/html,application/xhtml+xml")
	if err != nil {
		slog.Debug("article page unavailable", "source", f.name, "url", article.URL, "err", err)
		return
	}

	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		slog.Debug("readability failed", "source", f.name, "url", article.URL, "err", err)
		return
	}

	if text := normalizeText(parsed.TextContent); text != "" {
		article.RawContent = joinContent(article.Title, text)
	}
}

func (f *HTMLFetcher) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := f.pageURL.ResolveReference(ref)
	abs.Fragment = ""
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

func itemDate(item *goquery.Selection, selector string) string {
	dateSel := item.Find(selector).First()
	if dateSel.Length() == 0 {
		return ""
	}
	if dt, ok := dateSel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return normalizeText(dateSel.Text())
}
