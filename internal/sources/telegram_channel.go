package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/news"
)

const telegramBase = "https://t.me"

// TelegramChannelFetcher читает публичный канал через веб-превью t.me/s/<channel>.
type TelegramChannelFetcher struct {
	name      string
	channel   string
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewTelegramChannelFetcher создаёт фетчер канала.
func NewTelegramChannelFetcher(name, channel string, deps Deps) *TelegramChannelFetcher {
	return &TelegramChannelFetcher{
		name:      name,
		channel:   strings.TrimPrefix(channel, "@"),
		baseURL:   telegramBase,
		client:    deps.HTTP,
		userAgent: deps.UserAgent,
	}
}

func newTelegramFromConfig(src config.Source, deps Deps) (Fetcher, error) {
	if strings.TrimSpace(src.Channel) == "" {
		return nil, errors.New("telegram source requires channel")
	}
	f := NewTelegramChannelFetcher(src.DisplayName(), src.Channel, deps)
	if src.URL != "" {
		f.baseURL = strings.TrimSuffix(src.URL, "/")
	}
	return f, nil
}

// Name реализует Fetcher.
func (f *TelegramChannelFetcher) Name() string { return f.name }

// Fetch реализует Fetcher.
func (f *TelegramChannelFetcher) Fetch(ctx context.Context) ([]news.Article, error) {
	pageURL := fmt.Sprintf("%s/s/%s", f.baseURL, f.channel)
	body, err := getBody(ctx, f.client, f.userAgent, pageURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return f.extract(doc), nil
}

func (f *TelegramChannelFetcher) extract(doc *goquery.Document) []news.Article {
	var articles []news.Article

	doc.Find(".tgme_widget_message").Each(func(_ int, msg *goquery.Selection) {
		post, ok := msg.Attr("data-post")
		post = strings.TrimSpace(post)
		if !ok || post == "" {
			return
		}

		textSel := msg.Find(".tgme_widget_message_text").First()
		if textSel.Length() == 0 {
			return
		}
		lines := normalizeLines(selectionText(textSel))
		if len(lines) == 0 {
			return
		}

		postURL := f.baseURL + "/" + post
		articles = append(articles, news.Article{
			ID:          ArticleID(postURL),
			Source:      f.name,
			URL:         postURL,
			Title:       truncateRunes(lines[0], maxTitleRunes),
			RawContent:  strings.Join(lines, "\n"),
			PublishedAt: messageDate(msg),
		})
	})

	return articles
}

func messageDate(msg *goquery.Selection) string {
	dateSel := msg.Find("time.datetime, .tgme_widget_message_date time").First()
	if dateSel.Length() == 0 {
		return ""
	}
	if dt, ok := dateSel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	return normalizeText(dateSel.Text())
}
