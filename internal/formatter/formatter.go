package formatter

import (
	"fmt"
	"strings"

	"github.com/maine/startup_intel_bot/internal/news"
)

const (
	// telegramMaxMessageLength - максимальная длина сообщения в Telegram (4096 символов)
	telegramMaxMessageLength = 4096
	// itemTemplate - формат одного уведомления: оценка, заголовок, summary, ссылка
	itemTemplate = "[%d] %s\n%s\n%s"
	// reportTemplate - итоговый отчёт о запуске
	reportTemplate = "StartupIntel run report\nFetched: %d\nNew: %d\nScored: %d\nApproved: %d\nSent: %d/%d"
	ellipsis       = "..."
)

// Formatter реализует app.Formatter для текстовых (без parse mode) сообщений.
type Formatter struct {
	maxLength int
}

// New создаёт форматтер с лимитом Telegram.
func New() *Formatter {
	return &Formatter{maxLength: telegramMaxMessageLength}
}

// FormatItem строит сообщение для одной одобренной статьи.
// Если сообщение длиннее лимита, сокращается summary, чтобы ссылка осталась целой.
func (f *Formatter) FormatItem(item news.Approved) string {
	msg := fmt.Sprintf(itemTemplate, item.Score.Score, item.Article.Title, item.Score.Summary, item.Article.URL)
	if runeLen(msg) <= f.maxLength {
		return msg
	}

	overflow := runeLen(msg) - f.maxLength + runeLen(ellipsis)
	summary := []rune(item.Score.Summary)
	if overflow <= len(summary) {
		short := string(summary[:len(summary)-overflow]) + ellipsis
		return fmt.Sprintf(itemTemplate, item.Score.Score, item.Article.Title, short, item.Article.URL)
	}

	// Даже без summary не помещается (аномально длинный заголовок)
	runes := []rune(msg)
	return string(runes[:f.maxLength-runeLen(ellipsis)]) + ellipsis
}

// BuildMessages реализует app.Formatter: одно сообщение на статью, порядок сохраняется.
func (f *Formatter) BuildMessages(items []news.Approved) []string {
	if len(items) == 0 {
		return nil
	}

	messages := make([]string, 0, len(items))
	for _, item := range items {
		messages = append(messages, f.FormatItem(item))
	}
	return messages
}

// BuildReport строит итоговое сообщение о запуске.
func (f *Formatter) BuildReport(r news.RunReport) string {
	return strings.TrimSpace(fmt.Sprintf(reportTemplate, r.Fetched, r.New, r.Scored, r.Approved, r.Sent, r.Approved))
}

func runeLen(s string) int {
	return len([]rune(s))
}
