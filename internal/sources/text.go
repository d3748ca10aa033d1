package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

const maxTitleRunes = 120

// ArticleID - стабильный идентификатор статьи: первые 16 hex-символов sha256 от URL.
func ArticleID(url string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(h[:])[:16]
}

// CleanHTML убирает разметку и схлопывает пробелы. Обычный текст проходит без изменений, кроме нормализации.
func CleanHTML(s string) string {
	if !strings.Contains(s, "<") {
		return normalizeText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalizeText(s)
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeText(doc.Text())
}

// normalizeText приводит текст к NFC и одной строке без лишних пробелов.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// normalizeLines делает то же, что normalizeText, но сохраняет непустые строки.
func normalizeLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(norm.NFC.String(s), "\n") {
		if line = normalizeText(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

// joinContent собирает текст для оценки в виде "title. body".
func joinContent(title, body string) string {
	switch {
	case body == "":
		return title
	case title == "":
		return body
	default:
		return title + ". " + body
	}
}

// selectionText возвращает текст выделения с переводами строк вместо <br>.
func selectionText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("br").ReplaceWithHtml("\n")
	return clone.Text()
}
