package filter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maine/startup_intel_bot/internal/news"
)

// Result - итог дедупликации.
type Result struct {
	// Unseen - статьи, отсутствующие в истории, в исходном порядке, без повторов.
	Unseen []news.Article
	// FetchedIDs - все непустые id, полученные за запуск (для слияния с историей).
	FetchedIDs []string
	// Anomalies - число статей без id.
	Anomalies int
	// Duplicates - число повторов id внутри одного запуска.
	Duplicates int
}

// Filter отсекает уже увиденные и повторяющиеся статьи.
type Filter struct{}

// New создаёт экземпляр фильтра.
func New() *Filter {
	return &Filter{}
}

// Apply реализует app.Filter. Чистая функция: history не изменяется.
// При совпадении id побеждает первая статья (порядок источников сохраняется коллектором).
func (f *Filter) Apply(ctx context.Context, articles []news.Article, history news.History) Result {
	_ = ctx

	var res Result
	batch := make(map[string]struct{}, len(articles))
	res.Unseen = make([]news.Article, 0, len(articles))

	for _, article := range articles {
		id := strings.TrimSpace(article.ID)
		if id == "" {
			res.Anomalies++
			slog.Warn("dropping article without id", "source", article.Source, "url", article.URL)
			continue
		}

		if _, dup := batch[id]; dup {
			res.Duplicates++
			continue
		}
		batch[id] = struct{}{}
		res.FetchedIDs = append(res.FetchedIDs, id)

		if history.Seen(id) {
			continue
		}
		// Дальше по пайплайну id сравнивается с ответом модели и историей без пробелов.
		article.ID = id
		res.Unseen = append(res.Unseen, article)
	}

	return res
}
