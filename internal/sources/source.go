package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/news"
)

// Fetcher получает статьи из одного источника.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]news.Article, error)
}

// Deps - общие зависимости фетчеров.
type Deps struct {
	HTTP      *http.Client
	UserAgent string
}

// Factory строит фетчер из записи конфигурации.
type Factory func(src config.Source, deps Deps) (Fetcher, error)

// Registry сопоставляет kind источника с фабрикой.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry возвращает реестр со всеми встроенными видами источников.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("rss", newRSSFromConfig)
	r.Register("telegram", newTelegramFromConfig)
	r.Register("hackernews", newHackerNewsFromConfig)
	r.Register("html", newHTMLFromConfig)
	return r
}

// Register добавляет или заменяет фабрику.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds возвращает зарегистрированные виды источников.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build создаёт фетчеры в порядке конфигурации. Неизвестный kind - ошибка конфигурации.
func (r *Registry) Build(srcs []config.Source, deps Deps) ([]Fetcher, error) {
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: 30 * time.Second}
	}

	fetchers := make([]Fetcher, 0, len(srcs))
	for _, src := range srcs {
		factory, ok := r.factories[src.Kind]
		if !ok {
			return nil, fmt.Errorf("source %s: unknown kind %q (known: %v)", src.DisplayName(), src.Kind, r.Kinds())
		}
		f, err := factory(src, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.DisplayName(), err)
		}
		fetchers = append(fetchers, f)
	}
	return fetchers, nil
}

// Outcome - результат одного фетчера за запуск.
type Outcome struct {
	Source   string
	Articles []news.Article
	Err      error
	Duration time.Duration
}

// Collector запускает все фетчеры параллельно и дожидается завершения каждого.
type Collector struct {
	fetchers []Fetcher
	timeout  time.Duration
}

// NewCollector создаёт коллектор. timeout <= 0 - без собственного таймаута.
func NewCollector(fetchers []Fetcher, timeout time.Duration) *Collector {
	return &Collector{fetchers: fetchers, timeout: timeout}
}

// Run возвращает результаты всех фетчеров в порядке их объявления.
func (c *Collector) Run(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, len(c.fetchers))

	var wg sync.WaitGroup
	for i, f := range c.fetchers {
		wg.Add(1)
		go func(i int, f Fetcher) {
			defer wg.Done()
			outcomes[i] = c.runOne(ctx, f)
		}(i, f)
	}
	wg.Wait()

	return outcomes
}

func (c *Collector) runOne(ctx context.Context, f Fetcher) (out Outcome) {
	out.Source = f.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out.Articles = nil
			out.Err = fmt.Errorf("fetcher panicked: %v", r)
		}
		out.Duration = time.Since(start)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	articles, err := f.Fetch(ctx)
	if err != nil {
		out.Err = err
		return out
	}
	out.Articles = articles
	return out
}

// Collect реализует app.SourceCollector. Сбой источника не прерывает запуск:
// источник просто не даёт статей.
func (c *Collector) Collect(ctx context.Context) ([]news.Article, error) {
	outcomes := c.Run(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []news.Article
	for _, o := range outcomes {
		if o.Err != nil {
			slog.Warn("source failed, skipping", "source", o.Source, "duration", o.Duration.Round(time.Millisecond), "err", o.Err)
			continue
		}
		slog.Info("source fetched", "source", o.Source, "count", len(o.Articles), "duration", o.Duration.Round(time.Millisecond))
		results = append(results, o.Articles...)
	}
	return results, nil
}
