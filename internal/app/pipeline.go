package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maine/startup_intel_bot/internal/filter"
	"github.com/maine/startup_intel_bot/internal/news"
	"github.com/maine/startup_intel_bot/internal/ranking"
)

const maxPendingArticles = 200

// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
var ErrNotConfigured = errors.New("pipeline dependencies not configured")

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// SourceCollector опрашивает все источники и возвращает статьи в порядке объявления источников.
type SourceCollector interface {
	Collect(ctx context.Context) ([]news.Article, error)
}

// Filter отсекает уже увиденные и повторяющиеся статьи.
type Filter interface {
	Apply(ctx context.Context, articles []news.Article, history news.History) filter.Result
}

// Scorer оценивает статьи одним батч-запросом.
type Scorer interface {
	Score(ctx context.Context, articles []news.Article) (ranking.Result, error)
}

// Formatter превращает одобренные статьи в текст сообщений.
type Formatter interface {
	BuildMessages(items []news.Approved) []string
	BuildReport(report news.RunReport) string
}

// Notifier доставляет сообщения в чат.
type Notifier interface {
	Send(ctx context.Context, messages []string) (int, error)
	SendOne(ctx context.Context, message string) error
}

// StateStore хранит историю между запусками.
type StateStore interface {
	Load(ctx context.Context) (news.History, error)
	Save(ctx context.Context, history news.History) error
}

// PipelineDeps перечисляет зависимости пайплайна.
type PipelineDeps struct {
	Collector  SourceCollector
	Filter     Filter
	Scorer     Scorer
	Formatter  Formatter
	Notifier   Notifier
	StateStore StateStore
	Clock      Clock

	// StatusReport включает итоговое сообщение со счётчиками запуска.
	StatusReport bool
	// MaxPendingAttempts - сколько раз повторять оценку после сбоя сервиса. 0 отключает.
	MaxPendingAttempts int
	// DryRun пишет сообщения в лог вместо отправки и не сохраняет историю.
	DryRun bool
}

// Pipeline инкапсулирует один запуск агрегатора.
type Pipeline struct {
	collector  SourceCollector
	filter     Filter
	scorer     Scorer
	formatter  Formatter
	notifier   Notifier
	stateStore StateStore
	clock      Clock

	statusReport       bool
	maxPendingAttempts int
	dryRun             bool
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	maxAttempts := deps.MaxPendingAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	return &Pipeline{
		collector:          deps.Collector,
		filter:             deps.Filter,
		scorer:             deps.Scorer,
		formatter:          deps.Formatter,
		notifier:           deps.Notifier,
		stateStore:         deps.StateStore,
		clock:              clock,
		statusReport:       deps.StatusReport,
		maxPendingAttempts: maxAttempts,
		dryRun:             deps.DryRun,
	}
}

// Run исполняет полный цикл: история, сбор, дедупликация, оценка, доставка, сохранение.
// Ошибка возвращается только при неполной конфигурации, отмене контекста до сбора
// или невозможности прочитать/записать историю.
func (p *Pipeline) Run(ctx context.Context) (news.RunReport, error) {
	var report news.RunReport
	if err := p.validateDeps(); err != nil {
		return report, err
	}

	history, err := p.stateStore.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load history: %w", err)
	}
	if history.SeenIDs == nil {
		history.SeenIDs = make(map[string]struct{})
	}
	slog.Info("history loaded", "seen", len(history.SeenIDs), "pending", len(history.Pending))

	slog.Info("Step 1: collecting articles from sources")
	articles, err := p.collector.Collect(ctx)
	if err != nil {
		return report, fmt.Errorf("collect articles: %w", err)
	}
	report.Fetched = len(articles)
	slog.Info("collected articles", "count", len(articles))

	slog.Info("Step 2: filtering seen articles")
	deduped := p.filter.Apply(ctx, articles, history)
	report.New = len(deduped.Unseen)
	slog.Info("filtered articles",
		"new", len(deduped.Unseen),
		"duplicates", deduped.Duplicates,
		"anomalies", deduped.Anomalies,
	)

	candidates, prevAttempts := p.candidates(history.Pending, deduped.Unseen)

	slog.Info("Step 3: scoring articles", "candidates", len(candidates))
	var pending []news.PendingArticle
	scored, err := p.scorer.Score(ctx, candidates)
	if err != nil {
		// Кандидаты всё равно попадают в историю, повторная оценка идёт через pending.
		slog.Error("scoring failed, nothing will be sent this run", "candidates", len(candidates), "err", err)
		scored = ranking.Result{}
		pending = p.nextPending(candidates, prevAttempts)
	}
	report.Scored = len(scored.Scored)
	report.Approved = len(scored.Approved)
	slog.Info("scored articles", "scored", report.Scored, "approved", report.Approved)

	slog.Info("Step 4: formatting messages")
	messages := p.formatter.BuildMessages(scored.Approved)

	slog.Info("Step 5: delivering messages", "count", len(messages), "dry_run", p.dryRun)
	report.Sent = p.deliver(ctx, messages)
	if p.statusReport {
		p.sendReport(ctx, report)
	}

	slog.Info("Step 6: persisting history")
	next := history.Merge(deduped.FetchedIDs)
	next.LastRun = p.clock()
	next.Pending = pending
	if p.dryRun {
		slog.Info("dry run, history not saved", "seen", len(next.SeenIDs))
		return report, nil
	}
	// История сохраняется даже после отмены контекста во время доставки.
	if err := p.stateStore.Save(context.WithoutCancel(ctx), next); err != nil {
		return report, fmt.Errorf("save history: %w", err)
	}

	slog.Info("pipeline finished",
		"fetched", report.Fetched,
		"new", report.New,
		"scored", report.Scored,
		"approved", report.Approved,
		"sent", report.Sent,
	)
	return report, nil
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.collector == nil,
		p.filter == nil,
		p.scorer == nil,
		p.formatter == nil,
		p.notifier == nil,
		p.stateStore == nil,
		p.clock == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}

// candidates ставит статьи, ожидающие повторной оценки, перед новыми.
// Возвращает также число прошлых попыток по id.
func (p *Pipeline) candidates(pending []news.PendingArticle, unseen []news.Article) ([]news.Article, map[string]int) {
	attempts := make(map[string]int, len(pending))
	if p.maxPendingAttempts == 0 {
		return unseen, attempts
	}

	out := make([]news.Article, 0, len(pending)+len(unseen))
	for _, item := range pending {
		id := item.Article.ID
		if id == "" {
			continue
		}
		if _, dup := attempts[id]; dup {
			continue
		}
		attempts[id] = item.Attempts
		out = append(out, item.Article)
	}
	for _, article := range unseen {
		if _, dup := attempts[article.ID]; dup {
			continue
		}
		out = append(out, article)
	}

	if len(attempts) > 0 {
		slog.Info("retrying articles left unscored by a previous run", "count", len(attempts))
	}
	return out, attempts
}

// nextPending строит очередь повторной оценки после неудачного запроса.
func (p *Pipeline) nextPending(candidates []news.Article, prevAttempts map[string]int) []news.PendingArticle {
	if p.maxPendingAttempts == 0 {
		return nil
	}

	pending := make([]news.PendingArticle, 0, len(candidates))
	for _, article := range candidates {
		attempts := prevAttempts[article.ID] + 1
		if attempts >= p.maxPendingAttempts {
			slog.Warn("giving up on article after repeated scoring failures",
				"id", article.ID,
				"source", article.Source,
				"attempts", attempts,
			)
			continue
		}
		pending = append(pending, news.PendingArticle{Article: article, Attempts: attempts})
	}

	if len(pending) > maxPendingArticles {
		slog.Warn("pending queue is full, dropping oldest entries", "dropped", len(pending)-maxPendingArticles)
		pending = pending[len(pending)-maxPendingArticles:]
	}
	return pending
}

func (p *Pipeline) deliver(ctx context.Context, messages []string) int {
	if len(messages) == 0 {
		return 0
	}

	if p.dryRun {
		for i, msg := range messages {
			slog.Info("dry run message", "index", i, "text", msg)
		}
		return 0
	}

	sent, err := p.notifier.Send(ctx, messages)
	if err != nil {
		slog.Error("delivery interrupted", "sent", sent, "total", len(messages), "err", err)
	}
	return sent
}

func (p *Pipeline) sendReport(ctx context.Context, report news.RunReport) {
	text := p.formatter.BuildReport(report)
	if p.dryRun {
		slog.Info("dry run report", "text", text)
		return
	}
	if err := p.notifier.SendOne(ctx, text); err != nil {
		slog.Warn("failed to send run report", "err", err)
	}
}
