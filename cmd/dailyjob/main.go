package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/maine/startup_intel_bot/internal/app"
	"github.com/maine/startup_intel_bot/internal/config"
	"github.com/maine/startup_intel_bot/internal/filter"
	"github.com/maine/startup_intel_bot/internal/formatter"
	"github.com/maine/startup_intel_bot/internal/gemini"
	"github.com/maine/startup_intel_bot/internal/logging"
	"github.com/maine/startup_intel_bot/internal/ranking"
	"github.com/maine/startup_intel_bot/internal/sources"
	"github.com/maine/startup_intel_bot/internal/state"
	"github.com/maine/startup_intel_bot/internal/telegram"
)

func main() {
	// Секреты и параметры запуска: .env, окружение, флаги
	envCfg, err := config.ParseEnv(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			_, usage, _ := strings.Cut(err.Error(), "\n")
			fmt.Println(usage)
			return
		}
		log.Fatalf("configuration error: %v", err)
	}

	// run_id связывает строки лога одного запуска
	slog.SetDefault(logging.New(envCfg.LogLevel).With("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, envCfg); err != nil {
		slog.Error("pipeline failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, envCfg *config.EnvConfig) error {
	rootCfg, err := config.LoadRoot(envCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}

	// Источники
	fetchers, err := sources.NewRegistry().Build(rootCfg.Sources, sources.Deps{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		UserAgent: rootCfg.Pipeline.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	collector := sources.NewCollector(fetchers, rootCfg.Pipeline.FetchTimeout)

	// Оценка через Gemini
	geminiClient, err := gemini.NewClient(ctx, envCfg.GeminiAPIKey, gemini.WithJSONResponse())
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}
	scorer := ranking.NewScorer(geminiClient, ranking.Config{
		Model:         rootCfg.Gemini.Model,
		Audience:      rootCfg.Gemini.Audience,
		Threshold:     envCfg.ScoreThreshold,
		TruncateChars: envCfg.ContentTruncateChars,
	})

	// Доставка
	tgClient := telegram.NewClient(envCfg.TelegramBotToken)
	sender := telegram.NewSender(tgClient, envCfg.TelegramChatID, envCfg.SendDelay, rootCfg.Pipeline.SendAttempts)

	// История
	store, closeStore, err := openStore(ctx, envCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	p := app.NewPipeline(app.PipelineDeps{
		Collector:          collector,
		Filter:             filter.New(),
		Scorer:             scorer,
		Formatter:          formatter.New(),
		Notifier:           sender,
		StateStore:         store,
		StatusReport:       rootCfg.Pipeline.StatusReportEnabled(),
		MaxPendingAttempts: rootCfg.Pipeline.PendingAttempts(),
		DryRun:             envCfg.DryRun,
	})

	slog.Info("starting pipeline",
		"sources", len(fetchers),
		"model", rootCfg.Gemini.Model,
		"threshold", envCfg.ScoreThreshold,
		"history", envCfg.HistoryPath,
		"backend", envCfg.HistoryBackend,
	)

	if _, err := p.Run(ctx); err != nil {
		return err
	}
	return nil
}

func openStore(ctx context.Context, envCfg *config.EnvConfig) (app.StateStore, func(), error) {
	if envCfg.HistoryBackend != "sqlite" {
		return state.NewFileStore(envCfg.HistoryPath), func() {}, nil
	}

	path := envCfg.HistoryPath
	if filepath.Ext(path) == ".json" {
		path = strings.TrimSuffix(path, ".json") + ".db"
	}
	store, err := state.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close history database", "err", err)
		}
	}, nil
}
