package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// ErrMissingCredential возвращается, когда не задана обязательная переменная окружения.
var ErrMissingCredential = errors.New("missing required credential")

// ErrHelp возвращается, когда пользователь запросил --help.
var ErrHelp = errors.New("help requested")

// EnvConfig содержит секреты и параметры, задаваемые окружением (или флагами).
type EnvConfig struct {
	GeminiAPIKey     string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key" required:"true"`
	TelegramBotToken string `long:"telegram-bot-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token" required:"true"`
	TelegramChatID   string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Target chat or channel id" required:"true"`

	ScoreThreshold       int           `long:"score-threshold" env:"SCORE_THRESHOLD" default:"7" description:"Minimum score (0-10) for an article to be sent"`
	ContentTruncateChars int           `long:"content-truncate-chars" env:"CONTENT_TRUNCATE_CHARS" default:"800" description:"Max characters of article content sent for scoring"`
	SendDelay            time.Duration `long:"send-delay" env:"TELEGRAM_SEND_DELAY" default:"1s" description:"Minimum delay between Telegram messages"`

	ConfigPath     string `long:"config" env:"PIPELINE_CONFIG" default:"configs/pipeline.yaml" description:"Pipeline and sources config file"`
	HistoryPath    string `long:"history-path" env:"HISTORY_FILE" default:"data/history.json" description:"History file"`
	HistoryBackend string `long:"history-backend" env:"HISTORY_BACKEND" default:"json" choice:"json" choice:"sqlite" description:"History storage backend"`
	LogLevel       string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
	DryRun         bool   `long:"dry-run" env:"DRY_RUN" description:"Log messages instead of sending them and keep history untouched"`
}

// ParseEnv читает .env (без перезаписи существующих переменных), окружение и args.
// Отсутствие обязательных значений оборачивает ErrMissingCredential.
func ParseEnv(args []string) (*EnvConfig, error) {
	LoadDotEnv(".env", "../.env")

	var cfg EnvConfig
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			switch flagsErr.Type {
			case flags.ErrHelp:
				return nil, fmt.Errorf("%w\n%s", ErrHelp, flagsErr.Message)
			case flags.ErrRequired:
				return nil, fmt.Errorf("%w: %s", ErrMissingCredential, flagsErr.Message)
			}
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *EnvConfig) validate() error {
	for name, value := range map[string]string{
		"GEMINI_API_KEY":     c.GeminiAPIKey,
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
		"TELEGRAM_CHAT_ID":   c.TelegramChatID,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is empty", ErrMissingCredential, name)
		}
	}

	switch {
	case c.ScoreThreshold < 0 || c.ScoreThreshold > 10:
		return fmt.Errorf("SCORE_THRESHOLD must be within 0..10, got %d", c.ScoreThreshold)
	case c.ContentTruncateChars <= 0:
		return fmt.Errorf("CONTENT_TRUNCATE_CHARS must be positive, got %d", c.ContentTruncateChars)
	case c.SendDelay < 0:
		return fmt.Errorf("TELEGRAM_SEND_DELAY must not be negative, got %v", c.SendDelay)
	case c.HistoryBackend != "json" && c.HistoryBackend != "sqlite":
		return fmt.Errorf("HISTORY_BACKEND must be json or sqlite, got %q", c.HistoryBackend)
	}
	return nil
}

// LoadDotEnv загружает первый найденный .env-файл. Уже заданные переменные не перезаписываются.
func LoadDotEnv(paths ...string) {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			k, v, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			k = strings.TrimSpace(strings.TrimPrefix(k, "export "))
			v = strings.Trim(strings.TrimSpace(v), `"'`)
			if _, exists := os.LookupEnv(k); !exists {
				os.Setenv(k, v)
			}
		}
		f.Close()
		return
	}
}
