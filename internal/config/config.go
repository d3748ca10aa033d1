package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultFetchTimeout       = 60 * time.Second
	defaultMaxPendingAttempts = 3
	defaultGeminiModel        = "gemini-2.0-flash"
)

type (
	// Root объединяет все блоки файла configs/pipeline.yaml.
	Root struct {
		Pipeline Pipeline `yaml:"pipeline"`
		Gemini   Gemini   `yaml:"gemini"`
		Sources  []Source `yaml:"sources"`
	}

	// Pipeline описывает параметры запуска, не связанные с секретами.
	Pipeline struct {
		StatusReport       *bool         `yaml:"status_report"`
		MaxPendingAttempts *int          `yaml:"max_pending_attempts"` // 0 отключает повторную оценку
		FetchTimeout       time.Duration `yaml:"fetch_timeout"`
		SendAttempts       int           `yaml:"send_attempts"`
		UserAgent          string        `yaml:"user_agent"`
	}

	// Gemini содержит модель и описание целевой аудитории для промпта.
	Gemini struct {
		Model    string `yaml:"model"`
		Audience string `yaml:"audience"`
	}

	// Source - один источник. Набор полей зависит от kind.
	Source struct {
		Name string `yaml:"name"`
		Kind string `yaml:"kind"` // rss | telegram | hackernews | html

		URL     string `yaml:"url,omitempty"`
		Channel string `yaml:"channel,omitempty"`
		Limit   int    `yaml:"limit,omitempty"`

		// Только для kind: html
		ItemSelector    string   `yaml:"item_selector,omitempty"`
		TitleSelector   string   `yaml:"title_selector,omitempty"`
		SummarySelector string   `yaml:"summary_selector,omitempty"`
		DateSelector    string   `yaml:"date_selector,omitempty"`
		LinkContains    string   `yaml:"link_contains,omitempty"`
		ExcludeURLs     []string `yaml:"exclude_urls,omitempty"`
		ExtractContent  bool     `yaml:"extract_content,omitempty"`
	}
)

// LoadRoot читает основной файл конфигурации и подставляет значения по умолчанию.
func LoadRoot(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Root{}, err
	}
	return cfg, nil
}

func (r *Root) applyDefaults() {
	if r.Pipeline.StatusReport == nil {
		enabled := true
		r.Pipeline.StatusReport = &enabled
	}
	if r.Pipeline.MaxPendingAttempts == nil {
		attempts := defaultMaxPendingAttempts
		r.Pipeline.MaxPendingAttempts = &attempts
	}
	if r.Pipeline.FetchTimeout <= 0 {
		r.Pipeline.FetchTimeout = defaultFetchTimeout
	}
	if r.Pipeline.SendAttempts <= 0 {
		r.Pipeline.SendAttempts = 1
	}
	if r.Gemini.Model == "" {
		r.Gemini.Model = defaultGeminiModel
	}
}

func (r Root) validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("config: no sources configured")
	}
	if *r.Pipeline.MaxPendingAttempts < 0 {
		return fmt.Errorf("config: max_pending_attempts must not be negative")
	}

	names := make(map[string]struct{}, len(r.Sources))
	for i, src := range r.Sources {
		if src.Kind == "" {
			return fmt.Errorf("config: source #%d has no kind", i+1)
		}
		name := src.DisplayName()
		if _, dup := names[name]; dup {
			return fmt.Errorf("config: duplicate source %q", name)
		}
		names[name] = struct{}{}
	}
	return nil
}

// DisplayName возвращает тег источника для логов и поля Article.Source.
func (s Source) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Kind == "telegram" && s.Channel != "":
		return "tg/" + s.Channel
	case s.URL != "":
		return s.Kind + "/" + s.URL
	default:
		return s.Kind
	}
}

// StatusReportEnabled сообщает, нужно ли отправлять итоговый отчёт.
func (p Pipeline) StatusReportEnabled() bool {
	return p.StatusReport == nil || *p.StatusReport
}

// PendingAttempts возвращает лимит повторных оценок.
func (p Pipeline) PendingAttempts() int {
	if p.MaxPendingAttempts == nil {
		return defaultMaxPendingAttempts
	}
	return *p.MaxPendingAttempts
}
