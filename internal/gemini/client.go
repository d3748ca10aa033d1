package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient определяет интерфейс для работы с Gemini API.
// Это позволяет легко создавать моки для тестирования.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// RetryPolicy задаёт число попыток и паузы между ними для разных классов ошибок.
type RetryPolicy struct {
	MaxRetries              int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	RateLimitDelay          time.Duration
	ServiceUnavailableDelay time.Duration
}

// DefaultRetryPolicy подходит для бесплатного тарифа (RPM=5).
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:              4,
	BaseDelay:               12 * time.Second,
	MaxDelay:                60 * time.Second,
	RateLimitDelay:          time.Minute,
	ServiceUnavailableDelay: 2 * time.Minute,
}

// Option настраивает Client.
type Option func(*Client)

// WithJSONResponse просит модель отвечать в формате application/json.
func WithJSONResponse() Option {
	return func(c *Client) {
		c.config = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}
}

// WithRetryPolicy переопределяет политику повторов.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// Client инкапсулирует работу с Gemini API через официальный SDK.
type Client struct {
	client *genai.Client
	config *genai.GenerateContentConfig
	retry  RetryPolicy
}

var _ GeminiClient = (*Client)(nil)

// NewClient создаёт клиента. apiKey обязателен.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &Client{
		client: client,
		retry:  DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateText отправляет запрос к Gemini API и возвращает текстовый ответ.
// Повторяет запрос при 429 (кроме дневной квоты), 503 и 500/502/504.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	var kind errorKind

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.delayFor(kind, attempt)
			slog.Info("retrying gemini request", "attempt", attempt+1, "max", c.retry.MaxRetries+1, "delay", delay, "reason", kind)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), c.config)
		if err == nil {
			text, textErr := result.Text()
			if textErr != nil {
				return "", fmt.Errorf("get text from result: %w", textErr)
			}
			return text, nil
		}

		lastErr = err
		kind = classify(err.Error())

		switch kind {
		case errRPDQuota:
			slog.Error("gemini daily quota exceeded, stopping retries", "err", err)
			return "", fmt.Errorf("gemini API RPD quota exceeded (daily limit reached): %w", err)
		case errQuota:
			return "", fmt.Errorf("gemini API quota exceeded: %w", err)
		case errPermanent:
			return "", fmt.Errorf("generate content: %w", err)
		default:
			slog.Warn("gemini request failed", "reason", kind, "err", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

type errorKind string

const (
	errPermanent          errorKind = "permanent"
	errRPDQuota           errorKind = "rpd_quota"
	errQuota              errorKind = "quota"
	errRateLimit          errorKind = "rate_limit"
	errServiceUnavailable errorKind = "service_unavailable"
	errTemporary          errorKind = "temporary"
)

func (p RetryPolicy) delayFor(kind errorKind, attempt int) time.Duration {
	switch kind {
	case errServiceUnavailable:
		return p.ServiceUnavailableDelay
	case errRateLimit:
		return p.RateLimitDelay
	default:
		delay := p.BaseDelay * time.Duration(attempt)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		return delay
	}
}

func classify(errStr string) errorKind {
	switch {
	case isRPDQuotaError(errStr):
		return errRPDQuota
	case isRateLimitError(errStr):
		return errRateLimit
	case isServiceUnavailableError(errStr):
		return errServiceUnavailable
	case isTemporaryError(errStr):
		return errTemporary
	case isQuotaExceededError(errStr):
		return errQuota
	default:
		return errPermanent
	}
}

// isRPDQuotaError проверяет, является ли ошибка 429 исчерпанием дневного лимита.
func isRPDQuotaError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	if !strings.Contains(errLower, "429") {
		return false
	}
	return strings.Contains(errLower, "limit: 20") ||
		strings.Contains(errLower, "generate_content_free_tier_requests") ||
		strings.Contains(errLower, "per day")
}

// isRateLimitError - 429, но не дневная квота (RPM/TPM).
func isRateLimitError(errStr string) bool {
	if isRPDQuotaError(errStr) {
		return false
	}
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "429") ||
		strings.Contains(errLower, "too many requests") ||
		strings.Contains(errLower, "resource exhausted")
}

// isServiceUnavailableError - 503, модель перегружена.
func isServiceUnavailableError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "service unavailable") ||
		strings.Contains(errLower, "overloaded")
}

// isTemporaryError - 500, 502, 504.
func isTemporaryError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "500") ||
		strings.Contains(errLower, "502") ||
		strings.Contains(errLower, "504") ||
		strings.Contains(errLower, "internal server error") ||
		strings.Contains(errLower, "bad gateway") ||
		strings.Contains(errLower, "gateway timeout") ||
		strings.Contains(errLower, "deadline exceeded")
}

func isQuotaExceededError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "daily limit") ||
		strings.Contains(errLower, "403")
}
