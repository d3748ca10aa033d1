package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultSendDelay - минимальная пауза между сообщениями в один чат
	DefaultSendDelay = time.Second
	// retryDelay - базовая задержка между попытками
	retryDelay    = 2 * time.Second
	maxRetryDelay = 10 * time.Second
)

// Sender реализует app.Notifier: отправляет сообщения в один чат последовательно, с паузой.
type Sender struct {
	client   TelegramClient
	chatID   string
	limiter  *rate.Limiter
	attempts int
}

// NewSender создаёт отправителя. delay <= 0 отключает паузу, attempts < 1 означает одну попытку.
func NewSender(client TelegramClient, chatID string, delay time.Duration, attempts int) *Sender {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Sender{
		client:   client,
		chatID:   chatID,
		limiter:  rate.NewLimiter(limit, 1),
		attempts: attempts,
	}
}

// Send реализует app.Notifier.
// Ошибка одного сообщения логируется и не прерывает отправку остальных.
// Возвращает число доставленных сообщений; ошибка - только при отмене контекста.
func (s *Sender) Send(ctx context.Context, messages []string) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	slog.Info("sending messages", "count", len(messages), "chat_id", s.chatID)

	sent := 0
	for i, message := range messages {
		if err := s.SendOne(ctx, message); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			slog.Error("failed to send message", "index", i, "attempts", s.attempts, "err", err)
			continue
		}
		sent++
	}

	slog.Info("telegram delivery complete", "sent", sent, "total", len(messages))
	return sent, nil
}

// SendOne отправляет одно сообщение с соблюдением паузы.
func (s *Sender) SendOne(ctx context.Context, message string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}
	return s.sendWithRetry(ctx, message)
}

// sendWithRetry отправляет сообщение, повторяя только при повторяемых ошибках.
func (s *Sender) sendWithRetry(ctx context.Context, message string) error {
	var lastErr error

	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay * time.Duration(attempt)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				delay = time.Duration(apiErr.RetryAfter) * time.Second
			}
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := s.client.SendMessage(ctx, s.chatID, message, "")
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}

	if s.attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError определяет, можно ли повторить отправку при данной ошибке.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	// Ошибки, при которых повтор не поможет
	nonRetryableErrors := []string{
		"chat not found",
		"bot was blocked",
		"user is deactivated",
		"chat_id is empty",
		"message is too long",
		"bad request",
		"unauthorized",
	}

	for _, nonRetryable := range nonRetryableErrors {
		if containsIgnoreCase(errStr, nonRetryable) {
			return false
		}
	}

	// По умолчанию считаем ошибку повторяемой (сетевые ошибки, временные проблемы API)
	return true
}

// containsIgnoreCase проверяет, содержит ли строка подстроку (без учёта регистра).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
