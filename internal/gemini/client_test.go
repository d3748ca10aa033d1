package gemini

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  string
		want errorKind
	}{
		{
			name: "daily quota",
			err:  "Error 429, Message: Quota exceeded for metric: generate_content_free_tier_requests, limit: 20",
			want: errRPDQuota,
		},
		{
			name: "per minute rate limit",
			err:  "Error 429: Resource exhausted, too many requests",
			want: errRateLimit,
		},
		{
			name: "model overloaded",
			err:  "Error 503, Message: The model is overloaded. Please try again later.",
			want: errServiceUnavailable,
		},
		{
			name: "bad gateway",
			err:  "Error 502: Bad Gateway",
			want: errTemporary,
		},
		{
			name: "forbidden quota",
			err:  "Error 403: project quota exceeded",
			want: errQuota,
		},
		{
			name: "invalid argument",
			err:  "Error 400: API key not valid",
			want: errPermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryPolicy_delayFor(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:               10 * time.Second,
		MaxDelay:                25 * time.Second,
		RateLimitDelay:          time.Minute,
		ServiceUnavailableDelay: 2 * time.Minute,
	}

	tests := []struct {
		name    string
		kind    errorKind
		attempt int
		want    time.Duration
	}{
		{name: "rate limit uses fixed delay", kind: errRateLimit, attempt: 3, want: time.Minute},
		{name: "overloaded uses long delay", kind: errServiceUnavailable, attempt: 1, want: 2 * time.Minute},
		{name: "linear backoff", kind: errTemporary, attempt: 2, want: 20 * time.Second},
		{name: "backoff is capped", kind: errTemporary, attempt: 4, want: 25 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.delayFor(tt.kind, tt.attempt); got != tt.want {
				t.Errorf("delayFor() = %v, want %v", got, tt.want)
			}
		})
	}
}
