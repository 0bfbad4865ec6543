package downloader

import (
	"context"
	"time"

	"github.com/VkTheEncoder/Anime4i/internal/config"
)

// RetryPolicy bounds how often and how patiently an upstream request is
// repeated. Attempts counts the first try, so 1 means no retries.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// RetryPolicyFrom reads the policy from download settings.
func RetryPolicyFrom(cfg config.DownloadConfig) RetryPolicy {
	return RetryPolicy{
		Attempts: max(cfg.MaxAttempts, 1),
		Delay:    cfg.RetryDelay,
		MaxDelay: cfg.MaxRetryDelay,
	}
}

// Backoff is the wait before retry n (0-based): Delay doubled n times,
// capped at MaxDelay when that is set.
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.Delay
	for range n {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// WithRetry calls fn until it succeeds, retryable rejects its error, or the policy
// runs out of attempts. The last error is returned; a cancelled wait returns
// the context error.
func WithRetry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error), retryable func(error) bool) (T, error) {
	var zero T
	for n := 0; ; n++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if n+1 >= p.Attempts || !retryable(err) {
			return zero, err
		}

		t := time.NewTimer(p.Backoff(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}
