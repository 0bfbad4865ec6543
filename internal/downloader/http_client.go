package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
	"github.com/VkTheEncoder/Anime4i/internal/metrics"
)

// HTTPClient implements Fetcher. One instance is created at startup and
// shared by every job.
type HTTPClient struct {
	client *http.Client
	retry  RetryPolicy
	logger *slog.Logger
}

// NewHTTPClient creates the shared upstream client.
func NewHTTPClient(cfg config.DownloadConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		MaxIdleConnsPerHost:   max(cfg.Concurrency, 2),
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		retry:  RetryPolicyFrom(cfg),
		logger: logger,
	}
}

// Get fetches url, retrying up to the configured attempt count.
func (c *HTTPClient) Get(ctx context.Context, url string, h headers.Set) (*Response, error) {
	start := time.Now()
	resp, err := WithRetry(ctx, c.retry, func() (*Response, error) {
		return c.getOnce(ctx, url, h)
	}, isRetryableError)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	metrics.UpstreamRequestsTotal.WithLabelValues(outcome(err)).Inc()

	if err != nil {
		c.logger.Debug("upstream request failed", "url", url, "error", err)
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) getOnce(ctx context.Context, url string, h headers.Set) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	h.Apply(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrURLExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &domain.StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	// URL expired is not retryable
	if errors.Is(err, domain.ErrURLExpired) {
		return false
	}
	var se *domain.StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

func outcome(err error) string {
	var se *domain.StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrURLExpired):
		return "denied"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.As(err, &se):
		return "status_" + strconv.Itoa(se.Code)
	default:
		return "error"
	}
}
