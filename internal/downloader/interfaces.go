package downloader

import (
	"context"

	"github.com/VkTheEncoder/Anime4i/internal/headers"
)

// Fetcher performs GET requests against upstream hosts.
type Fetcher interface {
	// Get fetches url with exactly the given headers and returns the full body.
	Get(ctx context.Context, url string, h headers.Set) (*Response, error)
}

// Response is a successful upstream response.
type Response struct {
	Body        []byte
	ContentType string
}

// ProgressFunc is called after segment index (0-based) of total has been committed.
type ProgressFunc func(index, total int, url string, bytes int64)
