package downloader

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
	"github.com/VkTheEncoder/Anime4i/internal/metrics"
)

// SegmentDownloader fetches media segments concurrently and writes them to a
// single file strictly in playlist order.
//
// At most concurrency segments are held at once, counting both requests in
// flight and bodies waiting for the writer. A concurrency of 1 fetches one
// segment at a time.
type SegmentDownloader struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// NewSegmentDownloader creates a downloader with the given concurrency limit.
func NewSegmentDownloader(fetcher Fetcher, concurrency int, logger *slog.Logger) *SegmentDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentDownloader{
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

type segmentResult struct {
	resp *Response
	err  error
}

// Download writes the concatenation of every segment body to dest and returns
// the number of bytes written. dest must not exist.
//
// The first failure in segment order stops the download and is returned as a
// FetchError naming that segment's URL. On any error dest holds a partial
// artifact that must be discarded.
func (d *SegmentDownloader) Download(
	ctx context.Context,
	segments []domain.Segment,
	h headers.Set,
	dest string,
	progress ProgressFunc,
) (int64, error) {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, domain.NewWriteError("create artifact", err)
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(int64(d.concurrency))
	results := make([]chan segmentResult, len(segments))
	for i := range results {
		results[i] = make(chan segmentResult, 1)
	}

	var g errgroup.Group
	g.Go(func() error {
		for i, seg := range segments {
			if err := sem.Acquire(fetchCtx, 1); err != nil {
				return err
			}
			g.Go(func() error {
				resp, err := d.fetcher.Get(fetchCtx, seg.URL, h)
				results[i] <- segmentResult{resp: resp, err: err}
				return nil
			})
		}
		return nil
	})

	w := bufio.NewWriterSize(f, 1<<20)
	written, err := d.commit(fetchCtx, w, segments, results, sem, progress)

	// Stop outstanding fetches and wait for them so nothing touches dest after return.
	cancel()
	_ = g.Wait()

	if err == nil {
		if ferr := w.Flush(); ferr != nil {
			err = domain.NewWriteError("flush artifact", ferr)
		}
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = domain.NewWriteError("close artifact", cerr)
	}
	return written, err
}

// commit consumes results in index order and appends each body to w.
func (d *SegmentDownloader) commit(
	ctx context.Context,
	w *bufio.Writer,
	segments []domain.Segment,
	results []chan segmentResult,
	sem *semaphore.Weighted,
	progress ProgressFunc,
) (int64, error) {
	var written int64
	total := len(segments)

	for i, seg := range segments {
		var res segmentResult
		select {
		case res = <-results[i]:
		case <-ctx.Done():
			return written, domain.NewFetchError(seg.URL, ctx.Err())
		}
		sem.Release(1)

		if res.err != nil {
			d.logger.Warn("segment fetch failed",
				"index", i+1,
				"total", total,
				"url", seg.URL,
				"error", res.err,
			)
			return written, domain.NewFetchError(seg.URL, res.err)
		}

		n, err := w.Write(res.resp.Body)
		written += int64(n)
		if err != nil {
			return written, domain.NewWriteError("write artifact", err)
		}

		metrics.SegmentsFetchedTotal.Inc()
		metrics.SegmentBytesTotal.Add(float64(n))

		d.logger.Info("segment fetched",
			"index", i+1,
			"total", total,
			"url", seg.URL,
			"bytes", n,
		)
		if progress != nil {
			progress(i, total, seg.URL, int64(n))
		}
	}

	return written, nil
}
