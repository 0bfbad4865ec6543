// Package embed extracts the real playlist URL from an embed page.
package embed

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/downloader"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
)

// Strategy names the extraction method that produced a match.
type Strategy string

const (
	StrategyMarkup Strategy = "markup"
	StrategyRegex  Strategy = "regex"
)

// errNoPlaylist is wrapped in the ExtractionError returned when a page holds no playlist URL.
var errNoPlaylist = errors.New("no .m3u8 URL found in embed page")

// sourceAttrs are the attributes checked by the markup scan, in no particular order.
var sourceAttrs = map[string]bool{
	"src":         true,
	"data-src":    true,
	"source":      true,
	"data-source": true,
}

var playlistToken = regexp.MustCompile(`https?://[^\s'"]+\.m3u8[^\s'"]*`)

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]*charset\s*=\s*["']?\s*([a-z0-9_:.-]+)`)

// Resolver fetches embed pages and extracts their playlist URL.
type Resolver struct {
	fetcher downloader.Fetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver that fetches pages with fetcher.
func NewResolver(fetcher downloader.Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Resolve fetches embedURL once with h and returns the playlist URL it references.
func (r *Resolver) Resolve(ctx context.Context, embedURL string, h headers.Set) (string, error) {
	resp, err := r.fetcher.Get(ctx, embedURL, h)
	if err != nil {
		return "", domain.NewFetchError(embedURL, err)
	}

	page := Decode(resp.Body, resp.ContentType)

	found, strategy, ok := Extract(page)
	if !ok {
		return "", domain.NewExtractionError(embedURL, errNoPlaylist)
	}

	resolved := absolute(embedURL, found)
	r.logger.Info("playlist URL extracted",
		"embed_url", embedURL,
		"playlist_url", resolved,
		"strategy", string(strategy),
	)
	return resolved, nil
}

// Decode converts a page body to UTF-8. A charset from a BOM, the
// Content-Type or a <meta> tag is honored; otherwise the body is read as
// UTF-8. Bytes that cannot be decoded are dropped.
func Decode(body []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain {
		// A sniffed guess is ignored; only an explicit meta declaration counts.
		enc, name = nil, ""
		if m := metaCharset.FindSubmatch(body[:min(len(body), 1024)]); m != nil {
			enc, name = charset.Lookup(string(m[1]))
		}
	}
	if enc != nil && name != "utf-8" {
		if decoded, err := enc.NewDecoder().Bytes(body); err == nil {
			body = decoded
		}
	}
	return strings.ToValidUTF8(string(body), "")
}

// Extract finds a playlist URL in page. Element attributes are scanned first;
// only when none references a playlist is the raw text searched.
func Extract(page string) (string, Strategy, bool) {
	if u, ok := scanMarkup(page); ok {
		return u, StrategyMarkup, true
	}
	if u := playlistToken.FindString(page); u != "" {
		return u, StrategyRegex, true
	}
	return "", "", false
}

func scanMarkup(page string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if !sourceAttrs[string(key)] {
					continue
				}
				if v := strings.TrimSpace(string(val)); strings.Contains(v, ".m3u8") {
					return v, true
				}
			}
		}
	}
}

// absolute resolves ref against the page URL. Absolute refs are returned unchanged.
func absolute(pageURL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
