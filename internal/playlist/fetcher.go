// Package playlist fetches HLS playlists and turns them into ordered segment lists.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/downloader"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
)

const streamInfTag = "#EXT-X-STREAM-INF"

var errNoVariants = errors.New("master playlist lists no variants")

// Options controls master playlist handling.
type Options struct {
	// FollowMaster enables one level of indirection through a master playlist.
	FollowMaster bool
	// VariantPolicy is config.VariantHighest or config.VariantLowest.
	VariantPolicy string
}

// Fetcher retrieves playlists and parses their segment references.
type Fetcher struct {
	client downloader.Fetcher
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client downloader.Fetcher, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VariantPolicy == "" {
		opts.VariantPolicy = config.VariantHighest
	}
	return &Fetcher{client: client, opts: opts, logger: logger}
}

// Fetch retrieves playlistURL once and returns the playlist actually used for
// segments together with its segment list. With FollowMaster set, a master
// playlist is replaced by one of its variants.
func (f *Fetcher) Fetch(ctx context.Context, playlistURL string, h headers.Set) (domain.PlaylistReference, []domain.Segment, error) {
	ref := domain.NewPlaylistReference(playlistURL)

	body, err := f.get(ctx, playlistURL, h)
	if err != nil {
		return ref, nil, err
	}

	if f.opts.FollowMaster && strings.Contains(body, streamInfTag) {
		variantURL, err := f.selectVariant(ref, body)
		if err != nil {
			return ref, nil, domain.NewFetchError(playlistURL, err)
		}
		f.logger.Info("following master playlist variant",
			"master_url", playlistURL,
			"variant_url", variantURL,
			"policy", f.opts.VariantPolicy,
		)

		ref = domain.NewPlaylistReference(variantURL)
		if body, err = f.get(ctx, variantURL, h); err != nil {
			return ref, nil, err
		}
	}

	segments := Parse(ref, body)
	if len(segments) == 0 {
		return ref, nil, domain.NewFetchError(ref.URL, domain.ErrEmptyPlaylist)
	}

	f.logger.Info("playlist parsed", "playlist_url", ref.URL, "segments", len(segments))
	return ref, segments, nil
}

func (f *Fetcher) get(ctx context.Context, url string, h headers.Set) (string, error) {
	resp, err := f.client.Get(ctx, url, h)
	if err != nil {
		return "", domain.NewFetchError(url, err)
	}
	return string(resp.Body), nil
}

// selectVariant decodes a master playlist and resolves the URI of the variant
// picked by the configured policy.
func (f *Fetcher) selectVariant(ref domain.PlaylistReference, body string) (string, error) {
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(body), true)
	if err != nil {
		return "", fmt.Errorf("decode master playlist: %w", err)
	}
	if listType != m3u8.MASTER {
		return "", fmt.Errorf("decode master playlist: got list type %d", listType)
	}

	variant := PickVariant(pl.(*m3u8.MasterPlaylist).Variants, f.opts.VariantPolicy)
	if variant == nil {
		return "", errNoVariants
	}
	return ref.Resolve(strings.TrimSpace(variant.URI)), nil
}

// PickVariant returns the variant with the highest or lowest bandwidth, or nil
// when there are none. Ties keep the earliest listed variant.
func PickVariant(variants []*m3u8.Variant, policy string) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range variants {
		if v == nil || v.URI == "" {
			continue
		}
		switch {
		case best == nil:
			best = v
		case policy == config.VariantLowest && v.Bandwidth < best.Bandwidth:
			best = v
		case policy != config.VariantLowest && v.Bandwidth > best.Bandwidth:
			best = v
		}
	}
	return best
}

// Parse returns one segment per non-blank, non-comment line of body, in order.
// Lines starting with "http" are used as-is; others are appended to ref's base path.
func Parse(ref domain.PlaylistReference, body string) []domain.Segment {
	var segments []domain.Segment

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segments = append(segments, domain.Segment{
			Index: len(segments),
			URL:   ref.Resolve(line),
		})
	}
	return segments
}
