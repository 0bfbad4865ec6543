package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/downloader"
	"github.com/VkTheEncoder/Anime4i/internal/embed"
	"github.com/VkTheEncoder/Anime4i/internal/playlist"
	"github.com/VkTheEncoder/Anime4i/pkg/ffmpeg"
)

// NewPipeline wires the resolve, fetch, merge and remux stages around one
// shared HTTP client. The remux stage is present only when enabled, and then
// ffmpeg must be resolvable.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Pipeline, error) {
	client := downloader.NewHTTPClient(cfg.Download, logger)

	p := Pipeline{
		Resolver: embed.NewResolver(client, logger),
		Playlists: playlist.NewFetcher(client, playlist.Options{
			FollowMaster:  cfg.Download.FollowMaster,
			VariantPolicy: cfg.Download.VariantPolicy,
		}, logger),
		Segments: downloader.NewSegmentDownloader(client, cfg.Download.Concurrency, logger),
	}

	if cfg.Remux.Enabled {
		remuxer, err := ffmpeg.NewRemuxer(cfg.Remux.FFmpegPath)
		if err != nil {
			return Pipeline{}, fmt.Errorf("init remuxer: %w", err)
		}
		version, err := remuxer.Version(ctx)
		if err != nil {
			return Pipeline{}, fmt.Errorf("probe ffmpeg: %w", err)
		}
		logger.Info("remux enabled", "ffmpeg", version, "container", cfg.Remux.Container)
		p.Remuxer = remuxer
	}

	return p, nil
}
