// Command hlsgrab downloads one HLS stream to a local file.
//
//	hlsgrab [flags] <playlist-or-embed-url>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
	"github.com/VkTheEncoder/Anime4i/internal/logging"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
	"github.com/VkTheEncoder/Anime4i/internal/service"
)

var Version = "dev"

type options struct {
	configPath  string
	output      string
	concurrency int
	remux       bool
	container   string
	cookie      string
	referer     string
	userAgent   string
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.output, "o", "", "Output file (default output.ts, or output.<container> with -remux)")
	flag.IntVar(&opts.concurrency, "concurrency", 0, "Segments fetched in parallel")
	flag.BoolVar(&opts.remux, "remux", false, "Remux the merged stream with ffmpeg")
	flag.StringVar(&opts.container, "container", "", "Remux target container (default mp4)")
	flag.StringVar(&opts.cookie, "cookie", "", "Cookie header sent with every request")
	flag.StringVar(&opts.referer, "referer", "", "Referer sent for direct playlists instead of the playlist origin")
	flag.StringVar(&opts.userAgent, "ua", "", "User-Agent header")
	flag.BoolVar(&opts.verbose, "v", false, "Debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: hlsgrab [flags] <playlist-or-embed-url>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsgrab %s\n", Version)
		return
	}

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hlsgrab: %v\n", err)
		os.Exit(1)
	}
	opts.apply(cfg)

	logger := logging.New(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, text, opts.outputPath(cfg), logger); err != nil {
		fmt.Fprintf(os.Stderr, "hlsgrab: %s: %v\n", domain.KindOf(err), err)
		if url := domain.FailedURL(err); url != "" {
			fmt.Fprintf(os.Stderr, "hlsgrab: failed url: %s\n", url)
		}
		os.Exit(1)
	}
}

// apply overlays command-line flags on the loaded configuration.
func (o options) apply(cfg *config.Config) {
	if o.concurrency > 0 {
		cfg.Download.Concurrency = o.concurrency
	}
	if o.remux {
		cfg.Remux.Enabled = true
	}
	if o.container != "" {
		cfg.Remux.Container = o.container
	}
	if o.cookie != "" {
		cfg.Download.Cookie = o.cookie
	}
	if o.referer != "" {
		cfg.Download.Referer = o.referer
	}
	if o.userAgent != "" {
		cfg.Download.UserAgent = o.userAgent
	}
	cfg.Log.Format = "text"
	if o.verbose {
		cfg.Log.Level = "debug"
	}
}

func (o options) outputPath(cfg *config.Config) string {
	if o.output != "" {
		return o.output
	}
	if cfg.Remux.Enabled {
		return "output." + strings.TrimPrefix(cfg.Remux.Container, ".")
	}
	return "output.ts"
}

func run(ctx context.Context, cfg *config.Config, text, output string, logger *slog.Logger) error {
	pipeline, err := service.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	jobRepo := repository.NewInMemoryJobRepository()
	jobSvc := service.NewJobService(
		jobRepo,
		headers.New(cfg.Download.UserAgent, cfg.Download.Cookie, cfg.Download.Referer),
		pipeline,
		service.NewPathDeliverer(output, cfg.Storage.MaxFileSize),
		nil,
		service.JobServiceConfig{
			EmbedPatterns: cfg.Embed.Patterns,
			TempPath:      cfg.Storage.TempPath,
			Container:     cfg.Remux.Container,
		},
		logger,
	)

	job, err := jobSvc.Submit(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrUnrecognizedInput) {
			return fmt.Errorf("%q is neither a playlist nor an embed page URL", text)
		}
		return err
	}

	start := time.Now()
	if err := jobSvc.Process(ctx, job.ID); err != nil {
		return err
	}

	done, err := jobSvc.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d segments, %s in %s\n",
		done.ArtifactPath,
		done.SegmentsTotal,
		humanize.IBytes(uint64(done.BytesWritten)),
		time.Since(start).Round(time.Millisecond),
	)
	return nil
}
