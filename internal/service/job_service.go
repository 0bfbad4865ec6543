package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/downloader"
	"github.com/VkTheEncoder/Anime4i/internal/headers"
	"github.com/VkTheEncoder/Anime4i/internal/metrics"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
)

// EmbedResolver finds the playlist URL behind an embed page.
type EmbedResolver interface {
	Resolve(ctx context.Context, embedURL string, h headers.Set) (string, error)
}

// PlaylistFetcher turns a playlist URL into its ordered segments.
type PlaylistFetcher interface {
	Fetch(ctx context.Context, playlistURL string, h headers.Set) (domain.PlaylistReference, []domain.Segment, error)
}

// SegmentDownloader writes the concatenation of segments to dest.
type SegmentDownloader interface {
	Download(ctx context.Context, segments []domain.Segment, h headers.Set, dest string, progress downloader.ProgressFunc) (int64, error)
}

// Remuxer repackages an artifact into another container.
type Remuxer interface {
	Remux(ctx context.Context, input, container string) (string, error)
}

// Pipeline groups the stages a job runs through. A nil Remuxer skips the
// remux stage.
type Pipeline struct {
	Resolver  EmbedResolver
	Playlists PlaylistFetcher
	Segments  SegmentDownloader
	Remuxer   Remuxer
}

// JobServiceConfig holds the orchestrator's settings.
type JobServiceConfig struct {
	// EmbedPatterns identify embed-page URLs during classification.
	EmbedPatterns []string

	// TempPath is where per-job scratch directories are created.
	// Empty means the OS temp dir.
	TempPath string

	// Container is the remux target, e.g. "mp4".
	Container string
}

// JobService orchestrates the resolve, fetch, merge and deliver workflow.
type JobService struct {
	jobRepo   repository.JobRepository
	headers   *headers.Context
	pipeline  Pipeline
	deliverer Deliverer
	events    domain.EventEmitter
	cfg       JobServiceConfig
	logger    *slog.Logger
}

// NewJobService creates a new job service. events may be nil.
func NewJobService(
	jobRepo repository.JobRepository,
	hdrs *headers.Context,
	pipeline Pipeline,
	deliverer Deliverer,
	events domain.EventEmitter,
	cfg JobServiceConfig,
	logger *slog.Logger,
) *JobService {
	if cfg.Container == "" {
		cfg.Container = "mp4"
	}
	return &JobService{
		jobRepo:   jobRepo,
		headers:   hdrs,
		pipeline:  pipeline,
		deliverer: deliverer,
		events:    events,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit classifies text and queues a job for it.
// Text that is neither a playlist nor an embed page yields ErrUnrecognizedInput.
func (s *JobService) Submit(ctx context.Context, text string) (*domain.Job, error) {
	ref, ok := domain.Classify(text, s.cfg.EmbedPatterns)
	if !ok {
		return nil, domain.ErrUnrecognizedInput
	}

	job := domain.NewJob(domain.JobID("job_"+uuid.New().String()[:8]), ref)
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.JobsSubmittedTotal.WithLabelValues(string(ref.Kind)).Inc()
	s.logger.Info("job submitted",
		"job_id", job.ID,
		"kind", ref.Kind,
		"source_url", ref.URL,
	)
	s.emit(job, domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", domain.EventMetadata{
		"kind":       ref.Kind,
		"source_url": ref.URL,
	})

	return job, nil
}

// Process runs a pending job to a terminal state. The returned error is the
// one recorded on the failed job.
func (s *JobService) Process(ctx context.Context, id domain.JobID) error {
	job, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	logger := s.logger.With("job_id", id)

	if err := s.run(ctx, job, logger); err != nil {
		job.Fail(err)
		// Record the failure even when ctx was cancelled.
		if uerr := s.jobRepo.Update(context.WithoutCancel(ctx), job); uerr != nil {
			logger.Error("failed to record job failure", "error", uerr)
		}

		metrics.JobsFinishedTotal.WithLabelValues(string(domain.JobStateFailed), job.ErrorKind).Inc()
		logger.Warn("job failed",
			"error_kind", job.ErrorKind,
			"failed_url", job.FailedURL,
			"error", err,
		)
		s.emit(job, domain.EventSeverityError, categoryFor(err), "job failed", domain.EventMetadata{
			"error_kind": job.ErrorKind,
			"error":      job.Error,
			"failed_url": job.FailedURL,
		})
		return err
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(domain.JobStateDelivered), "").Inc()
	return nil
}

func (s *JobService) run(ctx context.Context, job *domain.Job, logger *slog.Logger) error {
	var h headers.Set

	// Step 1: Resolve the playlist URL
	if job.Kind == domain.KindEmbedPage {
		if err := s.advance(ctx, job, domain.JobStateResolvingEmbed); err != nil {
			return err
		}
		h = s.headers.ForEmbed(job.SourceURL)

		playlistURL, err := s.pipeline.Resolver.Resolve(ctx, job.SourceURL, h)
		if err != nil {
			return err
		}
		job.PlaylistURL = playlistURL
	} else {
		h = s.headers.ForDirect(job.PlaylistURL)
	}

	// Step 2: Fetch and parse the playlist
	ref, segments, err := s.pipeline.Playlists.Fetch(ctx, job.PlaylistURL, h)
	if err != nil {
		return err
	}
	job.PlaylistURL = ref.URL
	job.SegmentsTotal = len(segments)
	if err := s.advance(ctx, job, domain.JobStatePlaylistResolved); err != nil {
		return err
	}

	// Step 3: Download segments into a private scratch directory
	scratch, err := os.MkdirTemp(s.cfg.TempPath, "hlsgrab-"+string(job.ID)+"-")
	if err != nil {
		return domain.NewWriteError("create scratch dir", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn("failed to remove scratch dir", "path", scratch, "error", err)
		}
	}()

	if err := s.advance(ctx, job, domain.JobStateDownloading); err != nil {
		return err
	}

	merged := filepath.Join(scratch, "merged.ts")
	written, err := s.pipeline.Segments.Download(ctx, segments, h, merged, func(index, total int, url string, n int64) {
		job.SegmentsDone = index + 1
		job.BytesWritten += n
		job.UpdatedAt = time.Now()
		if err := s.jobRepo.Update(ctx, job); err != nil {
			logger.Debug("failed to record progress", "error", err)
		}
	})
	if err != nil {
		return err
	}
	job.BytesWritten = written
	if err := s.advance(ctx, job, domain.JobStateMerged); err != nil {
		return err
	}

	// Step 4: Optional remux
	artifact := merged
	if s.pipeline.Remuxer != nil {
		start := time.Now()
		out, err := s.pipeline.Remuxer.Remux(ctx, merged, s.cfg.Container)
		metrics.RemuxDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return domain.NewRemuxError(err)
		}
		artifact = out
		if err := s.advance(ctx, job, domain.JobStateRemuxed); err != nil {
			return err
		}
	}

	// Step 5: Deliver
	final, err := s.deliverer.Deliver(ctx, job.ID, artifact)
	if err != nil {
		if !errors.Is(err, domain.ErrDelivery) {
			err = domain.NewDeliveryError(err)
		}
		return err
	}
	job.ArtifactPath = final
	if err := s.advance(ctx, job, domain.JobStateDelivered); err != nil {
		return err
	}

	logger.Info("job delivered",
		"artifact", final,
		"segments", job.SegmentsTotal,
		"bytes", job.BytesWritten,
	)
	return nil
}

// advance transitions the job, persists it and reports the new state.
func (s *JobService) advance(ctx context.Context, job *domain.Job, next domain.JobState) error {
	if err := job.Transition(next); err != nil {
		return err
	}
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	severity := domain.EventSeverityInfo
	if next == domain.JobStateDelivered {
		severity = domain.EventSeveritySuccess
	}
	s.emit(job, severity, categoryForState(next), "job "+string(next), domain.EventMetadata{
		"state":          next,
		"playlist_url":   job.PlaylistURL,
		"segments_total": job.SegmentsTotal,
		"bytes_written":  job.BytesWritten,
	})
	return nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return s.jobRepo.Get(ctx, id)
}

// List returns jobs newest first.
func (s *JobService) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	return s.jobRepo.List(ctx, limit, offset)
}

// Artifact returns the path of a delivered job's artifact.
func (s *JobService) Artifact(ctx context.Context, id domain.JobID) (string, error) {
	job, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if job.State != domain.JobStateDelivered || job.ArtifactPath == "" {
		return "", domain.ErrArtifactNotFound
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		return "", domain.ErrArtifactNotFound
	}
	return job.ArtifactPath, nil
}

// Delete removes a finished job and its delivered artifact.
func (s *JobService) Delete(ctx context.Context, id domain.JobID) error {
	job, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return domain.ErrJobNotTerminal
	}

	if job.ArtifactPath != "" {
		if err := s.deliverer.Remove(ctx, id, job.ArtifactPath); err != nil {
			return err
		}
	}
	if err := s.jobRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("job deleted", "job_id", id)
	return nil
}

// Stats returns queue statistics.
func (s *JobService) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return s.jobRepo.Stats(ctx)
}

func (s *JobService) emit(job *domain.Job, severity domain.EventSeverity, category domain.EventCategory, message string, metadata domain.EventMetadata) {
	if s.events == nil {
		return
	}
	s.events.EmitJob(job.ID, severity, category, message, metadata)
}

func categoryForState(state domain.JobState) domain.EventCategory {
	switch state {
	case domain.JobStateResolvingEmbed:
		return domain.EventCategoryEmbed
	case domain.JobStatePlaylistResolved:
		return domain.EventCategoryPlaylist
	case domain.JobStateDownloading, domain.JobStateMerged:
		return domain.EventCategoryDownload
	case domain.JobStateRemuxed:
		return domain.EventCategoryRemux
	case domain.JobStateDelivered:
		return domain.EventCategoryDelivery
	default:
		return domain.EventCategoryJob
	}
}

func categoryFor(err error) domain.EventCategory {
	switch {
	case errors.Is(err, domain.ErrExtraction):
		return domain.EventCategoryEmbed
	case errors.Is(err, domain.ErrFetch), errors.Is(err, domain.ErrWrite):
		return domain.EventCategoryDownload
	case errors.Is(err, domain.ErrRemux):
		return domain.EventCategoryRemux
	case errors.Is(err, domain.ErrDelivery):
		return domain.EventCategoryDelivery
	default:
		return domain.EventCategoryJob
	}
}
