package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/metrics"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
)

// ErrShutdownTimeout is returned when running jobs don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// JobProcessor runs one job to a terminal state.
type JobProcessor interface {
	Process(ctx context.Context, id domain.JobID) error
}

// Config holds worker pool configuration.
type Config struct {
	Workers      int
	PollInterval time.Duration
}

// Pool runs queued jobs. A single dispatcher takes jobs off the repository
// queue while a slot is free, so at most Workers jobs run at once. The
// dispatcher polls every PollInterval and also wakes on Notify.
type Pool struct {
	workers      int
	pollInterval time.Duration
	slots        *semaphore.Weighted
	wake         chan struct{}

	jobRepo   repository.JobRepository
	processor JobProcessor
	logger    *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(
	cfg Config,
	jobRepo repository.JobRepository,
	processor JobProcessor,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		slots:        semaphore.NewWeighted(int64(cfg.Workers)),
		wake:         make(chan struct{}, 1),
		jobRepo:      jobRepo,
		processor:    processor,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the dispatcher.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers, "poll_interval", p.pollInterval)

	p.wg.Add(1)
	go p.dispatch()
}

// Notify tells the dispatcher new work is queued. It never blocks.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop cancels running jobs and waits for them to record their outcome.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		for p.startNext() {
		}
	}
}

// startNext waits for a free slot, then hands the next queued job to its own
// goroutine. It reports false once the queue is empty or the pool stops.
func (p *Pool) startNext() bool {
	if err := p.slots.Acquire(p.ctx, 1); err != nil {
		return false
	}

	job, err := p.jobRepo.Dequeue(p.ctx)
	if err != nil {
		p.slots.Release(1)
		if !errors.Is(err, domain.ErrNoJobs) && p.ctx.Err() == nil {
			p.logger.Error("failed to dequeue job", "error", err)
		}
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.slots.Release(1)
		p.run(job)
	}()
	return true
}

func (p *Pool) run(job *domain.Job) {
	logger := p.logger.With("job_id", job.ID)
	logger.Info("processing job", "kind", job.Kind, "source_url", job.SourceURL)

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	start := time.Now()
	err := p.processor.Process(p.ctx, job.ID)
	elapsed := time.Since(start)
	metrics.JobDuration.Observe(elapsed.Seconds())

	if err != nil {
		logger.Error("job failed", "error", err, "error_kind", domain.KindOf(err), "duration", elapsed)
		return
	}
	logger.Info("job delivered", "duration", elapsed)
}
