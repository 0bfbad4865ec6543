package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

// InMemoryJobRepository implements JobRepository using in-memory storage.
// Jobs are copied on the way in and out so callers never share state.
type InMemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[domain.JobID]*domain.Job
	queue []domain.JobID // FIFO queue of pending job IDs
}

// NewInMemoryJobRepository creates a new in-memory job repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs:  make(map[domain.JobID]*domain.Job),
		queue: make([]domain.JobID, 0),
	}
}

func clone(job *domain.Job) *domain.Job {
	c := *job
	return &c
}

// Enqueue adds a job to the queue.
func (r *InMemoryJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = clone(job)
	r.queue = append(r.queue, job.ID)

	return nil
}

// Dequeue retrieves the next pending job (FIFO).
func (r *InMemoryJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 {
		jobID := r.queue[0]
		r.queue = r.queue[1:]

		job, ok := r.jobs[jobID]
		if !ok || job.State != domain.JobStatePending {
			continue
		}
		return clone(job), nil
	}

	return nil, domain.ErrNoJobs
}

// Update modifies job state.
func (r *InMemoryJobRepository) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}

	r.jobs[job.ID] = clone(job)
	return nil
}

// Get retrieves a job by ID.
func (r *InMemoryJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	return clone(job), nil
}

// List returns jobs ordered by creation time, newest first.
// A limit of zero or less returns every job after offset.
func (r *InMemoryJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	r.mu.RLock()
	result := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, clone(job))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []*domain.Job{}, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// Delete removes a job and any queue entry for it.
func (r *InMemoryJobRepository) Delete(ctx context.Context, id domain.JobID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(r.jobs, id)

	for i, queued := range r.queue {
		if queued == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	return nil
}

// Stats returns queue statistics.
func (r *InMemoryJobRepository) Stats(ctx context.Context) (*QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueueStats{}
	for _, job := range r.jobs {
		switch job.State {
		case domain.JobStatePending:
			stats.Pending++
		case domain.JobStateDelivered:
			stats.Delivered++
		case domain.JobStateFailed:
			stats.Failed++
		default:
			stats.Active++
		}
	}

	return stats, nil
}

// Clear removes all jobs (useful for testing).
func (r *InMemoryJobRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs = make(map[domain.JobID]*domain.Job)
	r.queue = make([]domain.JobID, 0)
}
