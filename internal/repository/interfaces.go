package repository

import (
	"context"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

// JobRepository manages the job queue.
type JobRepository interface {
	// Enqueue adds a pending job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// List returns jobs newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.Job, error)

	// Delete removes a job.
	Delete(ctx context.Context, id domain.JobID) error

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}
