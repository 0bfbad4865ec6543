package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	mu       sync.Mutex
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	return m.Enqueue(ctx, job)
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	return nil, nil
}

func (m *mockJobRepository) Delete(ctx context.Context, id domain.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockJobService is a test implementation of JobService.
type mockJobService struct {
	jobs      map[domain.JobID]*domain.Job
	submitErr error
	listErr   error
	deleteErr error
	artifact  string
	submitted []string

	lastLimit, lastOffset int
}

func newMockJobService(jobs ...*domain.Job) *mockJobService {
	m := &mockJobService{jobs: make(map[domain.JobID]*domain.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *mockJobService) Submit(ctx context.Context, text string) (*domain.Job, error) {
	m.submitted = append(m.submitted, text)
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	ref, _ := domain.Classify(text, nil)
	job := domain.NewJob("job_new", ref)
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockJobService) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobService) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	m.lastLimit, m.lastOffset = limit, offset
	if m.listErr != nil {
		return nil, m.listErr
	}
	jobs := make([]*domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (m *mockJobService) Artifact(ctx context.Context, id domain.JobID) (string, error) {
	job, ok := m.jobs[id]
	if !ok {
		return "", domain.ErrJobNotFound
	}
	if job.State != domain.JobStateDelivered || m.artifact == "" {
		return "", domain.ErrArtifactNotFound
	}
	return m.artifact, nil
}

func (m *mockJobService) Delete(ctx context.Context, id domain.JobID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *mockJobService) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return &repository.QueueStats{Pending: len(m.jobs)}, nil
}

// deliveredJob returns a job that has run through the whole pipeline.
func deliveredJob(id domain.JobID) *domain.Job {
	job := domain.NewJob(id, domain.StreamReference{
		Kind: domain.KindDirectPlaylist,
		URL:  "https://cdn.example.com/master.m3u8",
		Raw:  "https://cdn.example.com/master.m3u8",
	})
	for _, s := range []domain.JobState{
		domain.JobStatePlaylistResolved,
		domain.JobStateDownloading,
		domain.JobStateMerged,
		domain.JobStateDelivered,
	} {
		if err := job.Transition(s); err != nil {
			panic(err)
		}
	}
	job.SegmentsTotal, job.SegmentsDone = 4, 4
	return job
}
