package domain

import (
	"fmt"
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobState is a job's position in the resolve, fetch and merge pipeline.
type JobState string

const (
	JobStatePending          JobState = "pending"
	JobStateResolvingEmbed   JobState = "resolving_embed"
	JobStatePlaylistResolved JobState = "playlist_resolved"
	JobStateDownloading      JobState = "downloading"
	JobStateMerged           JobState = "merged"
	JobStateRemuxed          JobState = "remuxed"
	JobStateDelivered        JobState = "delivered"
	JobStateFailed           JobState = "failed"
)

var allowedTransitions = map[JobState][]JobState{
	JobStatePending:          {JobStateResolvingEmbed, JobStatePlaylistResolved, JobStateFailed},
	JobStateResolvingEmbed:   {JobStatePlaylistResolved, JobStateFailed},
	JobStatePlaylistResolved: {JobStateDownloading, JobStateFailed},
	JobStateDownloading:      {JobStateMerged, JobStateFailed},
	JobStateMerged:           {JobStateRemuxed, JobStateDelivered, JobStateFailed},
	JobStateRemuxed:          {JobStateDelivered, JobStateFailed},
}

// CanTransition reports whether a job in state s may move to next.
func (s JobState) CanTransition(next JobState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s JobState) IsTerminal() bool {
	return s == JobStateDelivered || s == JobStateFailed
}

// Job is one submitted request moving through the pipeline.
type Job struct {
	ID            JobID      `json:"id"`
	Input         string     `json:"input"`
	Kind          StreamKind `json:"kind"`
	SourceURL     string     `json:"source_url"`
	PlaylistURL   string     `json:"playlist_url,omitempty"`
	State         JobState   `json:"state"`
	SegmentsTotal int        `json:"segments_total"`
	SegmentsDone  int        `json:"segments_done"`
	BytesWritten  int64      `json:"bytes_written"`
	ArtifactPath  string     `json:"artifact_path,omitempty"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	Error         string     `json:"error,omitempty"`
	FailedURL     string     `json:"failed_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a pending job for a classified reference.
func NewJob(id JobID, ref StreamReference) *Job {
	now := time.Now()
	job := &Job{
		ID:        id,
		Input:     ref.Raw,
		Kind:      ref.Kind,
		SourceURL: ref.URL,
		State:     JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ref.Kind == KindDirectPlaylist {
		job.PlaylistURL = ref.URL
	}
	return job
}

// Transition moves the job to next, rejecting moves the state machine forbids.
func (j *Job) Transition(next JobState) error {
	if !j.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	now := time.Now()
	j.State = next
	j.UpdatedAt = now
	if next.IsTerminal() {
		j.FinishedAt = &now
	}
	return nil
}

// Fail moves the job to the failed state and records err's kind and URL.
// A job that already finished is left untouched.
func (j *Job) Fail(err error) {
	if j.State.IsTerminal() {
		return
	}
	now := time.Now()
	j.State = JobStateFailed
	j.ErrorKind = KindOf(err)
	j.Error = err.Error()
	j.FailedURL = FailedURL(err)
	j.UpdatedAt = now
	j.FinishedAt = &now
}

// IsTerminal reports whether the job has been delivered or has failed.
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// Progress returns the fraction of segments committed, between 0 and 1.
func (j *Job) Progress() float64 {
	if j.SegmentsTotal == 0 {
		return 0
	}
	return float64(j.SegmentsDone) / float64(j.SegmentsTotal)
}
