package domain

import (
	"errors"
	"fmt"
)

// Domain errors.
var (
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobs is returned when there are no jobs to process.
	ErrNoJobs = errors.New("no jobs available")

	// ErrUnrecognizedInput is returned when submitted text is neither a playlist nor an embed page.
	ErrUnrecognizedInput = errors.New("input is not a playlist or embed page URL")

	// ErrInvalidTransition is returned when a job is moved to a state it cannot reach.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrJobNotTerminal is returned when an operation needs a finished job.
	ErrJobNotTerminal = errors.New("job has not finished")

	// ErrArtifactNotFound is returned when a job has no delivered artifact.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrURLExpired is returned when the upstream host rejects the request (401/403).
	ErrURLExpired = errors.New("URL has expired or access was denied")

	// ErrRateLimited is returned when rate limited by the upstream host.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyPlaylist is returned when a playlist lists no segments.
	ErrEmptyPlaylist = errors.New("playlist has no segments")

	// ErrArtifactTooLarge is returned when an artifact exceeds the delivery size limit.
	ErrArtifactTooLarge = errors.New("artifact exceeds size limit")

	// ErrInsufficientSpace is returned when the delivery volume cannot hold an artifact.
	ErrInsufficientSpace = errors.New("insufficient disk space")
)

// Failure kinds. A failed job always carries exactly one of these.
var (
	// ErrExtraction means no playlist URL was found in an embed page.
	ErrExtraction = errors.New("extraction error")

	// ErrFetch means an HTTP request for a page, playlist or segment failed.
	ErrFetch = errors.New("fetch error")

	// ErrWrite means local storage failed while writing the artifact.
	ErrWrite = errors.New("write error")

	// ErrRemux means the external repackaging process failed.
	ErrRemux = errors.New("remux error")

	// ErrDelivery means the delivery collaborator rejected the artifact.
	ErrDelivery = errors.New("delivery error")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrExtraction, "ExtractionError"},
	{ErrFetch, "FetchError"},
	{ErrWrite, "WriteError"},
	{ErrRemux, "RemuxError"},
	{ErrDelivery, "DeliveryError"},
}

// PipelineError wraps a failure with its kind and the URL it concerns.
type PipelineError struct {
	Kind error
	Op   string
	URL  string
	Err  error
}

func (e *PipelineError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewExtractionError creates an ExtractionError for an embed page.
func NewExtractionError(embedURL string, err error) *PipelineError {
	return &PipelineError{Kind: ErrExtraction, Op: "extract playlist URL", URL: embedURL, Err: err}
}

// NewFetchError creates a FetchError naming the failing URL.
func NewFetchError(url string, err error) *PipelineError {
	return &PipelineError{Kind: ErrFetch, Op: "fetch", URL: url, Err: err}
}

// NewWriteError creates a WriteError for a local path.
func NewWriteError(op string, err error) *PipelineError {
	return &PipelineError{Kind: ErrWrite, Op: op, Err: err}
}

// NewRemuxError creates a RemuxError.
func NewRemuxError(err error) *PipelineError {
	return &PipelineError{Kind: ErrRemux, Op: "remux", Err: err}
}

// NewDeliveryError creates a DeliveryError.
func NewDeliveryError(err error) *PipelineError {
	return &PipelineError{Kind: ErrDelivery, Op: "deliver", Err: err}
}

// KindOf returns the human-readable failure kind of err, or "InternalError"
// when err carries none of the pipeline kinds.
func KindOf(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "InternalError"
}

// FailedURL returns the URL recorded on the first PipelineError in err's chain.
func FailedURL(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.URL
	}
	return ""
}

// StatusError reports an unexpected HTTP status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}
