package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors.
var (
	// ErrInvalidLink is returned when a candidate string does not look like
	// a supported media link.
	ErrInvalidLink = errors.New("not a recognized media link")

	// ErrDurationExceeded is returned when a probed source is longer than
	// the configured maximum.
	ErrDurationExceeded = errors.New("source duration exceeds the allowed maximum")

	// ErrCapacityExceeded is returned when all download slots are in use.
	ErrCapacityExceeded = errors.New("all download slots are busy")

	// ErrDuplicateUser is returned when the user already has a job in flight.
	ErrDuplicateUser = errors.New("user already has an active download")

	// ErrProbeFailed is returned when source metadata cannot be read.
	ErrProbeFailed = errors.New("failed to read source information")

	// ErrFetchFailed is returned when the extraction tool cannot produce a file.
	ErrFetchFailed = errors.New("download failed")

	// ErrArtifactNotFound is returned when no output file exists after a fetch.
	ErrArtifactNotFound = errors.New("downloaded file not found")

	// ErrArtifactTooLarge is returned when the fetched file exceeds the
	// configured delivery size limit.
	ErrArtifactTooLarge = errors.New("file too large to deliver")

	// ErrDeliveryFailed is returned when the transport permanently rejects
	// the media send.
	ErrDeliveryFailed = errors.New("failed to deliver file")
)

// RetryAfterError signals that the transport throttled a send and asks the
// caller to wait before retrying.
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("transport throttled, retry after %s", e.Delay)
}

// JobError wraps an error with job context.
type JobError struct {
	JobID JobID
	Op    string
	Err   error
}

func (e *JobError) Error() string {
	if e.JobID != "" {
		return e.Op + " [" + e.JobID.String() + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(jobID JobID, op string, err error) *JobError {
	return &JobError{
		JobID: jobID,
		Op:    op,
		Err:   err,
	}
}
