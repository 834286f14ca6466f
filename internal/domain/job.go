package domain

import (
	"fmt"
	"time"
)

// JobID is a unique identifier for a download job. It is derived from the
// requesting user and the submission time, which keeps it collision-free
// within a single process lifetime.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// NewJobID derives a job identifier from the user and submission time.
func NewJobID(userID int64, submittedAt time.Time) JobID {
	return JobID(fmt.Sprintf("%d_%d", userID, submittedAt.UnixNano()))
}

// Kind selects what to extract from a source link.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	return string(k)
}

// Outcome is the terminal result of a job.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Job is one accepted media acquisition and delivery request. The scheduler
// owns it from acceptance until its outcome is resolved.
type Job struct {
	ID     JobID
	UserID int64
	ChatID int64
	Kind   Kind
	URL    string

	// WorkingPath is the file store template assigned on acceptance; the
	// extension is resolved only after acquisition.
	WorkingPath string

	Outcome     Outcome
	Title       string
	FilePath    string
	FailReason  string
	SubmittedAt time.Time
	FinishedAt  time.Time
}

// NewJob creates a pending job for the given request.
func NewJob(userID, chatID int64, kind Kind, url string, submittedAt time.Time) *Job {
	return &Job{
		ID:          NewJobID(userID, submittedAt),
		UserID:      userID,
		ChatID:      chatID,
		Kind:        kind,
		URL:         url,
		Outcome:     OutcomePending,
		SubmittedAt: submittedAt,
	}
}

// MarkSucceeded resolves the job with the delivered artifact.
func (j *Job) MarkSucceeded(title, filePath string) {
	j.Outcome = OutcomeSucceeded
	j.Title = title
	j.FilePath = filePath
	j.FinishedAt = time.Now()
}

// MarkFailed resolves the job with a human-readable reason.
func (j *Job) MarkFailed(reason string) {
	j.Outcome = OutcomeFailed
	j.FailReason = reason
	j.FinishedAt = time.Now()
}

// Resolved reports whether the job has reached a terminal outcome.
func (j *Job) Resolved() bool {
	return j.Outcome != OutcomePending
}

// MediaInfo is the result of probing a source link without downloading it.
type MediaInfo struct {
	Title    string
	Duration time.Duration
}

// MessageRef is an opaque handle to an in-flight status message, used to
// edit it in place rather than send new messages.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether the reference points at no message.
func (r MessageRef) Zero() bool {
	return r.MessageID == 0
}
