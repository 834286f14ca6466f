// Package pipeline runs accepted jobs through acquisition and delivery with
// guaranteed cleanup on every exit path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipfetch/clipfetch/internal/config"
	"github.com/clipfetch/clipfetch/internal/domain"
)

// Acquirer probes and fetches media from a source link.
type Acquirer interface {
	Probe(ctx context.Context, url string) (*domain.MediaInfo, error)
	Fetch(ctx context.Context, url string, kind domain.Kind, template string) error
}

// Store manages the per-job working files.
type Store interface {
	Reserve(jobID domain.JobID) (string, error)
	Locate(template string, kind domain.Kind) (string, error)
	SizeOf(path string) (int64, error)
	Remove(path string)
}

// Messenger delivers status updates and media to the user.
type Messenger interface {
	SendStatus(chatID int64, text string) (domain.MessageRef, error)
	EditStatus(ref domain.MessageRef, text string) error
	SendMedia(ctx context.Context, chatID int64, path string, kind domain.Kind, caption string) error
}

// Sessions is the slice of the session manager the finalizer needs.
type Sessions interface {
	Reset(userID int64)
}

// Recorder appends finished jobs to the history log.
type Recorder interface {
	Record(ctx context.Context, job *domain.Job, bytes int64)
}

// Runner executes one job at a time through probe, policy checks, fetch,
// locate, size check, and delivery. Whatever happens inside Run, its
// finalizer produces exactly one terminal user message, removes the
// artifact, releases the scheduler slot, and resets the session.
type Runner struct {
	acquirer Acquirer
	store    Store
	msgr     Messenger
	sessions Sessions
	history  Recorder
	limits   config.LimitsConfig
	logger   *slog.Logger

	// sleep waits out a delivery throttle; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a job runner.
func NewRunner(
	acquirer Acquirer,
	store Store,
	msgr Messenger,
	sessions Sessions,
	history Recorder,
	limits config.LimitsConfig,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		acquirer: acquirer,
		store:    store,
		msgr:     msgr,
		sessions: sessions,
		history:  history,
		limits:   limits,
		logger:   logger,
		sleep:    ctxSleep,
	}
}

// Run executes the job to a terminal outcome. statusRef points at the
// status message created on acceptance and is edited in place; release gives
// the scheduler slot back and must run exactly once, which the finalizer
// guarantees.
func (r *Runner) Run(ctx context.Context, job *domain.Job, statusRef domain.MessageRef, release func()) {
	logger := r.logger.With("job_id", job.ID, "user_id", job.UserID, "kind", job.Kind)

	var artifact string
	var artifactSize int64

	defer func() {
		if p := recover(); p != nil {
			logger.Error("job panicked", "panic", p)
			job.MarkFailed("internal error")
		}
		r.finalize(job, statusRef, artifact, artifactSize, release, logger)
	}()

	logger.Info("job started", "url", job.URL)

	info, err := r.acquirer.Probe(ctx, job.URL)
	if err != nil {
		job.MarkFailed(r.reason(err))
		return
	}

	if info.Duration > r.limits.MaxDuration {
		job.MarkFailed(fmt.Sprintf("%s (%s, limit %s)",
			domain.ErrDurationExceeded, info.Duration, r.limits.MaxDuration))
		return
	}

	template, err := r.store.Reserve(job.ID)
	if err != nil {
		job.MarkFailed(r.reason(err))
		return
	}
	job.WorkingPath = template

	if err := r.acquirer.Fetch(ctx, job.URL, job.Kind, template); err != nil {
		job.MarkFailed(r.reason(err))
		return
	}

	artifact, err = r.store.Locate(template, job.Kind)
	if err != nil {
		job.MarkFailed(r.reason(err))
		return
	}

	artifactSize, err = r.store.SizeOf(artifact)
	if err != nil {
		job.MarkFailed(r.reason(err))
		return
	}
	if artifactSize > r.limits.MaxFileSize {
		job.MarkFailed(fmt.Sprintf("%s (%d bytes, limit %d)",
			domain.ErrArtifactTooLarge, artifactSize, r.limits.MaxFileSize))
		return
	}

	if err := r.deliver(ctx, job, artifact, info.Title); err != nil {
		job.MarkFailed(r.reason(err))
		return
	}

	job.MarkSucceeded(info.Title, artifact)
}

// deliver sends the artifact, honoring at most one transport throttle: on
// RetryAfter it waits once and retries once, and any further throttle or
// permanent error fails the job.
func (r *Runner) deliver(ctx context.Context, job *domain.Job, path, title string) error {
	caption := captionFor(job.Kind, title)

	err := r.msgr.SendMedia(ctx, job.ChatID, path, job.Kind, caption)
	var throttle *domain.RetryAfterError
	if !errors.As(err, &throttle) {
		return err
	}

	r.logger.Warn("delivery throttled, retrying once",
		"job_id", job.ID, "delay", throttle.Delay)
	if err := r.sleep(ctx, throttle.Delay); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrDeliveryFailed, err)
	}

	err = r.msgr.SendMedia(ctx, job.ChatID, path, job.Kind, caption)
	if errors.As(err, &throttle) {
		return fmt.Errorf("%w: throttled twice", domain.ErrDeliveryFailed)
	}
	return err
}

// finalize runs on every exit: one terminal message, artifact removal, slot
// release, session reset, history record. A failure to notify the user is
// swallowed, never escalated.
func (r *Runner) finalize(job *domain.Job, statusRef domain.MessageRef, artifact string, size int64, release func(), logger *slog.Logger) {
	if !job.Resolved() {
		job.MarkFailed("internal error")
	}

	r.notify(job, statusRef, logger)

	release()

	if artifact != "" {
		r.store.Remove(artifact)
	}

	r.sessions.Reset(job.UserID)

	if r.history != nil {
		r.history.Record(context.Background(), job, size)
	}

	logger.Info("job finished",
		"outcome", job.Outcome,
		"reason", job.FailReason,
		"bytes", size,
	)
}

// notify produces the single terminal user message, editing the status
// message when possible and falling back to a fresh send.
func (r *Runner) notify(job *domain.Job, statusRef domain.MessageRef, logger *slog.Logger) {
	var text string
	if job.Outcome == domain.OutcomeSucceeded {
		text = fmt.Sprintf("✅ Download complete!\n\n📌 %s",
			domain.Truncate(job.Title, r.limits.TitleMax))
	} else {
		text = fmt.Sprintf("❌ Error: %s",
			domain.Truncate(job.FailReason, r.limits.ErrorMax))
	}

	if !statusRef.Zero() {
		err := r.msgr.EditStatus(statusRef, text)
		if err == nil {
			return
		}
		logger.Warn("failed to edit status message, sending new one", "error", err)
	}
	if _, err := r.msgr.SendStatus(job.ChatID, text); err != nil {
		logger.Warn("failed to notify user of job outcome", "error", err)
	}
}

func (r *Runner) reason(err error) string {
	return domain.Truncate(err.Error(), r.limits.ErrorMax)
}

func captionFor(kind domain.Kind, title string) string {
	if kind == domain.KindAudio {
		return "🎧 " + title
	}
	return "🎬 " + title
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
