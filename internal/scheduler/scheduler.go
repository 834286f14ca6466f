// Package scheduler enforces the global download concurrency cap and the
// one-job-per-user rule.
package scheduler

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/clipfetch/clipfetch/internal/domain"
)

// Scheduler admits jobs into the download pipeline. It holds the only shared
// mutable state in the process: the slot count and the set of users with a
// job in flight. Both are updated under one lock so acceptance is atomic.
type Scheduler struct {
	mu       sync.Mutex
	slots    *semaphore.Weighted
	active   map[int64]*domain.Job
	capacity int
	logger   *slog.Logger
}

// New creates a scheduler with the given concurrency cap.
func New(maxConcurrent int, logger *slog.Logger) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Scheduler{
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		active:   make(map[int64]*domain.Job),
		capacity: maxConcurrent,
		logger:   logger,
	}
}

// Submit admits a job if a slot is free and the user has nothing in flight.
// On acceptance it returns a release function that gives the slot and the
// user lock back; the release runs at most once no matter how many times it
// is called. On rejection the error is ErrDuplicateUser or
// ErrCapacityExceeded and no state is mutated.
func (s *Scheduler) Submit(job *domain.Job) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[job.UserID]; busy {
		return nil, domain.ErrDuplicateUser
	}
	if !s.slots.TryAcquire(1) {
		return nil, domain.ErrCapacityExceeded
	}
	s.active[job.UserID] = job

	s.logger.Info("job accepted",
		"job_id", job.ID,
		"user_id", job.UserID,
		"kind", job.Kind,
		"active", len(s.active),
		"capacity", s.capacity,
	)

	var once sync.Once
	return func() {
		once.Do(func() { s.release(job) })
	}, nil
}

func (s *Scheduler) release(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, job.UserID)
	s.slots.Release(1)

	s.logger.Info("job released",
		"job_id", job.ID,
		"user_id", job.UserID,
		"outcome", job.Outcome,
		"active", len(s.active),
	)
}

// Busy reports whether the user currently has a job in flight.
func (s *Scheduler) Busy(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.active[userID]
	return busy
}

// Snapshot describes the scheduler occupancy at a point in time.
type Snapshot struct {
	Capacity    int     `json:"capacity"`
	ActiveSlots int     `json:"active_slots"`
	ActiveUsers []int64 `json:"active_users"`
}

// Stats returns the current occupancy.
func (s *Scheduler) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]int64, 0, len(s.active))
	for id := range s.active {
		users = append(users, id)
	}
	return Snapshot{
		Capacity:    s.capacity,
		ActiveSlots: len(s.active),
		ActiveUsers: users,
	}
}
