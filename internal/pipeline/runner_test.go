package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipfetch/clipfetch/internal/config"
	"github.com/clipfetch/clipfetch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxConcurrent: 5,
		MaxDuration:   time.Hour,
		MaxFileSize:   1 << 30,
		CaptionMax:    90,
		ErrorMax:      200,
		TitleMax:      50,
	}
}

// mockAcquirer implements Acquirer.
type mockAcquirer struct {
	info       *domain.MediaInfo
	probeErr   error
	fetchErr   error
	probePanic bool

	probeCalls int
	fetchCalls int
}

func (m *mockAcquirer) Probe(ctx context.Context, url string) (*domain.MediaInfo, error) {
	m.probeCalls++
	if m.probePanic {
		panic("probe exploded")
	}
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	return m.info, nil
}

func (m *mockAcquirer) Fetch(ctx context.Context, url string, kind domain.Kind, template string) error {
	m.fetchCalls++
	return m.fetchErr
}

// mockStore implements Store.
type mockStore struct {
	locateErr error
	size      int64
	sizeErr   error

	reserveCalls int
	removed      []string
}

func (m *mockStore) Reserve(jobID domain.JobID) (string, error) {
	m.reserveCalls++
	return "/tmp/" + jobID.String() + ".%(ext)s", nil
}

func (m *mockStore) Locate(template string, kind domain.Kind) (string, error) {
	if m.locateErr != nil {
		return "", m.locateErr
	}
	ext := ".mp4"
	if kind == domain.KindAudio {
		ext = ".mp3"
	}
	return strings.Replace(template, ".%(ext)s", ext, 1), nil
}

func (m *mockStore) SizeOf(path string) (int64, error) {
	if m.sizeErr != nil {
		return 0, m.sizeErr
	}
	return m.size, nil
}

func (m *mockStore) Remove(path string) {
	m.removed = append(m.removed, path)
}

// mockMessenger implements Messenger. mediaErrs is consumed one per
// SendMedia call; nil entries mean success.
type mockMessenger struct {
	sendErr   error
	editErr   error
	mediaErrs []error

	statusTexts []string
	editTexts   []string
	mediaCalls  int
	captions    []string
}

func (m *mockMessenger) SendStatus(chatID int64, text string) (domain.MessageRef, error) {
	if m.sendErr != nil {
		return domain.MessageRef{}, m.sendErr
	}
	m.statusTexts = append(m.statusTexts, text)
	return domain.MessageRef{ChatID: chatID, MessageID: len(m.statusTexts)}, nil
}

func (m *mockMessenger) EditStatus(ref domain.MessageRef, text string) error {
	if m.editErr != nil {
		return m.editErr
	}
	m.editTexts = append(m.editTexts, text)
	return nil
}

func (m *mockMessenger) SendMedia(ctx context.Context, chatID int64, path string, kind domain.Kind, caption string) error {
	m.mediaCalls++
	m.captions = append(m.captions, caption)
	if len(m.mediaErrs) > 0 {
		err := m.mediaErrs[0]
		m.mediaErrs = m.mediaErrs[1:]
		return err
	}
	return nil
}

// mockSessions implements Sessions.
type mockSessions struct {
	mu     sync.Mutex
	resets []int64
}

func (m *mockSessions) Reset(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, userID)
}

// mockRecorder implements Recorder.
type mockRecorder struct {
	jobs  []*domain.Job
	bytes []int64
}

func (m *mockRecorder) Record(ctx context.Context, job *domain.Job, bytes int64) {
	m.jobs = append(m.jobs, job)
	m.bytes = append(m.bytes, bytes)
}

type fixture struct {
	runner   *Runner
	acquirer *mockAcquirer
	store    *mockStore
	msgr     *mockMessenger
	sessions *mockSessions
	history  *mockRecorder
	sleeps   []time.Duration
	releases int
}

func newFixture() *fixture {
	f := &fixture{
		acquirer: &mockAcquirer{
			info: &domain.MediaInfo{Title: "Test Video", Duration: 2 * time.Minute},
		},
		store:    &mockStore{size: 1024},
		msgr:     &mockMessenger{},
		sessions: &mockSessions{},
		history:  &mockRecorder{},
	}
	f.runner = NewRunner(f.acquirer, f.store, f.msgr, f.sessions, f.history, testLimits(), testLogger())
	f.runner.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func (f *fixture) run(t *testing.T, job *domain.Job) {
	t.Helper()
	f.runner.Run(context.Background(), job, domain.MessageRef{ChatID: job.ChatID, MessageID: 100}, func() {
		f.releases++
	})
}

func videoJob() *domain.Job {
	return domain.NewJob(42, 42, domain.KindVideo, "https://youtu.be/abc", time.Now())
}

func (f *fixture) assertFinalized(t *testing.T, job *domain.Job) {
	t.Helper()
	if f.releases != 1 {
		t.Errorf("release calls = %d, want exactly 1", f.releases)
	}
	if len(f.sessions.resets) != 1 || f.sessions.resets[0] != job.UserID {
		t.Errorf("session resets = %v, want [%d]", f.sessions.resets, job.UserID)
	}
	if len(f.history.jobs) != 1 {
		t.Errorf("history records = %d, want 1", len(f.history.jobs))
	}
	if terminal := len(f.msgr.editTexts) + len(f.msgr.statusTexts); terminal > 1 {
		t.Errorf("terminal messages = %d, want at most 1", terminal)
	}
}

// Short video, fetch and delivery succeed.
func TestRun_Success(t *testing.T) {
	f := newFixture()
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("outcome = %q (%s), want succeeded", job.Outcome, job.FailReason)
	}
	if job.Title != "Test Video" {
		t.Errorf("title = %q", job.Title)
	}
	if len(f.msgr.editTexts) != 1 || !strings.Contains(f.msgr.editTexts[0], "✅") {
		t.Errorf("want one success edit, got %v", f.msgr.editTexts)
	}
	if len(f.store.removed) != 1 || !strings.HasSuffix(f.store.removed[0], ".mp4") {
		t.Errorf("artifact should be removed, got %v", f.store.removed)
	}
	if len(f.msgr.captions) != 1 || !strings.HasPrefix(f.msgr.captions[0], "🎬 ") {
		t.Errorf("video caption = %v", f.msgr.captions)
	}
	f.assertFinalized(t, job)
}

func TestRun_AudioCaption(t *testing.T) {
	f := newFixture()
	job := domain.NewJob(42, 42, domain.KindAudio, "https://youtu.be/abc", time.Now())

	f.run(t, job)

	if job.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("outcome = %q (%s), want succeeded", job.Outcome, job.FailReason)
	}
	if len(f.msgr.captions) != 1 || !strings.HasPrefix(f.msgr.captions[0], "🎧 ") {
		t.Errorf("audio caption = %v", f.msgr.captions)
	}
	if len(f.store.removed) != 1 || !strings.HasSuffix(f.store.removed[0], ".mp3") {
		t.Errorf("audio artifact should be removed, got %v", f.store.removed)
	}
}

// A probed duration over the cap fails before fetch; the file store is
// never touched.
func TestRun_DurationExceeded(t *testing.T) {
	f := newFixture()
	f.acquirer.info = &domain.MediaInfo{Title: "Epic", Duration: 5000 * time.Second}
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if f.acquirer.fetchCalls != 0 {
		t.Error("fetch must not run for an oversized duration")
	}
	if f.store.reserveCalls != 0 {
		t.Error("file store must not be invoked")
	}
	if len(f.msgr.editTexts) != 1 || !strings.Contains(f.msgr.editTexts[0], "❌") {
		t.Errorf("want one error edit, got %v", f.msgr.editTexts)
	}
	if len(f.store.removed) != 0 {
		t.Errorf("nothing to remove, got %v", f.store.removed)
	}
	f.assertFinalized(t, job)
}

func TestRun_ProbeFailure(t *testing.T) {
	f := newFixture()
	f.acquirer.probeErr = domain.ErrProbeFailed
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if f.acquirer.fetchCalls != 0 {
		t.Error("fetch must not run after a probe failure")
	}
	f.assertFinalized(t, job)
}

func TestRun_FetchFailure(t *testing.T) {
	f := newFixture()
	f.acquirer.fetchErr = domain.ErrFetchFailed
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if f.msgr.mediaCalls != 0 {
		t.Error("no delivery after a fetch failure")
	}
	f.assertFinalized(t, job)
}

func TestRun_ArtifactMissing(t *testing.T) {
	f := newFixture()
	f.store.locateErr = domain.ErrArtifactNotFound
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if !strings.Contains(job.FailReason, "not found") {
		t.Errorf("reason = %q", job.FailReason)
	}
	f.assertFinalized(t, job)
}

func TestRun_OversizedArtifact(t *testing.T) {
	f := newFixture()
	f.store.size = 2 << 30
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if !strings.Contains(job.FailReason, "too large") {
		t.Errorf("reason = %q", job.FailReason)
	}
	if f.msgr.mediaCalls != 0 {
		t.Error("oversized artifact must not be delivered")
	}
	// The file exists by then, so cleanup must still remove it.
	if len(f.store.removed) != 1 {
		t.Errorf("artifact should be removed, got %v", f.store.removed)
	}
	f.assertFinalized(t, job)
}

// A single throttle is waited out once and the retry succeeds.
func TestRun_RetryAfterOnce(t *testing.T) {
	f := newFixture()
	f.msgr.mediaErrs = []error{&domain.RetryAfterError{Delay: 30 * time.Second}, nil}
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("outcome = %q (%s), want succeeded", job.Outcome, job.FailReason)
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != 30*time.Second {
		t.Errorf("sleeps = %v, want one 30s wait", f.sleeps)
	}
	if f.msgr.mediaCalls != 2 {
		t.Errorf("media sends = %d, want 2", f.msgr.mediaCalls)
	}
	f.assertFinalized(t, job)
}

func TestRun_RetryAfterTwiceFails(t *testing.T) {
	f := newFixture()
	f.msgr.mediaErrs = []error{
		&domain.RetryAfterError{Delay: 10 * time.Second},
		&domain.RetryAfterError{Delay: 10 * time.Second},
	}
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("second throttle should fail the job")
	}
	if len(f.sleeps) != 1 {
		t.Errorf("sleeps = %v, want exactly one wait", f.sleeps)
	}
	if f.msgr.mediaCalls != 2 {
		t.Errorf("media sends = %d, want 2 and no third attempt", f.msgr.mediaCalls)
	}
	if len(f.store.removed) != 1 {
		t.Error("artifact should still be removed")
	}
	f.assertFinalized(t, job)
}

func TestRun_PermanentDeliveryError(t *testing.T) {
	f := newFixture()
	f.msgr.mediaErrs = []error{domain.ErrDeliveryFailed}
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("job should fail")
	}
	if len(f.sleeps) != 0 {
		t.Errorf("no wait for a permanent error, got %v", f.sleeps)
	}
	if len(f.store.removed) != 1 {
		t.Error("artifact should still be removed")
	}
	f.assertFinalized(t, job)
}

func TestRun_EditFallsBackToSend(t *testing.T) {
	f := newFixture()
	f.msgr.editErr = errors.New("message to edit not found")
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("outcome = %q, want succeeded", job.Outcome)
	}
	if len(f.msgr.statusTexts) != 1 || !strings.Contains(f.msgr.statusTexts[0], "✅") {
		t.Errorf("want fallback send, got %v", f.msgr.statusTexts)
	}
}

func TestRun_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.msgr.editErr = errors.New("edit failed")
	f.msgr.sendErr = errors.New("send failed")
	job := videoJob()

	f.run(t, job)

	// Even with every notification path down, the slot, session, and
	// artifact must all be released.
	if f.releases != 1 {
		t.Errorf("release calls = %d, want 1", f.releases)
	}
	if len(f.sessions.resets) != 1 {
		t.Errorf("session resets = %v, want one", f.sessions.resets)
	}
	if len(f.store.removed) != 1 {
		t.Error("artifact should be removed")
	}
	if len(f.history.jobs) != 1 {
		t.Error("history should still record the job")
	}
}

func TestRun_PanicStillFinalizes(t *testing.T) {
	f := newFixture()
	f.acquirer.probePanic = true
	job := videoJob()

	f.run(t, job)

	if job.Outcome != domain.OutcomeFailed {
		t.Fatal("panicked job should be failed")
	}
	if job.FailReason != "internal error" {
		t.Errorf("reason = %q", job.FailReason)
	}
	f.assertFinalized(t, job)
}

func TestRun_ErrorReasonIsBounded(t *testing.T) {
	f := newFixture()
	f.acquirer.probeErr = errors.New(strings.Repeat("x", 1000))
	job := videoJob()

	f.run(t, job)

	if len([]rune(job.FailReason)) > 200 {
		t.Errorf("fail reason length = %d, want <= 200", len([]rune(job.FailReason)))
	}
}

func TestRun_HistoryRecordsOutcome(t *testing.T) {
	f := newFixture()
	job := videoJob()

	f.run(t, job)

	if len(f.history.jobs) != 1 {
		t.Fatalf("history records = %d, want 1", len(f.history.jobs))
	}
	if f.history.jobs[0].Outcome != domain.OutcomeSucceeded {
		t.Errorf("recorded outcome = %q", f.history.jobs[0].Outcome)
	}
	if f.history.bytes[0] != 1024 {
		t.Errorf("recorded bytes = %d, want 1024", f.history.bytes[0])
	}
}
