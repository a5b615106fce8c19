package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
)

var errListFailed = errors.New("database unavailable")

// memRepo is an in-memory Repository for sweep tests.
type memRepo struct {
	interviews []*db.Interview
	settings   map[uuid.UUID]*db.TenantSettings

	listErr          error
	completeConflict bool
	completed        []uuid.UUID
}

func newMemRepo(interviews ...*db.Interview) *memRepo {
	return &memRepo{
		interviews: interviews,
		settings:   make(map[uuid.UUID]*db.TenantSettings),
	}
}

func (m *memRepo) ListOpenInterviews(ctx context.Context, limit int) ([]*db.Interview, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var open []*db.Interview
	for _, iv := range m.interviews {
		if !iv.Terminal() {
			open = append(open, iv)
		}
		if len(open) == limit {
			break
		}
	}
	return open, nil
}

func (m *memRepo) CompleteInterview(ctx context.Context, id uuid.UUID, cutoff time.Time) error {
	if m.completeConflict {
		return db.ErrConflict
	}
	for _, iv := range m.interviews {
		if iv.ID == id {
			if iv.Terminal() || iv.ScheduledAt == nil || iv.ScheduledAt.After(cutoff) {
				return db.ErrConflict
			}
			iv.Status = db.StatusCompleted
			m.completed = append(m.completed, id)
			return nil
		}
	}
	return db.ErrNotFound
}

func (m *memRepo) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*db.TenantSettings, error) {
	if ts, ok := m.settings[tenantID]; ok {
		return ts, nil
	}
	return nil, db.ErrNotFound
}

// recordingDispatcher remembers every dispatch and can fail.
type recordingDispatcher struct {
	dispatched map[uuid.UUID][]interview.Kind
	failKind   interview.Kind
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{dispatched: make(map[uuid.UUID][]interview.Kind)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, iv *db.Interview, kind interview.Kind) (bool, error) {
	if kind == d.failKind && kind != "" {
		return false, errors.New("send failed")
	}
	d.dispatched[iv.ID] = append(d.dispatched[iv.ID], kind)
	return true, nil
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestSweeper(repo Repository, d Dispatcher, now time.Time) *Sweeper {
	s := New(repo, d, Config{}, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func pendingAt(invited time.Time) *db.Interview {
	sent := invited
	return &db.Interview{
		ID:               uuid.New(),
		TenantID:         uuid.New(),
		CandidateName:    "Ada",
		CandidateEmail:   "ada@example.com",
		JobRole:          "Backend Engineer",
		Medium:           db.MediumOnline,
		Status:           db.StatusPending,
		InvitationSentAt: &sent,
		CreatedAt:        invited,
	}
}

func scheduledFor(at time.Time) *db.Interview {
	iv := pendingAt(t0)
	iv.Status = db.StatusScheduled
	iv.ScheduledAt = &at
	return iv
}

func TestRunOnceSendsDueFollowup(t *testing.T) {
	iv := pendingAt(t0)
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	// 49h after the invitation with default 48h delay.
	s := newTestSweeper(repo, d, t0.Add(49*time.Hour))
	summary := s.RunOnce(context.Background())

	if summary.FollowupsSent != 1 {
		t.Errorf("expected 1 followup, got %+v", summary)
	}
	if got := d.dispatched[iv.ID]; len(got) != 1 || got[0] != interview.KindFollowup {
		t.Errorf("unexpected dispatches: %v", got)
	}
}

func TestRunOnceRetriesMissedInvitation(t *testing.T) {
	iv := pendingAt(t0)
	iv.InvitationSentAt = nil
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0.Add(10*time.Minute))
	summary := s.RunOnce(context.Background())

	if summary.InvitationsSent != 1 {
		t.Errorf("expected invitation retry, got %+v", summary)
	}
}

func TestRunOnceSendsReminderInWindow(t *testing.T) {
	iv := scheduledFor(t0.Add(72 * time.Hour))
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	// Default reminder is 24h before, target t0+48h.
	s := newTestSweeper(repo, d, t0.Add(48*time.Hour))
	summary := s.RunOnce(context.Background())

	if summary.RemindersSent != 1 {
		t.Errorf("expected reminder, got %+v", summary)
	}
}

func TestRunOnceAutoCompletesPastInterview(t *testing.T) {
	iv := scheduledFor(t0.Add(-5 * time.Hour))
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0)
	summary := s.RunOnce(context.Background())

	if summary.Completed != 1 {
		t.Errorf("expected completion, got %+v", summary)
	}
	if iv.Status != db.StatusCompleted {
		t.Errorf("interview status = %s", iv.Status)
	}
	// Completion and notification are mutually exclusive in one pass.
	if len(d.dispatched[iv.ID]) != 0 {
		t.Errorf("past-due interview should get no notification, got %v", d.dispatched[iv.ID])
	}
}

func TestRunOnceCompletionConflictIsSilent(t *testing.T) {
	iv := scheduledFor(t0.Add(-5 * time.Hour))
	repo := newMemRepo(iv)
	repo.completeConflict = true
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0)
	summary := s.RunOnce(context.Background())

	if summary.Completed != 0 || summary.Errors != 0 {
		t.Errorf("lost completion race should count nothing, got %+v", summary)
	}
}

func TestRunOnceWithinGracePeriodSkipsCompletion(t *testing.T) {
	iv := scheduledFor(t0.Add(-1 * time.Hour))
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0)
	summary := s.RunOnce(context.Background())

	if summary.Completed != 0 {
		t.Errorf("inside grace period, expected no completion: %+v", summary)
	}
	if iv.Status != db.StatusScheduled {
		t.Errorf("interview status = %s", iv.Status)
	}
}

func TestRunOnceAtMostOneNotificationPerInterview(t *testing.T) {
	// Both a followup and (hypothetically) other rules could fire; a pass
	// must send exactly one notification to one interview.
	iv := pendingAt(t0)
	iv.InvitationSentAt = nil
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0.Add(100*time.Hour))
	s.RunOnce(context.Background())

	if got := d.dispatched[iv.ID]; len(got) != 1 {
		t.Errorf("expected exactly one notification, got %v", got)
	}
}

func TestRunOnceOneFailureDoesNotAbortPass(t *testing.T) {
	a := pendingAt(t0)
	a.InvitationSentAt = nil
	b := pendingAt(t0)
	repo := newMemRepo(a, b)
	d := newRecordingDispatcher()
	d.failKind = interview.KindInvitation

	s := newTestSweeper(repo, d, t0.Add(49*time.Hour))
	summary := s.RunOnce(context.Background())

	if summary.Errors != 1 {
		t.Errorf("expected 1 error, got %+v", summary)
	}
	if summary.FollowupsSent != 1 {
		t.Errorf("second interview should still get its followup, got %+v", summary)
	}
}

func TestRunOnceListFailure(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errListFailed
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0)
	summary := s.RunOnce(context.Background())

	if summary.Errors != 1 {
		t.Errorf("expected list error counted, got %+v", summary)
	}
}

func TestRunOnceHonorsTenantSettings(t *testing.T) {
	iv := pendingAt(t0)
	repo := newMemRepo(iv)
	ts := db.DefaultTenantSettings(iv.TenantID)
	ts.FollowupsEnabled = false
	repo.settings[iv.TenantID] = ts
	d := newRecordingDispatcher()

	s := newTestSweeper(repo, d, t0.Add(49*time.Hour))
	summary := s.RunOnce(context.Background())

	if summary.FollowupsSent != 0 {
		t.Errorf("followups disabled, expected none: %+v", summary)
	}
}

func TestPokeTriggersImmediatePass(t *testing.T) {
	iv := pendingAt(t0)
	iv.InvitationSentAt = nil
	repo := newMemRepo(iv)
	d := newRecordingDispatcher()

	s := New(repo, d, Config{Interval: time.Hour}, zap.NewNop())
	s.now = func() time.Time { return t0.Add(10 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	s.Poke()

	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		n := len(d.dispatched[iv.ID])
		s.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("poke did not trigger a pass")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestPokeCoalesces(t *testing.T) {
	s := New(newMemRepo(), newRecordingDispatcher(), Config{}, zap.NewNop())

	// Repeated pokes with no consumer must never block.
	for i := 0; i < 5; i++ {
		s.Poke()
	}
}
