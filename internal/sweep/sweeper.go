package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
	"github.com/talentloop/talentloop/internal/metrics"
)

// Repository is the slice of the database layer one sweep pass reads and writes.
type Repository interface {
	ListOpenInterviews(ctx context.Context, limit int) ([]*db.Interview, error)
	CompleteInterview(ctx context.Context, id uuid.UUID, cutoff time.Time) error
	GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*db.TenantSettings, error)
}

// Dispatcher sends one decided notification and records it.
type Dispatcher interface {
	Dispatch(ctx context.Context, iv *db.Interview, kind interview.Kind) (bool, error)
}

// Config holds sweeper tuning.
type Config struct {
	Interval    time.Duration // ticker cadence
	BatchSize   int           // max open interviews per pass
	GracePeriod time.Duration // delay past scheduled_at before auto-completion
}

// Summary is the outcome of one sweep pass.
type Summary struct {
	InvitationsSent int `json:"invitations_sent"`
	FollowupsSent   int `json:"followups_sent"`
	RemindersSent   int `json:"reminders_sent"`
	Completed       int `json:"completed"`
	Errors          int `json:"errors"`
}

// Sweeper periodically re-evaluates every open interview: auto-completes past
// ones and sends whatever single notification the policy says is due. The
// timer loop and the run-now signal share the same per-interview evaluation,
// so behavior is identical regardless of which trigger fired.
type Sweeper struct {
	repo       Repository
	dispatcher Dispatcher
	config     Config
	logger     *zap.Logger

	now    func() time.Time
	runNow chan struct{}
	mu     sync.Mutex // serializes passes so concurrent triggers cannot stack
}

func New(repo Repository, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = interview.DefaultGracePeriod
	}

	return &Sweeper{
		repo:       repo,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
		now:        time.Now,
		runNow:     make(chan struct{}, 1),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.runNow:
			s.RunOnce(ctx)
		}
	}
}

// Poke asks the running sweeper for an immediate pass. Non-blocking; if a
// signal is already queued the poke coalesces into it.
func (s *Sweeper) Poke() {
	select {
	case s.runNow <- struct{}{}:
	default:
	}
}

// RunOnce executes one full pass over every open interview and returns what
// it did. One interview's failure never blocks the rest of the pass.
func (s *Sweeper) RunOnce(ctx context.Context) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var summary Summary

	interviews, err := s.repo.ListOpenInterviews(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to list open interviews", zap.Error(err))
		summary.Errors++
		metrics.RecordSweepError()
		return summary
	}

	now := s.now()
	settingsCache := make(map[uuid.UUID]*db.TenantSettings)

	for _, iv := range interviews {
		s.evaluate(ctx, iv, now, settingsCache, &summary)
	}

	metrics.RecordSweep(time.Since(start))
	s.logger.Info("sweep pass complete",
		zap.Int("open_interviews", len(interviews)),
		zap.Int("invitations_sent", summary.InvitationsSent),
		zap.Int("followups_sent", summary.FollowupsSent),
		zap.Int("reminders_sent", summary.RemindersSent),
		zap.Int("completed", summary.Completed),
		zap.Int("errors", summary.Errors),
	)
	return summary
}

// evaluate applies the auto-completion rule and, failing that, the
// notification policy to a single interview. At most one notification goes
// out per interview per pass.
func (s *Sweeper) evaluate(ctx context.Context, iv *db.Interview, now time.Time, cache map[uuid.UUID]*db.TenantSettings, summary *Summary) {
	if interview.PastDue(iv, now, s.config.GracePeriod) {
		err := s.repo.CompleteInterview(ctx, iv.ID, interview.CompletionCutoff(now, s.config.GracePeriod))
		if errors.Is(err, db.ErrConflict) {
			// Another pass or a reschedule got there first.
			return
		}
		if err != nil {
			s.logger.Error("failed to complete interview",
				zap.Error(err),
				zap.String("interview_id", iv.ID.String()),
			)
			summary.Errors++
			metrics.RecordSweepError()
			return
		}
		summary.Completed++
		metrics.RecordInterviewCompleted()
		return
	}

	settings := s.tenantSettings(ctx, iv.TenantID, cache)

	kind := interview.Decide(iv, settings, now)
	if kind == interview.KindNone {
		return
	}

	sent, err := s.dispatcher.Dispatch(ctx, iv, kind)
	if err != nil {
		summary.Errors++
		metrics.RecordSweepError()
		return
	}
	if !sent {
		return
	}

	switch kind {
	case interview.KindInvitation:
		summary.InvitationsSent++
	case interview.KindFollowup:
		summary.FollowupsSent++
	case interview.KindPreReminder:
		summary.RemindersSent++
	}
}

func (s *Sweeper) tenantSettings(ctx context.Context, tenantID uuid.UUID, cache map[uuid.UUID]*db.TenantSettings) *db.TenantSettings {
	if ts, ok := cache[tenantID]; ok {
		return ts
	}

	ts, err := s.repo.GetTenantSettings(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		ts = db.DefaultTenantSettings(tenantID)
	} else if err != nil {
		s.logger.Warn("failed to load tenant settings, using defaults",
			zap.Error(err),
			zap.String("tenant_id", tenantID.String()),
		)
		ts = db.DefaultTenantSettings(tenantID)
	}

	cache[tenantID] = ts
	return ts
}
