package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
	"github.com/talentloop/talentloop/internal/metrics"
)

// Bookkeeper is the slice of the repository the dispatcher writes through.
// Every method is a conditional update that fails with db.ErrConflict when
// another evaluation already recorded the same notification.
type Bookkeeper interface {
	RecordInvitationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFollowupSent(ctx context.Context, id uuid.UUID, expectedCount int, at time.Time) error
	RecordPreReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Dispatcher renders a decided notification, sends it, and records the send
// in the interview's dispatch bookkeeping. Bookkeeping is written only after
// a confirmed successful send, so a failed send stays eligible for retry on
// the next sweep pass.
type Dispatcher struct {
	repo     Bookkeeper
	sender   Sender
	renderer *Renderer
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// Config holds dispatcher tuning.
type Config struct {
	// SendTimeout bounds each outbound send. A timed-out send counts as a
	// send failure: no bookkeeping, retried next pass.
	SendTimeout time.Duration
}

func NewDispatcher(repo Bookkeeper, sender Sender, renderer *Renderer, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		repo:     repo,
		sender:   sender,
		renderer: renderer,
		timeout:  cfg.SendTimeout,
		now:      time.Now,
		logger:   logger,
	}
}

// Dispatch sends the notification of the given kind for the interview.
// Returns true when a message went out and its bookkeeping was recorded.
// A lost bookkeeping race returns (false, nil): another evaluation already
// handled this interview, which is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, iv *db.Interview, kind interview.Kind) (bool, error) {
	email, err := d.renderer.Email(iv, kind)
	if err != nil {
		return false, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, email); err != nil {
		d.logger.Error("failed to send notification",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
			zap.String("kind", string(kind)),
		)
		return false, fmt.Errorf("send %s: %w", kind, err)
	}

	if err := d.record(ctx, iv, kind); err != nil {
		if errors.Is(err, db.ErrConflict) {
			d.logger.Warn("notification bookkeeping lost race, already recorded",
				zap.String("interview_id", iv.ID.String()),
				zap.String("kind", string(kind)),
			)
			return false, nil
		}
		return false, err
	}

	metrics.RecordNotificationSent(string(kind), ChannelEmail)

	// Pre-interview reminders also go out by SMS when a phone is on file.
	// The SMS leg is best effort: it shares the reminder's bookkeeping and
	// never blocks or retries on its own.
	if kind == interview.KindPreReminder && iv.CandidatePhone != nil && *iv.CandidatePhone != "" {
		if d.sender.SupportsChannel(ChannelSMS) {
			d.sendSMS(ctx, iv, kind)
		}
	}

	d.logger.Info("notification dispatched",
		zap.String("interview_id", iv.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("to", iv.CandidateEmail),
	)
	return true, nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, iv *db.Interview, kind interview.Kind) {
	sms, err := d.renderer.SMS(iv, kind)
	if err != nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, sms); err != nil {
		d.logger.Warn("sms leg failed",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
		)
		return
	}
	metrics.RecordNotificationSent(string(kind), ChannelSMS)
}

func (d *Dispatcher) record(ctx context.Context, iv *db.Interview, kind interview.Kind) error {
	at := d.now()
	switch kind {
	case interview.KindInvitation:
		return d.repo.RecordInvitationSent(ctx, iv.ID, at)
	case interview.KindConfirmation:
		return d.repo.RecordConfirmationSent(ctx, iv.ID, at)
	case interview.KindFollowup:
		return d.repo.RecordFollowupSent(ctx, iv.ID, iv.FollowupCount, at)
	case interview.KindPreReminder:
		return d.repo.RecordPreReminderSent(ctx, iv.ID, at)
	default:
		return fmt.Errorf("no bookkeeping for kind: %s", kind)
	}
}
