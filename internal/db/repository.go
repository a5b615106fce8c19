package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no row matches the lookup.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update matched no row because
// another writer already advanced the interview past the expected state.
// Callers treat it as "someone else handled this", not as a failure.
var ErrConflict = errors.New("concurrent update conflict")

const interviewColumns = `
	id, tenant_id, candidate_name, candidate_email, candidate_phone,
	job_role, medium, status, scheduled_at, selected_slot_display,
	available_slots, confirmation_token,
	followup_delay_hours, reminder_hours_before, max_followup_emails, min_hours_between_followups,
	invitation_sent_at, confirmation_sent_at, last_followup_sent_at, followup_count,
	pre_interview_reminder_sent_at, created_at, updated_at`

// Repository handles database operations for interviews and tenant settings.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new interview repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func scanInterview(row pgx.Row) (*Interview, error) {
	var iv Interview
	var rawSlots []byte
	err := row.Scan(
		&iv.ID,
		&iv.TenantID,
		&iv.CandidateName,
		&iv.CandidateEmail,
		&iv.CandidatePhone,
		&iv.JobRole,
		&iv.Medium,
		&iv.Status,
		&iv.ScheduledAt,
		&iv.SelectedSlotDisplay,
		&rawSlots,
		&iv.ConfirmationToken,
		&iv.FollowupDelayHours,
		&iv.ReminderHoursBefore,
		&iv.MaxFollowupEmails,
		&iv.MinHoursBetweenFollowups,
		&iv.InvitationSentAt,
		&iv.ConfirmationSentAt,
		&iv.LastFollowupSentAt,
		&iv.FollowupCount,
		&iv.PreReminderSentAt,
		&iv.CreatedAt,
		&iv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	iv.AvailableSlots, err = ScanSlots(rawSlots)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

// CreateInterview inserts a new pending interview.
func (r *Repository) CreateInterview(ctx context.Context, iv *Interview) error {
	slots, err := iv.AvailableSlots.Value()
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}

	query := `
		INSERT INTO interviews (
			id, tenant_id, candidate_name, candidate_email, candidate_phone,
			job_role, medium, status, available_slots, confirmation_token,
			followup_delay_hours, reminder_hours_before, max_followup_emails, min_hours_between_followups
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool().QueryRow(
		ctx,
		query,
		iv.ID,
		iv.TenantID,
		iv.CandidateName,
		iv.CandidateEmail,
		iv.CandidatePhone,
		iv.JobRole,
		iv.Medium,
		iv.Status,
		slots,
		iv.ConfirmationToken,
		iv.FollowupDelayHours,
		iv.ReminderHoursBefore,
		iv.MaxFollowupEmails,
		iv.MinHoursBetweenFollowups,
	).Scan(&iv.CreatedAt, &iv.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create interview",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
		)
		return fmt.Errorf("insert interview: %w", err)
	}

	r.logger.Info("interview created",
		zap.String("interview_id", iv.ID.String()),
		zap.String("tenant_id", iv.TenantID.String()),
		zap.String("job_role", iv.JobRole),
	)

	return nil
}

// GetInterview retrieves an interview by ID.
func (r *Repository) GetInterview(ctx context.Context, id uuid.UUID) (*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`

	iv, err := scanInterview(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query interview: %w", err)
	}
	return iv, nil
}

// GetInterviewByToken retrieves an interview by its confirmation token.
func (r *Repository) GetInterviewByToken(ctx context.Context, token string) (*Interview, error) {
	query := `SELECT ` + interviewColumns + ` FROM interviews WHERE confirmation_token = $1`

	iv, err := scanInterview(r.db.Pool().QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query interview by token: %w", err)
	}
	return iv, nil
}

// TokenExists reports whether any interview already uses the token.
func (r *Repository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM interviews WHERE confirmation_token = $1)`, token,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return exists, nil
}

// ListInterviewsByTenant retrieves interviews for a tenant with pagination.
func (r *Repository) ListInterviewsByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Interview, error) {
	query := `SELECT ` + interviewColumns + `
		FROM interviews
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer rows.Close()

	var interviews []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return interviews, nil
}

// ListOpenInterviews returns every interview still in a non-terminal state,
// oldest first. This is the working set of one sweep pass.
func (r *Repository) ListOpenInterviews(ctx context.Context, limit int) ([]*Interview, error) {
	query := `SELECT ` + interviewColumns + `
		FROM interviews
		WHERE status IN ('pending', 'scheduled', 'rescheduled')
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query open interviews: %w", err)
	}
	defer rows.Close()

	var interviews []*Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		interviews = append(interviews, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return interviews, nil
}

// ConfirmInterview locks in a slot. The write is conditional on the interview
// still being pending, so concurrent confirmations have exactly one winner.
func (r *Repository) ConfirmInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error {
	query := `
		UPDATE interviews
		SET status = $1, scheduled_at = $2, selected_slot_display = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, StatusScheduled, scheduledAt, display, id, StatusPending)
	if err != nil {
		return fmt.Errorf("confirm interview: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	r.logger.Info("interview confirmed",
		zap.String("interview_id", id.String()),
		zap.Time("scheduled_at", scheduledAt),
	)
	return nil
}

// RescheduleInterview moves a confirmed interview to a new time and clears the
// pre-interview reminder mark so the new time gets its own reminder.
func (r *Repository) RescheduleInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error {
	query := `
		UPDATE interviews
		SET status = $1, scheduled_at = $2, selected_slot_display = $3,
		    pre_interview_reminder_sent_at = NULL, updated_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		StatusRescheduled, scheduledAt, display, id, StatusScheduled, StatusRescheduled)
	if err != nil {
		return fmt.Errorf("reschedule interview: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	r.logger.Info("interview rescheduled",
		zap.String("interview_id", id.String()),
		zap.Time("scheduled_at", scheduledAt),
	)
	return nil
}

// CancelInterview moves an interview to the terminal cancelled state.
// Cancelling an already-cancelled interview is a no-op; cancelling a
// completed one is a conflict.
func (r *Repository) CancelInterview(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE interviews
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4, $5)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		StatusCancelled, id, StatusPending, StatusScheduled, StatusRescheduled)
	if err != nil {
		return fmt.Errorf("cancel interview: %w", err)
	}
	if result.RowsAffected() == 0 {
		iv, err := r.GetInterview(ctx, id)
		if err != nil {
			return err
		}
		if iv.Status == StatusCancelled {
			return nil
		}
		return ErrConflict
	}

	r.logger.Info("interview cancelled", zap.String("interview_id", id.String()))
	return nil
}

// CompleteInterview marks a past interview as completed. The cutoff is the
// scheduled time plus the grace period, re-checked in the WHERE clause so two
// concurrent sweeps cannot both claim the transition.
func (r *Repository) CompleteInterview(ctx context.Context, id uuid.UUID, cutoff time.Time) error {
	query := `
		UPDATE interviews
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4, $5)
		  AND scheduled_at IS NOT NULL AND scheduled_at <= $6
	`

	result, err := r.db.Pool().Exec(ctx, query,
		StatusCompleted, id, StatusPending, StatusScheduled, StatusRescheduled, cutoff)
	if err != nil {
		return fmt.Errorf("complete interview: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	r.logger.Info("interview completed", zap.String("interview_id", id.String()))
	return nil
}

// RecordInvitationSent stamps the invitation send time, once.
func (r *Repository) RecordInvitationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE interviews
		SET invitation_sent_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND invitation_sent_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, at, id, StatusPending)
	if err != nil {
		return fmt.Errorf("record invitation sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RecordConfirmationSent stamps the confirmation email send time, once.
func (r *Repository) RecordConfirmationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE interviews
		SET confirmation_sent_at = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4) AND confirmation_sent_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, at, id, StatusScheduled, StatusRescheduled)
	if err != nil {
		return fmt.Errorf("record confirmation sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RecordFollowupSent increments the follow-up counter, conditional on the
// counter still holding the value the policy decision was based on.
func (r *Repository) RecordFollowupSent(ctx context.Context, id uuid.UUID, expectedCount int, at time.Time) error {
	query := `
		UPDATE interviews
		SET followup_count = followup_count + 1, last_followup_sent_at = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND followup_count = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, at, id, StatusPending, expectedCount)
	if err != nil {
		return fmt.Errorf("record followup sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RecordPreReminderSent stamps the pre-interview reminder send time, once.
func (r *Repository) RecordPreReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE interviews
		SET pre_interview_reminder_sent_at = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ($3, $4) AND pre_interview_reminder_sent_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, at, id, StatusScheduled, StatusRescheduled)
	if err != nil {
		return fmt.Errorf("record pre-reminder sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// GetTenantSettings retrieves notification settings for a tenant.
func (r *Repository) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*TenantSettings, error) {
	query := `
		SELECT tenant_id, followup_delay_hours, reminder_hours_before,
		       max_followup_emails, min_hours_between_followups,
		       followups_enabled, reminders_enabled, created_at, updated_at
		FROM tenant_notification_settings
		WHERE tenant_id = $1
	`

	var ts TenantSettings
	err := r.db.Pool().QueryRow(ctx, query, tenantID).Scan(
		&ts.TenantID,
		&ts.FollowupDelayHours,
		&ts.ReminderHoursBefore,
		&ts.MaxFollowupEmails,
		&ts.MinHoursBetweenFollowups,
		&ts.FollowupsEnabled,
		&ts.RemindersEnabled,
		&ts.CreatedAt,
		&ts.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant settings: %w", err)
	}
	return &ts, nil
}

// UpsertTenantSettings creates or replaces a tenant's notification settings.
func (r *Repository) UpsertTenantSettings(ctx context.Context, ts *TenantSettings) error {
	query := `
		INSERT INTO tenant_notification_settings (
			tenant_id, followup_delay_hours, reminder_hours_before,
			max_followup_emails, min_hours_between_followups,
			followups_enabled, reminders_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			followup_delay_hours = EXCLUDED.followup_delay_hours,
			reminder_hours_before = EXCLUDED.reminder_hours_before,
			max_followup_emails = EXCLUDED.max_followup_emails,
			min_hours_between_followups = EXCLUDED.min_hours_between_followups,
			followups_enabled = EXCLUDED.followups_enabled,
			reminders_enabled = EXCLUDED.reminders_enabled,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		ts.TenantID,
		ts.FollowupDelayHours,
		ts.ReminderHoursBefore,
		ts.MaxFollowupEmails,
		ts.MinHoursBetweenFollowups,
		ts.FollowupsEnabled,
		ts.RemindersEnabled,
	).Scan(&ts.CreatedAt, &ts.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tenant settings: %w", err)
	}

	r.logger.Info("tenant settings saved", zap.String("tenant_id", ts.TenantID.String()))
	return nil
}
