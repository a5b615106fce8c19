package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
	"github.com/talentloop/talentloop/internal/metrics"
	"github.com/talentloop/talentloop/internal/redis"
	"github.com/talentloop/talentloop/internal/sweep"
)

// InterviewRepository defines the interface for interview database operations
type InterviewRepository interface {
	CreateInterview(ctx context.Context, iv *db.Interview) error
	GetInterview(ctx context.Context, id uuid.UUID) (*db.Interview, error)
	GetInterviewByToken(ctx context.Context, token string) (*db.Interview, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	ListInterviewsByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Interview, error)
	ConfirmInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error
	RescheduleInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error
	CancelInterview(ctx context.Context, id uuid.UUID) error
	GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*db.TenantSettings, error)
	UpsertTenantSettings(ctx context.Context, ts *db.TenantSettings) error
}

// Dispatcher sends one notification for an interview and records it.
type Dispatcher interface {
	Dispatch(ctx context.Context, iv *db.Interview, kind interview.Kind) (bool, error)
}

// EventNotifier fires the explicit lifecycle events.
type EventNotifier interface {
	Created(ctx context.Context, iv *db.Interview)
	Confirmed(ctx context.Context, iv *db.Interview)
	Rescheduled(ctx context.Context, iv *db.Interview)
	Cancelled(ctx context.Context, iv *db.Interview)
}

// SweepRunner executes one synchronous sweep pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) sweep.Summary
}

// SlotRequest is a caller-supplied slot overriding generation.
type SlotRequest struct {
	StartsAt time.Time `json:"starts_at"`
	Display  string    `json:"display,omitempty"`
}

// ScheduleRequest is the incoming scheduling request from the hiring system.
type ScheduleRequest struct {
	TenantID       string        `json:"tenant_id"`
	CandidateName  string        `json:"candidate_name"`
	CandidateEmail string        `json:"candidate_email"`
	CandidatePhone *string       `json:"candidate_phone,omitempty"`
	JobRole        string        `json:"job_role"`
	Medium         string        `json:"medium"`
	CustomSlots    []SlotRequest `json:"custom_slots,omitempty"`

	FollowupDelayHours       *int `json:"followup_delay_hours,omitempty"`
	ReminderHoursBefore      *int `json:"reminder_hours_before,omitempty"`
	MaxFollowupEmails        *int `json:"max_followup_emails,omitempty"`
	MinHoursBetweenFollowups *int `json:"min_hours_between_followups,omitempty"`
}

// ScheduleResponse is returned after creating an interview.
type ScheduleResponse struct {
	ID             string      `json:"id"`
	Slots          db.SlotList `json:"slots"`
	InvitationSent bool        `json:"invitation_sent"`
}

// ConfirmRequest is the candidate's slot choice.
type ConfirmRequest struct {
	SlotStartsAt time.Time `json:"slot_starts_at"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	repo        InterviewRepository
	tokens      *interview.TokenService
	dispatcher  Dispatcher
	events      EventNotifier
	sweeper     SweepRunner
	idempotency *redis.IdempotencyService // nil if Redis not configured
	slotConfig  interview.SlotConfig
	now         func() time.Time
}

// NewHandler creates a new API handler. idempotency may be nil when Redis is
// not configured; scheduling requests then run without dedup.
func NewHandler(
	logger *zap.Logger,
	repo InterviewRepository,
	dispatcher Dispatcher,
	events EventNotifier,
	sweeper SweepRunner,
	idempotency *redis.IdempotencyService,
) *Handler {
	return &Handler{
		logger:      logger,
		repo:        repo,
		tokens:      interview.NewTokenService(repo),
		dispatcher:  dispatcher,
		events:      events,
		sweeper:     sweeper,
		idempotency: idempotency,
		slotConfig:  interview.DefaultSlotConfig(),
		now:         time.Now,
	}
}

// ScheduleInterview handles POST /v1/interviews
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.CandidateEmail == "" || req.JobRole == "" || req.CandidateName == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Missing required fields",
			"candidate_name, candidate_email, and job_role are required")
		return
	}

	if req.Medium == "" {
		req.Medium = db.MediumOnline
	}
	if req.Medium != db.MediumOnline && req.Medium != db.MediumOnsite {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid medium",
			"medium must be online or onsite")
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid tenant_id",
			"tenant_id must be a valid UUID")
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, req.TenantID, idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_ = json.NewEncoder(w).Encode(ScheduleResponse{ID: cached.InterviewID})
			return
		}
	}

	slots, errDetail := h.buildSlots(req.CustomSlots)
	if errDetail != "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid custom slots", errDetail)
		return
	}

	token, err := h.tokens.Mint(ctx)
	if err != nil {
		h.logger.Error("failed to mint confirmation token", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create interview", "")
		return
	}

	iv := &db.Interview{
		ID:                       uuid.New(),
		TenantID:                 tenantID,
		CandidateName:            req.CandidateName,
		CandidateEmail:           req.CandidateEmail,
		CandidatePhone:           req.CandidatePhone,
		JobRole:                  req.JobRole,
		Medium:                   req.Medium,
		Status:                   db.StatusPending,
		AvailableSlots:           slots,
		ConfirmationToken:        token,
		FollowupDelayHours:       req.FollowupDelayHours,
		ReminderHoursBefore:      req.ReminderHoursBefore,
		MaxFollowupEmails:        req.MaxFollowupEmails,
		MinHoursBetweenFollowups: req.MinHoursBetweenFollowups,
	}

	if err := h.repo.CreateInterview(ctx, iv); err != nil {
		h.logger.Error("failed to create interview",
			zap.Error(err),
			zap.String("tenant_id", req.TenantID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create interview", "")
		return
	}

	metrics.RecordInterviewCreated(req.TenantID, req.Medium)

	// The invitation goes out synchronously. A failed send does not fail the
	// request: the interview exists and the sweeper retries the invitation.
	invitationSent, err := h.dispatcher.Dispatch(ctx, iv, interview.KindInvitation)
	if err != nil {
		h.logger.Warn("invitation send failed, sweeper will retry",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
		)
	}

	h.events.Created(ctx, iv)

	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			InterviewID: iv.ID.String(),
			StatusCode:  http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, req.TenantID, idempotencyKey, result); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(ScheduleResponse{
		ID:             iv.ID.String(),
		Slots:          iv.AvailableSlots,
		InvitationSent: invitationSent,
	})
}

func (h *Handler) buildSlots(custom []SlotRequest) (db.SlotList, string) {
	if len(custom) == 0 {
		return interview.GenerateSlots(h.now(), h.slotConfig), ""
	}

	now := h.now()
	slots := make(db.SlotList, 0, len(custom))
	for i, s := range custom {
		if s.StartsAt.IsZero() {
			return nil, "custom slot " + strconv.Itoa(i) + " has no starts_at"
		}
		if !s.StartsAt.After(now) {
			return nil, "custom slot " + strconv.Itoa(i) + " is in the past"
		}
		display := s.Display
		if display == "" {
			display = s.StartsAt.Format("Monday, January 2 2006 at 3:04 PM")
		}
		slots = append(slots, db.Slot{StartsAt: s.StartsAt, Display: display})
	}
	return slots, ""
}

// GetInterview handles GET /v1/interviews/{id}
func (h *Handler) GetInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid interview ID", "ID must be a valid UUID")
		return
	}

	iv, err := h.repo.GetInterview(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Interview not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get interview", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get interview", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(iv)
}

// ListInterviews handles GET /v1/interviews?tenant_id=xxx&limit=20&offset=0
func (h *Handler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantIDStr := r.URL.Query().Get("tenant_id")
	if tenantIDStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing tenant_id", "tenant_id query parameter is required")
		return
	}

	tenantID, err := uuid.Parse(tenantIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant_id", "tenant_id must be a valid UUID")
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	interviews, err := h.repo.ListInterviewsByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list interviews", zap.Error(err), zap.String("tenant_id", tenantIDStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list interviews", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":   interviews,
		"limit":  limit,
		"offset": offset,
		"count":  len(interviews),
	})
}

// ShowConfirmation handles GET /confirm/{token}, the public page data a
// candidate sees before picking a slot. Errors are plain, actionable
// messages, never internals.
func (h *Handler) ShowConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	iv, err := h.tokens.Resolve(ctx, token)
	if errors.Is(err, interview.ErrTokenNotFound) {
		h.writeConfirmMessage(w, http.StatusNotFound,
			"This confirmation link is not valid. Please check the link in your invitation email.")
		return
	}
	if errors.Is(err, interview.ErrTokenExpired) {
		h.writeConfirmMessage(w, http.StatusGone,
			"This confirmation link has expired or the interview has already been confirmed.")
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve token", zap.Error(err))
		h.writeConfirmMessage(w, http.StatusInternalServerError,
			"Something went wrong on our side. Please try again in a few minutes.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"candidate_name": iv.CandidateName,
		"job_role":       iv.JobRole,
		"medium":         iv.Medium,
		"slots":          iv.AvailableSlots,
	})
}

// Confirm handles POST /confirm/{token}, the candidate locking in a slot.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeConfirmMessage(w, http.StatusBadRequest,
			"We could not read your slot choice. Please reload the page and try again.")
		return
	}

	iv, err := h.tokens.Resolve(ctx, token)
	if errors.Is(err, interview.ErrTokenNotFound) {
		metrics.RecordConfirmation("not_found")
		h.writeConfirmMessage(w, http.StatusNotFound,
			"This confirmation link is not valid. Please check the link in your invitation email.")
		return
	}
	if errors.Is(err, interview.ErrTokenExpired) {
		metrics.RecordConfirmation("expired")
		h.writeConfirmMessage(w, http.StatusGone,
			"This confirmation link has expired or the interview has already been confirmed.")
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve token", zap.Error(err))
		h.writeConfirmMessage(w, http.StatusInternalServerError,
			"Something went wrong on our side. Please try again in a few minutes.")
		return
	}

	slot, err := interview.MatchSlot(iv, req.SlotStartsAt)
	if errors.Is(err, interview.ErrSlotMismatch) {
		metrics.RecordConfirmation("slot_mismatch")
		h.writeConfirmMessage(w, http.StatusBadRequest,
			"That time is not one of the offered slots. Please pick one of the listed times.")
		return
	}

	err = h.repo.ConfirmInterview(ctx, iv.ID, slot.StartsAt, slot.Display)
	if errors.Is(err, db.ErrConflict) {
		// Another confirmation won the race.
		metrics.RecordConfirmation("conflict")
		h.writeConfirmMessage(w, http.StatusGone,
			"This interview has already been confirmed.")
		return
	}
	if err != nil {
		h.logger.Error("failed to confirm interview",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
		)
		h.writeConfirmMessage(w, http.StatusInternalServerError,
			"Something went wrong on our side. Please try again in a few minutes.")
		return
	}

	metrics.RecordConfirmation("confirmed")

	confirmed, err := h.repo.GetInterview(ctx, iv.ID)
	if err != nil {
		confirmed = iv
		confirmed.Status = db.StatusScheduled
		confirmed.ScheduledAt = &slot.StartsAt
		confirmed.SelectedSlotDisplay = &slot.Display
	}

	if _, err := h.dispatcher.Dispatch(ctx, confirmed, interview.KindConfirmation); err != nil {
		h.logger.Warn("confirmation email failed",
			zap.Error(err),
			zap.String("interview_id", iv.ID.String()),
		)
	}

	h.events.Confirmed(ctx, confirmed)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message":      "Your interview is confirmed for " + slot.Display + ".",
		"scheduled_at": slot.StartsAt.Format(time.RFC3339),
	})
}

// CancelInterview handles POST /v1/interviews/{id}/cancel. Cancelling twice
// is a no-op, not an error.
func (h *Handler) CancelInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid interview ID", "ID must be a valid UUID")
		return
	}

	err = h.repo.CancelInterview(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Interview not found", "")
		return
	}
	if errors.Is(err, db.ErrConflict) {
		h.writeError(w, http.StatusConflict, "conflict", "Interview already completed",
			"A completed interview cannot be cancelled")
		return
	}
	if err != nil {
		h.logger.Error("failed to cancel interview", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel interview", "")
		return
	}

	if iv, err := h.repo.GetInterview(ctx, id); err == nil {
		h.events.Cancelled(ctx, iv)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     idStr,
		"status": db.StatusCancelled,
	})
}

// RescheduleInterview handles POST /v1/interviews/{id}/reschedule
func (h *Handler) RescheduleInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid interview ID", "ID must be a valid UUID")
		return
	}

	var req SlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.StartsAt.IsZero() || !req.StartsAt.After(h.now()) {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid slot",
			"starts_at must be a future timestamp")
		return
	}

	display := req.Display
	if display == "" {
		display = req.StartsAt.Format("Monday, January 2 2006 at 3:04 PM")
	}

	err = h.repo.RescheduleInterview(ctx, id, req.StartsAt, display)
	if errors.Is(err, db.ErrConflict) {
		h.writeError(w, http.StatusConflict, "conflict", "Interview cannot be rescheduled",
			"Only a confirmed interview can be rescheduled")
		return
	}
	if err != nil {
		h.logger.Error("failed to reschedule interview", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to reschedule interview", "")
		return
	}

	if iv, err := h.repo.GetInterview(ctx, id); err == nil {
		h.events.Rescheduled(ctx, iv)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":           idStr,
		"status":       db.StatusRescheduled,
		"scheduled_at": req.StartsAt.Format(time.RFC3339),
	})
}

// TriggerSweep handles POST /v1/sweep. It runs one synchronous pass and is
// safe to invoke repeatedly or concurrently; passes serialize behind the
// sweeper's lock and every write is conditional.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	summary := h.sweeper.RunOnce(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(summary)
}

// GetTenantSettings handles GET /v1/tenants/{tenant_id}/settings
func (h *Handler) GetTenantSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenant_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant ID", "ID must be a valid UUID")
		return
	}

	ts, err := h.repo.GetTenantSettings(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		ts = db.DefaultTenantSettings(tenantID)
	} else if err != nil {
		h.logger.Error("failed to get tenant settings", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get tenant settings", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ts)
}

// PutTenantSettings handles PUT /v1/tenants/{tenant_id}/settings
func (h *Handler) PutTenantSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenant_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid tenant ID", "ID must be a valid UUID")
		return
	}

	var ts db.TenantSettings
	if err := json.NewDecoder(r.Body).Decode(&ts); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if ts.FollowupDelayHours <= 0 || ts.ReminderHoursBefore <= 0 ||
		ts.MaxFollowupEmails < 0 || ts.MinHoursBetweenFollowups <= 0 {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Invalid settings",
			"timing values must be positive; max_followup_emails must be >= 0")
		return
	}

	ts.TenantID = tenantID
	if err := h.repo.UpsertTenantSettings(ctx, &ts); err != nil {
		h.logger.Error("failed to save tenant settings", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save tenant settings", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ts)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// writeConfirmMessage writes a candidate-facing message for the public
// confirmation flow.
func (h *Handler) writeConfirmMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
