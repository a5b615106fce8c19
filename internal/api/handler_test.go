package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
	"github.com/talentloop/talentloop/internal/sweep"
)

// Common test errors
var ErrDatabaseError = errors.New("database error")

// MockRepository is a fake database for testing
type MockRepository struct {
	interviews map[uuid.UUID]*db.Interview
	settings   map[uuid.UUID]*db.TenantSettings

	shouldFail bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		interviews: make(map[uuid.UUID]*db.Interview),
		settings:   make(map[uuid.UUID]*db.TenantSettings),
	}
}

func (m *MockRepository) CreateInterview(ctx context.Context, iv *db.Interview) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	now := time.Now()
	iv.CreatedAt = now
	iv.UpdatedAt = now
	m.interviews[iv.ID] = iv
	return nil
}

func (m *MockRepository) GetInterview(ctx context.Context, id uuid.UUID) (*db.Interview, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	iv, ok := m.interviews[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return iv, nil
}

func (m *MockRepository) GetInterviewByToken(ctx context.Context, token string) (*db.Interview, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	for _, iv := range m.interviews {
		if iv.ConfirmationToken == token {
			return iv, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *MockRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	if m.shouldFail {
		return false, ErrDatabaseError
	}
	_, err := m.GetInterviewByToken(ctx, token)
	return err == nil, nil
}

func (m *MockRepository) ListInterviewsByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*db.Interview, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	var result []*db.Interview
	for _, iv := range m.interviews {
		if iv.TenantID == tenantID {
			result = append(result, iv)
		}
	}
	return result, nil
}

func (m *MockRepository) ConfirmInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	iv, ok := m.interviews[id]
	if !ok {
		return db.ErrNotFound
	}
	if iv.Status != db.StatusPending {
		return db.ErrConflict
	}
	iv.Status = db.StatusScheduled
	iv.ScheduledAt = &scheduledAt
	iv.SelectedSlotDisplay = &display
	return nil
}

func (m *MockRepository) RescheduleInterview(ctx context.Context, id uuid.UUID, scheduledAt time.Time, display string) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	iv, ok := m.interviews[id]
	if !ok {
		return db.ErrNotFound
	}
	if !iv.Confirmed() {
		return db.ErrConflict
	}
	iv.Status = db.StatusRescheduled
	iv.ScheduledAt = &scheduledAt
	iv.SelectedSlotDisplay = &display
	iv.PreReminderSentAt = nil
	return nil
}

func (m *MockRepository) CancelInterview(ctx context.Context, id uuid.UUID) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	iv, ok := m.interviews[id]
	if !ok {
		return db.ErrNotFound
	}
	switch iv.Status {
	case db.StatusCancelled:
		return nil
	case db.StatusCompleted:
		return db.ErrConflict
	}
	iv.Status = db.StatusCancelled
	return nil
}

func (m *MockRepository) GetTenantSettings(ctx context.Context, tenantID uuid.UUID) (*db.TenantSettings, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}
	ts, ok := m.settings[tenantID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return ts, nil
}

func (m *MockRepository) UpsertTenantSettings(ctx context.Context, ts *db.TenantSettings) error {
	if m.shouldFail {
		return ErrDatabaseError
	}
	m.settings[ts.TenantID] = ts
	return nil
}

// mockDispatcher records dispatches without sending anything.
type mockDispatcher struct {
	dispatched []interview.Kind
	fail       bool
}

func (m *mockDispatcher) Dispatch(ctx context.Context, iv *db.Interview, kind interview.Kind) (bool, error) {
	if m.fail {
		return false, errors.New("send failed")
	}
	m.dispatched = append(m.dispatched, kind)
	return true, nil
}

// mockEvents counts lifecycle events.
type mockEvents struct {
	created, confirmed, rescheduled, cancelled int
}

func (m *mockEvents) Created(ctx context.Context, iv *db.Interview)     { m.created++ }
func (m *mockEvents) Confirmed(ctx context.Context, iv *db.Interview)   { m.confirmed++ }
func (m *mockEvents) Rescheduled(ctx context.Context, iv *db.Interview) { m.rescheduled++ }
func (m *mockEvents) Cancelled(ctx context.Context, iv *db.Interview)   { m.cancelled++ }

type mockSweeper struct {
	runs int
}

func (m *mockSweeper) RunOnce(ctx context.Context) sweep.Summary {
	m.runs++
	return sweep.Summary{FollowupsSent: 2, Completed: 1}
}

type testEnv struct {
	handler    *Handler
	repo       *MockRepository
	dispatcher *mockDispatcher
	events     *mockEvents
	sweeper    *mockSweeper
	router     *chi.Mux
}

func newTestEnv() *testEnv {
	repo := NewMockRepository()
	dispatcher := &mockDispatcher{}
	events := &mockEvents{}
	sweeper := &mockSweeper{}

	handler := NewHandler(zap.NewNop(), repo, dispatcher, events, sweeper, nil)

	r := chi.NewRouter()
	r.Post("/v1/interviews", handler.ScheduleInterview)
	r.Get("/v1/interviews", handler.ListInterviews)
	r.Get("/v1/interviews/{id}", handler.GetInterview)
	r.Post("/v1/interviews/{id}/cancel", handler.CancelInterview)
	r.Post("/v1/interviews/{id}/reschedule", handler.RescheduleInterview)
	r.Post("/v1/sweep", handler.TriggerSweep)
	r.Get("/v1/tenants/{tenant_id}/settings", handler.GetTenantSettings)
	r.Put("/v1/tenants/{tenant_id}/settings", handler.PutTenantSettings)
	r.Get("/confirm/{token}", handler.ShowConfirmation)
	r.Post("/confirm/{token}", handler.Confirm)

	return &testEnv{
		handler:    handler,
		repo:       repo,
		dispatcher: dispatcher,
		events:     events,
		sweeper:    sweeper,
		router:     r,
	}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const testTenantID = "00000000-0000-0000-0000-000000000001"

func validScheduleRequest() ScheduleRequest {
	return ScheduleRequest{
		TenantID:       testTenantID,
		CandidateName:  "Ada",
		CandidateEmail: "ada@example.com",
		JobRole:        "Backend Engineer",
		Medium:         "online",
	}
}

func TestScheduleInterview(t *testing.T) {
	tests := []struct {
		name           string
		mutate         func(*ScheduleRequest)
		expectedStatus int
	}{
		{"valid request", nil, http.StatusCreated},
		{"missing email", func(r *ScheduleRequest) { r.CandidateEmail = "" }, http.StatusBadRequest},
		{"missing name", func(r *ScheduleRequest) { r.CandidateName = "" }, http.StatusBadRequest},
		{"missing role", func(r *ScheduleRequest) { r.JobRole = "" }, http.StatusBadRequest},
		{"bad tenant id", func(r *ScheduleRequest) { r.TenantID = "nope" }, http.StatusBadRequest},
		{"bad medium", func(r *ScheduleRequest) { r.Medium = "carrier-pigeon" }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			req := validScheduleRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			rec := env.do(http.MethodPost, "/v1/interviews", req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.expectedStatus, rec.Body.String())
			}

			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var resp ScheduleResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if _, err := uuid.Parse(resp.ID); err != nil {
				t.Errorf("invalid interview id: %s", resp.ID)
			}
			if len(resp.Slots) == 0 {
				t.Error("expected generated slots")
			}
			if !resp.InvitationSent {
				t.Error("expected invitation to be dispatched")
			}
			if env.events.created != 1 {
				t.Errorf("created event fired %d times", env.events.created)
			}
		})
	}
}

func TestScheduleInterviewCustomSlots(t *testing.T) {
	env := newTestEnv()
	req := validScheduleRequest()
	future := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	req.CustomSlots = []SlotRequest{{StartsAt: future}}

	rec := env.do(http.MethodPost, "/v1/interviews", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Slots) != 1 {
		t.Fatalf("expected 1 custom slot, got %d", len(resp.Slots))
	}
	if resp.Slots[0].Display == "" {
		t.Error("display should be derived when omitted")
	}
}

func TestScheduleInterviewPastCustomSlot(t *testing.T) {
	env := newTestEnv()
	req := validScheduleRequest()
	req.CustomSlots = []SlotRequest{{StartsAt: time.Now().Add(-time.Hour)}}

	if rec := env.do(http.MethodPost, "/v1/interviews", req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestScheduleInterviewFailedInvitationStillCreates(t *testing.T) {
	env := newTestEnv()
	env.dispatcher.fail = true

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.InvitationSent {
		t.Error("invitation_sent should be false when the send fails")
	}
	if len(env.repo.interviews) != 1 {
		t.Error("interview should exist despite failed invitation")
	}
}

func TestConfirmFlow(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	var created ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	id := uuid.MustParse(created.ID)
	token := env.repo.interviews[id].ConfirmationToken
	slot := created.Slots[0]

	t.Run("page loads", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/confirm/"+token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("slot mismatch", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/confirm/"+token, ConfirmRequest{
			SlotStartsAt: slot.StartsAt.Add(5 * time.Minute),
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("confirm succeeds", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/confirm/"+token, ConfirmRequest{SlotStartsAt: slot.StartsAt})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		iv := env.repo.interviews[id]
		if iv.Status != db.StatusScheduled {
			t.Errorf("status = %s", iv.Status)
		}
		if iv.ScheduledAt == nil || !iv.ScheduledAt.Equal(slot.StartsAt) {
			t.Errorf("scheduled_at = %v", iv.ScheduledAt)
		}
		if env.events.confirmed != 1 {
			t.Errorf("confirmed event fired %d times", env.events.confirmed)
		}
		// invitation at creation + confirmation now
		if n := len(env.dispatcher.dispatched); n != 2 {
			t.Errorf("expected 2 dispatches, got %d: %v", n, env.dispatcher.dispatched)
		}
	})

	t.Run("second confirm is rejected", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/confirm/"+token, ConfirmRequest{SlotStartsAt: slot.StartsAt})
		if rec.Code != http.StatusGone {
			t.Errorf("status = %d, want 410", rec.Code)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/confirm/bogus-token", ConfirmRequest{SlotStartsAt: slot.StartsAt})
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestConfirmWithinTolerance(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	var created ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	id := uuid.MustParse(created.ID)
	token := env.repo.interviews[id].ConfirmationToken

	// 30 seconds off still matches the slot.
	rec = env.do(http.MethodPost, "/confirm/"+token, ConfirmRequest{
		SlotStartsAt: created.Slots[0].StartsAt.Add(30 * time.Second),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	iv := env.repo.interviews[id]
	if iv.ScheduledAt == nil || !iv.ScheduledAt.Equal(created.Slots[0].StartsAt) {
		t.Errorf("scheduled_at should snap to the offered slot, got %v", iv.ScheduledAt)
	}
}

func TestCancelInterview(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	var created ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	t.Run("cancel succeeds", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+created.ID+"/cancel", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if env.events.cancelled != 1 {
			t.Errorf("cancelled event fired %d times", env.events.cancelled)
		}
	})

	t.Run("cancel again is a no-op", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+created.ID+"/cancel", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("repeat cancel status = %d, want 200", rec.Code)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+uuid.NewString()+"/cancel", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		iv := &db.Interview{ID: uuid.New(), TenantID: uuid.New(), Status: db.StatusCompleted}
		env.repo.interviews[iv.ID] = iv
		rec := env.do(http.MethodPost, "/v1/interviews/"+iv.ID.String()+"/cancel", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})
}

func TestRescheduleInterview(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	var created ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)
	id := uuid.MustParse(created.ID)

	newTime := time.Now().Add(96 * time.Hour).Truncate(time.Second)

	t.Run("pending cannot be rescheduled", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+created.ID+"/reschedule", SlotRequest{StartsAt: newTime})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	// Confirm first, then move it.
	token := env.repo.interviews[id].ConfirmationToken
	env.do(http.MethodPost, "/confirm/"+token, ConfirmRequest{SlotStartsAt: created.Slots[0].StartsAt})

	t.Run("confirmed reschedules", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+created.ID+"/reschedule", SlotRequest{StartsAt: newTime})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		iv := env.repo.interviews[id]
		if iv.Status != db.StatusRescheduled {
			t.Errorf("status = %s", iv.Status)
		}
		if !iv.ScheduledAt.Equal(newTime) {
			t.Errorf("scheduled_at = %v, want %v", iv.ScheduledAt, newTime)
		}
		if env.events.rescheduled != 1 {
			t.Errorf("rescheduled event fired %d times", env.events.rescheduled)
		}
	})

	t.Run("past time rejected", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/v1/interviews/"+created.ID+"/reschedule", SlotRequest{
			StartsAt: time.Now().Add(-time.Hour),
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestTriggerSweep(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/sweep", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.sweeper.runs != 1 {
		t.Errorf("sweeper ran %d times", env.sweeper.runs)
	}

	var summary sweep.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.FollowupsSent != 2 || summary.Completed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestTenantSettings(t *testing.T) {
	env := newTestEnv()

	t.Run("defaults when unset", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/tenants/"+testTenantID+"/settings", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var ts db.TenantSettings
		_ = json.NewDecoder(rec.Body).Decode(&ts)
		if ts.FollowupDelayHours != 48 {
			t.Errorf("default delay = %d, want 48", ts.FollowupDelayHours)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		body := db.TenantSettings{
			FollowupDelayHours:       12,
			ReminderHoursBefore:      6,
			MaxFollowupEmails:        1,
			MinHoursBetweenFollowups: 8,
			FollowupsEnabled:         true,
			RemindersEnabled:         false,
		}
		rec := env.do(http.MethodPut, "/v1/tenants/"+testTenantID+"/settings", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
		}

		rec = env.do(http.MethodGet, "/v1/tenants/"+testTenantID+"/settings", nil)
		var ts db.TenantSettings
		_ = json.NewDecoder(rec.Body).Decode(&ts)
		if ts.FollowupDelayHours != 12 || ts.RemindersEnabled {
			t.Errorf("settings did not round-trip: %+v", ts)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		body := db.TenantSettings{FollowupDelayHours: -1}
		rec := env.do(http.MethodPut, "/v1/tenants/"+testTenantID+"/settings", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetInterview(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	var created ScheduleResponse
	_ = json.NewDecoder(rec.Body).Decode(&created)

	t.Run("found", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews/"+created.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var iv db.Interview
		_ = json.NewDecoder(rec.Body).Decode(&iv)
		if iv.CandidateEmail != "ada@example.com" {
			t.Errorf("unexpected interview: %+v", iv)
		}
	})

	t.Run("token never serialized", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews/"+created.ID, nil)
		if bytes.Contains(rec.Body.Bytes(), []byte(env.repo.interviews[uuid.MustParse(created.ID)].ConfirmationToken)) {
			t.Error("confirmation token leaked in API response")
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews/"+uuid.NewString(), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews/not-a-uuid", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestListInterviews(t *testing.T) {
	env := newTestEnv()

	for i := 0; i < 3; i++ {
		env.do(http.MethodPost, "/v1/interviews", validScheduleRequest())
	}

	t.Run("by tenant", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews?tenant_id="+testTenantID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Count != 3 {
			t.Errorf("count = %d, want 3", resp.Count)
		}
	})

	t.Run("missing tenant_id", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/interviews", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}
