package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interview status constants
const (
	StatusPending     = "pending"
	StatusScheduled   = "scheduled"
	StatusRescheduled = "rescheduled"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
)

// Interview medium constants
const (
	MediumOnline = "online"
	MediumOnsite = "onsite"
)

// Slot is one offered interview time with its human-readable label.
type Slot struct {
	StartsAt time.Time `json:"starts_at"`
	Display  string    `json:"display"`
}

// SlotList is the ordered set of slots offered to a candidate. It is stored
// as a JSONB array and is immutable once the invitation has been sent.
type SlotList []Slot

// Value encodes the slot list for a JSONB column.
func (s SlotList) Value() ([]byte, error) {
	if s == nil {
		s = SlotList{}
	}
	return json.Marshal(s)
}

// ScanSlots decodes and validates a JSONB slot array.
func ScanSlots(raw []byte) (SlotList, error) {
	if len(raw) == 0 {
		return SlotList{}, nil
	}
	var slots SlotList
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	for i, s := range slots {
		if s.StartsAt.IsZero() {
			return nil, fmt.Errorf("decode slots: entry %d has no timestamp", i)
		}
	}
	return slots, nil
}

// Interview is the aggregate root of the scheduling lifecycle.
//
// The four *int timing fields are explicit per-interview overrides: nil means
// "inherit the tenant default", which is distinct from a caller explicitly
// choosing the default value.
type Interview struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`

	CandidateName  string  `json:"candidate_name"`
	CandidateEmail string  `json:"candidate_email"`
	CandidatePhone *string `json:"candidate_phone,omitempty"`

	JobRole string `json:"job_role"`
	Medium  string `json:"medium"`

	Status              string     `json:"status"`
	ScheduledAt         *time.Time `json:"scheduled_at,omitempty"`
	SelectedSlotDisplay *string    `json:"selected_slot_display,omitempty"`
	AvailableSlots      SlotList   `json:"available_slots"`
	ConfirmationToken   string     `json:"-"`

	FollowupDelayHours       *int `json:"followup_delay_hours,omitempty"`
	ReminderHoursBefore      *int `json:"reminder_hours_before,omitempty"`
	MaxFollowupEmails        *int `json:"max_followup_emails,omitempty"`
	MinHoursBetweenFollowups *int `json:"min_hours_between_followups,omitempty"`

	InvitationSentAt   *time.Time `json:"invitation_sent_at,omitempty"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty"`
	LastFollowupSentAt *time.Time `json:"last_followup_sent_at,omitempty"`
	FollowupCount      int        `json:"followup_count"`
	PreReminderSentAt  *time.Time `json:"pre_interview_reminder_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the interview can never change again.
func (iv *Interview) Terminal() bool {
	return iv.Status == StatusCompleted || iv.Status == StatusCancelled
}

// Confirmed reports whether a slot has been locked in (scheduled or rescheduled).
func (iv *Interview) Confirmed() bool {
	return iv.Status == StatusScheduled || iv.Status == StatusRescheduled
}

// TenantSettings holds per-tenant notification defaults and the global
// switches that disable automatic follow-ups or reminders entirely.
type TenantSettings struct {
	TenantID uuid.UUID `json:"tenant_id"`

	FollowupDelayHours       int `json:"followup_delay_hours"`
	ReminderHoursBefore      int `json:"reminder_hours_before"`
	MaxFollowupEmails        int `json:"max_followup_emails"`
	MinHoursBetweenFollowups int `json:"min_hours_between_followups"`

	FollowupsEnabled bool `json:"followups_enabled"`
	RemindersEnabled bool `json:"reminders_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultTenantSettings is what applies when a tenant has no settings row.
func DefaultTenantSettings(tenantID uuid.UUID) *TenantSettings {
	return &TenantSettings{
		TenantID:                 tenantID,
		FollowupDelayHours:       48,
		ReminderHoursBefore:      24,
		MaxFollowupEmails:        3,
		MinHoursBetweenFollowups: 24,
		FollowupsEnabled:         true,
		RemindersEnabled:         true,
	}
}
