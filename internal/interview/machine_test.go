package interview

import (
	"errors"
	"testing"
	"time"

	"github.com/talentloop/talentloop/internal/db"
)

func TestMatchSlot(t *testing.T) {
	base := time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC)
	iv := &db.Interview{
		AvailableSlots: db.SlotList{
			{StartsAt: base, Display: "Thursday, March 5 2026 at 11:00 AM"},
			{StartsAt: base.Add(3 * time.Hour), Display: "Thursday, March 5 2026 at 2:00 PM"},
		},
	}

	tests := []struct {
		name      string
		chosen    time.Time
		wantSlot  time.Time
		wantError bool
	}{
		{"exact match", base, base, false},
		{"within tolerance early", base.Add(-30 * time.Second), base, false},
		{"within tolerance late", base.Add(59 * time.Second), base, false},
		{"at tolerance boundary", base.Add(60 * time.Second), base, false},
		{"second slot", base.Add(3 * time.Hour), base.Add(3 * time.Hour), false},
		{"beyond tolerance", base.Add(2 * time.Minute), time.Time{}, true},
		{"unrelated time", base.Add(24 * time.Hour), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := MatchSlot(iv, tt.chosen)
			if tt.wantError {
				if !errors.Is(err, ErrSlotMismatch) {
					t.Errorf("expected ErrSlotMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slot.StartsAt.Equal(tt.wantSlot) {
				t.Errorf("matched %v, want %v", slot.StartsAt, tt.wantSlot)
			}
		})
	}
}

func TestMatchSlotNoSlots(t *testing.T) {
	iv := &db.Interview{}
	if _, err := MatchSlot(iv, time.Now()); !errors.Is(err, ErrSlotMismatch) {
		t.Errorf("expected ErrSlotMismatch for empty slot list, got %v", err)
	}
}

func TestPastDue(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	grace := 2 * time.Hour

	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name     string
		iv       *db.Interview
		expected bool
	}{
		{"no scheduled time", &db.Interview{Status: db.StatusPending}, false},
		{"scheduled in the future", &db.Interview{Status: db.StatusScheduled, ScheduledAt: at(time.Hour)}, false},
		{"inside the grace period", &db.Interview{Status: db.StatusScheduled, ScheduledAt: at(-time.Hour)}, false},
		{"past the grace period", &db.Interview{Status: db.StatusScheduled, ScheduledAt: at(-3 * time.Hour)}, true},
		{"rescheduled past grace", &db.Interview{Status: db.StatusRescheduled, ScheduledAt: at(-3 * time.Hour)}, true},
		{"completed is never past due", &db.Interview{Status: db.StatusCompleted, ScheduledAt: at(-3 * time.Hour)}, false},
		{"cancelled is never past due", &db.Interview{Status: db.StatusCancelled, ScheduledAt: at(-3 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PastDue(tt.iv, now, grace); got != tt.expected {
				t.Errorf("PastDue() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanConfirmAndReschedule(t *testing.T) {
	if !CanConfirm(&db.Interview{Status: db.StatusPending}) {
		t.Error("pending interview should be confirmable")
	}
	if CanConfirm(&db.Interview{Status: db.StatusScheduled}) {
		t.Error("scheduled interview should not be confirmable")
	}

	if !CanReschedule(&db.Interview{Status: db.StatusScheduled}) {
		t.Error("scheduled interview should be reschedulable")
	}
	if !CanReschedule(&db.Interview{Status: db.StatusRescheduled}) {
		t.Error("rescheduled interview should be reschedulable again")
	}
	if CanReschedule(&db.Interview{Status: db.StatusPending}) {
		t.Error("pending interview should not be reschedulable")
	}
}
