package interview

import (
	"time"

	"github.com/talentloop/talentloop/internal/db"
)

// SlotMatchTolerance is how far a candidate-supplied timestamp may drift from
// an offered slot and still count as that slot.
const SlotMatchTolerance = 60 * time.Second

// DefaultGracePeriod is how long after the scheduled time an interview stays
// open before the sweeper auto-completes it.
const DefaultGracePeriod = 2 * time.Hour

// MatchSlot finds the offered slot that the chosen timestamp refers to,
// within SlotMatchTolerance. Returns ErrSlotMismatch when nothing matches.
func MatchSlot(iv *db.Interview, chosen time.Time) (db.Slot, error) {
	for _, s := range iv.AvailableSlots {
		d := chosen.Sub(s.StartsAt)
		if d < 0 {
			d = -d
		}
		if d <= SlotMatchTolerance {
			return s, nil
		}
	}
	return db.Slot{}, ErrSlotMismatch
}

// PastDue reports whether the interview's scheduled time plus the grace
// period has elapsed. A pending interview with no scheduled time is never
// past due.
func PastDue(iv *db.Interview, now time.Time, grace time.Duration) bool {
	if iv.Terminal() || iv.ScheduledAt == nil {
		return false
	}
	return now.After(iv.ScheduledAt.Add(grace))
}

// CompletionCutoff is the latest scheduled_at value that PastDue would accept
// at the given time. The repository re-checks it inside the conditional
// update so a concurrent reschedule cannot be clobbered.
func CompletionCutoff(now time.Time, grace time.Duration) time.Time {
	return now.Add(-grace)
}

// CanConfirm reports whether a token-holder may still lock in a slot.
func CanConfirm(iv *db.Interview) bool {
	return iv.Status == db.StatusPending
}

// CanReschedule reports whether the interview holds a confirmed time that
// can be moved.
func CanReschedule(iv *db.Interview) bool {
	return iv.Confirmed()
}
