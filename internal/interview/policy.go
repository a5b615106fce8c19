package interview

import (
	"time"

	"github.com/talentloop/talentloop/internal/db"
)

// Kind identifies which logical notification is due for an interview.
type Kind string

const (
	KindNone         Kind = "none"
	KindInvitation   Kind = "invitation"
	KindFollowup     Kind = "followup"
	KindPreReminder  Kind = "pre_reminder"
	KindConfirmation Kind = "confirmation"
)

// ReminderWindow is the tolerance around the ideal reminder time. The sweeper
// runs at a coarser cadence than the reminder granularity, so a pass that
// lands anywhere inside the window sends the reminder.
const ReminderWindow = 2 * time.Hour

// Decide returns the single notification due for the interview at the given
// time, or KindNone. Rules are evaluated in order and the first match wins;
// the function is pure so both sweep triggers and tests evaluate identically.
func Decide(iv *db.Interview, ts *db.TenantSettings, now time.Time) Kind {
	if iv.Terminal() {
		return KindNone
	}

	eff := ResolveEffective(iv, ts)

	if iv.Status == db.StatusPending {
		// A pending interview whose scheduled time already passed is the
		// auto-completion rule's problem, not a notification.
		if iv.ScheduledAt != nil && iv.ScheduledAt.Before(now) {
			return KindNone
		}

		// The creation-time invitation send failed; retry it before any
		// follow-up chain can start.
		if iv.InvitationSentAt == nil {
			return KindInvitation
		}

		if !eff.FollowupsEnabled {
			return KindNone
		}
		if now.Sub(*iv.InvitationSentAt) < eff.FollowupDelay {
			return KindNone
		}
		if iv.FollowupCount >= eff.MaxFollowups {
			return KindNone
		}
		if iv.LastFollowupSentAt != nil && now.Sub(*iv.LastFollowupSentAt) < eff.MinBetweenFollowups {
			return KindNone
		}
		return KindFollowup
	}

	if iv.Confirmed() && iv.ScheduledAt != nil && iv.ScheduledAt.After(now) && iv.PreReminderSentAt == nil {
		if !eff.RemindersEnabled {
			return KindNone
		}
		target := iv.ScheduledAt.Add(-eff.ReminderBefore)
		d := now.Sub(target)
		if d < 0 {
			d = -d
		}
		if d <= ReminderWindow {
			return KindPreReminder
		}
	}

	return KindNone
}
