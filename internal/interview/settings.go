package interview

import (
	"time"

	"github.com/talentloop/talentloop/internal/db"
)

// Effective is the timing configuration that actually applies to one
// interview: per-interview overrides where set, tenant defaults otherwise.
type Effective struct {
	FollowupDelay       time.Duration
	ReminderBefore      time.Duration
	MaxFollowups        int
	MinBetweenFollowups time.Duration

	FollowupsEnabled bool
	RemindersEnabled bool
}

// ResolveEffective merges an interview's nullable overrides with its tenant's
// defaults. A nil settings argument falls back to the package defaults.
func ResolveEffective(iv *db.Interview, ts *db.TenantSettings) Effective {
	if ts == nil {
		ts = db.DefaultTenantSettings(iv.TenantID)
	}

	eff := Effective{
		FollowupDelay:       time.Duration(ts.FollowupDelayHours) * time.Hour,
		ReminderBefore:      time.Duration(ts.ReminderHoursBefore) * time.Hour,
		MaxFollowups:        ts.MaxFollowupEmails,
		MinBetweenFollowups: time.Duration(ts.MinHoursBetweenFollowups) * time.Hour,
		FollowupsEnabled:    ts.FollowupsEnabled,
		RemindersEnabled:    ts.RemindersEnabled,
	}

	if iv.FollowupDelayHours != nil {
		eff.FollowupDelay = time.Duration(*iv.FollowupDelayHours) * time.Hour
	}
	if iv.ReminderHoursBefore != nil {
		eff.ReminderBefore = time.Duration(*iv.ReminderHoursBefore) * time.Hour
	}
	if iv.MaxFollowupEmails != nil {
		eff.MaxFollowups = *iv.MaxFollowupEmails
	}
	if iv.MinHoursBetweenFollowups != nil {
		eff.MinBetweenFollowups = time.Duration(*iv.MinHoursBetweenFollowups) * time.Hour
	}

	return eff
}
