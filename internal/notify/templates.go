package notify

import (
	"fmt"
	"strings"

	"github.com/talentloop/talentloop/internal/db"
	"github.com/talentloop/talentloop/internal/interview"
)

const scheduledAtLayout = "Monday, January 2 2006 at 3:04 PM"

// Renderer turns a (interview, kind) pair into concrete messages. Template
// selection is keyed by kind; the confirmation URL embeds the token.
type Renderer struct {
	confirmBaseURL string
}

func NewRenderer(confirmBaseURL string) *Renderer {
	return &Renderer{confirmBaseURL: strings.TrimRight(confirmBaseURL, "/")}
}

// ConfirmURL is the candidate-facing slot selection link for an interview.
func (r *Renderer) ConfirmURL(iv *db.Interview) string {
	return fmt.Sprintf("%s/confirm/%s", r.confirmBaseURL, iv.ConfirmationToken)
}

// Email renders the email leg of a notification.
func (r *Renderer) Email(iv *db.Interview, kind interview.Kind) (*Message, error) {
	msg := &Message{
		InterviewID: iv.ID,
		Kind:        kind,
		Channel:     ChannelEmail,
		To:          iv.CandidateEmail,
	}

	switch kind {
	case interview.KindInvitation:
		msg.Subject = fmt.Sprintf("Interview invitation: %s", iv.JobRole)
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYou have been invited to a %s interview for the %s role.\n\nAvailable times:\n%s\nPick the time that works for you: %s\n",
			iv.CandidateName, iv.Medium, iv.JobRole, slotLines(iv.AvailableSlots), r.ConfirmURL(iv))
	case interview.KindFollowup:
		msg.Subject = fmt.Sprintf("Reminder: pick a time for your %s interview", iv.JobRole)
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nWe have not heard back about your %s interview yet. These times are still open:\n%s\nConfirm here: %s\n",
			iv.CandidateName, iv.JobRole, slotLines(iv.AvailableSlots), r.ConfirmURL(iv))
	case interview.KindConfirmation:
		msg.Subject = fmt.Sprintf("Interview confirmed: %s", iv.JobRole)
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nYour %s interview for the %s role is confirmed for %s.\n\nSee you then!\n",
			iv.CandidateName, iv.Medium, iv.JobRole, scheduledDisplay(iv))
	case interview.KindPreReminder:
		msg.Subject = fmt.Sprintf("Your %s interview is coming up", iv.JobRole)
		msg.Body = fmt.Sprintf(
			"Hi %s,\n\nA quick reminder that your %s interview for the %s role is scheduled for %s.\n",
			iv.CandidateName, iv.Medium, iv.JobRole, scheduledDisplay(iv))
	default:
		return nil, fmt.Errorf("no email template for kind: %s", kind)
	}

	return msg, nil
}

// SMS renders the short SMS leg of a notification, for candidates with a
// phone on file. Only the pre-interview reminder has an SMS leg.
func (r *Renderer) SMS(iv *db.Interview, kind interview.Kind) (*Message, error) {
	if iv.CandidatePhone == nil || *iv.CandidatePhone == "" {
		return nil, fmt.Errorf("no phone on file for interview %s", iv.ID)
	}
	if kind != interview.KindPreReminder {
		return nil, fmt.Errorf("no sms template for kind: %s", kind)
	}

	return &Message{
		InterviewID: iv.ID,
		Kind:        kind,
		Channel:     ChannelSMS,
		To:          *iv.CandidatePhone,
		Body: fmt.Sprintf("Reminder: your %s interview is scheduled for %s.",
			iv.JobRole, scheduledDisplay(iv)),
	}, nil
}

func slotLines(slots db.SlotList) string {
	var b strings.Builder
	for _, s := range slots {
		fmt.Fprintf(&b, "  - %s\n", s.Display)
	}
	return b.String()
}

func scheduledDisplay(iv *db.Interview) string {
	if iv.SelectedSlotDisplay != nil && *iv.SelectedSlotDisplay != "" {
		return *iv.SelectedSlotDisplay
	}
	if iv.ScheduledAt != nil {
		return iv.ScheduledAt.Format(scheduledAtLayout)
	}
	return "the scheduled time"
}
