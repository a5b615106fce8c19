package notify

import (
	"strings"
	"testing"

	"github.com/talentloop/talentloop/internal/interview"
)

func TestEmailInvitationListsSlots(t *testing.T) {
	r := NewRenderer("https://interviews.example.com/")
	iv := testInterview()

	msg, err := r.Email(iv, interview.KindInvitation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(msg.Subject, iv.JobRole) {
		t.Errorf("subject missing role: %q", msg.Subject)
	}
	for _, s := range iv.AvailableSlots {
		if !strings.Contains(msg.Body, s.Display) {
			t.Errorf("body missing slot %q", s.Display)
		}
	}
	// Trailing slash on the base URL must not double up.
	if !strings.Contains(msg.Body, "https://interviews.example.com/confirm/tok123") {
		t.Errorf("body missing confirmation URL: %q", msg.Body)
	}
}

func TestEmailConfirmationUsesSlotDisplay(t *testing.T) {
	r := NewRenderer("https://interviews.example.com")
	iv := testInterview()

	msg, err := r.Email(iv, interview.KindConfirmation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg.Body, *iv.SelectedSlotDisplay) {
		t.Errorf("confirmation body missing slot display: %q", msg.Body)
	}
}

func TestSMSOnlyForPreReminder(t *testing.T) {
	r := NewRenderer("https://interviews.example.com")
	iv := testInterview()
	phone := "+15550100"
	iv.CandidatePhone = &phone

	msg, err := r.SMS(iv, interview.KindPreReminder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.To != phone || msg.Channel != ChannelSMS {
		t.Errorf("unexpected sms routing: %+v", msg)
	}

	if _, err := r.SMS(iv, interview.KindFollowup); err == nil {
		t.Error("expected error for followup sms")
	}

	iv.CandidatePhone = nil
	if _, err := r.SMS(iv, interview.KindPreReminder); err == nil {
		t.Error("expected error without a phone on file")
	}
}
