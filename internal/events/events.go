// Package events carries the explicit interview lifecycle events. Callers
// fire them deliberately after a successful mutation; each event is posted to
// the configured webhook consumer and pokes the sweeper for an immediate
// re-evaluation.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/db"
)

// Event names delivered to the webhook consumer.
const (
	EventCreated     = "interview.created"
	EventConfirmed   = "interview.confirmed"
	EventRescheduled = "interview.rescheduled"
	EventCancelled   = "interview.cancelled"
)

// Poker triggers an immediate sweep pass.
type Poker interface {
	Poke()
}

// Config holds webhook delivery settings. An empty URL disables delivery;
// events still poke the sweeper.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

// payload is the JSON body posted for every event.
type payload struct {
	Event       string    `json:"event"`
	InterviewID string    `json:"interview_id"`
	TenantID    string    `json:"tenant_id"`
	Status      string    `json:"status"`
	JobRole     string    `json:"job_role"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier fires lifecycle events.
type Notifier struct {
	url    string
	client *http.Client
	poker  Poker
	logger *zap.Logger
}

func NewNotifier(cfg Config, poker Poker, logger *zap.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Notifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		poker:  poker,
		logger: logger,
	}
}

// Created fires after a scheduling request produced a pending interview.
func (n *Notifier) Created(ctx context.Context, iv *db.Interview) {
	n.fire(ctx, EventCreated, iv)
}

// Confirmed fires after a candidate locked in a slot.
func (n *Notifier) Confirmed(ctx context.Context, iv *db.Interview) {
	n.fire(ctx, EventConfirmed, iv)
}

// Rescheduled fires after a confirmed interview moved to a new time.
func (n *Notifier) Rescheduled(ctx context.Context, iv *db.Interview) {
	n.fire(ctx, EventRescheduled, iv)
}

// Cancelled fires after an interview was cancelled.
func (n *Notifier) Cancelled(ctx context.Context, iv *db.Interview) {
	n.fire(ctx, EventCancelled, iv)
}

// fire delivers the event best effort and pokes the sweeper. Delivery
// failures are logged, never surfaced: events are advisory, the state change
// already committed.
func (n *Notifier) fire(ctx context.Context, event string, iv *db.Interview) {
	if n.poker != nil {
		n.poker.Poke()
	}

	if n.url == "" {
		return
	}

	if err := n.post(ctx, event, iv); err != nil {
		n.logger.Warn("lifecycle event delivery failed",
			zap.Error(err),
			zap.String("event", event),
			zap.String("interview_id", iv.ID.String()),
		)
		return
	}

	n.logger.Debug("lifecycle event delivered",
		zap.String("event", event),
		zap.String("interview_id", iv.ID.String()),
	)
}

func (n *Notifier) post(ctx context.Context, event string, iv *db.Interview) error {
	body, err := json.Marshal(payload{
		Event:       event,
		InterviewID: iv.ID.String(),
		TenantID:    iv.TenantID.String(),
		Status:      iv.Status,
		JobRole:     iv.JobRole,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Talentloop/1.0.0")
	req.Header.Set("X-Talentloop-Event", event)
	req.Header.Set("X-Talentloop-Interview-ID", iv.ID.String())

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("event request failed: %w", err)
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("event webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(preview))
	}

	return nil
}
