package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/interview"
)

// Channel constants
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is one rendered notification ready for transport.
type Message struct {
	InterviewID uuid.UUID
	Kind        interview.Kind
	Channel     string
	To          string
	Subject     string
	Body        string
}

// Sender is the unified interface for outbound message transports.
// Implementations: Email (SES), SMS (SNS), and LogSender for development.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	SupportsChannel(channel string) bool
}

// LogSender logs messages instead of sending them (development/tests).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.Info("message sent",
		zap.String("interview_id", msg.InterviewID.String()),
		zap.String("kind", string(msg.Kind)),
		zap.String("channel", msg.Channel),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	return true
}

// MultiSender routes each message to the first sender that supports its channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders, logger: logger}
}

func (m *MultiSender) Send(ctx context.Context, msg *Message) error {
	for _, s := range m.senders {
		if s.SupportsChannel(msg.Channel) {
			return s.Send(ctx, msg)
		}
	}
	return fmt.Errorf("no sender for channel: %s", msg.Channel)
}

func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, s := range m.senders {
		if s.SupportsChannel(channel) {
			return true
		}
	}
	return false
}
