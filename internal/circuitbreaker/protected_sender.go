package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentloop/talentloop/internal/notify"
)

// ProtectedSender wraps a notify.Sender with a CircuitBreaker. When the
// downstream provider (SES, SNS) starts failing, the circuit opens and sends
// fail fast instead of piling up. A rejected send is an ordinary messaging
// failure to the dispatcher: no bookkeeping, retried on a later sweep pass.
type ProtectedSender struct {
	sender  notify.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender notify.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts to send a message through the circuit breaker.
// If the circuit is open, returns ErrCircuitOpen immediately (fail fast).
func (p *ProtectedSender) Send(ctx context.Context, msg *notify.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected send",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("interview_id", msg.InterviewID.String()),
			zap.String("kind", string(msg.Kind)),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.sender.Send(ctx, msg)
	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.config.Name),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker returns the underlying circuit breaker for monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
