package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/delivery"
)

// ProtectedChannel wraps a delivery.Channel with a Breaker. While the
// breaker is open, Send fails immediately with ErrCircuitOpen.
//
// Only provider failures count against the breaker. A message rejected by
// validation, a send held back by a rate limiter, or a send abandoned
// because the caller's context ended is not the provider's fault.
type ProtectedChannel struct {
	channel delivery.Channel
	breaker *Breaker
	logger  *zap.Logger
}

func NewProtectedChannel(channel delivery.Channel, breaker *Breaker, logger *zap.Logger) *ProtectedChannel {
	return &ProtectedChannel{
		channel: channel,
		breaker: breaker,
		logger:  logger,
	}
}

func (p *ProtectedChannel) Send(ctx context.Context, msg delivery.Message) error {
	if err := p.breaker.Allow(); err != nil {
		p.logger.Warn("email skipped, channel circuit open",
			zap.String("channel", p.channel.Name()),
			zap.String("notification_id", msg.NotificationID),
		)
		return fmt.Errorf("%s: %w", p.channel.Name(), err)
	}

	err := p.channel.Send(ctx, msg)
	switch {
	case err == nil:
		p.breaker.Success()
	case errors.Is(err, delivery.ErrInvalidMessage), errors.Is(err, delivery.ErrThrottled), ctx.Err() != nil:
		p.breaker.Release()
	default:
		p.breaker.Failure()
	}
	return err
}

func (p *ProtectedChannel) Name() string {
	return p.channel.Name()
}
