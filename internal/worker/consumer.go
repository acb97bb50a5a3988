package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/events"
)

// Queue is the receiving side of the event queue.
type Queue interface {
	Receive(ctx context.Context, max int32) ([]events.Delivery, error)
	Ack(ctx context.Context, receiptHandle string) error
}

type ConsumerConfig struct {
	BatchSize    int32
	ErrorBackoff time.Duration
}

// Consumer feeds queued events to a handler. A message is acknowledged only
// after the handler succeeds, so a failed notification write is redelivered.
type Consumer struct {
	queue   Queue
	handler events.Handler
	config  ConsumerConfig
	logger  *zap.Logger
}

func NewConsumer(queue Queue, handler events.Handler, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}

	return &Consumer{
		queue:   queue,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.logger.Info("event consumer stopping")
			return
		}

		if err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to receive events", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.config.ErrorBackoff):
			}
		}
	}
}

// Poll receives one batch and handles it. It returns only receive errors.
func (c *Consumer) Poll(ctx context.Context) error {
	deliveries, err := c.queue.Receive(ctx, c.config.BatchSize)
	if err != nil {
		return err
	}

	for _, d := range deliveries {
		if err := c.handler.Handle(ctx, d.Event); err != nil {
			c.logger.Error("failed to handle event, leaving for redelivery",
				zap.Error(err),
				zap.String("kind", string(d.Event.Kind)),
				zap.Int64("application_id", d.Event.Application.ID),
			)
			continue
		}

		if err := c.queue.Ack(ctx, d.ReceiptHandle); err != nil {
			c.logger.Warn("failed to ack event",
				zap.Error(err),
				zap.String("kind", string(d.Event.Kind)),
				zap.Int64("application_id", d.Event.Application.ID),
			)
		}
	}

	return nil
}
