// Package delivery sends rendered notification emails through an external
// provider. Every channel is best effort: callers treat any returned error
// as a failed attempt and never retry here.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To             string
	ToName         string
	Subject        string
	HTML           string
	Text           string
	Template       Template
	NotificationID string
}

// Channel is an outbound email transport.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// ErrInvalidMessage marks a message rejected before reaching the provider.
var ErrInvalidMessage = errors.New("invalid message")

var errNoRecipient = fmt.Errorf("%w: no recipient", ErrInvalidMessage)

func validate(msg Message) error {
	if msg.To == "" {
		return errNoRecipient
	}
	if msg.Subject == "" {
		return fmt.Errorf("%w: no subject", ErrInvalidMessage)
	}
	if msg.HTML == "" && msg.Text == "" {
		return fmt.Errorf("%w: no body", ErrInvalidMessage)
	}
	return nil
}

// LogChannel logs messages instead of sending them (for development)
type LogChannel struct {
	logger *zap.Logger
}

func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	c.logger.Info("logging email (development mode)",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template.String()),
	)
	return nil
}

func (c *LogChannel) Name() string { return "log" }
