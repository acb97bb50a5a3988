package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPChannel sends email through an SMTP relay.
type SMTPChannel struct {
	dialer   Sender
	from     string
	fromName string
	logger   *zap.Logger
}

func NewSMTPChannel(cfg SMTPConfig, logger *zap.Logger) *SMTPChannel {
	return NewSMTPChannelWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg, logger)
}

func NewSMTPChannelWithSender(dialer Sender, cfg SMTPConfig, logger *zap.Logger) *SMTPChannel {
	return &SMTPChannel{
		dialer:   dialer,
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
		logger:   logger,
	}
}

func (c *SMTPChannel) buildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", c.from, c.fromName)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	if msg.NotificationID != "" {
		m.SetHeader("X-Notification-ID", msg.NotificationID)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

// Send dials per message. gomail has no context support, so a cancelled
// context is only honoured before dialing.
func (c *SMTPChannel) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := c.dialer.DialAndSend(c.buildMessage(msg))
	metrics.RecordEmailLatency(c.Name(), time.Since(start))
	if err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	c.logger.Info("email sent via SMTP",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", msg.To),
	)
	return nil
}

func (c *SMTPChannel) Name() string { return "smtp" }
