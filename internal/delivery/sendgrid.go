package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

const defaultSendGridHost = "https://api.sendgrid.com"

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host; empty means SendGrid's public API.
	Host string
}

// SendGridChannel sends email through the SendGrid v3 mail API.
type SendGridChannel struct {
	cfg    SendGridConfig
	logger *zap.Logger
}

func NewSendGridChannel(cfg SendGridConfig, logger *zap.Logger) *SendGridChannel {
	if cfg.Host == "" {
		cfg.Host = defaultSendGridHost
	}
	return &SendGridChannel{cfg: cfg, logger: logger}
}

func (c *SendGridChannel) buildMail(msg Message) *mail.SGMailV3 {
	from := mail.NewEmail(c.cfg.FromName, c.cfg.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	m := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	if msg.NotificationID != "" && len(m.Personalizations) > 0 {
		m.Personalizations[0].SetCustomArg("notification_id", msg.NotificationID)
	}
	return m
}

func (c *SendGridChannel) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	request := sendgrid.GetRequest(c.cfg.APIKey, "/v3/mail/send", c.cfg.Host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(c.buildMail(msg))

	start := time.Now()
	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	metrics.RecordEmailLatency(c.Name(), time.Since(start))
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}

	c.logger.Info("email sent via SendGrid",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", msg.To),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

func (c *SendGridChannel) Name() string { return "sendgrid" }
