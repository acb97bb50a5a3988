package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

// SESAPI is the subset of the SES client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESConfig struct {
	Region    string
	FromEmail string
	FromName  string
}

// SESChannel sends email via AWS SES.
type SESChannel struct {
	client SESAPI
	from   string
	logger *zap.Logger
}

// NewSESClient loads the default AWS config for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return ses.NewFromConfig(awsCfg), nil
}

func NewSESChannel(client SESAPI, cfg SESConfig, logger *zap.Logger) *SESChannel {
	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return &SESChannel{
		client: client,
		from:   from,
		logger: logger,
	}
}

func (c *SESChannel) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	start := time.Now()
	result, err := c.client.SendEmail(ctx, input)
	metrics.RecordEmailLatency(c.Name(), time.Since(start))
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	c.logger.Info("email sent via SES",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", msg.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

func (c *SESChannel) Name() string { return "ses" }
