package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewSNSClient loads the default AWS config for region.
func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}
	return sns.NewFromConfig(awsCfg), nil
}

// SNSPublisher fans events out to a topic. Subscribers filter on the
// kind and status message attributes.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
	logger   *zap.Logger
}

// NewSNSPublisher creates a publisher for topicARN.
func NewSNSPublisher(client SNSAPI, topicARN string, logger *zap.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
	}
}

// Publish sends the event to the topic.
func (p *SNSPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	attrs := map[string]types.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(ev.Kind)),
		},
		"user_id": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.FormatInt(ev.Application.UserID, 10)),
		},
	}
	if ev.NewStatus != "" {
		attrs["status"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(string(ev.NewStatus)),
		}
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attrs,
	})
	if err != nil {
		metrics.RecordEventPublished("sns", string(ev.Kind), "error")
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	metrics.RecordEventPublished("sns", string(ev.Kind), "ok")
	p.logger.Debug("event published to sns",
		zap.String("kind", string(ev.Kind)),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
