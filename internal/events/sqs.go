package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NewSQSClient loads the default AWS config for region.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// SQSPublisher enqueues events for a Consumer in another process.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string, logger *zap.Logger) *SQSPublisher {
	logger.Info("sqs event publisher initialized",
		zap.String("queue_url", queueURL),
	)

	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish sends the event as a JSON message body.
func (p *SQSPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Kind)),
			},
		},
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		metrics.RecordEventPublished("sqs", string(ev.Kind), "error")
		p.logger.Error("failed to send event to sqs",
			zap.Error(err),
			zap.String("kind", string(ev.Kind)),
			zap.Int64("application_id", ev.Application.ID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	metrics.RecordEventPublished("sqs", string(ev.Kind), "ok")
	p.logger.Debug("event enqueued",
		zap.String("kind", string(ev.Kind)),
		zap.String("sqs_message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// Delivery is a received message awaiting acknowledgement.
type Delivery struct {
	Event         Event
	ReceiptHandle string
}

// SQSConsumer reads events from SQS.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

// NewSQSConsumer creates a consumer for queueURL.
func NewSQSConsumer(client SQSAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Receive long-polls for up to max events. Messages that fail to decode
// are deleted so they do not poison the queue.
func (c *SQSConsumer) Receive(ctx context.Context, max int32) ([]Delivery, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   max,
		WaitTimeSeconds:       20,
		VisibilityTimeout:     60,
		MessageAttributeNames: []string{"All"},
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive failed: %w", err)
	}

	deliveries := make([]Delivery, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var ev Event
		if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &ev); err != nil {
			c.logger.Error("dropping undecodable event",
				zap.Error(err),
				zap.String("sqs_message_id", aws.ToString(msg.MessageId)),
			)
			if delErr := c.Ack(ctx, aws.ToString(msg.ReceiptHandle)); delErr != nil {
				c.logger.Warn("failed to delete undecodable event", zap.Error(delErr))
			}
			continue
		}
		deliveries = append(deliveries, Delivery{
			Event:         ev,
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}

	return deliveries, nil
}

// Ack removes a message from SQS after successful processing.
func (c *SQSConsumer) Ack(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	if _, err := c.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}

	return nil
}
