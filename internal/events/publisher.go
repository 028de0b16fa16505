// Package events publishes ingestion lifecycle events to SQS so downstream
// systems (billing, analytics) can react without querying the pipeline
// database. Publishing is optional and best-effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// Event types.
const (
	TypeMessageIngested  = "message.ingested"
	TypeMessageProcessed = "message.processed"
	TypeMessageIgnored   = "message.ignored"
	TypeMessageFailed    = "message.failed"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Event is the payload sent to SQS.
type Event struct {
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
	MessageID  string `json:"message_id"`
	Sender     string `json:"sender"`
	Status     string `json:"status"`
	OccurredAt int64  `json:"occurred_at"`
}

// Publisher sends lifecycle events to SQS. A nil Publisher is valid and
// drops every event, so callers never need to branch on configuration.
type Publisher struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewPublisher creates a new SQS event publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("event publisher initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Publisher{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Publish sends one lifecycle event for an ingested message.
func (p *Publisher) Publish(ctx context.Context, eventType string, msg *store.IngestedMessage) error {
	if p == nil {
		return nil
	}

	event := Event{
		Type:       eventType,
		TenantID:   msg.TenantID.String(),
		MessageID:  msg.MessageID,
		Sender:     msg.Sender,
		Status:     msg.Status,
		OccurredAt: time.Now().UnixNano(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send event to sqs",
			zap.Error(err),
			zap.String("type", eventType),
			zap.String("message_id", msg.MessageID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("type", eventType),
		zap.String("sqs_message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
