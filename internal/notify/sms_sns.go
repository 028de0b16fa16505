package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// SMSProvider sends SMS notifications via AWS SNS.
type SMSProvider struct {
	client *sns.Client
	logger *zap.Logger
}

// SMSConfig configures the SNS SMS provider.
type SMSConfig struct {
	Region string
}

// NewSMSProvider creates a new SNS-backed SMS provider.
func NewSMSProvider(ctx context.Context, cfg SMSConfig, logger *zap.Logger) (*SMSProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SMSProvider{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

func (p *SMSProvider) Channel() string {
	return store.ChannelSMS
}

// Send publishes one SMS. SNS only confirms acceptance, so the result never
// claims delivery.
func (p *SMSProvider) Send(ctx context.Context, recipient, body string) (Result, error) {
	if recipient == "" {
		return Result{}, fmt.Errorf("sms send missing phone number")
	}
	if body == "" {
		return Result{}, fmt.Errorf("sms send missing message body")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(recipient),
		Message:     aws.String(body),
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("sns publish failed: %w", err)
	}

	p.logger.Info("SMS sent via SNS",
		zap.String("phone_number", recipient),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return Result{ExternalID: aws.ToString(result.MessageId)}, nil
}
