package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// TopicNotifier publishes alerts to an SNS topic so on-call tooling can
// subscribe without this service knowing who listens.
type TopicNotifier struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewTopicNotifier creates an SNS topic notifier.
func NewTopicNotifier(ctx context.Context, region, topicARN string, logger *zap.Logger) (*TopicNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &TopicNotifier{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger:   logger,
	}, nil
}

// Notify publishes the alert as JSON with kind and tenant attributes for
// subscription filtering.
func (n *TopicNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(alert.Subject),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.Kind),
			},
			"tenant_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.TenantID.String()),
			},
		},
	}

	result, err := n.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish alert to SNS: %w", err)
	}

	n.logger.Debug("alert published",
		zap.String("kind", alert.Kind),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
