package alerts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// EmailNotifier mails alerts to the operations inbox via AWS SES.
type EmailNotifier struct {
	client *ses.Client
	from   string
	to     string
	logger *zap.Logger
}

// EmailConfig configures the SES alert mailer.
type EmailConfig struct {
	Region     string
	FromEmail  string
	AdminEmail string
}

// NewEmailNotifier creates an SES-backed alert mailer.
func NewEmailNotifier(ctx context.Context, cfg EmailConfig, logger *zap.Logger) (*EmailNotifier, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &EmailNotifier{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.AdminEmail,
		logger: logger,
	}, nil
}

// Notify sends the alert as a plain-text email.
func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	body := fmt.Sprintf("kind: %s\ntenant: %s\n\n%s\n", alert.Kind, alert.TenantID, alert.Detail)

	input := &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(alert.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	n.logger.Info("alert emailed",
		zap.String("kind", alert.Kind),
		zap.String("to", n.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
