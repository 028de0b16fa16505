package alerts

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes alerts to the structured log. Always configured, so an
// alert is visible even when no external destination is set up.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Warn("operator alert",
		zap.String("kind", alert.Kind),
		zap.String("tenant_id", alert.TenantID.String()),
		zap.String("subject", alert.Subject),
		zap.String("detail", alert.Detail),
	)
	return nil
}
