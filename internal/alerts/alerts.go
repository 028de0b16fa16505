// Package alerts delivers operator notifications: unmatched senders,
// repeated mailbox failures, exhausted notification retries. Alerts are
// best-effort; a failed alert never fails the operation that raised it.
package alerts

import (
	"context"

	"github.com/google/uuid"

	"github.com/orderpulse/orderpulse/internal/metrics"
)

// Alert kinds.
const (
	KindUnmatchedSender  = "unmatched_sender"
	KindMailboxFailure   = "mailbox_failure"
	KindRetriesExhausted = "retries_exhausted"
	KindPipelinePanic    = "pipeline_panic"
	KindQueueSaturated   = "queue_saturated"
)

// Alert is one operator notification.
type Alert struct {
	Kind     string    `json:"kind"`
	TenantID uuid.UUID `json:"tenant_id"`
	Subject  string    `json:"subject"`
	Detail   string    `json:"detail"`
}

// Notifier delivers an alert to one destination.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Multi fans an alert out to every configured destination. Failures are
// collected per destination and do not stop the others.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	var kept []Notifier
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return &Multi{notifiers: kept}
}

// Notify delivers to all destinations and reports the alert metric once.
func (m *Multi) Notify(ctx context.Context, alert Alert) error {
	metrics.RecordAdminAlert(alert.Kind)

	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
