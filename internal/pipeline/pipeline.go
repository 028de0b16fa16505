// Package pipeline drives an inbound email through the ingestion state
// machine: received, matched, processed, with ignored and failed as side
// exits. Every step is idempotent, so replaying a message after a partial
// failure converges instead of duplicating work.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/alerts"
	"github.com/orderpulse/orderpulse/internal/delivery"
	"github.com/orderpulse/orderpulse/internal/events"
	"github.com/orderpulse/orderpulse/internal/mailbox"
	"github.com/orderpulse/orderpulse/internal/match"
	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// MessageStore is the ingestion persistence surface.
type MessageStore interface {
	InsertIngested(ctx context.Context, scope tenant.Scope, msg *store.IngestedMessage) (bool, error)
	SetMatched(ctx context.Context, scope tenant.Scope, id, accountID uuid.UUID) error
	UpdateStatus(ctx context.Context, scope tenant.Scope, id uuid.UUID, status string, errMsg *string) error
	RecordError(ctx context.Context, scope tenant.Scope, id uuid.UUID, errMsg string) error
}

// RuleReader loads delivery rules and holidays.
type RuleReader interface {
	GetDeliveryRule(ctx context.Context, scope tenant.Scope, regionCode string) (*store.DeliveryRule, error)
	ListHolidays(ctx context.Context, scope tenant.Scope) ([]*store.Holiday, error)
}

// Matcher resolves senders to accounts.
type Matcher interface {
	Match(ctx context.Context, scope tenant.Scope, rawSender string) (*store.Account, error)
}

// Deduper is the optional fast-path duplicate filter. The database unique
// constraint is the real guarantee.
type Deduper interface {
	IsNew(ctx context.Context, scope tenant.Scope, messageID string) (bool, error)
	Forget(ctx context.Context, scope tenant.Scope, messageID string) error
}

// Dispatcher fans a processed message out into notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, scope tenant.Scope, msg *store.IngestedMessage, account *store.Account, commitment delivery.Commitment) (int, error)
}

// EventPublisher emits lifecycle events. A nil *events.Publisher satisfies
// this and drops everything.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, msg *store.IngestedMessage) error
}

// Pipeline wires the ingestion steps together. It implements
// mailbox.Ingestor.
type Pipeline struct {
	messages   MessageStore
	rules      RuleReader
	matcher    Matcher
	dedup      Deduper
	dispatcher Dispatcher
	publisher  EventPublisher
	alerter    alerts.Notifier
	logger     *zap.Logger
}

// New creates a pipeline. dedup, publisher and alerter may be nil.
func New(
	messages MessageStore,
	rules RuleReader,
	matcher Matcher,
	dedup Deduper,
	dispatcher Dispatcher,
	publisher EventPublisher,
	alerter alerts.Notifier,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		messages:   messages,
		rules:      rules,
		matcher:    matcher,
		dedup:      dedup,
		dispatcher: dispatcher,
		publisher:  publisher,
		alerter:    alerter,
		logger:     logger,
	}
}

// Ingest processes one fetched envelope end to end. A nil return tells the
// poller the message may be marked seen; an error leaves it unseen for the
// next poll.
func (p *Pipeline) Ingest(ctx context.Context, scope tenant.Scope, env *mailbox.Envelope) (err error) {
	if scopeErr := scope.Validate(); scopeErr != nil {
		return scopeErr
	}

	msg := &store.IngestedMessage{
		MessageID:     env.MessageID,
		Sender:        env.Sender,
		Subject:       env.Subject,
		ReceivedAt:    env.ReceivedAt,
		HasAttachment: env.HasAttachment,
	}

	// A panic anywhere downstream must not take the poller down with it.
	// The message is marked failed and the poller moves on.
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic recovered",
				zap.Any("panic", r),
				zap.String("tenant_id", scope.String()),
				zap.String("message_id", env.MessageID),
			)
			errMsg := fmt.Sprintf("pipeline panic: %v", r)
			if msg.ID != uuid.Nil {
				_ = p.messages.UpdateStatus(ctx, scope, msg.ID, store.MessageFailed, &errMsg)
				metrics.RecordMessageIngested(scope.String(), store.MessageFailed)
				p.publish(ctx, events.TypeMessageFailed, msg)
			}
			if p.alerter != nil {
				_ = p.alerter.Notify(ctx, alerts.Alert{
					Kind:     alerts.KindPipelinePanic,
					TenantID: scope.TenantID(),
					Subject:  "ingestion pipeline panicked",
					Detail:   errMsg,
				})
			}
			err = nil
		}
	}()

	if p.dedup != nil {
		isNew, dedupErr := p.dedup.IsNew(ctx, scope, env.MessageID)
		if dedupErr != nil {
			// Cache trouble is not worth blocking mail on; fall through to
			// the database constraint.
			p.logger.Warn("dedup cache unavailable", zap.Error(dedupErr))
		} else if !isNew {
			metrics.RecordDuplicateSkipped()
			return nil
		}
	}

	created, insertErr := p.messages.InsertIngested(ctx, scope, msg)
	if insertErr != nil {
		if p.dedup != nil {
			// Unblock the retry: the cache says seen but nothing durable
			// exists yet.
			_ = p.dedup.Forget(ctx, scope, env.MessageID)
		}
		return fmt.Errorf("insert ingested message: %w", insertErr)
	}
	if !created {
		metrics.RecordDuplicateSkipped()
		return nil
	}

	p.publish(ctx, events.TypeMessageIngested, msg)

	account, matchErr := p.matcher.Match(ctx, scope, env.Sender)
	if errors.Is(matchErr, match.ErrNoMatch) {
		return p.ignore(ctx, scope, msg, matchErr.Error())
	}
	if matchErr != nil {
		return p.fail(ctx, scope, msg, fmt.Errorf("match sender: %w", matchErr))
	}

	if err := p.messages.SetMatched(ctx, scope, msg.ID, account.ID); err != nil {
		return p.fail(ctx, scope, msg, fmt.Errorf("set matched: %w", err))
	}
	msg.Status = store.MessageMatched
	msg.AccountID = &account.ID

	rule, ruleErr := p.rules.GetDeliveryRule(ctx, scope, account.RegionCode)
	if errors.Is(ruleErr, store.ErrNotFound) {
		// Matched but undeliverable until the tenant configures the region.
		// The message parks in matched with the reason recorded.
		reason := fmt.Sprintf("no delivery rule for region %s", account.RegionCode)
		_ = p.messages.RecordError(ctx, scope, msg.ID, reason)
		p.logger.Warn("message parked, missing delivery rule",
			zap.String("tenant_id", scope.String()),
			zap.String("message_id", env.MessageID),
			zap.String("region_code", account.RegionCode),
		)
		metrics.RecordMessageIngested(scope.String(), store.MessageMatched)
		return nil
	}
	if ruleErr != nil {
		return p.fail(ctx, scope, msg, fmt.Errorf("load delivery rule: %w", ruleErr))
	}

	var holidays []*store.Holiday
	if rule.ExcludeHolidays {
		holidays, err = p.rules.ListHolidays(ctx, scope)
		if err != nil {
			return p.fail(ctx, scope, msg, fmt.Errorf("list holidays: %w", err))
		}
	}

	commitment, calcErr := p.calculate(ctx, scope, msg, rule, holidays)
	if calcErr != nil || commitment == nil {
		return calcErr
	}

	if _, err := p.dispatcher.Dispatch(ctx, scope, msg, account, *commitment); err != nil {
		return p.fail(ctx, scope, msg, fmt.Errorf("dispatch notifications: %w", err))
	}

	if err := p.messages.UpdateStatus(ctx, scope, msg.ID, store.MessageProcessed, nil); err != nil {
		return p.fail(ctx, scope, msg, fmt.Errorf("mark processed: %w", err))
	}
	msg.Status = store.MessageProcessed

	metrics.RecordMessageIngested(scope.String(), store.MessageProcessed)
	p.publish(ctx, events.TypeMessageProcessed, msg)

	p.logger.Info("message processed",
		zap.String("tenant_id", scope.String()),
		zap.String("message_id", env.MessageID),
		zap.String("account_id", account.ID.String()),
		zap.Time("delivery_date", commitment.Date),
	)

	return nil
}

// calculate computes the commitment, parking the message in matched when the
// rule configuration cannot produce a date. A nil commitment with nil error
// means parked.
func (p *Pipeline) calculate(ctx context.Context, scope tenant.Scope, msg *store.IngestedMessage, rule *store.DeliveryRule, holidays []*store.Holiday) (*delivery.Commitment, error) {
	commitment, err := delivery.Compute(msg.ReceivedAt, rule, holidays)
	if err == nil {
		return &commitment, nil
	}

	// Every Compute failure is a rule configuration problem, not a
	// transient one, so retrying the message is pointless.
	reason := fmt.Sprintf("delivery date calculation failed: %v", err)
	_ = p.messages.RecordError(ctx, scope, msg.ID, reason)
	p.logger.Warn("message parked, delivery rule misconfigured",
		zap.Error(err),
		zap.String("tenant_id", scope.String()),
		zap.String("message_id", msg.MessageID),
		zap.String("region_code", rule.RegionCode),
	)
	metrics.RecordMessageIngested(scope.String(), store.MessageMatched)
	return nil, nil
}

// ignore marks the message ignored and raises the one unmatched-sender alert.
func (p *Pipeline) ignore(ctx context.Context, scope tenant.Scope, msg *store.IngestedMessage, reason string) error {
	if err := p.messages.UpdateStatus(ctx, scope, msg.ID, store.MessageIgnored, &reason); err != nil {
		return fmt.Errorf("mark ignored: %w", err)
	}
	msg.Status = store.MessageIgnored

	metrics.RecordMessageIngested(scope.String(), store.MessageIgnored)
	p.publish(ctx, events.TypeMessageIgnored, msg)

	if p.alerter != nil {
		_ = p.alerter.Notify(ctx, alerts.Alert{
			Kind:     alerts.KindUnmatchedSender,
			TenantID: scope.TenantID(),
			Subject:  "email from unregistered sender",
			Detail:   fmt.Sprintf("sender %s, subject %q: %s", msg.Sender, msg.Subject, reason),
		})
	}

	return nil
}

func (p *Pipeline) fail(ctx context.Context, scope tenant.Scope, msg *store.IngestedMessage, cause error) error {
	errMsg := cause.Error()
	if err := p.messages.UpdateStatus(ctx, scope, msg.ID, store.MessageFailed, &errMsg); err != nil {
		p.logger.Error("failed to mark message failed",
			zap.Error(err),
			zap.String("message_id", msg.MessageID),
		)
	}
	msg.Status = store.MessageFailed

	metrics.RecordMessageIngested(scope.String(), store.MessageFailed)
	p.publish(ctx, events.TypeMessageFailed, msg)

	return cause
}

func (p *Pipeline) publish(ctx context.Context, eventType string, msg *store.IngestedMessage) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, msg); err != nil {
		p.logger.Warn("failed to publish lifecycle event",
			zap.Error(err),
			zap.String("type", eventType),
		)
	}
}
