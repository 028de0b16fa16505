package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/alerts"
	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// RecordStore is the notification persistence surface the worker pool needs.
type RecordStore interface {
	GetRecord(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*store.NotificationRecord, error)
	MarkProcessing(ctx context.Context, scope tenant.Scope, id uuid.UUID) (bool, error)
	RecordOutcome(ctx context.Context, scope tenant.Scope, id uuid.UUID, status string, attempt int, externalID *string, errMsg *string, nextRetryAt *time.Time) error
	IssueFallback(ctx context.Context, scope tenant.Scope, id uuid.UUID) (bool, error)
	CreateRecord(ctx context.Context, scope tenant.Scope, rec *store.NotificationRecord) (bool, error)
}

// FallbackDirectory is the directory surface needed to decide and build the
// chat-to-SMS fallback.
type FallbackDirectory interface {
	GetTenant(ctx context.Context, scope tenant.Scope) (*store.Tenant, error)
	GetContact(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*store.Contact, error)
}

// MessageCounters keeps the per-message sent and failed counters current.
// Implemented by store.MessageRepository; may be nil.
type MessageCounters interface {
	AddSent(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
	AddFailed(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Workers         int
	ProviderTimeout time.Duration
}

// Pool drives notification delivery: claims records, calls providers,
// schedules retries and issues the single chat-to-SMS fallback.
type Pool struct {
	queue     *Queue
	records   RecordStore
	directory FallbackDirectory
	counters  MessageCounters
	providers map[string]Provider
	retry     RetryPolicy
	alerter   alerts.Notifier
	config    PoolConfig
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewPool creates a worker pool. Providers are keyed by channel.
func NewPool(
	queue *Queue,
	records RecordStore,
	directory FallbackDirectory,
	counters MessageCounters,
	providers map[string]Provider,
	retry RetryPolicy,
	alerter alerts.Notifier,
	cfg PoolConfig,
	logger *zap.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 20 * time.Second
	}

	return &Pool{
		queue:     queue,
		records:   records,
		directory: directory,
		counters:  counters,
		providers: providers,
		retry:     retry,
		alerter:   alerter,
		config:    cfg,
		logger:    logger,
	}
}

// Start launches the workers. They stop when the context is cancelled or the
// queue is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Info("notification worker started", zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping", zap.Int("worker", id))
			return
		case job, ok := <-p.queue.Jobs():
			if !ok {
				return
			}
			p.queue.Done()
			p.process(ctx, job)
		}
	}
}

func (p *Pool) process(ctx context.Context, job Job) {
	scope := tenant.NewScope(job.TenantID)

	rec, err := p.records.GetRecord(ctx, scope, job.RecordID)
	if err != nil {
		p.logger.Error("failed to load notification record",
			zap.Error(err),
			zap.String("record_id", job.RecordID.String()),
		)
		return
	}

	// Claim before sending so a record queued twice (dispatcher plus
	// reclaimer) is still sent once.
	claimed, err := p.records.MarkProcessing(ctx, scope, rec.ID)
	if err != nil {
		p.logger.Error("failed to claim notification record",
			zap.Error(err),
			zap.String("record_id", rec.ID.String()),
		)
		return
	}
	if !claimed {
		return
	}

	provider, ok := p.providers[rec.Channel]
	if !ok {
		errMsg := fmt.Sprintf("no provider for channel %s", rec.Channel)
		p.fail(ctx, scope, rec, rec.Attempt+1, errMsg)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.config.ProviderTimeout)
	result, err := provider.Send(sendCtx, rec.Recipient, rec.Body)
	cancel()

	attempt := rec.Attempt + 1

	if err != nil {
		p.handleFailure(ctx, scope, rec, attempt, err)
		return
	}

	status := store.StatusSent
	if result.Delivered {
		status = store.StatusDelivered
	}

	var externalID *string
	if result.ExternalID != "" {
		externalID = &result.ExternalID
	}

	if err := p.records.RecordOutcome(ctx, scope, rec.ID, status, attempt, externalID, nil, nil); err != nil {
		p.logger.Error("failed to record send outcome",
			zap.Error(err),
			zap.String("record_id", rec.ID.String()),
		)
		return
	}

	if p.counters != nil {
		_ = p.counters.AddSent(ctx, scope, rec.MessageID)
	}

	metrics.RecordNotificationProcessed(status, rec.Channel)
	metrics.RecordNotificationLatency(rec.Channel, time.Since(rec.CreatedAt))

	p.logger.Info("notification sent",
		zap.String("record_id", rec.ID.String()),
		zap.String("channel", rec.Channel),
		zap.String("status", status),
		zap.Int("attempt", attempt),
	)
}

func (p *Pool) handleFailure(ctx context.Context, scope tenant.Scope, rec *store.NotificationRecord, attempt int, sendErr error) {
	p.logger.Error("notification send failed",
		zap.Error(sendErr),
		zap.String("record_id", rec.ID.String()),
		zap.String("channel", rec.Channel),
		zap.Int("attempt", attempt),
	)

	errMsg := sendErr.Error()

	if p.retry.ShouldRetry(attempt) {
		nextRetry := time.Now().Add(p.retry.NextDelay(attempt))
		if err := p.records.RecordOutcome(ctx, scope, rec.ID, store.StatusPending, attempt, nil, &errMsg, &nextRetry); err != nil {
			p.logger.Error("failed to schedule retry",
				zap.Error(err),
				zap.String("record_id", rec.ID.String()),
			)
		}
		return
	}

	p.fail(ctx, scope, rec, attempt, errMsg)
}

// fail marks the record failed permanently, raises an operator alert and
// issues the chat-to-SMS fallback when it applies.
func (p *Pool) fail(ctx context.Context, scope tenant.Scope, rec *store.NotificationRecord, attempt int, errMsg string) {
	if err := p.records.RecordOutcome(ctx, scope, rec.ID, store.StatusFailed, attempt, nil, &errMsg, nil); err != nil {
		p.logger.Error("failed to record permanent failure",
			zap.Error(err),
			zap.String("record_id", rec.ID.String()),
		)
		return
	}

	if p.counters != nil {
		_ = p.counters.AddFailed(ctx, scope, rec.MessageID)
	}

	metrics.RecordNotificationProcessed(store.StatusFailed, rec.Channel)

	if p.alerter != nil {
		_ = p.alerter.Notify(ctx, alerts.Alert{
			Kind:     alerts.KindRetriesExhausted,
			TenantID: scope.TenantID(),
			Subject:  fmt.Sprintf("notification failed permanently on %s", rec.Channel),
			Detail:   fmt.Sprintf("record %s, recipient %s: %s", rec.ID, rec.Recipient, errMsg),
		})
	}

	p.maybeFallback(ctx, scope, rec)
}

// maybeFallback creates an SMS record for a permanently failed chat
// notification. The conditional fallback flag flip bounds this to one hop:
// the fallback SMS itself never falls back, and a second failure of the same
// chat record finds the flag already set.
func (p *Pool) maybeFallback(ctx context.Context, scope tenant.Scope, rec *store.NotificationRecord) {
	if rec.Channel != store.ChannelChat || rec.FallbackOfID != nil {
		return
	}

	t, err := p.directory.GetTenant(ctx, scope)
	if err != nil {
		p.logger.Error("failed to load tenant for fallback decision",
			zap.Error(err),
			zap.String("tenant_id", scope.String()),
		)
		return
	}
	if !t.ChatFallbackEnabled {
		return
	}

	contact, err := p.directory.GetContact(ctx, scope, rec.ContactID)
	if err != nil {
		p.logger.Error("failed to load contact for fallback",
			zap.Error(err),
			zap.String("contact_id", rec.ContactID.String()),
		)
		return
	}
	if contact.Phone == "" {
		p.logger.Info("fallback skipped, contact has no phone",
			zap.String("contact_id", contact.ID.String()),
		)
		return
	}

	issued, err := p.records.IssueFallback(ctx, scope, rec.ID)
	if err != nil {
		p.logger.Error("failed to flip fallback flag",
			zap.Error(err),
			zap.String("record_id", rec.ID.String()),
		)
		return
	}
	if !issued {
		return
	}

	fallback := &store.NotificationRecord{
		MessageID:    rec.MessageID,
		AccountID:    rec.AccountID,
		ContactID:    rec.ContactID,
		Channel:      store.ChannelSMS,
		Recipient:    contact.Phone,
		Body:         rec.Body,
		FallbackOfID: &rec.ID,
	}

	created, err := p.records.CreateRecord(ctx, scope, fallback)
	if err != nil {
		p.logger.Error("failed to create fallback record",
			zap.Error(err),
			zap.String("chat_record_id", rec.ID.String()),
		)
		return
	}
	if !created {
		// An SMS record for this (message, contact) already exists, so the
		// contact is already covered on that channel.
		return
	}

	metrics.RecordFallbackIssued(scope.String())

	p.logger.Info("chat-to-sms fallback issued",
		zap.String("chat_record_id", rec.ID.String()),
		zap.String("sms_record_id", fallback.ID.String()),
	)

	if err := p.queue.Enqueue(Job{TenantID: scope.TenantID(), RecordID: fallback.ID}); err != nil {
		p.logger.Warn("dispatch queue full, fallback deferred to reclaimer",
			zap.String("record_id", fallback.ID.String()),
		)
	}
}
