package mailbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/alerts"
	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// Ingestor consumes one fetched envelope. Implemented by the pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, scope tenant.Scope, env *Envelope) error
}

// PollerConfig bounds connection attempts and escalation.
type PollerConfig struct {
	// MaxAttempts is how many consecutive failed polls are tolerated before
	// the operator is alerted.
	MaxAttempts int
}

// Poller polls one tenant's mailbox. One poller exists per enabled mailbox
// config; the schedule registry decides when Poll runs.
type Poller struct {
	cfg      *store.MailboxConfig
	dialer   Dialer
	ingestor Ingestor
	alerter  alerts.Notifier
	config   PollerConfig
	logger   *zap.Logger

	consecutiveFailures int
	escalated           bool
}

// NewPoller creates a poller for one mailbox.
func NewPoller(cfg *store.MailboxConfig, dialer Dialer, ingestor Ingestor, alerter alerts.Notifier, pollerCfg PollerConfig, logger *zap.Logger) *Poller {
	if pollerCfg.MaxAttempts <= 0 {
		pollerCfg.MaxAttempts = 3
	}

	return &Poller{
		cfg:      cfg,
		dialer:   dialer,
		ingestor: ingestor,
		alerter:  alerter,
		config:   pollerCfg,
		logger: logger.With(
			zap.String("tenant_id", cfg.TenantID.String()),
			zap.String("mailbox_host", cfg.Host),
		),
	}
}

// TenantID returns the owning tenant.
func (p *Poller) TenantID() tenant.Scope {
	return tenant.NewScope(p.cfg.TenantID)
}

// Poll runs one poll cycle: connect, fetch unseen, ingest each, then mark
// only the successfully recorded ones as seen.
func (p *Poller) Poll(ctx context.Context) error {
	scope := tenant.NewScope(p.cfg.TenantID)

	err := p.pollOnce(ctx, scope)
	if err != nil {
		p.consecutiveFailures++
		metrics.RecordPoll(scope.String(), "error")
		p.logger.Error("mailbox poll failed",
			zap.Error(err),
			zap.Int("consecutive_failures", p.consecutiveFailures),
		)

		if p.consecutiveFailures >= p.config.MaxAttempts && !p.escalated {
			p.escalated = true
			metrics.RecordPoll(scope.String(), "escalated")
			if p.alerter != nil {
				_ = p.alerter.Notify(ctx, alerts.Alert{
					Kind:     alerts.KindMailboxFailure,
					TenantID: p.cfg.TenantID,
					Subject:  fmt.Sprintf("mailbox %s unreachable", p.cfg.Host),
					Detail:   fmt.Sprintf("%d consecutive poll failures, last error: %v", p.consecutiveFailures, err),
				})
			}
		}
		return err
	}

	p.consecutiveFailures = 0
	p.escalated = false
	metrics.RecordPoll(scope.String(), "ok")
	return nil
}

func (p *Poller) pollOnce(ctx context.Context, scope tenant.Scope) error {
	client, err := p.dialer.Dial(ctx, p.cfg)
	if err != nil {
		return fmt.Errorf("dial mailbox: %w", err)
	}
	defer client.Close()

	envelopes, err := client.FetchUnseen(ctx)
	if err != nil {
		return fmt.Errorf("fetch unseen: %w", err)
	}
	if len(envelopes) == 0 {
		return nil
	}

	start := time.Now()
	var ingested []uint32
	for _, env := range envelopes {
		if err := p.ingestor.Ingest(ctx, scope, env); err != nil {
			// Leave the message unseen; the next poll retries it and the
			// (tenant_id, message_id) constraint absorbs any partial work.
			p.logger.Error("failed to ingest message",
				zap.Error(err),
				zap.String("imap_message_id", env.MessageID),
			)
			continue
		}
		ingested = append(ingested, env.SeqNum)
	}

	if err := client.MarkSeen(ctx, ingested); err != nil {
		// Recorded but not consumed. The next poll re-fetches these and the
		// ingest becomes a duplicate no-op.
		return fmt.Errorf("mark seen: %w", err)
	}

	p.logger.Info("mailbox poll complete",
		zap.Int("fetched", len(envelopes)),
		zap.Int("ingested", len(ingested)),
		zap.Duration("took", time.Since(start)),
	)

	return nil
}
