package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// DueLister reads pending records whose retry time has elapsed.
type DueLister interface {
	ListDue(ctx context.Context, limit int) ([]*store.NotificationRecord, error)
}

// ReclaimerConfig configures the reclaim loop.
type ReclaimerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Reclaimer re-queues due pending records: scheduled retries, jobs dropped
// when the queue was full, and jobs lost to a crash before processing. It is
// what makes the in-memory queue safe to lose.
type Reclaimer struct {
	records DueLister
	queue   *Queue
	config  ReclaimerConfig
	logger  *zap.Logger
}

// NewReclaimer creates a reclaimer.
func NewReclaimer(records DueLister, queue *Queue, cfg ReclaimerConfig, logger *zap.Logger) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Reclaimer{
		records: records,
		queue:   queue,
		config:  cfg,
		logger:  logger,
	}
}

// Run blocks until the context is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reclaimer stopping")
			return
		case <-ticker.C:
			r.reclaim(ctx)
		}
	}
}

func (r *Reclaimer) reclaim(ctx context.Context) {
	due, err := r.records.ListDue(ctx, r.config.BatchSize)
	if err != nil {
		r.logger.Error("failed to list due notifications", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	queued := 0
	for _, rec := range due {
		err := r.queue.Enqueue(Job{TenantID: rec.TenantID, RecordID: rec.ID})
		if errors.Is(err, ErrQueueFull) {
			// No room this round; the rest stays pending for the next tick.
			break
		}
		if err != nil {
			r.logger.Error("failed to enqueue due notification", zap.Error(err))
			continue
		}
		queued++
	}

	r.logger.Debug("reclaimed due notifications",
		zap.Int("due", len(due)),
		zap.Int("queued", queued),
	)
}
