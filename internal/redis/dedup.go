package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/tenant"
)

const (
	// DedupTTL is how long a seen message id is remembered. The database
	// unique constraint is the source of truth; this cache only short-circuits
	// the common case of a mailbox re-listing recent messages.
	DedupTTL = 24 * time.Hour

	dedupKeyPrefix = "orderpulse:seen:"
)

// DedupFilter tracks which message ids have already been ingested, per
// tenant. It is a best-effort fast path in front of the durable
// (tenant_id, message_id) uniqueness check.
type DedupFilter struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewDedupFilter creates a dedup filter backed by Redis.
func NewDedupFilter(client *Client, logger *zap.Logger) *DedupFilter {
	return &DedupFilter{
		client: client,
		logger: logger,
		ttl:    DedupTTL,
	}
}

func (f *DedupFilter) key(scope tenant.Scope, messageID string) string {
	return fmt.Sprintf("%s%s:%s", dedupKeyPrefix, scope, messageID)
}

// IsNew returns true if the message id has NOT been seen before for this
// tenant. If true, the id is marked as seen atomically (SETNX).
func (f *DedupFilter) IsNew(ctx context.Context, scope tenant.Scope, messageID string) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	set, err := f.client.rdb.SetNX(ctx, f.key(scope, messageID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	if !set {
		f.logger.Debug("duplicate message id skipped via cache",
			zap.String("tenant_id", scope.String()),
			zap.String("message_id", messageID),
		)
	}

	return set, nil
}

// Forget removes a seen marker. Used when an ingest that reserved the id
// fails before the durable record exists, so the retry is not blocked by the
// cache.
func (f *DedupFilter) Forget(ctx context.Context, scope tenant.Scope, messageID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	if err := f.client.rdb.Del(ctx, f.key(scope, messageID)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
