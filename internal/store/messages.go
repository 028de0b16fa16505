package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/tenant"
)

// ErrNotFound is returned when a scoped lookup matches no row.
var ErrNotFound = errors.New("not found")

// MessageRepository handles database operations for ingested messages. Every
// method requires an explicit tenant scope; the scope's tenant id is injected
// into all filters and payloads and cannot be overridden by the caller.
type MessageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMessageRepository creates a new ingested-message repository
func NewMessageRepository(db *DB, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIngested creates the ingestion record in the received status.
// Returns false when a record for (tenant, message_id) already exists, which
// makes re-ingesting the same message a no-op.
func (r *MessageRepository) InsertIngested(ctx context.Context, scope tenant.Scope, msg *IngestedMessage) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	// The active scope wins over whatever the payload carries.
	msg.TenantID = scope.TenantID()
	msg.Status = MessageReceived

	query := `
		INSERT INTO ingested_messages (
			id, tenant_id, message_id, sender, subject,
			received_at, has_attachment, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (tenant_id, message_id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		msg.ID,
		msg.TenantID,
		msg.MessageID,
		msg.Sender,
		msg.Subject,
		msg.ReceivedAt,
		msg.HasAttachment,
		msg.Status,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the message was ingested before.
		return false, nil
	}
	if err != nil {
		r.logger.Error("failed to insert ingested message",
			zap.Error(err),
			zap.String("tenant_id", scope.String()),
			zap.String("message_id", msg.MessageID),
		)
		return false, fmt.Errorf("insert ingested message: %w", err)
	}

	r.logger.Info("message ingested",
		zap.String("id", msg.ID.String()),
		zap.String("tenant_id", scope.String()),
		zap.String("sender", msg.Sender),
	)

	return true, nil
}

// SetMatched transitions the message to matched and stores the account it
// resolved to.
func (r *MessageRepository) SetMatched(ctx context.Context, scope tenant.Scope, id, accountID uuid.UUID) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE ingested_messages
		SET status = $1, account_id = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, MessageMatched, accountID, id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("set matched: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ingested message %s: %w", id, ErrNotFound)
	}

	return nil
}

// UpdateStatus moves the message to the given status. Terminal statuses also
// stamp processed_at.
func (r *MessageRepository) UpdateStatus(ctx context.Context, scope tenant.Scope, id uuid.UUID, status string, errMsg *string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	terminal := status == MessageProcessed || status == MessageIgnored || status == MessageFailed

	query := `
		UPDATE ingested_messages
		SET status = $1,
		    error_message = $2,
		    processed_at = CASE WHEN $3 THEN NOW() ELSE processed_at END,
		    updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5
	`

	result, err := r.db.Pool().Exec(ctx, query, status, errMsg, terminal, id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ingested message %s: %w", id, ErrNotFound)
	}

	return nil
}

// RecordError stores diagnostic text without changing the status. Used for
// partial failures such as a missing delivery rule, where matching succeeded
// but delivery could not proceed.
func (r *MessageRepository) RecordError(ctx context.Context, scope tenant.Scope, id uuid.UUID, errMsg string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE ingested_messages
		SET error_message = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`

	_, err := r.db.Pool().Exec(ctx, query, errMsg, id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("record message error: %w", err)
	}
	return nil
}

// AddSent atomically increments the sent counter. Notification jobs complete
// out of order, so this must never be a read-modify-write.
func (r *MessageRepository) AddSent(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return r.increment(ctx, scope, id, "sent_count")
}

// AddFailed atomically increments the failed counter.
func (r *MessageRepository) AddFailed(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return r.increment(ctx, scope, id, "failed_count")
}

func (r *MessageRepository) increment(ctx context.Context, scope tenant.Scope, id uuid.UUID, column string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE ingested_messages
		SET %s = %s + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, column, column)

	_, err := r.db.Pool().Exec(ctx, query, id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// ListByTenant retrieves ingested messages for the scoped tenant, newest
// first, with pagination.
func (r *MessageRepository) ListByTenant(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*IngestedMessage, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, tenant_id, message_id, sender, subject, received_at,
			has_attachment, account_id, status, processed_at, error_message,
			sent_count, failed_count, created_at, updated_at
		FROM ingested_messages
		WHERE tenant_id = $1
		ORDER BY received_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, scope.TenantID(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ingested messages: %w", err)
	}
	defer rows.Close()

	var messages []*IngestedMessage
	for rows.Next() {
		var m IngestedMessage
		err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.MessageID,
			&m.Sender,
			&m.Subject,
			&m.ReceivedAt,
			&m.HasAttachment,
			&m.AccountID,
			&m.Status,
			&m.ProcessedAt,
			&m.ErrorMessage,
			&m.SentCount,
			&m.FailedCount,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ingested message: %w", err)
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, nil
}
