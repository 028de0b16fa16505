package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/tenant"
)

// NotificationRepository handles database operations for notification records.
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `
	id, tenant_id, message_id, account_id, contact_id, channel,
	recipient, body, status, attempt, external_id, error_message,
	next_retry_at, sent_at, fallback_of_id, fallback_issued,
	created_at, updated_at
`

// CreateRecord inserts a pending notification record. Returns false when a
// record for (message, contact, channel) already exists — the at-most-once
// guarantee for dispatch.
func (r *NotificationRepository) CreateRecord(ctx context.Context, scope tenant.Scope, rec *NotificationRecord) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	// The active scope wins over whatever the payload carries.
	rec.TenantID = scope.TenantID()
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	query := `
		INSERT INTO notification_records (
			id, tenant_id, message_id, account_id, contact_id, channel,
			recipient, body, status, attempt, fallback_of_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (message_id, contact_id, channel) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		rec.ID,
		rec.TenantID,
		rec.MessageID,
		rec.AccountID,
		rec.ContactID,
		rec.Channel,
		rec.Recipient,
		rec.Body,
		rec.Status,
		rec.Attempt,
		rec.FallbackOfID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("failed to create notification record",
			zap.Error(err),
			zap.String("tenant_id", scope.String()),
			zap.String("message_id", rec.MessageID.String()),
			zap.String("channel", rec.Channel),
		)
		return false, fmt.Errorf("insert notification record: %w", err)
	}

	r.logger.Info("notification record created",
		zap.String("id", rec.ID.String()),
		zap.String("tenant_id", scope.String()),
		zap.String("channel", rec.Channel),
	)

	return true, nil
}

// GetRecord retrieves a notification record by ID within the scoped tenant.
func (r *NotificationRepository) GetRecord(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*NotificationRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + recordColumns + `
		FROM notification_records
		WHERE id = $1 AND tenant_id = $2
	`

	rec, err := r.scanOne(r.db.Pool().QueryRow(ctx, query, id, scope.TenantID()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification record: %w", err)
	}

	return rec, nil
}

// MarkProcessing claims a pending record before the provider call so two
// workers never send the same job. Returns false when the record was already
// claimed or is no longer pending.
func (r *NotificationRepository) MarkProcessing(ctx context.Context, scope tenant.Scope, id uuid.UUID) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	query := `
		UPDATE notification_records
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3 AND status = $4
	`

	result, err := r.db.Pool().Exec(ctx, query, StatusProcessing, id, scope.TenantID(), StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// RecordOutcome stores the result of one send attempt. Sent and delivered
// outcomes also stamp sent_at.
func (r *NotificationRepository) RecordOutcome(
	ctx context.Context,
	scope tenant.Scope,
	id uuid.UUID,
	status string,
	attempt int,
	externalID *string,
	errMsg *string,
	nextRetryAt *time.Time,
) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	delivered := status == StatusSent || status == StatusDelivered

	query := `
		UPDATE notification_records
		SET status = $1,
		    attempt = $2,
		    external_id = $3,
		    error_message = $4,
		    next_retry_at = $5,
		    sent_at = CASE WHEN $6 THEN NOW() ELSE sent_at END,
		    updated_at = NOW()
		WHERE id = $7 AND tenant_id = $8
	`

	result, err := r.db.Pool().Exec(ctx, query,
		status, attempt, externalID, errMsg, nextRetryAt, delivered, id, scope.TenantID())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification record %s: %w", id, ErrNotFound)
	}

	return nil
}

// IssueFallback flips the fallback flag on a failed chat record. The
// conditional update makes the flip succeed exactly once, and never for a
// record that is itself a fallback, which is what bounds the chat-to-SMS
// fallback to a single hop.
func (r *NotificationRepository) IssueFallback(ctx context.Context, scope tenant.Scope, id uuid.UUID) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	query := `
		UPDATE notification_records
		SET fallback_issued = TRUE, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND channel = $3
		  AND NOT fallback_issued
		  AND fallback_of_id IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, id, scope.TenantID(), ChannelChat)
	if err != nil {
		return false, fmt.Errorf("issue fallback: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ListDue returns pending records whose retry time has elapsed, oldest first.
// The delivery queue is deliberately tenant-agnostic; each returned record
// carries its tenant id and is reprocessed under that tenant's scope.
func (r *NotificationRepository) ListDue(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM notification_records
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListByTenant retrieves notification records for the scoped tenant with
// pagination.
func (r *NotificationRepository) ListByTenant(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*NotificationRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + recordColumns + `
		FROM notification_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, scope.TenantID(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

func (r *NotificationRepository) scanOne(row pgx.Row) (*NotificationRecord, error) {
	var rec NotificationRecord
	err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.MessageID,
		&rec.AccountID,
		&rec.ContactID,
		&rec.Channel,
		&rec.Recipient,
		&rec.Body,
		&rec.Status,
		&rec.Attempt,
		&rec.ExternalID,
		&rec.ErrorMessage,
		&rec.NextRetryAt,
		&rec.SentAt,
		&rec.FallbackOfID,
		&rec.FallbackIssued,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *NotificationRepository) scanAll(rows pgx.Rows) ([]*NotificationRecord, error) {
	var records []*NotificationRecord
	for rows.Next() {
		rec, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}
