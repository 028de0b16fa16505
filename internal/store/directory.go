package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/tenant"
)

// DirectoryRepository reads the tenant-owned reference data the pipeline
// consumes but never writes: tenants, accounts, contacts, delivery rules,
// holidays, templates and mailbox configs. The settings surface owns writes.
type DirectoryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// GetTenant retrieves the scoped tenant.
func (r *DirectoryRepository) GetTenant(ctx context.Context, scope tenant.Scope) (*Tenant, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, name, subscription_status, chat_fallback_enabled,
			max_accounts, max_contacts, max_messages_per_day,
			max_notifications_per_day, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var t Tenant
	err := r.db.Pool().QueryRow(ctx, query, scope.TenantID()).Scan(
		&t.ID,
		&t.Name,
		&t.SubscriptionStatus,
		&t.ChatFallbackEnabled,
		&t.MaxAccounts,
		&t.MaxContacts,
		&t.MaxMessagesPerDay,
		&t.MaxNotificationsDay,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", scope, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	return &t, nil
}

// FindAccountBySender resolves a sender address to an active account within
// the scoped tenant. Matching is exact on the case-normalized address.
func (r *DirectoryRepository) FindAccountBySender(ctx context.Context, scope tenant.Scope, senderEmail string) (*Account, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	normalized := strings.ToLower(strings.TrimSpace(senderEmail))

	query := `
		SELECT
			id, tenant_id, name, sender_email, region_code, active,
			created_at, updated_at
		FROM accounts
		WHERE tenant_id = $1 AND lower(sender_email) = $2 AND active
	`

	var a Account
	err := r.db.Pool().QueryRow(ctx, query, scope.TenantID(), normalized).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.SenderEmail,
		&a.RegionCode,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account for %s: %w", normalized, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query account by sender: %w", err)
	}

	return &a, nil
}

// ListActiveContacts returns the active contacts of an account within the
// scoped tenant.
func (r *DirectoryRepository) ListActiveContacts(ctx context.Context, scope tenant.Scope, accountID uuid.UUID) ([]*Contact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, tenant_id, account_id, name, phone, chat_handle,
			sms_enabled, chat_enabled, active, created_at, updated_at
		FROM contacts
		WHERE tenant_id = $1 AND account_id = $2 AND active
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, scope.TenantID(), accountID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.AccountID,
			&c.Name,
			&c.Phone,
			&c.ChatHandle,
			&c.SMSEnabled,
			&c.ChatEnabled,
			&c.Active,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return contacts, nil
}

// GetContact retrieves a contact by ID within the scoped tenant.
func (r *DirectoryRepository) GetContact(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Contact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, tenant_id, account_id, name, phone, chat_handle,
			sms_enabled, chat_enabled, active, created_at, updated_at
		FROM contacts
		WHERE id = $1 AND tenant_id = $2
	`

	var c Contact
	err := r.db.Pool().QueryRow(ctx, query, id, scope.TenantID()).Scan(
		&c.ID,
		&c.TenantID,
		&c.AccountID,
		&c.Name,
		&c.Phone,
		&c.ChatHandle,
		&c.SMSEnabled,
		&c.ChatEnabled,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}

	return &c, nil
}

// GetDeliveryRule looks up the rule for a region within the scoped tenant.
func (r *DirectoryRepository) GetDeliveryRule(ctx context.Context, scope tenant.Scope, regionCode string) (*DeliveryRule, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, tenant_id, region_code, timezone, cutoff_time,
			before_cutoff_days, after_cutoff_days, before_cutoff_label,
			after_cutoff_label, working_days, custom_closed_dates,
			exclude_holidays, created_at, updated_at
		FROM delivery_rules
		WHERE tenant_id = $1 AND region_code = $2
	`

	var dr DeliveryRule
	err := r.db.Pool().QueryRow(ctx, query, scope.TenantID(), regionCode).Scan(
		&dr.ID,
		&dr.TenantID,
		&dr.RegionCode,
		&dr.Timezone,
		&dr.CutoffTime,
		&dr.BeforeCutoffDays,
		&dr.AfterCutoffDays,
		&dr.BeforeCutoffLabel,
		&dr.AfterCutoffLabel,
		&dr.WorkingDays,
		&dr.CustomClosedDates,
		&dr.ExcludeHolidays,
		&dr.CreatedAt,
		&dr.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("delivery rule for region %s: %w", regionCode, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query delivery rule: %w", err)
	}

	return &dr, nil
}

// ListHolidays returns all holidays of the scoped tenant.
func (r *DirectoryRepository) ListHolidays(ctx context.Context, scope tenant.Scope) ([]*Holiday, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, holiday_date, recurring
		FROM holidays
		WHERE tenant_id = $1
		ORDER BY holiday_date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, scope.TenantID())
	if err != nil {
		return nil, fmt.Errorf("query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []*Holiday
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.ID, &h.TenantID, &h.Date, &h.Recurring); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		holidays = append(holidays, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return holidays, nil
}

// GetTemplate returns the tenant's default template for a channel.
func (r *DirectoryRepository) GetTemplate(ctx context.Context, scope tenant.Scope, channel string) (*MessageTemplate, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, channel, body, created_at, updated_at
		FROM message_templates
		WHERE tenant_id = $1 AND channel = $2
	`

	var t MessageTemplate
	err := r.db.Pool().QueryRow(ctx, query, scope.TenantID(), channel).Scan(
		&t.ID,
		&t.TenantID,
		&t.Channel,
		&t.Body,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template for channel %s: %w", channel, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	return &t, nil
}

// GetMailboxConfig returns the scoped tenant's active mailbox config.
func (r *DirectoryRepository) GetMailboxConfig(ctx context.Context, scope tenant.Scope) (*MailboxConfig, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT
			id, tenant_id, host, port, username, password, encryption,
			poll_interval_secs, idle_timeout_secs, enabled,
			created_at, updated_at
		FROM mailbox_configs
		WHERE tenant_id = $1
	`

	var c MailboxConfig
	err := r.db.Pool().QueryRow(ctx, query, scope.TenantID()).Scan(
		&c.ID,
		&c.TenantID,
		&c.Host,
		&c.Port,
		&c.Username,
		&c.Password,
		&c.Encryption,
		&c.PollIntervalSecs,
		&c.IdleTimeoutSecs,
		&c.Enabled,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mailbox config for tenant %s: %w", scope, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query mailbox config: %w", err)
	}

	return &c, nil
}

// ListEnabledMailboxConfigs returns every enabled mailbox config across
// tenants. This is the schedule registry's bootstrap read and the single
// deliberate cross-tenant query in the codebase; all per-message work
// descends back through a tenant scope.
func (r *DirectoryRepository) ListEnabledMailboxConfigs(ctx context.Context) ([]*MailboxConfig, error) {
	query := `
		SELECT
			c.id, c.tenant_id, c.host, c.port, c.username, c.password,
			c.encryption, c.poll_interval_secs, c.idle_timeout_secs,
			c.enabled, c.created_at, c.updated_at
		FROM mailbox_configs c
		JOIN tenants t ON t.id = c.tenant_id
		WHERE c.enabled AND t.subscription_status = 'active'
		ORDER BY c.tenant_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query enabled mailbox configs: %w", err)
	}
	defer rows.Close()

	var configs []*MailboxConfig
	for rows.Next() {
		var c MailboxConfig
		err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.Host,
			&c.Port,
			&c.Username,
			&c.Password,
			&c.Encryption,
			&c.PollIntervalSecs,
			&c.IdleTimeoutSecs,
			&c.Enabled,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan mailbox config: %w", err)
		}
		configs = append(configs, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return configs, nil
}
