package store

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated customer organization. Created and mutated by the
// billing/admin surfaces; read-only to the pipeline.
type Tenant struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	SubscriptionStatus  string    `json:"subscription_status"`
	ChatFallbackEnabled bool      `json:"chat_fallback_enabled"`
	MaxAccounts         int       `json:"max_accounts"`
	MaxContacts         int       `json:"max_contacts"`
	MaxMessagesPerDay   int       `json:"max_messages_per_day"`
	MaxNotificationsDay int       `json:"max_notifications_per_day"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MailboxConfig holds one tenant's inbound mailbox connection settings.
// Written by the settings surface; consumed by the mailbox poller.
type MailboxConfig struct {
	ID               uuid.UUID `json:"id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Host             string    `json:"host"`
	Port             int       `json:"port"`
	Username         string    `json:"username"`
	Password         string    `json:"-"`
	Encryption       string    `json:"encryption"` // tls, starttls or none
	PollIntervalSecs int       `json:"poll_interval_secs"`
	IdleTimeoutSecs  int       `json:"idle_timeout_secs"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PollInterval returns the configured poll interval, or zero when unset.
func (c *MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// IngestedMessage is the durable record of one observed inbound email.
// (tenant_id, message_id) is unique; re-ingesting the same message is a no-op.
type IngestedMessage struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	MessageID     string     `json:"message_id"`
	Sender        string     `json:"sender"`
	Subject       string     `json:"subject"`
	ReceivedAt    time.Time  `json:"received_at"`
	HasAttachment bool       `json:"has_attachment"`
	AccountID     *uuid.UUID `json:"account_id,omitempty"`
	Status        string     `json:"status"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	SentCount     int        `json:"sent_count"`
	FailedCount   int        `json:"failed_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Ingested message status constants
const (
	MessageReceived  = "received"
	MessageMatched   = "matched"
	MessageProcessed = "processed"
	MessageIgnored   = "ignored"
	MessageFailed    = "failed"
)

// Account is a registered business counterpart whose emails are monitored.
type Account struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	SenderEmail string    `json:"sender_email"` // canonical, unique per tenant
	RegionCode  string    `json:"region_code"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Contact is a human recipient attached to an account. ChatHandle is the
// chat-channel identity; a contact with chat enabled but no handle is skipped
// for that channel.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	ChatHandle  string    `json:"chat_handle"`
	SMSEnabled  bool      `json:"sms_enabled"`
	ChatEnabled bool      `json:"chat_enabled"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeliveryRule translates a receipt time into a committed delivery date for
// one (tenant, region). One rule per region per tenant.
type DeliveryRule struct {
	ID                uuid.UUID   `json:"id"`
	TenantID          uuid.UUID   `json:"tenant_id"`
	RegionCode        string      `json:"region_code"`
	Timezone          string      `json:"timezone"`    // IANA name, e.g. Asia/Seoul
	CutoffTime        string      `json:"cutoff_time"` // HH:MM, rule-local
	BeforeCutoffDays  int         `json:"before_cutoff_days"`
	AfterCutoffDays   int         `json:"after_cutoff_days"`
	BeforeCutoffLabel string      `json:"before_cutoff_label"`
	AfterCutoffLabel  string      `json:"after_cutoff_label"`
	WorkingDays       []int32     `json:"working_days"` // time.Weekday values
	CustomClosedDates []time.Time `json:"custom_closed_dates"`
	ExcludeHolidays   bool        `json:"exclude_holidays"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Holiday is a tenant-scoped non-delivery date. Recurring holidays match on
// month and day every year.
type Holiday struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Date      time.Time `json:"date"`
	Recurring bool      `json:"recurring"`
}

// MessageTemplate is a tenant's default notification template for a channel.
type MessageTemplate struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Channel   string    `json:"channel"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationRecord is one unit of outbound SMS/chat work tied to an
// ingested message and a contact. (message_id, contact_id, channel) is
// unique — a record is created at most once per tuple.
type NotificationRecord struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	MessageID    uuid.UUID  `json:"message_id"`
	AccountID    uuid.UUID  `json:"account_id"`
	ContactID    uuid.UUID  `json:"contact_id"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient"`
	Body         string     `json:"body"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	ExternalID   *string    `json:"external_id,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	// FallbackOfID links an SMS record created as a fallback back to the
	// failed chat record. FallbackIssued is flipped on the chat record the
	// moment its fallback is created, so the fallback fires at most once.
	FallbackOfID   *uuid.UUID `json:"fallback_of_id,omitempty"`
	FallbackIssued bool       `json:"fallback_issued"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Notification status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
)

// Channel constants
const (
	ChannelSMS  = "sms"
	ChannelChat = "chat"
)
