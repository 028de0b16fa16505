package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/delivery"
	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// DirectoryReader is the directory surface the dispatcher needs.
type DirectoryReader interface {
	ListActiveContacts(ctx context.Context, scope tenant.Scope, accountID uuid.UUID) ([]*store.Contact, error)
	GetTemplate(ctx context.Context, scope tenant.Scope, channel string) (*store.MessageTemplate, error)
}

// RecordCreator persists notification records.
type RecordCreator interface {
	CreateRecord(ctx context.Context, scope tenant.Scope, rec *store.NotificationRecord) (bool, error)
}

// Dispatcher fans a processed message out into one notification record per
// (contact, enabled channel) and queues each new record for delivery.
type Dispatcher struct {
	directory DirectoryReader
	records   RecordCreator
	queue     *Queue
	logger    *zap.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(directory DirectoryReader, records RecordCreator, queue *Queue, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		directory: directory,
		records:   records,
		queue:     queue,
		logger:    logger,
	}
}

// Dispatch creates and queues the notifications for one processed message.
// Records are created at most once per (message, contact, channel); a rerun
// after a partial failure only fills in what is missing. Returns the number
// of records created.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	scope tenant.Scope,
	msg *store.IngestedMessage,
	account *store.Account,
	commitment delivery.Commitment,
) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	contacts, err := d.directory.ListActiveContacts(ctx, scope, account.ID)
	if err != nil {
		return 0, fmt.Errorf("list contacts: %w", err)
	}
	if len(contacts) == 0 {
		d.logger.Info("no active contacts for account",
			zap.String("tenant_id", scope.String()),
			zap.String("account_id", account.ID.String()),
		)
		return 0, nil
	}

	vars := TemplateVars{
		AccountName:  account.Name,
		DeliveryDate: commitment.Date,
		DeliveryTime: commitment.TimeOfDay,
	}

	bodies := map[string]string{
		store.ChannelSMS:  d.renderBody(ctx, scope, store.ChannelSMS, vars),
		store.ChannelChat: d.renderBody(ctx, scope, store.ChannelChat, vars),
	}

	created := 0
	for _, contact := range contacts {
		for _, channel := range []string{store.ChannelSMS, store.ChannelChat} {
			recipient, ok := channelRecipient(contact, channel)
			if !ok {
				continue
			}
			if recipient == "" {
				// Channel enabled but no usable address. Skip it rather
				// than create a record that can never send.
				d.logger.Warn("contact has channel enabled but no recipient",
					zap.String("tenant_id", scope.String()),
					zap.String("contact_id", contact.ID.String()),
					zap.String("channel", channel),
				)
				continue
			}

			rec := &store.NotificationRecord{
				MessageID: msg.ID,
				AccountID: account.ID,
				ContactID: contact.ID,
				Channel:   channel,
				Recipient: recipient,
				Body:      bodies[channel],
			}

			wasCreated, err := d.records.CreateRecord(ctx, scope, rec)
			if err != nil {
				return created, fmt.Errorf("create notification record: %w", err)
			}
			if !wasCreated {
				continue
			}

			created++
			metrics.RecordNotificationDispatched(scope.String(), channel)

			if err := d.queue.Enqueue(Job{TenantID: scope.TenantID(), RecordID: rec.ID}); err != nil {
				// Full queue is not an error here. The record is pending
				// in the database and the reclaimer will pick it up.
				d.logger.Warn("dispatch queue full, deferring to reclaimer",
					zap.String("record_id", rec.ID.String()),
				)
			}
		}
	}

	return created, nil
}

func (d *Dispatcher) renderBody(ctx context.Context, scope tenant.Scope, channel string, vars TemplateVars) string {
	body := DefaultSMSTemplate
	if channel == store.ChannelChat {
		body = DefaultChatTemplate
	}

	tmpl, err := d.directory.GetTemplate(ctx, scope, channel)
	if err == nil {
		body = tmpl.Body
	} else if !errors.Is(err, store.ErrNotFound) {
		d.logger.Warn("template lookup failed, using default",
			zap.Error(err),
			zap.String("tenant_id", scope.String()),
			zap.String("channel", channel),
		)
	}

	return RenderTemplate(body, vars)
}

// channelRecipient reports whether the contact has the channel enabled and,
// if so, the address to send to.
func channelRecipient(c *store.Contact, channel string) (string, bool) {
	switch channel {
	case store.ChannelSMS:
		if !c.SMSEnabled {
			return "", false
		}
		return c.Phone, true
	case store.ChannelChat:
		if !c.ChatEnabled {
			return "", false
		}
		return c.ChatHandle, true
	default:
		return "", false
	}
}
