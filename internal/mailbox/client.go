// Package mailbox reads tenant inboxes over IMAP and feeds new messages to
// the ingestion pipeline. A message is only marked seen after its durable
// record exists, so a crash between the two re-ingests (idempotently)
// instead of losing mail.
package mailbox

import (
	"context"
	"time"

	"github.com/orderpulse/orderpulse/internal/store"
)

// Envelope is the header-level view of one unseen inbox message. The body is
// never stored; only attachment presence is noted.
type Envelope struct {
	SeqNum        uint32
	MessageID     string
	Sender        string
	Subject       string
	ReceivedAt    time.Time // mailbox-reported receipt time
	HasAttachment bool
}

// Client is one live IMAP session against a tenant's inbox.
type Client interface {
	// FetchUnseen lists the unseen messages in the inbox.
	FetchUnseen(ctx context.Context) ([]*Envelope, error)

	// MarkSeen flags the given messages as consumed. Valid only within the
	// session that fetched them.
	MarkSeen(ctx context.Context, seqNums []uint32) error

	Close() error
}

// Dialer opens a Client from a mailbox config. Swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, cfg *store.MailboxConfig) (Client, error)
}
