package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// IMAPDialer opens real IMAP sessions.
type IMAPDialer struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Logger         *zap.Logger
}

// Dial connects, authenticates and selects INBOX.
func (d *IMAPDialer) Dial(ctx context.Context, cfg *store.MailboxConfig) (Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	dialer := &net.Dialer{Timeout: d.ConnectTimeout}

	var c *client.Client
	var err error

	switch strings.ToLower(cfg.Encryption) {
	case "tls", "ssl":
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host})
	case "starttls":
		c, err = client.DialWithDialer(dialer, addr)
		if err == nil {
			err = c.StartTLS(&tls.Config{ServerName: cfg.Host})
		}
	default:
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}

	c.Timeout = d.ReadTimeout

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return &imapSession{c: c, logger: d.Logger}, nil
}

type imapSession struct {
	c      *client.Client
	logger *zap.Logger
}

func (s *imapSession) FetchUnseen(_ context.Context) ([]*Envelope, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	ids, err := s.c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		// BODY.PEEK keeps the unseen flag; consumption happens in MarkSeen
		// after the durable record exists.
		done <- s.c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	var envelopes []*Envelope
	for msg := range messages {
		env := s.toEnvelope(msg)
		if env == nil {
			continue
		}
		envelopes = append(envelopes, env)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("error during fetch: %w", err)
	}

	return envelopes, nil
}

func (s *imapSession) toEnvelope(msg *imap.Message) *Envelope {
	if msg.Envelope == nil {
		return nil
	}

	sender := ""
	if len(msg.Envelope.From) > 0 {
		sender = msg.Envelope.From[0].Address()
	}

	return &Envelope{
		SeqNum:        msg.SeqNum,
		MessageID:     msg.Envelope.MessageId,
		Sender:        sender,
		Subject:       msg.Envelope.Subject,
		ReceivedAt:    msg.Envelope.Date,
		HasAttachment: hasAttachment(msg),
	}
}

// hasAttachment walks the MIME parts looking for an attachment header. Parse
// failures count as no attachment; the pipeline treats the flag as advisory.
func hasAttachment(msg *imap.Message) bool {
	if msg.Body == nil {
		return false
	}

	literal := msg.GetBody(&imap.BodySectionName{Peek: true})
	if literal == nil {
		literal = msg.GetBody(&imap.BodySectionName{})
	}
	if literal == nil {
		return false
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return false
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return false
		}
		if err != nil {
			return false
		}
		if _, ok := p.Header.(*mail.AttachmentHeader); ok {
			return true
		}
	}
}

func (s *imapSession) MarkSeen(_ context.Context, seqNums []uint32) error {
	if len(seqNums) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := s.c.Store(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.c.Logout()
}
