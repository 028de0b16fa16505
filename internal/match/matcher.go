// Package match resolves inbound email senders to registered accounts.
package match

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// ErrNoMatch is returned when a sender address maps to no active account
// within the tenant. The caller marks the message ignored and alerts once.
var ErrNoMatch = errors.New("sender matches no registered account")

// AccountFinder is the directory read the matcher needs.
type AccountFinder interface {
	FindAccountBySender(ctx context.Context, scope tenant.Scope, senderEmail string) (*store.Account, error)
}

// AccountMatcher resolves sender strings as they arrive from the mailbox,
// which may be bare addresses or display-name forms like
// "Acme Orders <orders@acme.example>".
type AccountMatcher struct {
	finder AccountFinder
	logger *zap.Logger
}

// NewAccountMatcher creates a new account matcher.
func NewAccountMatcher(finder AccountFinder, logger *zap.Logger) *AccountMatcher {
	return &AccountMatcher{
		finder: finder,
		logger: logger,
	}
}

// Match resolves a raw sender string to an active account. Returns ErrNoMatch
// when the address is syntactically fine but unknown to the tenant.
func (m *AccountMatcher) Match(ctx context.Context, scope tenant.Scope, rawSender string) (*store.Account, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	address := NormalizeSender(rawSender)
	if address == "" {
		return nil, fmt.Errorf("sender %q: %w", rawSender, ErrNoMatch)
	}

	account, err := m.finder.FindAccountBySender(ctx, scope, address)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Info("sender matched no account",
			zap.String("tenant_id", scope.String()),
			zap.String("sender", address),
		)
		return nil, fmt.Errorf("sender %q: %w", address, ErrNoMatch)
	}
	if err != nil {
		return nil, fmt.Errorf("find account by sender: %w", err)
	}

	return account, nil
}

// NormalizeSender extracts the bare address from a raw sender string and
// lowercases it. Returns "" when no address can be extracted.
func NormalizeSender(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if parsed, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(parsed.Address)
	}

	// Some providers hand back addresses that net/mail rejects, like a bare
	// local part with trailing punctuation. Fall back to the angle-bracket
	// content if present, else the raw string.
	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if close := strings.Index(raw[open:], ">"); close > 0 {
			return strings.ToLower(strings.TrimSpace(raw[open+1 : open+close]))
		}
	}

	if !strings.Contains(raw, "@") {
		return ""
	}
	return strings.ToLower(raw)
}
