// Package notify turns processed purchase orders into SMS and chat
// notifications: building records, queueing them, and driving provider
// sends with bounded retries and a one-hop chat-to-SMS fallback.
package notify

import "context"

// Result is the outcome of one successful provider call. Delivered means the
// provider confirmed receipt by the recipient; a bare accept maps to sent.
type Result struct {
	ExternalID string
	Delivered  bool
}

// Provider sends one notification body to one recipient on one channel.
type Provider interface {
	Channel() string
	Send(ctx context.Context, recipient, body string) (Result, error)
}
