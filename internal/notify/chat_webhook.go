package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
)

// ChatProvider delivers chat notifications through the chat gateway's HTTP
// webhook. The gateway resolves the handle to a chat identity and replies
// synchronously, so a 2xx means the message reached the recipient.
type ChatProvider struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

// ChatConfig configures the chat webhook provider.
type ChatConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type chatRequest struct {
	Handle string `json:"handle"`
	Text   string `json:"text"`
}

type chatResponse struct {
	ID string `json:"id"`
}

// NewChatProvider creates a new webhook-backed chat provider.
func NewChatProvider(cfg ChatConfig, logger *zap.Logger) *ChatProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ChatProvider{
		client: &http.Client{Timeout: timeout},
		url:    cfg.WebhookURL,
		logger: logger,
	}
}

func (p *ChatProvider) Channel() string {
	return store.ChannelChat
}

// Send posts the message to the chat gateway.
func (p *ChatProvider) Send(ctx context.Context, recipient, body string) (Result, error) {
	if p.url == "" {
		return Result{}, fmt.Errorf("chat webhook URL not configured")
	}
	if recipient == "" {
		return Result{}, fmt.Errorf("chat send missing handle")
	}

	payload, err := json.Marshal(chatRequest{Handle: recipient, Text: body})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "OrderPulse/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("chat webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("chat webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var decoded chatResponse
	_ = json.Unmarshal(bodyBytes, &decoded)

	p.logger.Info("chat message delivered",
		zap.String("handle", recipient),
		zap.Int("status_code", resp.StatusCode),
		zap.String("external_id", decoded.ID),
	)

	return Result{ExternalID: decoded.ID, Delivered: true}, nil
}
