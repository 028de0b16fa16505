package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestChatProvider_Send(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{ID: "chat-42"})
	}))
	defer server.Close()

	p := NewChatProvider(ChatConfig{WebhookURL: server.URL, Timeout: time.Second}, zap.NewNop())

	result, err := p.Send(context.Background(), "kim", "order confirmed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Delivered {
		t.Error("2xx webhook response should count as delivered")
	}
	if result.ExternalID != "chat-42" {
		t.Errorf("expected external id chat-42, got %q", result.ExternalID)
	}
	if received.Handle != "kim" || received.Text != "order confirmed" {
		t.Errorf("unexpected payload: %+v", received)
	}
}

func TestChatProvider_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown handle", http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewChatProvider(ChatConfig{WebhookURL: server.URL, Timeout: time.Second}, zap.NewNop())

	if _, err := p.Send(context.Background(), "kim", "order confirmed"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestChatProvider_MissingConfig(t *testing.T) {
	p := NewChatProvider(ChatConfig{}, zap.NewNop())

	if _, err := p.Send(context.Background(), "kim", "hi"); err == nil {
		t.Fatal("expected error when webhook URL is not configured")
	}
	p = NewChatProvider(ChatConfig{WebhookURL: "http://example.invalid"}, zap.NewNop())
	if _, err := p.Send(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty handle")
	}
}
