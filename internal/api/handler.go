package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/metrics"
	"github.com/orderpulse/orderpulse/internal/schedule"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// MessageLister reads a tenant's ingested messages.
type MessageLister interface {
	ListByTenant(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*store.IngestedMessage, error)
}

// NotificationLister reads a tenant's notification records.
type NotificationLister interface {
	ListByTenant(ctx context.Context, scope tenant.Scope, limit, offset int) ([]*store.NotificationRecord, error)
}

// Scheduler is the admin surface of the schedule registry.
type Scheduler interface {
	Status() []schedule.MailboxStatus
	ReloadAll(ctx context.Context) error
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger        *zap.Logger
	messages      MessageLister
	notifications NotificationLister
	scheduler     Scheduler
	health        HealthChecker
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, messages MessageLister, notifications NotificationLister, scheduler Scheduler, health HealthChecker) *Handler {
	return &Handler{
		logger:        logger,
		messages:      messages,
		notifications: notifications,
		scheduler:     scheduler,
		health:        health,
	}
}

// Routes builds the router. The given middlewares (rate limiting) apply to
// the /v1 routes only, never to /health or /metrics.
func (h *Handler) Routes(v1Middleware ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)

	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(v1Middleware...)

		r.Get("/scheduler/status", h.SchedulerStatus)
		r.Post("/scheduler/reload", h.SchedulerReload)
		r.Get("/messages", h.ListMessages)
		r.Get("/notifications", h.ListNotifications)
	})

	return r
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Health(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "unhealthy", "Service Unavailable", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SchedulerStatus handles GET /v1/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"mailboxes": h.scheduler.Status(),
	})
}

// SchedulerReload handles POST /v1/scheduler/reload. It re-reads the enabled
// mailbox configs so a settings change takes effect without a restart.
func (h *Handler) SchedulerReload(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.ReloadAll(r.Context()); err != nil {
		h.logger.Error("schedule reload failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "reload_failed", "Internal Server Error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"mailboxes": h.scheduler.Status(),
	})
}

// ListMessages handles GET /v1/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.tenantScope(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	messages, err := h.messages.ListByTenant(r.Context(), scope, limit, offset)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "")
		return
	}
	if messages == nil {
		messages = []*store.IngestedMessage{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListNotifications handles GET /v1/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.tenantScope(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	records, err := h.notifications.ListByTenant(r.Context(), scope, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", "")
		return
	}
	if records == nil {
		records = []*store.NotificationRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": records,
		"limit":         limit,
		"offset":        offset,
	})
}

// tenantScope resolves the X-Tenant-ID header into a scope. Writes the error
// response itself when the header is missing or malformed.
func (h *Handler) tenantScope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	raw := r.Header.Get("X-Tenant-ID")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "missing_tenant", "Bad Request", "X-Tenant-ID header is required")
		return tenant.Scope{}, false
	}

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_tenant", "Bad Request", "X-Tenant-ID must be a valid UUID")
		return tenant.Scope{}, false
	}

	return tenant.NewScope(id), true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
