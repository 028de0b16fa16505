package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

// fakeStore is an in-memory stand-in for the notification repository with
// the same uniqueness and claim semantics.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*store.NotificationRecord
	byTuple map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[uuid.UUID]*store.NotificationRecord),
		byTuple: make(map[string]uuid.UUID),
	}
}

func tupleKey(messageID, contactID uuid.UUID, channel string) string {
	return fmt.Sprintf("%s|%s|%s", messageID, contactID, channel)
}

func (f *fakeStore) CreateRecord(_ context.Context, scope tenant.Scope, rec *store.NotificationRecord) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := tupleKey(rec.MessageID, rec.ContactID, rec.Channel)
	if _, exists := f.byTuple[key]; exists {
		return false, nil
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.TenantID = scope.TenantID()
	if rec.Status == "" {
		rec.Status = store.StatusPending
	}
	rec.CreatedAt = time.Now()

	clone := *rec
	f.records[rec.ID] = &clone
	f.byTuple[key] = rec.ID
	return true, nil
}

func (f *fakeStore) GetRecord(_ context.Context, scope tenant.Scope, id uuid.UUID) (*store.NotificationRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok || rec.TenantID != scope.TenantID() {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeStore) MarkProcessing(_ context.Context, scope tenant.Scope, id uuid.UUID) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok || rec.Status != store.StatusPending {
		return false, nil
	}
	rec.Status = store.StatusProcessing
	return true, nil
}

func (f *fakeStore) RecordOutcome(_ context.Context, scope tenant.Scope, id uuid.UUID, status string, attempt int, externalID *string, errMsg *string, nextRetryAt *time.Time) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = status
	rec.Attempt = attempt
	rec.ExternalID = externalID
	rec.ErrorMessage = errMsg
	rec.NextRetryAt = nextRetryAt
	if status == store.StatusSent || status == store.StatusDelivered {
		now := time.Now()
		rec.SentAt = &now
	}
	return nil
}

func (f *fakeStore) IssueFallback(_ context.Context, scope tenant.Scope, id uuid.UUID) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok || rec.Channel != store.ChannelChat || rec.FallbackIssued || rec.FallbackOfID != nil {
		return false, nil
	}
	rec.FallbackIssued = true
	return true, nil
}

func (f *fakeStore) ListDue(_ context.Context, limit int) ([]*store.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []*store.NotificationRecord
	now := time.Now()
	for _, rec := range f.records {
		if rec.Status != store.StatusPending {
			continue
		}
		if rec.NextRetryAt != nil && rec.NextRetryAt.After(now) {
			continue
		}
		clone := *rec
		due = append(due, &clone)
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (f *fakeStore) get(id uuid.UUID) *store.NotificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	if rec == nil {
		return nil
	}
	clone := *rec
	return &clone
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeStore) findByChannel(channel string) []*store.NotificationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.NotificationRecord
	for _, rec := range f.records {
		if rec.Channel == channel {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out
}

// fakeDirectory serves contacts, templates and the tenant record.
type fakeDirectory struct {
	tenant    *store.Tenant
	contacts  []*store.Contact
	templates map[string]*store.MessageTemplate
}

func (f *fakeDirectory) GetTenant(_ context.Context, scope tenant.Scope) (*store.Tenant, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if f.tenant == nil {
		return nil, store.ErrNotFound
	}
	return f.tenant, nil
}

func (f *fakeDirectory) ListActiveContacts(_ context.Context, scope tenant.Scope, _ uuid.UUID) ([]*store.Contact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return f.contacts, nil
}

func (f *fakeDirectory) GetContact(_ context.Context, scope tenant.Scope, id uuid.UUID) (*store.Contact, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	for _, c := range f.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDirectory) GetTemplate(_ context.Context, scope tenant.Scope, channel string) (*store.MessageTemplate, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if tmpl, ok := f.templates[channel]; ok {
		return tmpl, nil
	}
	return nil, store.ErrNotFound
}

// fakeProvider returns canned results and records every call.
type fakeProvider struct {
	mu      sync.Mutex
	channel string
	err     error
	result  Result
	calls   []string
}

func (f *fakeProvider) Channel() string {
	return f.channel
}

func (f *fakeProvider) Send(_ context.Context, recipient, _ string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recipient)
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
