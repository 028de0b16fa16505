package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

func TestReclaim_QueuesDueRecords(t *testing.T) {
	scope := tenant.NewScope(uuid.New())
	st := newFakeStore()
	seedRecord(t, st, scope, store.ChannelSMS, "+821012345678")
	seedRecord(t, st, scope, store.ChannelSMS, "+821087654321")

	q := NewQueue(16)
	r := NewReclaimer(st, q, ReclaimerConfig{Interval: time.Minute, BatchSize: 50}, zap.NewNop())

	r.reclaim(context.Background())

	if q.Len() != 2 {
		t.Errorf("expected 2 reclaimed jobs, got %d", q.Len())
	}
}

func TestReclaim_SkipsFutureRetries(t *testing.T) {
	scope := tenant.NewScope(uuid.New())
	st := newFakeStore()
	rec := seedRecord(t, st, scope, store.ChannelSMS, "+821012345678")

	future := time.Now().Add(time.Hour)
	errMsg := "throttled"
	if err := st.RecordOutcome(context.Background(), scope, rec.ID, store.StatusPending, 1, nil, &errMsg, &future); err != nil {
		t.Fatalf("schedule retry failed: %v", err)
	}

	q := NewQueue(16)
	r := NewReclaimer(st, q, ReclaimerConfig{Interval: time.Minute, BatchSize: 50}, zap.NewNop())

	r.reclaim(context.Background())

	if q.Len() != 0 {
		t.Errorf("record with a future retry must not be queued, got %d", q.Len())
	}
}

func TestReclaim_StopsWhenQueueFull(t *testing.T) {
	scope := tenant.NewScope(uuid.New())
	st := newFakeStore()
	for i := 0; i < 3; i++ {
		rec := &store.NotificationRecord{
			MessageID: uuid.New(),
			AccountID: uuid.New(),
			ContactID: uuid.New(),
			Channel:   store.ChannelSMS,
			Recipient: "+821012345678",
			Body:      "order confirmed",
		}
		if created, err := st.CreateRecord(context.Background(), scope, rec); err != nil || !created {
			t.Fatalf("seed %d failed: %v", i, err)
		}
	}

	q := NewQueue(1)
	r := NewReclaimer(st, q, ReclaimerConfig{Interval: time.Minute, BatchSize: 50}, zap.NewNop())

	r.reclaim(context.Background())

	if q.Len() != 1 {
		t.Errorf("expected queue filled to capacity 1, got %d", q.Len())
	}
}
