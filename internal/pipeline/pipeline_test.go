package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orderpulse/orderpulse/internal/alerts"
	"github.com/orderpulse/orderpulse/internal/delivery"
	"github.com/orderpulse/orderpulse/internal/mailbox"
	"github.com/orderpulse/orderpulse/internal/match"
	"github.com/orderpulse/orderpulse/internal/store"
	"github.com/orderpulse/orderpulse/internal/tenant"
)

type fakeMessages struct {
	byMessageID map[string]*store.IngestedMessage
	byID        map[uuid.UUID]*store.IngestedMessage
	insertErr   error
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byMessageID: make(map[string]*store.IngestedMessage),
		byID:        make(map[uuid.UUID]*store.IngestedMessage),
	}
}

func (f *fakeMessages) InsertIngested(_ context.Context, scope tenant.Scope, msg *store.IngestedMessage) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, exists := f.byMessageID[msg.MessageID]; exists {
		return false, nil
	}
	msg.ID = uuid.New()
	msg.TenantID = scope.TenantID()
	msg.Status = store.MessageReceived
	f.byMessageID[msg.MessageID] = msg
	f.byID[msg.ID] = msg
	return true, nil
}

func (f *fakeMessages) SetMatched(_ context.Context, _ tenant.Scope, id, accountID uuid.UUID) error {
	msg, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Status = store.MessageMatched
	msg.AccountID = &accountID
	return nil
}

func (f *fakeMessages) UpdateStatus(_ context.Context, _ tenant.Scope, id uuid.UUID, status string, errMsg *string) error {
	msg, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.Status = status
	msg.ErrorMessage = errMsg
	return nil
}

func (f *fakeMessages) RecordError(_ context.Context, _ tenant.Scope, id uuid.UUID, errMsg string) error {
	msg, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.ErrorMessage = &errMsg
	return nil
}

type fakeRules struct {
	rule     *store.DeliveryRule
	holidays []*store.Holiday
}

func (f *fakeRules) GetDeliveryRule(_ context.Context, _ tenant.Scope, regionCode string) (*store.DeliveryRule, error) {
	if f.rule == nil || f.rule.RegionCode != regionCode {
		return nil, fmt.Errorf("delivery rule for region %s: %w", regionCode, store.ErrNotFound)
	}
	return f.rule, nil
}

func (f *fakeRules) ListHolidays(_ context.Context, _ tenant.Scope) ([]*store.Holiday, error) {
	return f.holidays, nil
}

type fakeMatcher struct {
	account *store.Account
	err     error
}

func (f *fakeMatcher) Match(_ context.Context, _ tenant.Scope, _ string) (*store.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

type fakeDedup struct {
	seen      map[string]bool
	forgotten []string
}

func (f *fakeDedup) IsNew(_ context.Context, _ tenant.Scope, messageID string) (bool, error) {
	if f.seen[messageID] {
		return false, nil
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.seen[messageID] = true
	return true, nil
}

func (f *fakeDedup) Forget(_ context.Context, _ tenant.Scope, messageID string) error {
	delete(f.seen, messageID)
	f.forgotten = append(f.forgotten, messageID)
	return nil
}

type fakeDispatcher struct {
	calls     int
	err       error
	panicWith any
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ tenant.Scope, _ *store.IngestedMessage, _ *store.Account, _ delivery.Commitment) (int, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(_ context.Context, eventType string, _ *store.IngestedMessage) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeAlerter struct {
	alerts []alerts.Alert
}

func (f *fakeAlerter) Notify(_ context.Context, alert alerts.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func workingRule(region string) *store.DeliveryRule {
	return &store.DeliveryRule{
		RegionCode:        region,
		Timezone:          "UTC",
		CutoffTime:        "14:00",
		BeforeCutoffDays:  1,
		AfterCutoffDays:   2,
		BeforeCutoffLabel: "morning",
		AfterCutoffLabel:  "afternoon",
		WorkingDays:       []int32{1, 2, 3, 4, 5},
	}
}

func testEnvelope(messageID string) *mailbox.Envelope {
	return &mailbox.Envelope{
		SeqNum:     1,
		MessageID:  messageID,
		Sender:     "orders@acme.example",
		Subject:    "PO-1001",
		ReceivedAt: time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC), // Wednesday
	}
}

type fixture struct {
	messages   *fakeMessages
	rules      *fakeRules
	matcher    *fakeMatcher
	dedup      *fakeDedup
	dispatcher *fakeDispatcher
	publisher  *fakePublisher
	alerter    *fakeAlerter
	pipeline   *Pipeline
	scope      tenant.Scope
}

func newFixture() *fixture {
	account := &store.Account{ID: uuid.New(), Name: "Acme", RegionCode: "KR-SEL"}
	f := &fixture{
		messages:   newFakeMessages(),
		rules:      &fakeRules{rule: workingRule("KR-SEL")},
		matcher:    &fakeMatcher{account: account},
		dedup:      &fakeDedup{seen: make(map[string]bool)},
		dispatcher: &fakeDispatcher{},
		publisher:  &fakePublisher{},
		alerter:    &fakeAlerter{},
		scope:      tenant.NewScope(uuid.New()),
	}
	f.pipeline = New(f.messages, f.rules, f.matcher, f.dedup, f.dispatcher, f.publisher, f.alerter, zap.NewNop())
	return f
}

func TestIngest_HappyPath(t *testing.T) {
	f := newFixture()

	if err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := f.messages.byMessageID["<po@acme>"]
	if msg == nil {
		t.Fatal("message not recorded")
	}
	if msg.Status != store.MessageProcessed {
		t.Errorf("expected processed, got %s", msg.Status)
	}
	if f.dispatcher.calls != 1 {
		t.Errorf("expected 1 dispatch, got %d", f.dispatcher.calls)
	}
	if len(f.publisher.events) != 2 {
		t.Fatalf("expected ingested and processed events, got %v", f.publisher.events)
	}
}

func TestIngest_DuplicateIsNoop(t *testing.T) {
	f := newFixture()
	env := testEnvelope("<po@acme>")

	if err := f.pipeline.Ingest(context.Background(), f.scope, env); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	// The dedup cache short-circuits the second ingest.
	if err := f.pipeline.Ingest(context.Background(), f.scope, env); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if f.dispatcher.calls != 1 {
		t.Errorf("duplicate must not dispatch again, got %d calls", f.dispatcher.calls)
	}

	// Even with the cache cold, the store constraint catches it.
	f.dedup.seen = make(map[string]bool)
	if err := f.pipeline.Ingest(context.Background(), f.scope, env); err != nil {
		t.Fatalf("third ingest failed: %v", err)
	}
	if f.dispatcher.calls != 1 {
		t.Errorf("store-level duplicate must not dispatch, got %d calls", f.dispatcher.calls)
	}
}

func TestIngest_UnmatchedSenderIgnoredWithOneAlert(t *testing.T) {
	f := newFixture()
	f.matcher.err = fmt.Errorf("sender: %w", match.ErrNoMatch)

	if err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@stranger>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := f.messages.byMessageID["<po@stranger>"]
	if msg.Status != store.MessageIgnored {
		t.Errorf("expected ignored, got %s", msg.Status)
	}
	if len(f.alerter.alerts) != 1 || f.alerter.alerts[0].Kind != alerts.KindUnmatchedSender {
		t.Errorf("expected one unmatched-sender alert, got %+v", f.alerter.alerts)
	}
	if f.dispatcher.calls != 0 {
		t.Errorf("ignored message must not dispatch")
	}
}

func TestIngest_MissingRuleParksMatched(t *testing.T) {
	f := newFixture()
	f.rules.rule = nil

	if err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := f.messages.byMessageID["<po@acme>"]
	if msg.Status != store.MessageMatched {
		t.Errorf("expected matched, got %s", msg.Status)
	}
	if msg.ErrorMessage == nil {
		t.Error("expected the reason recorded on the message")
	}
	if f.dispatcher.calls != 0 {
		t.Errorf("parked message must not dispatch")
	}
}

func TestIngest_MisconfiguredRuleParksMatched(t *testing.T) {
	f := newFixture()
	f.rules.rule.WorkingDays = nil // no working day can ever be found

	if err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := f.messages.byMessageID["<po@acme>"]
	if msg.Status != store.MessageMatched {
		t.Errorf("expected matched, got %s", msg.Status)
	}
	if msg.ErrorMessage == nil {
		t.Error("expected the calculation failure recorded")
	}
}

func TestIngest_DispatchErrorFailsMessage(t *testing.T) {
	f := newFixture()
	f.dispatcher.err = errors.New("db down")

	err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>"))
	if err == nil {
		t.Fatal("expected error")
	}

	msg := f.messages.byMessageID["<po@acme>"]
	if msg.Status != store.MessageFailed {
		t.Errorf("expected failed, got %s", msg.Status)
	}
}

func TestIngest_PanicRecovered(t *testing.T) {
	f := newFixture()
	f.dispatcher.panicWith = "boom"

	if err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>")); err != nil {
		t.Fatalf("panic should be absorbed, got: %v", err)
	}

	msg := f.messages.byMessageID["<po@acme>"]
	if msg.Status != store.MessageFailed {
		t.Errorf("expected failed, got %s", msg.Status)
	}

	found := false
	for _, a := range f.alerter.alerts {
		if a.Kind == alerts.KindPipelinePanic {
			found = true
		}
	}
	if !found {
		t.Error("expected a pipeline panic alert")
	}
}

func TestIngest_InsertErrorForgetsDedup(t *testing.T) {
	f := newFixture()
	f.messages.insertErr = errors.New("db down")

	err := f.pipeline.Ingest(context.Background(), f.scope, testEnvelope("<po@acme>"))
	if err == nil {
		t.Fatal("expected error")
	}

	if len(f.dedup.forgotten) != 1 || f.dedup.forgotten[0] != "<po@acme>" {
		t.Errorf("expected dedup marker forgotten, got %v", f.dedup.forgotten)
	}
}

func TestIngest_RequiresScope(t *testing.T) {
	f := newFixture()

	var zero tenant.Scope
	if err := f.pipeline.Ingest(context.Background(), zero, testEnvelope("<po@acme>")); !errors.Is(err, tenant.ErrNoTenantScope) {
		t.Fatalf("expected ErrNoTenantScope, got: %v", err)
	}
}
