package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

type stubHandler struct {
	category core.EventCategory
	calls    int
	errs     []error
	events   []core.EventContext
}

func (h *stubHandler) Category() core.EventCategory { return h.category }

func (h *stubHandler) Handle(ctx context.Context, event core.EventContext) error {
	h.events = append(h.events, event)
	idx := h.calls
	h.calls++
	if idx < len(h.errs) {
		return h.errs[idx]
	}
	return nil
}

type stubDelivery struct {
	msg      *core.JobExecutionMessage
	acked    bool
	nacked   bool
	nackOpts core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(ctx context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	d.nacked = true
	d.nackOpts = opts
	return nil
}

func newTestProcessor(t *testing.T, handlers ...core.EventHandler) (*Processor, *core.MemoryLedgerStore) {
	t.Helper()
	ledger := core.NewMemoryLedgerStore()
	registry := core.NewHandlerRegistry()
	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	proc := New(ledger, registry, nil)
	proc.Now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return proc, ledger
}

func seedEntry(t *testing.T, ledger *core.MemoryLedgerStore, eventID string, eventType string) {
	t.Helper()
	payload := []byte(`{"id":"` + eventID + `","type":"` + eventType + `","data":{"object":{"id":"obj_1"}}}`)
	_, _, err := ledger.Insert(context.Background(), core.LedgerEntry{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func processDelivery(proc *Processor, eventID string) *stubDelivery {
	delivery := &stubDelivery{
		msg: &core.JobExecutionMessage{
			JobID:      core.JobIDProcessEvent,
			Parameters: map[string]any{"event_id": eventID},
		},
	}
	proc.HandleDelivery(context.Background(), delivery)
	return delivery
}

func TestProcessEventSuccess(t *testing.T) {
	handler := &stubHandler{category: core.EventCategoryInvoice}
	proc, ledger := newTestProcessor(t, handler)
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	entry, err := proc.ProcessEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	if entry.Status != core.LedgerStatusCompleted {
		t.Fatalf("expected completed, got %q", entry.Status)
	}
	if handler.calls != 1 {
		t.Fatalf("expected 1 handler call, got %d", handler.calls)
	}

	event := handler.events[0]
	if event.EventID != "evt_1" || event.EventType != "invoice.paid" {
		t.Fatalf("unexpected event context %+v", event)
	}
	if event.ObjectID != "obj_1" {
		t.Fatalf("expected object id extracted, got %q", event.ObjectID)
	}

	stored, err := ledger.GetByEventID(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if stored.ProcessedAt == nil {
		t.Fatal("expected processed at set")
	}
}

func TestProcessEventUnknownTypeCompletes(t *testing.T) {
	handler := &stubHandler{category: core.EventCategoryInvoice}
	proc, ledger := newTestProcessor(t, handler)
	seedEntry(t, ledger, "evt_1", "charge.refunded")

	entry, err := proc.ProcessEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("unknown event type must not error: %v", err)
	}
	if entry.Status != core.LedgerStatusCompleted {
		t.Fatalf("expected completed, got %q", entry.Status)
	}
	if handler.calls != 0 {
		t.Fatalf("expected no handler call, got %d", handler.calls)
	}
}

func TestProcessEventNoHandlerForCategoryCompletes(t *testing.T) {
	proc, ledger := newTestProcessor(t, &stubHandler{category: core.EventCategoryCustomer})
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	entry, err := proc.ProcessEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("missing handler must not error: %v", err)
	}
	if entry.Status != core.LedgerStatusCompleted {
		t.Fatalf("expected completed, got %q", entry.Status)
	}
}

func TestProcessEventFailureIncrementsRetryCount(t *testing.T) {
	handler := &stubHandler{
		category: core.EventCategoryInvoice,
		errs:     []error{errors.New("provider timeout")},
	}
	proc, ledger := newTestProcessor(t, handler)
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	entry, err := proc.ProcessEvent(context.Background(), "evt_1")
	if err == nil {
		t.Fatal("expected handler error surfaced")
	}
	if entry.Status != core.LedgerStatusFailed {
		t.Fatalf("expected failed, got %q", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", entry.RetryCount)
	}
	if entry.Error != "provider timeout" {
		t.Fatalf("expected cause recorded, got %q", entry.Error)
	}

	// Retry succeeds: failed -> processing -> completed.
	entry, err = proc.ProcessEvent(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if entry.Status != core.LedgerStatusCompleted {
		t.Fatalf("expected completed after retry, got %q", entry.Status)
	}
}

func TestHandleDeliveryRetriesWithBackoffThenDeadLetters(t *testing.T) {
	handler := &stubHandler{
		category: core.EventCategoryInvoice,
		errs: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			errors.New("attempt 3"),
		},
	}
	proc, ledger := newTestProcessor(t, handler)
	proc.MaxAttempts = 3
	proc.RetryPolicy = ExponentialRetryPolicy{Initial: time.Second, Max: 30 * time.Second}
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	first := processDelivery(proc, "evt_1")
	if !first.nacked || !first.nackOpts.Requeue {
		t.Fatalf("expected requeue after first failure, got %+v", first.nackOpts)
	}
	if first.nackOpts.Delay != time.Second {
		t.Fatalf("expected 1s delay on attempt 1, got %v", first.nackOpts.Delay)
	}

	second := processDelivery(proc, "evt_1")
	if !second.nackOpts.Requeue {
		t.Fatal("expected requeue after second failure")
	}
	if second.nackOpts.Delay != 2*time.Second {
		t.Fatalf("expected 2s delay on attempt 2, got %v", second.nackOpts.Delay)
	}

	third := processDelivery(proc, "evt_1")
	if third.nackOpts.Requeue {
		t.Fatal("expected no requeue once the attempt cap is reached")
	}
	if !third.nackOpts.DeadLetter {
		t.Fatal("expected dead letter at the cap")
	}

	if handler.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", handler.calls)
	}

	entry, err := ledger.GetByEventID(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != core.LedgerStatusFailed {
		t.Fatalf("expected terminal failed, got %q", entry.Status)
	}
	if entry.RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %d", entry.RetryCount)
	}
}

func TestHandleDeliveryValidationErrorIsTerminal(t *testing.T) {
	handler := &stubHandler{
		category: core.EventCategoryInvoice,
		errs: []error{
			core.NewValidationError("object id missing", nil),
		},
	}
	proc, ledger := newTestProcessor(t, handler)
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	delivery := processDelivery(proc, "evt_1")
	if delivery.nackOpts.Requeue {
		t.Fatal("validation failures must not requeue")
	}
	if !delivery.nackOpts.DeadLetter {
		t.Fatal("expected dead letter for validation failure")
	}
	if handler.calls != 1 {
		t.Fatalf("expected single attempt, got %d", handler.calls)
	}
}

func TestHandleDeliverySuccessAcks(t *testing.T) {
	handler := &stubHandler{category: core.EventCategoryInvoice}
	proc, ledger := newTestProcessor(t, handler)
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	delivery := processDelivery(proc, "evt_1")
	if !delivery.acked {
		t.Fatal("expected ack on success")
	}
	if delivery.nacked {
		t.Fatal("expected no nack on success")
	}
}

type blockingHandler struct{}

func (h *blockingHandler) Category() core.EventCategory { return core.EventCategoryInvoice }

func (h *blockingHandler) Handle(ctx context.Context, _ core.EventContext) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleDeliveryBoundsProcessingToLockDuration(t *testing.T) {
	proc, ledger := newTestProcessor(t, &blockingHandler{})
	proc.LockDuration = 10 * time.Millisecond
	seedEntry(t, ledger, "evt_1", "invoice.paid")

	delivery := processDelivery(proc, "evt_1")
	if !delivery.nacked || !delivery.nackOpts.Requeue {
		t.Fatalf("expected retryable nack when the lock expires, got %+v", delivery.nackOpts)
	}

	entry, err := ledger.GetByEventID(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Status != core.LedgerStatusFailed {
		t.Fatalf("expected failed entry after lock expiry, got %q", entry.Status)
	}
}

func TestHandleDeliveryDropsPoisonMessage(t *testing.T) {
	proc, _ := newTestProcessor(t, &stubHandler{category: core.EventCategoryInvoice})

	delivery := &stubDelivery{
		msg: &core.JobExecutionMessage{JobID: core.JobIDProcessEvent},
	}
	proc.HandleDelivery(context.Background(), delivery)
	if !delivery.acked {
		t.Fatal("expected poison message acked away")
	}
}

func TestExponentialRetryPolicy(t *testing.T) {
	policy := ExponentialRetryPolicy{Initial: time.Second, Max: 10 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := policy.NextDelay(tc.attempt); got != tc.want {
			t.Fatalf("NextDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}

	// Zero-value policy falls back to 1s/30s.
	if got := (ExponentialRetryPolicy{}).NextDelay(1); got != time.Second {
		t.Fatalf("expected default initial 1s, got %v", got)
	}
}
