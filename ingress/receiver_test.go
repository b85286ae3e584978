package ingress

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

type stubEnqueuer struct {
	messages []*core.JobExecutionMessage
	err      error
}

func (e *stubEnqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func testReceiver(t *testing.T) (*Receiver, *core.MemoryLedgerStore, *stubEnqueuer) {
	t.Helper()
	ledger := core.NewMemoryLedgerStore()
	enqueuer := &stubEnqueuer{}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	verifier := NewSignatureVerifier("whsec_test", 5*time.Minute)
	verifier.Now = func() time.Time { return now }
	receiver := NewReceiver(verifier, ledger, enqueuer)
	receiver.Now = func() time.Time { return now }
	return receiver, ledger, enqueuer
}

func signedBody(t *testing.T, body []byte) string {
	t.Helper()
	return SignPayload("whsec_test", time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), body)
}

func TestReceiverAcceptsAndEnqueues(t *testing.T) {
	receiver, ledger, enqueuer := testReceiver(t)
	ctx := context.Background()
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	receipt, err := receiver.Receive(ctx, body, signedBody(t, body))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !receipt.Accepted {
		t.Fatal("expected delivery accepted")
	}
	if receipt.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on accept, got %d", receipt.StatusCode)
	}
	if receipt.EventID != "evt_1" {
		t.Fatalf("expected event id evt_1, got %q", receipt.EventID)
	}

	entry, err := ledger.GetByEventID(ctx, "evt_1")
	if err != nil {
		t.Fatalf("get ledger entry: %v", err)
	}
	if entry.Status != core.LedgerStatusPending {
		t.Fatalf("expected pending entry, got %q", entry.Status)
	}
	if entry.EventType != "invoice.paid" {
		t.Fatalf("expected event type recorded, got %q", entry.EventType)
	}

	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != core.JobIDProcessEvent {
		t.Fatalf("expected job id %q, got %q", core.JobIDProcessEvent, msg.JobID)
	}
	if msg.Parameters["event_id"] != "evt_1" {
		t.Fatalf("expected event_id parameter, got %v", msg.Parameters)
	}
}

func TestReceiverRejectsInvalidSignatureWithoutLedgerWrite(t *testing.T) {
	receiver, ledger, enqueuer := testReceiver(t)
	ctx := context.Background()
	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	receipt, err := receiver.Receive(ctx, body, "t=1756555200,v1=deadbeef")
	if err == nil {
		t.Fatal("expected signature error")
	}
	if receipt.Accepted {
		t.Fatal("expected rejection")
	}
	if receipt.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", receipt.StatusCode)
	}

	if _, err := ledger.GetByEventID(ctx, "evt_1"); !errors.Is(err, core.ErrLedgerEntryNotFound) {
		t.Fatalf("expected no ledger write, got %v", err)
	}
	if len(enqueuer.messages) != 0 {
		t.Fatalf("expected no enqueue, got %d", len(enqueuer.messages))
	}
}

func TestReceiverRejectsMalformedPayload(t *testing.T) {
	receiver, ledger, _ := testReceiver(t)
	ctx := context.Background()
	body := []byte(`{"type":"invoice.paid"}`)

	receipt, err := receiver.Receive(ctx, body, signedBody(t, body))
	if err == nil {
		t.Fatal("expected payload error")
	}
	if receipt.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", receipt.StatusCode)
	}
	if _, err := ledger.GetByEventID(ctx, ""); !errors.Is(err, core.ErrLedgerEntryNotFound) {
		t.Fatalf("expected no ledger write, got %v", err)
	}
}

func TestReceiverDedupesRedelivery(t *testing.T) {
	receiver, _, enqueuer := testReceiver(t)
	ctx := context.Background()
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	if _, err := receiver.Receive(ctx, body, signedBody(t, body)); err != nil {
		t.Fatalf("first receive: %v", err)
	}

	receipt, err := receiver.Receive(ctx, body, signedBody(t, body))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !receipt.Accepted || !receipt.Duplicate {
		t.Fatalf("expected accepted duplicate, got %+v", receipt)
	}
	if receipt.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", receipt.StatusCode)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("duplicate must not re-enqueue, got %d jobs", len(enqueuer.messages))
	}
}

func TestReceiverReenqueuesFailedEntryOnRedelivery(t *testing.T) {
	receiver, ledger, enqueuer := testReceiver(t)
	ctx := context.Background()
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	if _, err := receiver.Receive(ctx, body, signedBody(t, body)); err != nil {
		t.Fatalf("first receive: %v", err)
	}
	if _, err := ledger.MarkFailed(ctx, "evt_1", errors.New("provider timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	receipt, err := receiver.Receive(ctx, body, signedBody(t, body))
	if err != nil {
		t.Fatalf("redelivery of failed event: %v", err)
	}
	if !receipt.Accepted {
		t.Fatal("expected redelivery accepted")
	}
	if receipt.Duplicate {
		t.Fatal("failed entry redelivery is not a duplicate accept")
	}
	if len(enqueuer.messages) != 2 {
		t.Fatalf("expected re-enqueue for failed entry, got %d jobs", len(enqueuer.messages))
	}
}

func TestReceiverMarksFailedOnEnqueueError(t *testing.T) {
	receiver, ledger, enqueuer := testReceiver(t)
	enqueuer.err = errors.New("queue unavailable")
	ctx := context.Background()
	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)

	receipt, err := receiver.Receive(ctx, body, signedBody(t, body))
	if err == nil {
		t.Fatal("expected enqueue error surfaced")
	}
	if receipt.Accepted {
		t.Fatal("expected rejection so the provider redelivers")
	}
	if receipt.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", receipt.StatusCode)
	}

	entry, getErr := ledger.GetByEventID(ctx, "evt_1")
	if getErr != nil {
		t.Fatalf("get ledger entry: %v", getErr)
	}
	if entry.Status != core.LedgerStatusFailed {
		t.Fatalf("expected failed entry after enqueue error, got %q", entry.Status)
	}
}
