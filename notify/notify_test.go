package notify

import (
	"context"
	"errors"
	"testing"

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

type stubSender struct {
	sent []core.Notification
	err  error
}

func (s *stubSender) Send(ctx context.Context, notification core.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, notification)
	return nil
}

func TestDispatcherEnqueuesNotification(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	dispatcher := NewDispatcher(enqueuer)

	err := dispatcher.Dispatch(context.Background(), core.Notification{
		TemplateID:     "invoice-payment-failed",
		RecipientKey:   "in_1",
		IdempotencyKey: "invoice.payment_failed/evt_1",
		Metadata:       map[string]any{"invoice_id": "in_1"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected 1 job, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != core.JobIDNotificationSend {
		t.Fatalf("unexpected job id %q", msg.JobID)
	}
	if msg.Parameters["idempotency_key"] != "invoice.payment_failed/evt_1" {
		t.Fatalf("unexpected parameters %v", msg.Parameters)
	}
}

func TestDispatcherValidates(t *testing.T) {
	dispatcher := NewDispatcher(&stubEnqueuer{})

	if err := dispatcher.Dispatch(context.Background(), core.Notification{IdempotencyKey: "k"}); err == nil {
		t.Fatal("expected missing template rejected")
	}
	if err := dispatcher.Dispatch(context.Background(), core.Notification{TemplateID: "t"}); err == nil {
		t.Fatal("expected missing idempotency key rejected")
	}
}

func notificationMessage(idempotencyKey string) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID: core.JobIDNotificationSend,
		Parameters: map[string]any{
			"template_id":     "invoice-payment-failed",
			"recipient_key":   "in_1",
			"idempotency_key": idempotencyKey,
			"metadata":        map[string]any{"invoice_id": "in_1"},
		},
	}
}

func TestConsumerSendsAndRecords(t *testing.T) {
	ledger := core.NewMemoryNotificationDispatchLedger()
	sender := &stubSender{}
	consumer := NewConsumer(ledger, sender)
	ctx := context.Background()

	if err := consumer.Handle(ctx, notificationMessage("key_1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sender.sent))
	}

	seen, err := ledger.Seen(ctx, "key_1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if !seen {
		t.Fatal("expected dispatch recorded")
	}
}

func TestConsumerDedupesRedeliveredJob(t *testing.T) {
	ledger := core.NewMemoryNotificationDispatchLedger()
	sender := &stubSender{}
	consumer := NewConsumer(ledger, sender)
	ctx := context.Background()

	if err := consumer.Handle(ctx, notificationMessage("key_1")); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := consumer.Handle(ctx, notificationMessage("key_1")); err != nil {
		t.Fatalf("redelivered handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected single send across redeliveries, got %d", len(sender.sent))
	}
}

func TestConsumerSendFailureLeavesRetryOpen(t *testing.T) {
	ledger := core.NewMemoryNotificationDispatchLedger()
	sender := &stubSender{err: errors.New("smtp down")}
	consumer := NewConsumer(ledger, sender)
	ctx := context.Background()

	if err := consumer.Handle(ctx, notificationMessage("key_1")); err == nil {
		t.Fatal("expected send failure surfaced for queue retry")
	}

	seen, _ := ledger.Seen(ctx, "key_1")
	if seen {
		t.Fatal("failed send must not be recorded as dispatched")
	}

	// Retry after the transport recovers.
	sender.err = nil
	if err := consumer.Handle(ctx, notificationMessage("key_1")); err != nil {
		t.Fatalf("retry handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected send on retry, got %d", len(sender.sent))
	}
}

func TestConsumerRejectsMalformedMessage(t *testing.T) {
	consumer := NewConsumer(core.NewMemoryNotificationDispatchLedger(), &stubSender{})

	if err := consumer.Handle(context.Background(), nil); err == nil {
		t.Fatal("expected nil message rejected")
	}
	if err := consumer.Handle(context.Background(), &core.JobExecutionMessage{
		JobID:      core.JobIDNotificationSend,
		Parameters: map[string]any{"template_id": "t"},
	}); err == nil {
		t.Fatal("expected missing idempotency key rejected")
	}
}
