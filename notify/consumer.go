package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

// Sender is the outbound side of notification delivery: mail, chat, internal
// event bus. Implementations decide the transport per template.
type Sender interface {
	Send(ctx context.Context, notification core.Notification) error
}

// Consumer drains notification jobs from the queue. Sends are deduped on the
// idempotency key so duplicate job deliveries never notify twice; the dispatch
// ledger records only successful sends, leaving failures to the queue's retry.
type Consumer struct {
	Ledger core.NotificationDispatchLedger
	Sender Sender
	Logger core.Logger
	Now    func() time.Time
}

func NewConsumer(ledger core.NotificationDispatchLedger, sender Sender) *Consumer {
	return &Consumer{
		Ledger: ledger,
		Sender: sender,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *Consumer) Handle(ctx context.Context, msg *core.JobExecutionMessage) error {
	if c == nil || c.Ledger == nil || c.Sender == nil {
		return fmt.Errorf("notify: consumer requires ledger and sender")
	}
	notification, err := notificationFromMessage(msg)
	if err != nil {
		return err
	}

	seen, err := c.Ledger.Seen(ctx, notification.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("notify: check dispatch ledger: %w", err)
	}
	if seen {
		c.logInfo("notification already dispatched", "idempotency_key", notification.IdempotencyKey)
		return nil
	}

	if err := c.Sender.Send(ctx, notification); err != nil {
		return fmt.Errorf("notify: send %q: %w", notification.IdempotencyKey, err)
	}

	if err := c.Ledger.Record(ctx, core.NotificationDispatch{
		TemplateID:     notification.TemplateID,
		RecipientKey:   notification.RecipientKey,
		IdempotencyKey: notification.IdempotencyKey,
		Status:         "sent",
		Metadata:       notification.Metadata,
		CreatedAt:      c.now(),
	}); err != nil {
		// The send happened; a missing ledger row risks one duplicate on
		// redelivery, which downstream consumers tolerate.
		c.logError("record notification dispatch",
			"idempotency_key", notification.IdempotencyKey,
			"error", err,
		)
	}
	return nil
}

func notificationFromMessage(msg *core.JobExecutionMessage) (core.Notification, error) {
	if msg == nil || msg.Parameters == nil {
		return core.Notification{}, fmt.Errorf("notify: job message is empty")
	}
	templateID, _ := msg.Parameters["template_id"].(string)
	recipientKey, _ := msg.Parameters["recipient_key"].(string)
	idempotencyKey, _ := msg.Parameters["idempotency_key"].(string)
	metadata, _ := msg.Parameters["metadata"].(map[string]any)

	templateID = strings.TrimSpace(templateID)
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if templateID == "" || idempotencyKey == "" {
		return core.Notification{}, fmt.Errorf("notify: job message is missing template or idempotency key")
	}
	return core.Notification{
		TemplateID:     templateID,
		RecipientKey:   strings.TrimSpace(recipientKey),
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	}, nil
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Consumer) logInfo(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Info(msg, args...)
	}
}

func (c *Consumer) logError(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Error(msg, args...)
	}
}
