package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-billing-sync/core"
)

// Dispatcher hands notifications to the durable queue for async delivery.
// Callers on the reconciliation path treat dispatch failures as best effort.
type Dispatcher struct {
	Enqueuer core.JobEnqueuer
	Logger   core.Logger
}

func NewDispatcher(enqueuer core.JobEnqueuer) *Dispatcher {
	return &Dispatcher{Enqueuer: enqueuer}
}

var _ core.Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) Dispatch(ctx context.Context, notification core.Notification) error {
	if d == nil || d.Enqueuer == nil {
		return fmt.Errorf("notify: dispatcher requires enqueuer")
	}
	notification.TemplateID = strings.TrimSpace(notification.TemplateID)
	notification.IdempotencyKey = strings.TrimSpace(notification.IdempotencyKey)
	if notification.TemplateID == "" {
		return fmt.Errorf("notify: template id is required")
	}
	if notification.IdempotencyKey == "" {
		return fmt.Errorf("notify: idempotency key is required")
	}

	err := d.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: core.JobIDNotificationSend,
		Parameters: map[string]any{
			"template_id":     notification.TemplateID,
			"recipient_key":   notification.RecipientKey,
			"idempotency_key": notification.IdempotencyKey,
			"metadata":        notification.Metadata,
		},
		IdempotencyKey: strings.Join([]string{core.JobIDNotificationSend, notification.IdempotencyKey}, ":"),
		DedupPolicy:    "ignore",
	})
	if err != nil {
		return fmt.Errorf("notify: enqueue notification %q: %w", notification.IdempotencyKey, err)
	}
	return nil
}
