package ingress

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

// Receipt is the synchronous answer to a webhook delivery. Accepted deliveries
// are processed later by the queue worker; the provider only learns whether
// the event was durably recorded.
type Receipt struct {
	Accepted   bool
	StatusCode int
	Duplicate  bool
	EventID    string
}

// Receiver is the webhook ingress path: verify, parse, record, enqueue. It
// never executes reconciliation inline.
type Receiver struct {
	Verifier Verifier
	Ledger   core.LedgerStore
	Enqueuer core.JobEnqueuer
	Logger   core.Logger
	Now      func() time.Time
}

func NewReceiver(verifier Verifier, ledger core.LedgerStore, enqueuer core.JobEnqueuer) *Receiver {
	return &Receiver{
		Verifier: verifier,
		Ledger:   ledger,
		Enqueuer: enqueuer,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Receive handles one provider delivery. Signature failures answer 400 with no
// ledger write. Accepted and duplicate deliveries both answer 200 so the
// provider stops redelivering; duplicates are not re-enqueued, unless the
// recorded entry already failed, in which case redelivery re-drives it.
func (r *Receiver) Receive(ctx context.Context, body []byte, signatureHeader string) (Receipt, error) {
	if r == nil || r.Ledger == nil || r.Enqueuer == nil {
		return Receipt{}, fmt.Errorf("ingress: receiver requires ledger and enqueuer")
	}

	if r.Verifier != nil {
		if err := r.Verifier.Verify(ctx, body, signatureHeader); err != nil {
			return Receipt{
				Accepted:   false,
				StatusCode: http.StatusBadRequest,
			}, newSignatureError(err)
		}
	}

	event, err := core.ParseWebhookEvent(body)
	if err != nil {
		return Receipt{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
		}, newMalformedPayloadError(err)
	}

	entry, created, err := r.Ledger.Insert(ctx, core.LedgerEntry{
		EventID:   event.ID,
		EventType: event.Type,
		Livemode:  event.Livemode,
		Payload:   append([]byte(nil), body...),
		Status:    core.LedgerStatusPending,
		CreatedAt: r.now(),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("ingress: record webhook event %q: %w", event.ID, err)
	}

	if !created {
		if entry.Status != core.LedgerStatusFailed {
			r.logInfo("webhook delivery deduped",
				"event_id", event.ID,
				"event_type", event.Type,
				"status", entry.Status,
			)
			return Receipt{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Duplicate:  true,
				EventID:    event.ID,
			}, nil
		}
		// Provider redelivery of a failed event is the recovery path once
		// queue retries are exhausted.
		r.logInfo("webhook redelivery re-driving failed event",
			"event_id", event.ID,
			"event_type", event.Type,
			"retry_count", entry.RetryCount,
		)
	}

	if err := r.enqueue(ctx, event.ID); err != nil {
		if _, markErr := r.Ledger.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logError("mark ledger entry failed after enqueue error",
				"event_id", event.ID,
				"error", markErr,
			)
		}
		return Receipt{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			EventID:    event.ID,
		}, fmt.Errorf("ingress: enqueue webhook event %q: %w", event.ID, err)
	}

	return Receipt{
		Accepted:   true,
		StatusCode: http.StatusOK,
		EventID:    event.ID,
	}, nil
}

func (r *Receiver) enqueue(ctx context.Context, eventID string) error {
	return r.Enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: core.JobIDProcessEvent,
		Parameters: map[string]any{
			"event_id": eventID,
		},
		IdempotencyKey: strings.Join([]string{core.JobIDProcessEvent, eventID}, ":"),
		DedupPolicy:    "ignore",
	})
}

func (r *Receiver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Receiver) logInfo(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Info(msg, args...)
	}
}

func (r *Receiver) logError(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Error(msg, args...)
	}
}
