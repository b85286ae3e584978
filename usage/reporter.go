package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

// Reporter pushes metered usage to the provider and mirrors accepted
// submissions locally. The provider is written first; a local record exists
// only for usage the provider has acknowledged.
type Reporter struct {
	Provider core.ProviderClient
	Store    core.UsageStore
	Logger   core.Logger
	Now      func() time.Time
}

func NewReporter(provider core.ProviderClient, store core.UsageStore) *Reporter {
	return &Reporter{
		Provider: provider,
		Store:    store,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Report submits one usage quantity. Replaying an accepted submission is
// idempotent: the provider returns the same event id and the local store
// dedupes on it.
func (r *Reporter) Report(ctx context.Context, submission core.UsageSubmission) (core.UsageRecord, error) {
	if r == nil || r.Provider == nil || r.Store == nil {
		return core.UsageRecord{}, fmt.Errorf("usage: reporter requires provider and store")
	}

	submission.SubscriptionID = strings.TrimSpace(submission.SubscriptionID)
	submission.MeterID = strings.TrimSpace(submission.MeterID)
	if submission.SubscriptionID == "" {
		return core.UsageRecord{}, core.NewValidationError("usage subscription id is required", nil)
	}
	if submission.MeterID == "" {
		return core.UsageRecord{}, core.NewValidationError("usage meter id is required", nil)
	}
	// Zero is a valid meter reading; only negative quantities are malformed.
	if submission.Quantity < 0 {
		return core.UsageRecord{}, core.NewValidationError("usage quantity must not be negative", map[string]any{
			"quantity": submission.Quantity,
		})
	}
	if submission.Timestamp.IsZero() {
		submission.Timestamp = r.now()
	}

	receipt, err := r.Provider.SubmitUsage(ctx, submission)
	if err != nil {
		return core.UsageRecord{}, core.NewProviderCallError(err, "SubmitUsage", submission.SubscriptionID)
	}
	if strings.TrimSpace(receipt.EventID) == "" {
		return core.UsageRecord{}, fmt.Errorf("usage: provider receipt is missing event id")
	}

	record, err := r.Store.Create(ctx, core.UsageRecord{
		SubscriptionID: submission.SubscriptionID,
		MeterID:        submission.MeterID,
		Quantity:       submission.Quantity,
		Timestamp:      submission.Timestamp.UTC(),
		EventID:        receipt.EventID,
	})
	if err != nil {
		// The provider accepted the usage; the mirror is behind but billing
		// is unaffected.
		r.logError("record accepted usage locally",
			"subscription_id", submission.SubscriptionID,
			"event_id", receipt.EventID,
			"error", err,
		)
		return core.UsageRecord{}, fmt.Errorf("usage: record submission %q: %w", receipt.EventID, err)
	}
	return record, nil
}

// Summary aggregates the local usage mirror for one subscription over
// [start, end). It is a cached view; the provider's meter summaries remain
// authoritative for invoicing.
func (r *Reporter) Summary(ctx context.Context, subscriptionID string, start time.Time, end time.Time) (core.UsageSummary, error) {
	if r == nil || r.Store == nil {
		return core.UsageSummary{}, fmt.Errorf("usage: reporter requires store")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return core.UsageSummary{}, core.NewValidationError("usage subscription id is required", nil)
	}
	if !end.After(start) {
		return core.UsageSummary{}, core.NewValidationError("usage period end must be after start", nil)
	}

	records, err := r.Store.ListBySubscription(ctx, subscriptionID, start, end)
	if err != nil {
		return core.UsageSummary{}, fmt.Errorf("usage: list records for %q: %w", subscriptionID, err)
	}

	summary := core.UsageSummary{
		SubscriptionID: subscriptionID,
		PeriodStart:    start,
		PeriodEnd:      end,
		Meters:         map[string]int64{},
	}
	for _, record := range records {
		summary.TotalQuantity += record.Quantity
		summary.Count++
		summary.Meters[record.MeterID] += record.Quantity
	}
	return summary, nil
}

func (r *Reporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reporter) logError(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Error(msg, args...)
	}
}
