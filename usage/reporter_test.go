package usage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

type stubProvider struct {
	core.ProviderClient
	submissions []core.UsageSubmission
	receipts    map[string]string
	err         error
}

func (p *stubProvider) SubmitUsage(ctx context.Context, submission core.UsageSubmission) (core.UsageReceipt, error) {
	if p.err != nil {
		return core.UsageReceipt{}, p.err
	}
	p.submissions = append(p.submissions, submission)
	// The provider issues a stable event id per logical submission.
	key := fmt.Sprintf("%s/%s/%d", submission.SubscriptionID, submission.MeterID, submission.Timestamp.Unix())
	if p.receipts == nil {
		p.receipts = map[string]string{}
	}
	if _, ok := p.receipts[key]; !ok {
		p.receipts[key] = fmt.Sprintf("mbe_%d", len(p.receipts)+1)
	}
	return core.UsageReceipt{EventID: p.receipts[key]}, nil
}

func newTestReporter() (*Reporter, *stubProvider, *core.MemoryUsageStore) {
	provider := &stubProvider{}
	store := core.NewMemoryUsageStore()
	reporter := NewReporter(provider, store)
	reporter.Now = func() time.Time {
		return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	}
	return reporter, provider, store
}

func TestReportSubmitsAndRecords(t *testing.T) {
	reporter, provider, store := newTestReporter()
	ctx := context.Background()

	record, err := reporter.Report(ctx, core.UsageSubmission{
		SubscriptionID: "sub_1",
		MeterID:        "api_calls",
		Quantity:       10,
		Timestamp:      time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if record.EventID == "" {
		t.Fatal("expected provider event id recorded")
	}
	if len(provider.submissions) != 1 {
		t.Fatalf("expected 1 provider submission, got %d", len(provider.submissions))
	}

	records, err := store.ListBySubscription(ctx, "sub_1",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 local record, got %d", len(records))
	}
}

func TestReportReplayIsIdempotent(t *testing.T) {
	reporter, _, store := newTestReporter()
	ctx := context.Background()

	submission := core.UsageSubmission{
		SubscriptionID: "sub_1",
		MeterID:        "api_calls",
		Quantity:       10,
		Timestamp:      time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
	}
	first, err := reporter.Report(ctx, submission)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	second, err := reporter.Report(ctx, submission)
	if err != nil {
		t.Fatalf("replay report: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected single record on replay, got %q and %q", first.ID, second.ID)
	}

	records, _ := store.ListBySubscription(ctx, "sub_1",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	)
	if len(records) != 1 {
		t.Fatalf("expected 1 record after replay, got %d", len(records))
	}
}

func TestReportProviderFailureWritesNothing(t *testing.T) {
	reporter, provider, store := newTestReporter()
	provider.err = errors.New("connection reset")
	ctx := context.Background()

	_, err := reporter.Report(ctx, core.UsageSubmission{
		SubscriptionID: "sub_1",
		MeterID:        "api_calls",
		Quantity:       10,
	})
	if err == nil {
		t.Fatal("expected provider failure surfaced")
	}
	if core.IsTerminalProcessingError(err) {
		t.Fatal("provider failures must stay retryable")
	}

	records, _ := store.ListBySubscription(ctx, "sub_1",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	if len(records) != 0 {
		t.Fatalf("expected no local record on provider failure, got %d", len(records))
	}
}

func TestReportValidation(t *testing.T) {
	reporter, _, _ := newTestReporter()
	ctx := context.Background()

	cases := []struct {
		name       string
		submission core.UsageSubmission
	}{
		{"missing subscription", core.UsageSubmission{MeterID: "api_calls", Quantity: 1}},
		{"missing meter", core.UsageSubmission{SubscriptionID: "sub_1", Quantity: 1}},
		{"negative quantity", core.UsageSubmission{SubscriptionID: "sub_1", MeterID: "api_calls", Quantity: -5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reporter.Report(ctx, tc.submission)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !core.IsTerminalProcessingError(err) {
				t.Fatal("expected terminal validation error")
			}
		})
	}
}

func TestReportZeroQuantityIsValid(t *testing.T) {
	reporter, provider, _ := newTestReporter()
	ctx := context.Background()

	// A meter can legitimately report no usage for a period.
	record, err := reporter.Report(ctx, core.UsageSubmission{
		SubscriptionID: "sub_1",
		MeterID:        "api_calls",
		Quantity:       0,
		Timestamp:      time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("zero quantity report: %v", err)
	}
	if record.Quantity != 0 {
		t.Fatalf("expected zero quantity recorded, got %d", record.Quantity)
	}
	if len(provider.submissions) != 1 {
		t.Fatalf("expected zero quantity submitted to provider, got %d submissions", len(provider.submissions))
	}
}

func TestSummaryAggregates(t *testing.T) {
	reporter, _, _ := newTestReporter()
	ctx := context.Background()

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	for i, quantity := range []int64{10, 20, 5} {
		meter := "api_calls"
		if quantity == 5 {
			meter = "storage_gb"
		}
		_, err := reporter.Report(ctx, core.UsageSubmission{
			SubscriptionID: "sub_1",
			MeterID:        meter,
			Quantity:       quantity,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("report %d: %v", i, err)
		}
	}

	summary, err := reporter.Summary(ctx, "sub_1",
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalQuantity != 35 {
		t.Fatalf("expected total 35, got %d", summary.TotalQuantity)
	}
	if summary.Count != 3 {
		t.Fatalf("expected count 3, got %d", summary.Count)
	}
	if summary.Meters["api_calls"] != 30 || summary.Meters["storage_gb"] != 5 {
		t.Fatalf("unexpected meter breakdown %v", summary.Meters)
	}
}

func TestSummaryValidatesPeriod(t *testing.T) {
	reporter, _, _ := newTestReporter()
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	if _, err := reporter.Summary(context.Background(), "sub_1", start, start); err == nil {
		t.Fatal("expected empty period rejected")
	}
	if _, err := reporter.Summary(context.Background(), "", start, start.Add(time.Hour)); err == nil {
		t.Fatal("expected missing subscription rejected")
	}
}
