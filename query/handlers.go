package query

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-billing-sync/core"
)

type LedgerReader interface {
	GetLedgerEntry(ctx context.Context, eventID string) (core.LedgerEntry, error)
	ListFailedEvents(ctx context.Context, limit int) ([]core.LedgerEntry, error)
}

type UsageReader interface {
	GetUsageSummary(
		ctx context.Context,
		subscriptionID string,
		start time.Time,
		end time.Time,
	) (core.UsageSummary, error)
}

type GetLedgerEntryQuery struct {
	reader LedgerReader
}

func NewGetLedgerEntryQuery(reader LedgerReader) *GetLedgerEntryQuery {
	return &GetLedgerEntryQuery{reader: reader}
}

func (q *GetLedgerEntryQuery) Query(ctx context.Context, msg GetLedgerEntryMessage) (core.LedgerEntry, error) {
	if q == nil || q.reader == nil {
		return core.LedgerEntry{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.GetLedgerEntry(ctx, msg.EventID)
}

type ListFailedEventsQuery struct {
	reader LedgerReader
}

func NewListFailedEventsQuery(reader LedgerReader) *ListFailedEventsQuery {
	return &ListFailedEventsQuery{reader: reader}
}

func (q *ListFailedEventsQuery) Query(ctx context.Context, msg ListFailedEventsMessage) ([]core.LedgerEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.ListFailedEvents(ctx, msg.Limit)
}

type GetUsageSummaryQuery struct {
	reader UsageReader
}

func NewGetUsageSummaryQuery(reader UsageReader) *GetUsageSummaryQuery {
	return &GetUsageSummaryQuery{reader: reader}
}

func (q *GetUsageSummaryQuery) Query(ctx context.Context, msg GetUsageSummaryMessage) (core.UsageSummary, error) {
	if q == nil || q.reader == nil {
		return core.UsageSummary{}, queryDependencyError("query: usage reader is required")
	}
	return q.reader.GetUsageSummary(ctx, msg.SubscriptionID, msg.PeriodStart, msg.PeriodEnd)
}

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BillingErrorInternal)
}
