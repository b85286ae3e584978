package query

import (
	"fmt"
	"strings"
	"time"
)

const (
	TypeGetLedgerEntry   = "billing.query.ledger.get"
	TypeListFailedEvents = "billing.query.ledger.list_failed"
	TypeGetUsageSummary  = "billing.query.usage.summary"
)

type GetLedgerEntryMessage struct {
	EventID string
}

func (GetLedgerEntryMessage) Type() string { return TypeGetLedgerEntry }

func (m GetLedgerEntryMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListFailedEventsMessage struct {
	Limit int
}

func (ListFailedEventsMessage) Type() string { return TypeListFailedEvents }

func (m ListFailedEventsMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetUsageSummaryMessage struct {
	SubscriptionID string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

func (GetUsageSummaryMessage) Type() string { return TypeGetUsageSummary }

func (m GetUsageSummaryMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return fmt.Errorf("query: subscription id is required")
	}
	if !m.PeriodEnd.After(m.PeriodStart) {
		return fmt.Errorf("query: period end must be after period start")
	}
	return nil
}
