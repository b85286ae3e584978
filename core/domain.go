package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	LedgerStatusPending    = "pending"
	LedgerStatusProcessing = "processing"
	LedgerStatusCompleted  = "completed"
	LedgerStatusFailed     = "failed"
)

// LedgerEntry is the durable idempotency record for one provider webhook
// delivery. Entries are created at ingress, mutated only by the processor,
// and never deleted.
type LedgerEntry struct {
	ID          string
	EventID     string
	EventType   string
	Livemode    bool
	Payload     []byte
	Status      string
	RetryCount  int
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// EntityKind identifies one of the mirrored billing entity families.
type EntityKind string

const (
	EntityKindCustomer     EntityKind = "customer"
	EntityKindSubscription EntityKind = "subscription"
	EntityKindInvoice      EntityKind = "invoice"
	EntityKindProduct      EntityKind = "product"
	EntityKindPrice        EntityKind = "price"
)

func ParseEntityKind(value string) (EntityKind, error) {
	switch EntityKind(strings.TrimSpace(strings.ToLower(value))) {
	case EntityKindCustomer:
		return EntityKindCustomer, nil
	case EntityKindSubscription:
		return EntityKindSubscription, nil
	case EntityKindInvoice:
		return EntityKindInvoice, nil
	case EntityKindProduct:
		return EntityKindProduct, nil
	case EntityKindPrice:
		return EntityKindPrice, nil
	default:
		return "", fmt.Errorf("core: unknown entity kind %q", value)
	}
}

// Customer mirrors the provider's customer object. One customer is owned by
// exactly one tenant.
type Customer struct {
	ID                     string
	ExternalID             string
	TenantID               string
	Email                  string
	Name                   string
	DefaultPaymentMethodID string
	Balance                int64
	Delinquent             bool
	DeactivatedAt          *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Subscription mirrors the provider's subscription. Status is copied verbatim
// from the provider payload; no transition graph is enforced locally.
type Subscription struct {
	ID                 string
	ExternalID         string
	CustomerID         string
	PriceID            string
	Status             string
	Quantity           int64
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	PausedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Product struct {
	ID          string
	ExternalID  string
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Price always belongs to exactly one Product.
type Price struct {
	ID            string
	ExternalID    string
	ProductID     string
	Currency      string
	UnitAmount    int64
	Interval      string
	IntervalCount int64
	UsageType     string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Invoice belongs to one Customer and optionally one Subscription. Tax is
// derived from total minus total-excluding-tax when the provider reports the
// latter, nil otherwise.
type Invoice struct {
	ID              string
	ExternalID      string
	CustomerID      string
	SubscriptionID  *string
	Status          string
	Currency        string
	AmountDue       int64
	AmountPaid      int64
	AmountRemaining int64
	Subtotal        int64
	Total           int64
	Tax             *int64
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	DueDate         *time.Time
	PaidAt          *time.Time
	AttemptCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UsageRecord is an append-only local mirror of a usage submission accepted by
// the provider. EventID is the provider-issued idempotency identifier.
type UsageRecord struct {
	ID             string
	SubscriptionID string
	MeterID        string
	Quantity       int64
	Timestamp      time.Time
	EventID        string
	CreatedAt      time.Time
}

// UsageSummary is a local aggregation over cached usage records. It is
// explicitly non-authoritative for invoicing; the provider's own meter
// summaries govern what is billed.
type UsageSummary struct {
	SubscriptionID string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	TotalQuantity  int64
	Count          int
	Meters         map[string]int64
}

// SyncSkip records a reconciliation that was intentionally skipped because a
// referenced entity was unknown locally. The sweeper re-drives pending skips.
type SyncSkip struct {
	ID         string
	Kind       EntityKind
	ExternalID string
	Reason     string
	Attempts   int
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NotificationDispatch is the idempotent record of one delivered notification.
type NotificationDispatch struct {
	ID             string
	TemplateID     string
	RecipientKey   string
	IdempotencyKey string
	Status         string
	Error          string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// WebhookEvent is the minimal envelope every provider delivery carries.
type WebhookEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Livemode bool   `json:"livemode"`
	Created  int64  `json:"created"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhookEvent decodes the envelope and enforces the fields the ledger
// needs. Anything beyond id/type/data is left to the handlers.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	if len(body) == 0 {
		return WebhookEvent{}, fmt.Errorf("core: webhook payload is empty")
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("core: decode webhook payload: %w", err)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ID == "" {
		return WebhookEvent{}, fmt.Errorf("core: webhook event id is required")
	}
	if event.Type == "" {
		return WebhookEvent{}, fmt.Errorf("core: webhook event type is required")
	}
	return event, nil
}

// ObjectID extracts data.object.id from the envelope payload.
func (e WebhookEvent) ObjectID() string {
	if len(e.Data.Object) == 0 {
		return ""
	}
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Data.Object, &object); err != nil {
		return ""
	}
	return strings.TrimSpace(object.ID)
}
