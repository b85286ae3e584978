package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type ledgerEntryRecord struct {
	bun.BaseModel `bun:"table:billing_event_ledger,alias:bel"`

	ID          string     `bun:"id,pk"`
	EventID     string     `bun:"event_id,notnull,unique"`
	EventType   string     `bun:"event_type,notnull"`
	Livemode    bool       `bun:"livemode,notnull"`
	Payload     []byte     `bun:"payload,notnull"`
	Status      string     `bun:"status,notnull"`
	RetryCount  int        `bun:"retry_count,notnull"`
	Error       string     `bun:"error"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero"`
}

type customerRecord struct {
	bun.BaseModel `bun:"table:billing_customers,alias:bc"`

	ID                     string     `bun:"id,pk"`
	ExternalID             string     `bun:"external_id,notnull,unique"`
	TenantID               string     `bun:"tenant_id"`
	Email                  string     `bun:"email"`
	Name                   string     `bun:"name"`
	DefaultPaymentMethodID string     `bun:"default_payment_method_id"`
	Balance                int64      `bun:"balance,notnull"`
	Delinquent             bool       `bun:"delinquent,notnull"`
	DeactivatedAt          *time.Time `bun:"deactivated_at,nullzero"`
	CreatedAt              time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:billing_subscriptions,alias:bs"`

	ID                 string     `bun:"id,pk"`
	ExternalID         string     `bun:"external_id,notnull,unique"`
	CustomerID         string     `bun:"customer_id,notnull"`
	PriceID            string     `bun:"price_id"`
	Status             string     `bun:"status,notnull"`
	Quantity           int64      `bun:"quantity,notnull"`
	CurrentPeriodStart *time.Time `bun:"current_period_start,nullzero"`
	CurrentPeriodEnd   *time.Time `bun:"current_period_end,nullzero"`
	CancelAtPeriodEnd  bool       `bun:"cancel_at_period_end,notnull"`
	CanceledAt         *time.Time `bun:"canceled_at,nullzero"`
	TrialStart         *time.Time `bun:"trial_start,nullzero"`
	TrialEnd           *time.Time `bun:"trial_end,nullzero"`
	PausedAt           *time.Time `bun:"paused_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:billing_products,alias:bp"`

	ID          string    `bun:"id,pk"`
	ExternalID  string    `bun:"external_id,notnull,unique"`
	Name        string    `bun:"name"`
	Description string    `bun:"description"`
	Active      bool      `bun:"active,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type priceRecord struct {
	bun.BaseModel `bun:"table:billing_prices,alias:bpr"`

	ID            string    `bun:"id,pk"`
	ExternalID    string    `bun:"external_id,notnull,unique"`
	ProductID     string    `bun:"product_id,notnull"`
	Currency      string    `bun:"currency"`
	UnitAmount    int64     `bun:"unit_amount,notnull"`
	Interval      string    `bun:"interval"`
	IntervalCount int64     `bun:"interval_count,notnull"`
	UsageType     string    `bun:"usage_type"`
	Active        bool      `bun:"active,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type invoiceRecord struct {
	bun.BaseModel `bun:"table:billing_invoices,alias:bi"`

	ID              string     `bun:"id,pk"`
	ExternalID      string     `bun:"external_id,notnull,unique"`
	CustomerID      string     `bun:"customer_id,notnull"`
	SubscriptionID  *string    `bun:"subscription_id"`
	Status          string     `bun:"status,notnull"`
	Currency        string     `bun:"currency"`
	AmountDue       int64      `bun:"amount_due,notnull"`
	AmountPaid      int64      `bun:"amount_paid,notnull"`
	AmountRemaining int64      `bun:"amount_remaining,notnull"`
	Subtotal        int64      `bun:"subtotal,notnull"`
	Total           int64      `bun:"total,notnull"`
	Tax             *int64     `bun:"tax"`
	PeriodStart     *time.Time `bun:"period_start,nullzero"`
	PeriodEnd       *time.Time `bun:"period_end,nullzero"`
	DueDate         *time.Time `bun:"due_date,nullzero"`
	PaidAt          *time.Time `bun:"paid_at,nullzero"`
	AttemptCount    int        `bun:"attempt_count,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type usageRecordRecord struct {
	bun.BaseModel `bun:"table:billing_usage_records,alias:bur"`

	ID             string    `bun:"id,pk"`
	SubscriptionID string    `bun:"subscription_id,notnull"`
	MeterID        string    `bun:"meter_id,notnull"`
	Quantity       int64     `bun:"quantity,notnull"`
	Timestamp      time.Time `bun:"timestamp,notnull"`
	EventID        string    `bun:"event_id,notnull,unique"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type syncSkipRecord struct {
	bun.BaseModel `bun:"table:billing_sync_skips,alias:bss"`

	ID         string     `bun:"id,pk"`
	Kind       string     `bun:"kind,notnull"`
	ExternalID string     `bun:"external_id,notnull"`
	Reason     string     `bun:"reason"`
	Attempts   int        `bun:"attempts,notnull"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt *time.Time `bun:"resolved_at,nullzero"`
}

type notificationDispatchRecord struct {
	bun.BaseModel `bun:"table:billing_notification_dispatches,alias:bnd"`

	ID             string         `bun:"id,pk"`
	TemplateID     string         `bun:"template_id,notnull"`
	RecipientKey   string         `bun:"recipient_key"`
	IdempotencyKey string         `bun:"idempotency_key,notnull,unique"`
	Status         string         `bun:"status,notnull"`
	Error          string         `bun:"error"`
	Metadata       map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
