package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

var (
	ErrLedgerEntryNotFound  = errors.New("core: ledger entry not found")
	ErrCustomerNotFound     = errors.New("core: billing customer not found")
	ErrSubscriptionNotFound = errors.New("core: subscription not found")
	ErrProductNotFound      = errors.New("core: product not found")
	ErrPriceNotFound        = errors.New("core: price not found")
	ErrInvoiceNotFound      = errors.New("core: invoice not found")
)

// LedgerStore is the durable idempotency ledger. EventID carries a unique
// constraint; Insert is the sole duplicate-delivery guard.
type LedgerStore interface {
	// Insert persists a new pending entry. When an entry for the same event
	// id already exists the existing entry is returned with created=false.
	Insert(ctx context.Context, entry LedgerEntry) (LedgerEntry, bool, error)
	GetByEventID(ctx context.Context, eventID string) (LedgerEntry, error)
	MarkProcessing(ctx context.Context, eventID string) (LedgerEntry, error)
	MarkCompleted(ctx context.Context, eventID string, processedAt time.Time) error
	// MarkFailed records the cause, increments the retry count, and returns
	// the updated entry.
	MarkFailed(ctx context.Context, eventID string, cause error) (LedgerEntry, error)
	ListFailed(ctx context.Context, limit int) ([]LedgerEntry, error)
}

type CustomerStore interface {
	Create(ctx context.Context, customer Customer) (Customer, error)
	Get(ctx context.Context, id string) (Customer, error)
	GetByExternalID(ctx context.Context, externalID string) (Customer, error)
	Update(ctx context.Context, customer Customer) (Customer, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, subscription Subscription) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	GetByExternalID(ctx context.Context, externalID string) (Subscription, error)
	Update(ctx context.Context, subscription Subscription) (Subscription, error)
}

type ProductStore interface {
	Create(ctx context.Context, product Product) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
	GetByExternalID(ctx context.Context, externalID string) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
}

type PriceStore interface {
	Create(ctx context.Context, price Price) (Price, error)
	Get(ctx context.Context, id string) (Price, error)
	GetByExternalID(ctx context.Context, externalID string) (Price, error)
	Update(ctx context.Context, price Price) (Price, error)
}

type InvoiceStore interface {
	Create(ctx context.Context, invoice Invoice) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	GetByExternalID(ctx context.Context, externalID string) (Invoice, error)
	Update(ctx context.Context, invoice Invoice) (Invoice, error)
}

// UsageStore is append-only. Create is idempotent on the provider-issued
// event id: replaying a submission returns the existing record.
type UsageStore interface {
	Create(ctx context.Context, record UsageRecord) (UsageRecord, error)
	ListBySubscription(
		ctx context.Context,
		subscriptionID string,
		start time.Time,
		end time.Time,
	) ([]UsageRecord, error)
}

// SkipStore records intentionally skipped reconciliations for the sweeper.
// Record is idempotent per (kind, external id) while the skip is unresolved.
type SkipStore interface {
	Record(ctx context.Context, skip SyncSkip) error
	ListPending(ctx context.Context, limit int) ([]SyncSkip, error)
	Resolve(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
}

// NotificationDispatchLedger guards notification sends against duplicate job
// delivery.
type NotificationDispatchLedger interface {
	Seen(ctx context.Context, idempotencyKey string) (bool, error)
	Record(ctx context.Context, dispatch NotificationDispatch) error
}

// StoreProvider exposes every persistence surface the engine wires. A single
// provider backs one database handle.
type StoreProvider interface {
	LedgerStore() LedgerStore
	CustomerStore() CustomerStore
	SubscriptionStore() SubscriptionStore
	ProductStore() ProductStore
	PriceStore() PriceStore
	InvoiceStore() InvoiceStore
	UsageStore() UsageStore
	SkipStore() SkipStore
	NotificationDispatchLedger() NotificationDispatchLedger
}

// RepositoryStoreFactory builds a StoreProvider from an opaque persistence
// client, typically a bun handle or a wrapper that can surface one.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// Notification is a request to notify an internal consumer about a billing
// event. Delivery is best effort and deduped on IdempotencyKey.
type Notification struct {
	TemplateID     string
	RecipientKey   string
	IdempotencyKey string
	Metadata       map[string]any
}

type Notifier interface {
	Dispatch(ctx context.Context, notification Notification) error
}

// ProviderCustomer is the authoritative customer snapshot fetched from the
// billing provider.
type ProviderCustomer struct {
	ID                     string
	Email                  string
	Name                   string
	DefaultPaymentMethodID string
	Balance                int64
	Delinquent             bool
	Deleted                bool
}

type ProviderSubscriptionItem struct {
	PriceID     string
	Quantity    int64
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

type ProviderSubscription struct {
	ID                string
	CustomerID        string
	Status            string
	Items             []ProviderSubscriptionItem
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	PausedAt          *time.Time
}

type ProviderProduct struct {
	ID          string
	Name        string
	Description string
	Active      bool
}

type ProviderPrice struct {
	ID            string
	ProductID     string
	Currency      string
	UnitAmount    int64
	Interval      string
	IntervalCount int64
	UsageType     string
	Active        bool
}

type ProviderInvoice struct {
	ID                string
	CustomerID        string
	SubscriptionID    string
	Status            string
	Currency          string
	AmountDue         int64
	AmountPaid        int64
	AmountRemaining   int64
	Subtotal          int64
	Total             int64
	TotalExcludingTax *int64
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	DueDate           *time.Time
	PaidAt            *time.Time
	AttemptCount      int
}

type ProviderPaymentIntent struct {
	ID               string
	CustomerID       string
	InvoiceID        string
	Status           string
	Amount           int64
	Currency         string
	LastErrorMessage string
}

type UsageSubmission struct {
	SubscriptionID string
	MeterID        string
	Quantity       int64
	Timestamp      time.Time
}

// UsageReceipt carries the provider-issued idempotency identifier for an
// accepted usage submission.
type UsageReceipt struct {
	EventID string
}

// ProviderClient is the opaque outbound RPC surface of the billing provider.
// Every call can fail; timeout and retry semantics are the client's own.
type ProviderClient interface {
	GetCustomer(ctx context.Context, externalID string) (ProviderCustomer, error)
	GetSubscription(ctx context.Context, externalID string) (ProviderSubscription, error)
	GetProduct(ctx context.Context, externalID string) (ProviderProduct, error)
	GetPrice(ctx context.Context, externalID string) (ProviderPrice, error)
	GetInvoice(ctx context.Context, externalID string) (ProviderInvoice, error)
	GetPaymentIntent(ctx context.Context, externalID string) (ProviderPaymentIntent, error)
	SubmitUsage(ctx context.Context, submission UsageSubmission) (UsageReceipt, error)
}

const (
	JobIDProcessEvent     = "billing.webhook.process"
	JobIDNotificationSend = "billing.notification.send"
	JobIDSkipSweep        = "billing.reconcile.sweep"
)

// JobExecutionMessage is the queue-agnostic job contract carried between the
// receiver, the durable queue, and the processor.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
