package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedgerStore is an in-memory LedgerStore for tests and single-process
// deployments. The SQL store is the durable implementation.
type MemoryLedgerStore struct {
	mu      sync.Mutex
	byEvent map[string]LedgerEntry
	Now     func() time.Time
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		byEvent: map[string]LedgerEntry{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ LedgerStore = (*MemoryLedgerStore)(nil)

func (s *MemoryLedgerStore) Insert(ctx context.Context, entry LedgerEntry) (LedgerEntry, bool, error) {
	if s == nil {
		return LedgerEntry{}, false, fmt.Errorf("core: memory ledger store is nil")
	}
	entry.EventID = strings.TrimSpace(entry.EventID)
	if entry.EventID == "" {
		return LedgerEntry{}, false, fmt.Errorf("core: ledger event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byEvent[entry.EventID]; ok {
		return cloneLedgerEntry(existing), false, nil
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = LedgerStatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.byEvent[entry.EventID] = cloneLedgerEntry(entry)
	return entry, true, nil
}

func (s *MemoryLedgerStore) GetByEventID(ctx context.Context, eventID string) (LedgerEntry, error) {
	if s == nil {
		return LedgerEntry{}, fmt.Errorf("core: memory ledger store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byEvent[strings.TrimSpace(eventID)]
	if !ok {
		return LedgerEntry{}, ErrLedgerEntryNotFound
	}
	return cloneLedgerEntry(entry), nil
}

func (s *MemoryLedgerStore) MarkProcessing(ctx context.Context, eventID string) (LedgerEntry, error) {
	if s == nil {
		return LedgerEntry{}, fmt.Errorf("core: memory ledger store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byEvent[strings.TrimSpace(eventID)]
	if !ok {
		return LedgerEntry{}, ErrLedgerEntryNotFound
	}
	entry.Status = LedgerStatusProcessing
	s.byEvent[entry.EventID] = cloneLedgerEntry(entry)
	return cloneLedgerEntry(entry), nil
}

func (s *MemoryLedgerStore) MarkCompleted(ctx context.Context, eventID string, processedAt time.Time) error {
	if s == nil {
		return fmt.Errorf("core: memory ledger store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byEvent[strings.TrimSpace(eventID)]
	if !ok {
		return ErrLedgerEntryNotFound
	}
	if processedAt.IsZero() {
		processedAt = s.now()
	}
	processedAt = processedAt.UTC()
	entry.Status = LedgerStatusCompleted
	entry.Error = ""
	entry.ProcessedAt = &processedAt
	s.byEvent[entry.EventID] = cloneLedgerEntry(entry)
	return nil
}

func (s *MemoryLedgerStore) MarkFailed(ctx context.Context, eventID string, cause error) (LedgerEntry, error) {
	if s == nil {
		return LedgerEntry{}, fmt.Errorf("core: memory ledger store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byEvent[strings.TrimSpace(eventID)]
	if !ok {
		return LedgerEntry{}, ErrLedgerEntryNotFound
	}
	entry.Status = LedgerStatusFailed
	entry.RetryCount++
	if cause != nil {
		entry.Error = cause.Error()
	}
	s.byEvent[entry.EventID] = cloneLedgerEntry(entry)
	return cloneLedgerEntry(entry), nil
}

func (s *MemoryLedgerStore) ListFailed(ctx context.Context, limit int) ([]LedgerEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory ledger store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LedgerEntry, 0)
	for _, entry := range s.byEvent {
		if entry.Status == LedgerStatusFailed {
			out = append(out, cloneLedgerEntry(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryLedgerStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func cloneLedgerEntry(entry LedgerEntry) LedgerEntry {
	out := entry
	if entry.Payload != nil {
		out.Payload = append([]byte(nil), entry.Payload...)
	}
	if entry.ProcessedAt != nil {
		processedAt := *entry.ProcessedAt
		out.ProcessedAt = &processedAt
	}
	return out
}

// MemoryCustomerStore keeps customers keyed by id with a secondary external id
// index, matching the SQL store's uniqueness guarantees.
type MemoryCustomerStore struct {
	mu         sync.Mutex
	byID       map[string]Customer
	byExternal map[string]string
	Now        func() time.Time
}

func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{
		byID:       map[string]Customer{},
		byExternal: map[string]string{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ CustomerStore = (*MemoryCustomerStore)(nil)

func (s *MemoryCustomerStore) Create(ctx context.Context, customer Customer) (Customer, error) {
	if s == nil {
		return Customer{}, fmt.Errorf("core: memory customer store is nil")
	}
	customer.ExternalID = strings.TrimSpace(customer.ExternalID)
	if customer.ExternalID == "" {
		return Customer{}, fmt.Errorf("core: customer external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[customer.ExternalID]; exists {
		return Customer{}, fmt.Errorf("core: customer %q: unique constraint failed", customer.ExternalID)
	}
	if strings.TrimSpace(customer.ID) == "" {
		customer.ID = uuid.NewString()
	}
	now := s.now()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	s.byID[customer.ID] = customer
	s.byExternal[customer.ExternalID] = customer.ID
	return customer, nil
}

func (s *MemoryCustomerStore) Get(ctx context.Context, id string) (Customer, error) {
	if s == nil {
		return Customer{}, fmt.Errorf("core: memory customer store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, nil
}

func (s *MemoryCustomerStore) GetByExternalID(ctx context.Context, externalID string) (Customer, error) {
	if s == nil {
		return Customer{}, fmt.Errorf("core: memory customer store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryCustomerStore) Update(ctx context.Context, customer Customer) (Customer, error) {
	if s == nil {
		return Customer{}, fmt.Errorf("core: memory customer store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[strings.TrimSpace(customer.ID)]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = s.now()
	s.byID[customer.ID] = customer
	s.byExternal[customer.ExternalID] = customer.ID
	return customer, nil
}

func (s *MemoryCustomerStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// MemorySubscriptionStore mirrors MemoryCustomerStore for subscriptions.
type MemorySubscriptionStore struct {
	mu         sync.Mutex
	byID       map[string]Subscription
	byExternal map[string]string
	Now        func() time.Time
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{
		byID:       map[string]Subscription{},
		byExternal: map[string]string{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ SubscriptionStore = (*MemorySubscriptionStore)(nil)

func (s *MemorySubscriptionStore) Create(ctx context.Context, subscription Subscription) (Subscription, error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: memory subscription store is nil")
	}
	subscription.ExternalID = strings.TrimSpace(subscription.ExternalID)
	if subscription.ExternalID == "" {
		return Subscription{}, fmt.Errorf("core: subscription external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[subscription.ExternalID]; exists {
		return Subscription{}, fmt.Errorf("core: subscription %q: unique constraint failed", subscription.ExternalID)
	}
	if strings.TrimSpace(subscription.ID) == "" {
		subscription.ID = uuid.NewString()
	}
	now := s.now()
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = now
	}
	subscription.UpdatedAt = now
	s.byID[subscription.ID] = subscription
	s.byExternal[subscription.ExternalID] = subscription.ID
	return subscription, nil
}

func (s *MemorySubscriptionStore) Get(ctx context.Context, id string) (Subscription, error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: memory subscription store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (s *MemorySubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (Subscription, error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: memory subscription store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s.byID[id], nil
}

func (s *MemorySubscriptionStore) Update(ctx context.Context, subscription Subscription) (Subscription, error) {
	if s == nil {
		return Subscription{}, fmt.Errorf("core: memory subscription store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[strings.TrimSpace(subscription.ID)]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	subscription.CreatedAt = existing.CreatedAt
	subscription.UpdatedAt = s.now()
	s.byID[subscription.ID] = subscription
	s.byExternal[subscription.ExternalID] = subscription.ID
	return subscription, nil
}

func (s *MemorySubscriptionStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type MemoryProductStore struct {
	mu         sync.Mutex
	byID       map[string]Product
	byExternal map[string]string
	Now        func() time.Time
}

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		byID:       map[string]Product{},
		byExternal: map[string]string{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ ProductStore = (*MemoryProductStore)(nil)

func (s *MemoryProductStore) Create(ctx context.Context, product Product) (Product, error) {
	if s == nil {
		return Product{}, fmt.Errorf("core: memory product store is nil")
	}
	product.ExternalID = strings.TrimSpace(product.ExternalID)
	if product.ExternalID == "" {
		return Product{}, fmt.Errorf("core: product external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[product.ExternalID]; exists {
		return Product{}, fmt.Errorf("core: product %q: unique constraint failed", product.ExternalID)
	}
	if strings.TrimSpace(product.ID) == "" {
		product.ID = uuid.NewString()
	}
	now := s.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.byID[product.ID] = product
	s.byExternal[product.ExternalID] = product.ID
	return product, nil
}

func (s *MemoryProductStore) Get(ctx context.Context, id string) (Product, error) {
	if s == nil {
		return Product{}, fmt.Errorf("core: memory product store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (s *MemoryProductStore) GetByExternalID(ctx context.Context, externalID string) (Product, error) {
	if s == nil {
		return Product{}, fmt.Errorf("core: memory product store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryProductStore) Update(ctx context.Context, product Product) (Product, error) {
	if s == nil {
		return Product{}, fmt.Errorf("core: memory product store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[strings.TrimSpace(product.ID)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.byID[product.ID] = product
	s.byExternal[product.ExternalID] = product.ID
	return product, nil
}

func (s *MemoryProductStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type MemoryPriceStore struct {
	mu         sync.Mutex
	byID       map[string]Price
	byExternal map[string]string
	Now        func() time.Time
}

func NewMemoryPriceStore() *MemoryPriceStore {
	return &MemoryPriceStore{
		byID:       map[string]Price{},
		byExternal: map[string]string{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ PriceStore = (*MemoryPriceStore)(nil)

func (s *MemoryPriceStore) Create(ctx context.Context, price Price) (Price, error) {
	if s == nil {
		return Price{}, fmt.Errorf("core: memory price store is nil")
	}
	price.ExternalID = strings.TrimSpace(price.ExternalID)
	if price.ExternalID == "" {
		return Price{}, fmt.Errorf("core: price external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[price.ExternalID]; exists {
		return Price{}, fmt.Errorf("core: price %q: unique constraint failed", price.ExternalID)
	}
	if strings.TrimSpace(price.ID) == "" {
		price.ID = uuid.NewString()
	}
	now := s.now()
	if price.CreatedAt.IsZero() {
		price.CreatedAt = now
	}
	price.UpdatedAt = now
	s.byID[price.ID] = price
	s.byExternal[price.ExternalID] = price.ID
	return price, nil
}

func (s *MemoryPriceStore) Get(ctx context.Context, id string) (Price, error) {
	if s == nil {
		return Price{}, fmt.Errorf("core: memory price store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	return price, nil
}

func (s *MemoryPriceStore) GetByExternalID(ctx context.Context, externalID string) (Price, error) {
	if s == nil {
		return Price{}, fmt.Errorf("core: memory price store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryPriceStore) Update(ctx context.Context, price Price) (Price, error) {
	if s == nil {
		return Price{}, fmt.Errorf("core: memory price store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[strings.TrimSpace(price.ID)]
	if !ok {
		return Price{}, ErrPriceNotFound
	}
	price.CreatedAt = existing.CreatedAt
	price.UpdatedAt = s.now()
	s.byID[price.ID] = price
	s.byExternal[price.ExternalID] = price.ID
	return price, nil
}

func (s *MemoryPriceStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type MemoryInvoiceStore struct {
	mu         sync.Mutex
	byID       map[string]Invoice
	byExternal map[string]string
	Now        func() time.Time
}

func NewMemoryInvoiceStore() *MemoryInvoiceStore {
	return &MemoryInvoiceStore{
		byID:       map[string]Invoice{},
		byExternal: map[string]string{},
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ InvoiceStore = (*MemoryInvoiceStore)(nil)

func (s *MemoryInvoiceStore) Create(ctx context.Context, invoice Invoice) (Invoice, error) {
	if s == nil {
		return Invoice{}, fmt.Errorf("core: memory invoice store is nil")
	}
	invoice.ExternalID = strings.TrimSpace(invoice.ExternalID)
	if invoice.ExternalID == "" {
		return Invoice{}, fmt.Errorf("core: invoice external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[invoice.ExternalID]; exists {
		return Invoice{}, fmt.Errorf("core: invoice %q: unique constraint failed", invoice.ExternalID)
	}
	if strings.TrimSpace(invoice.ID) == "" {
		invoice.ID = uuid.NewString()
	}
	now := s.now()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	s.byID[invoice.ID] = invoice
	s.byExternal[invoice.ExternalID] = invoice.ID
	return invoice, nil
}

func (s *MemoryInvoiceStore) Get(ctx context.Context, id string) (Invoice, error) {
	if s == nil {
		return Invoice{}, fmt.Errorf("core: memory invoice store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *MemoryInvoiceStore) GetByExternalID(ctx context.Context, externalID string) (Invoice, error) {
	if s == nil {
		return Invoice{}, fmt.Errorf("core: memory invoice store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExternal[strings.TrimSpace(externalID)]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryInvoiceStore) Update(ctx context.Context, invoice Invoice) (Invoice, error) {
	if s == nil {
		return Invoice{}, fmt.Errorf("core: memory invoice store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[strings.TrimSpace(invoice.ID)]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	invoice.CreatedAt = existing.CreatedAt
	invoice.UpdatedAt = s.now()
	s.byID[invoice.ID] = invoice
	s.byExternal[invoice.ExternalID] = invoice.ID
	return invoice, nil
}

func (s *MemoryInvoiceStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// MemoryUsageStore is append-only; Create dedupes on the provider event id.
type MemoryUsageStore struct {
	mu      sync.Mutex
	records []UsageRecord
	byEvent map[string]int
	Now     func() time.Time
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		byEvent: map[string]int{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ UsageStore = (*MemoryUsageStore)(nil)

func (s *MemoryUsageStore) Create(ctx context.Context, record UsageRecord) (UsageRecord, error) {
	if s == nil {
		return UsageRecord{}, fmt.Errorf("core: memory usage store is nil")
	}
	record.EventID = strings.TrimSpace(record.EventID)
	if record.EventID == "" {
		return UsageRecord{}, fmt.Errorf("core: usage event id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byEvent[record.EventID]; ok {
		return s.records[idx], nil
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.byEvent[record.EventID] = len(s.records)
	s.records = append(s.records, record)
	return record, nil
}

func (s *MemoryUsageStore) ListBySubscription(
	ctx context.Context,
	subscriptionID string,
	start time.Time,
	end time.Time,
) ([]UsageRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory usage store is nil")
	}
	subscriptionID = strings.TrimSpace(subscriptionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UsageRecord, 0)
	for _, record := range s.records {
		if record.SubscriptionID != subscriptionID {
			continue
		}
		if record.Timestamp.Before(start) || !record.Timestamp.Before(end) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *MemoryUsageStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// MemorySkipStore dedupes unresolved skips per (kind, external id).
type MemorySkipStore struct {
	mu    sync.Mutex
	byID  map[string]SyncSkip
	index map[string]string
	Now   func() time.Time
}

func NewMemorySkipStore() *MemorySkipStore {
	return &MemorySkipStore{
		byID:  map[string]SyncSkip{},
		index: map[string]string{},
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ SkipStore = (*MemorySkipStore)(nil)

func skipIndexKey(kind EntityKind, externalID string) string {
	return string(kind) + "/" + strings.TrimSpace(externalID)
}

func (s *MemorySkipStore) Record(ctx context.Context, skip SyncSkip) error {
	if s == nil {
		return fmt.Errorf("core: memory skip store is nil")
	}
	skip.ExternalID = strings.TrimSpace(skip.ExternalID)
	if skip.ExternalID == "" {
		return fmt.Errorf("core: skip external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := skipIndexKey(skip.Kind, skip.ExternalID)
	if id, ok := s.index[key]; ok {
		if existing := s.byID[id]; existing.ResolvedAt == nil {
			return nil
		}
	}
	if strings.TrimSpace(skip.ID) == "" {
		skip.ID = uuid.NewString()
	}
	if skip.CreatedAt.IsZero() {
		skip.CreatedAt = s.now()
	}
	s.byID[skip.ID] = skip
	s.index[key] = skip.ID
	return nil
}

func (s *MemorySkipStore) ListPending(ctx context.Context, limit int) ([]SyncSkip, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory skip store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SyncSkip, 0)
	for _, skip := range s.byID {
		if skip.ResolvedAt == nil {
			out = append(out, skip)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySkipStore) Resolve(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: memory skip store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	skip, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: sync skip %q not found", id)
	}
	now := s.now()
	skip.ResolvedAt = &now
	s.byID[skip.ID] = skip
	return nil
}

func (s *MemorySkipStore) Touch(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: memory skip store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	skip, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: sync skip %q not found", id)
	}
	skip.Attempts++
	s.byID[skip.ID] = skip
	return nil
}

func (s *MemorySkipStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// MemoryNotificationDispatchLedger backs the notification consumer's dedupe
// check in tests.
type MemoryNotificationDispatchLedger struct {
	mu    sync.Mutex
	byKey map[string]NotificationDispatch
	Now   func() time.Time
}

func NewMemoryNotificationDispatchLedger() *MemoryNotificationDispatchLedger {
	return &MemoryNotificationDispatchLedger{
		byKey: map[string]NotificationDispatch{},
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

var _ NotificationDispatchLedger = (*MemoryNotificationDispatchLedger)(nil)

func (l *MemoryNotificationDispatchLedger) Seen(ctx context.Context, idempotencyKey string) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: memory notification ledger is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byKey[strings.TrimSpace(idempotencyKey)]
	return ok, nil
}

func (l *MemoryNotificationDispatchLedger) Record(ctx context.Context, dispatch NotificationDispatch) error {
	if l == nil {
		return fmt.Errorf("core: memory notification ledger is nil")
	}
	dispatch.IdempotencyKey = strings.TrimSpace(dispatch.IdempotencyKey)
	if dispatch.IdempotencyKey == "" {
		return fmt.Errorf("core: notification idempotency key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(dispatch.ID) == "" {
		dispatch.ID = uuid.NewString()
	}
	if dispatch.CreatedAt.IsZero() {
		if l.Now != nil {
			dispatch.CreatedAt = l.Now()
		} else {
			dispatch.CreatedAt = time.Now().UTC()
		}
	}
	l.byKey[dispatch.IdempotencyKey] = dispatch
	return nil
}

// MemoryStoreProvider bundles every in-memory store behind the StoreProvider
// contract. Hosts use it for tests and local development.
type MemoryStoreProvider struct {
	Ledger        *MemoryLedgerStore
	Customers     *MemoryCustomerStore
	Subscriptions *MemorySubscriptionStore
	Products      *MemoryProductStore
	Prices        *MemoryPriceStore
	Invoices      *MemoryInvoiceStore
	Usage         *MemoryUsageStore
	Skips         *MemorySkipStore
	Notifications *MemoryNotificationDispatchLedger
}

func NewMemoryStoreProvider() *MemoryStoreProvider {
	return &MemoryStoreProvider{
		Ledger:        NewMemoryLedgerStore(),
		Customers:     NewMemoryCustomerStore(),
		Subscriptions: NewMemorySubscriptionStore(),
		Products:      NewMemoryProductStore(),
		Prices:        NewMemoryPriceStore(),
		Invoices:      NewMemoryInvoiceStore(),
		Usage:         NewMemoryUsageStore(),
		Skips:         NewMemorySkipStore(),
		Notifications: NewMemoryNotificationDispatchLedger(),
	}
}

var _ StoreProvider = (*MemoryStoreProvider)(nil)

func (p *MemoryStoreProvider) LedgerStore() LedgerStore { return p.Ledger }

func (p *MemoryStoreProvider) CustomerStore() CustomerStore { return p.Customers }

func (p *MemoryStoreProvider) SubscriptionStore() SubscriptionStore { return p.Subscriptions }

func (p *MemoryStoreProvider) ProductStore() ProductStore { return p.Products }

func (p *MemoryStoreProvider) PriceStore() PriceStore { return p.Prices }

func (p *MemoryStoreProvider) InvoiceStore() InvoiceStore { return p.Invoices }

func (p *MemoryStoreProvider) UsageStore() UsageStore { return p.Usage }

func (p *MemoryStoreProvider) SkipStore() SkipStore { return p.Skips }

func (p *MemoryStoreProvider) NotificationDispatchLedger() NotificationDispatchLedger {
	return p.Notifications
}
