package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-billing-sync/core"
)

// ErrSyncSkipped marks a reconciliation that was intentionally deferred, not
// failed. Handlers treat it as success; the sweeper re-drives it later.
var ErrSyncSkipped = errors.New("reconcile: sync skipped")

// Reconciler pulls authoritative entity snapshots from the provider and
// upserts the local mirror. The webhook payload is only a hint; the provider
// fetch makes reconciliation order-independent under out-of-order delivery.
type Reconciler struct {
	Provider      core.ProviderClient
	Customers     core.CustomerStore
	Subscriptions core.SubscriptionStore
	Products      core.ProductStore
	Prices        core.PriceStore
	Invoices      core.InvoiceStore
	Skips         core.SkipStore
	Logger        core.Logger
	Now           func() time.Time
}

func NewReconciler(provider core.ProviderClient) *Reconciler {
	return &Reconciler{
		Provider: provider,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sync reconciles one entity by kind. The operator resync surface and the
// skip sweeper both land here.
func (r *Reconciler) Sync(ctx context.Context, kind core.EntityKind, externalID string) error {
	switch kind {
	case core.EntityKindCustomer:
		return r.SyncCustomer(ctx, externalID)
	case core.EntityKindSubscription:
		return r.SyncSubscription(ctx, externalID)
	case core.EntityKindProduct:
		return r.SyncProduct(ctx, externalID)
	case core.EntityKindPrice:
		return r.SyncPrice(ctx, externalID)
	case core.EntityKindInvoice:
		return r.SyncInvoice(ctx, externalID)
	default:
		return fmt.Errorf("reconcile: unsupported entity kind %q", kind)
	}
}

// SyncCustomer mirrors a provider customer. Deleted customers are deactivated
// locally, never removed; historical invoices and subscriptions keep their
// references.
func (r *Reconciler) SyncCustomer(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("customer external id is required", nil)
	}

	snapshot, err := r.Provider.GetCustomer(ctx, externalID)
	if err != nil {
		return core.NewProviderCallError(err, "GetCustomer", externalID)
	}

	if snapshot.Deleted {
		return r.DeactivateCustomer(ctx, externalID)
	}

	existing, err := r.Customers.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		existing.Email = snapshot.Email
		existing.Name = snapshot.Name
		existing.DefaultPaymentMethodID = snapshot.DefaultPaymentMethodID
		existing.Balance = snapshot.Balance
		existing.Delinquent = snapshot.Delinquent
		existing.DeactivatedAt = nil
		if _, err := r.Customers.Update(ctx, existing); err != nil {
			return fmt.Errorf("reconcile: update customer %q: %w", externalID, err)
		}
		return nil
	case errors.Is(err, core.ErrCustomerNotFound):
		_, err := r.Customers.Create(ctx, core.Customer{
			ExternalID:             externalID,
			Email:                  snapshot.Email,
			Name:                   snapshot.Name,
			DefaultPaymentMethodID: snapshot.DefaultPaymentMethodID,
			Balance:                snapshot.Balance,
			Delinquent:             snapshot.Delinquent,
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("reconcile: create customer %q: %w", externalID, err)
		}
		return nil
	default:
		return fmt.Errorf("reconcile: load customer %q: %w", externalID, err)
	}
}

// DeactivateCustomer marks a local customer as gone. Unknown customers are
// logged and ignored: there is nothing to deactivate.
func (r *Reconciler) DeactivateCustomer(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("customer external id is required", nil)
	}

	customer, err := r.Customers.GetByExternalID(ctx, externalID)
	if errors.Is(err, core.ErrCustomerNotFound) {
		r.logInfo("skipping deactivation of unknown customer", "external_id", externalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: load customer %q: %w", externalID, err)
	}
	if customer.DeactivatedAt != nil {
		return nil
	}
	now := r.now()
	customer.DeactivatedAt = &now
	if _, err := r.Customers.Update(ctx, customer); err != nil {
		return fmt.Errorf("reconcile: deactivate customer %q: %w", externalID, err)
	}
	r.logInfo("customer deactivated", "external_id", externalID)
	return nil
}

// SyncSubscription mirrors a provider subscription, pulling in its customer
// and price first when they are unknown locally.
func (r *Reconciler) SyncSubscription(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("subscription external id is required", nil)
	}

	snapshot, err := r.Provider.GetSubscription(ctx, externalID)
	if err != nil {
		return core.NewProviderCallError(err, "GetSubscription", externalID)
	}

	customer, err := r.ensureCustomer(ctx, snapshot.CustomerID)
	if err != nil {
		return err
	}

	var priceID string
	var quantity int64
	var periodStart, periodEnd *time.Time
	if len(snapshot.Items) > 0 {
		item := snapshot.Items[0]
		price, err := r.ensurePrice(ctx, item.PriceID)
		if err != nil {
			// A skipped price cascade parks the subscription as well, so the
			// sweeper re-drives the whole chain rather than just the price.
			if errors.Is(err, ErrSyncSkipped) {
				if r.Skips != nil {
					if recordErr := r.Skips.Record(ctx, core.SyncSkip{
						Kind:       core.EntityKindSubscription,
						ExternalID: externalID,
						Reason:     "price " + item.PriceID + " unavailable",
					}); recordErr != nil {
						return fmt.Errorf("reconcile: record subscription skip %q: %w", externalID, recordErr)
					}
				}
				return fmt.Errorf("%w: subscription %q waits for price %q", ErrSyncSkipped, externalID, item.PriceID)
			}
			return err
		}
		priceID = price.ID
		quantity = item.Quantity
		periodStart = item.PeriodStart
		periodEnd = item.PeriodEnd
	}

	existing, err := r.Subscriptions.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		existing.CustomerID = customer.ID
		existing.PriceID = priceID
		existing.Status = snapshot.Status
		existing.Quantity = quantity
		existing.CurrentPeriodStart = periodStart
		existing.CurrentPeriodEnd = periodEnd
		existing.CancelAtPeriodEnd = snapshot.CancelAtPeriodEnd
		existing.CanceledAt = snapshot.CanceledAt
		existing.TrialStart = snapshot.TrialStart
		existing.TrialEnd = snapshot.TrialEnd
		existing.PausedAt = snapshot.PausedAt
		if _, err := r.Subscriptions.Update(ctx, existing); err != nil {
			return fmt.Errorf("reconcile: update subscription %q: %w", externalID, err)
		}
		return nil
	case errors.Is(err, core.ErrSubscriptionNotFound):
		_, err := r.Subscriptions.Create(ctx, core.Subscription{
			ExternalID:         externalID,
			CustomerID:         customer.ID,
			PriceID:            priceID,
			Status:             snapshot.Status,
			Quantity:           quantity,
			CurrentPeriodStart: periodStart,
			CurrentPeriodEnd:   periodEnd,
			CancelAtPeriodEnd:  snapshot.CancelAtPeriodEnd,
			CanceledAt:         snapshot.CanceledAt,
			TrialStart:         snapshot.TrialStart,
			TrialEnd:           snapshot.TrialEnd,
			PausedAt:           snapshot.PausedAt,
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("reconcile: create subscription %q: %w", externalID, err)
		}
		return nil
	default:
		return fmt.Errorf("reconcile: load subscription %q: %w", externalID, err)
	}
}

func (r *Reconciler) SyncProduct(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("product external id is required", nil)
	}

	snapshot, err := r.Provider.GetProduct(ctx, externalID)
	if err != nil {
		return core.NewProviderCallError(err, "GetProduct", externalID)
	}

	existing, err := r.Products.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		existing.Name = snapshot.Name
		existing.Description = snapshot.Description
		existing.Active = snapshot.Active
		if _, err := r.Products.Update(ctx, existing); err != nil {
			return fmt.Errorf("reconcile: update product %q: %w", externalID, err)
		}
		return nil
	case errors.Is(err, core.ErrProductNotFound):
		_, err := r.Products.Create(ctx, core.Product{
			ExternalID:  externalID,
			Name:        snapshot.Name,
			Description: snapshot.Description,
			Active:      snapshot.Active,
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("reconcile: create product %q: %w", externalID, err)
		}
		return nil
	default:
		return fmt.Errorf("reconcile: load product %q: %w", externalID, err)
	}
}

// SyncPrice mirrors a provider price, pulling in its product first when it is
// unknown locally. A price.created landing before product.created therefore
// leaves the same final state as the reverse order. When the product cascade
// fails the price is parked in the skip ledger for the sweeper instead of
// bouncing through queue retries.
func (r *Reconciler) SyncPrice(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("price external id is required", nil)
	}

	snapshot, err := r.Provider.GetPrice(ctx, externalID)
	if err != nil {
		return core.NewProviderCallError(err, "GetPrice", externalID)
	}

	product, err := r.ensureProduct(ctx, snapshot.ProductID)
	if err != nil {
		if core.IsTerminalProcessingError(err) {
			return err
		}
		r.logInfo("deferring price with unavailable product",
			"price_id", externalID,
			"product_id", snapshot.ProductID,
		)
		if r.Skips != nil {
			if recordErr := r.Skips.Record(ctx, core.SyncSkip{
				Kind:       core.EntityKindPrice,
				ExternalID: externalID,
				Reason:     "product " + snapshot.ProductID + " unavailable: " + err.Error(),
			}); recordErr != nil {
				return fmt.Errorf("reconcile: record price skip %q: %w", externalID, recordErr)
			}
		}
		return fmt.Errorf("%w: price %q waits for product %q", ErrSyncSkipped, externalID, snapshot.ProductID)
	}

	existing, err := r.Prices.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		existing.ProductID = product.ID
		existing.Currency = snapshot.Currency
		existing.UnitAmount = snapshot.UnitAmount
		existing.Interval = snapshot.Interval
		existing.IntervalCount = snapshot.IntervalCount
		existing.UsageType = snapshot.UsageType
		existing.Active = snapshot.Active
		if _, err := r.Prices.Update(ctx, existing); err != nil {
			return fmt.Errorf("reconcile: update price %q: %w", externalID, err)
		}
		return nil
	case errors.Is(err, core.ErrPriceNotFound):
		_, err := r.Prices.Create(ctx, core.Price{
			ExternalID:    externalID,
			ProductID:     product.ID,
			Currency:      snapshot.Currency,
			UnitAmount:    snapshot.UnitAmount,
			Interval:      snapshot.Interval,
			IntervalCount: snapshot.IntervalCount,
			UsageType:     snapshot.UsageType,
			Active:        snapshot.Active,
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("reconcile: create price %q: %w", externalID, err)
		}
		return nil
	default:
		return fmt.Errorf("reconcile: load price %q: %w", externalID, err)
	}
}

// SyncInvoice mirrors a provider invoice. Invoices for customers unknown
// locally are recorded as skips and deferred rather than failed; the sweeper
// re-drives them once the customer lands.
func (r *Reconciler) SyncInvoice(ctx context.Context, externalID string) error {
	if err := r.check(); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.NewValidationError("invoice external id is required", nil)
	}

	snapshot, err := r.Provider.GetInvoice(ctx, externalID)
	if err != nil {
		return core.NewProviderCallError(err, "GetInvoice", externalID)
	}

	customer, err := r.Customers.GetByExternalID(ctx, snapshot.CustomerID)
	if errors.Is(err, core.ErrCustomerNotFound) {
		r.logInfo("deferring invoice for unknown customer",
			"invoice_id", externalID,
			"customer_id", snapshot.CustomerID,
		)
		if r.Skips != nil {
			if recordErr := r.Skips.Record(ctx, core.SyncSkip{
				Kind:       core.EntityKindInvoice,
				ExternalID: externalID,
				Reason:     "customer " + snapshot.CustomerID + " unknown",
			}); recordErr != nil {
				return fmt.Errorf("reconcile: record invoice skip %q: %w", externalID, recordErr)
			}
		}
		return fmt.Errorf("%w: invoice %q waits for customer %q", ErrSyncSkipped, externalID, snapshot.CustomerID)
	}
	if err != nil {
		return fmt.Errorf("reconcile: load customer %q: %w", snapshot.CustomerID, err)
	}

	var subscriptionID *string
	if strings.TrimSpace(snapshot.SubscriptionID) != "" {
		subscription, err := r.Subscriptions.GetByExternalID(ctx, snapshot.SubscriptionID)
		switch {
		case err == nil:
			subscriptionID = &subscription.ID
		case errors.Is(err, core.ErrSubscriptionNotFound):
			// Standalone reference; the subscription event will link it later.
		default:
			return fmt.Errorf("reconcile: load subscription %q: %w", snapshot.SubscriptionID, err)
		}
	}

	tax := deriveTax(snapshot.Total, snapshot.TotalExcludingTax)

	existing, err := r.Invoices.GetByExternalID(ctx, externalID)
	switch {
	case err == nil:
		existing.CustomerID = customer.ID
		existing.SubscriptionID = subscriptionID
		existing.Status = snapshot.Status
		existing.Currency = snapshot.Currency
		existing.AmountDue = snapshot.AmountDue
		existing.AmountPaid = snapshot.AmountPaid
		existing.AmountRemaining = snapshot.AmountRemaining
		existing.Subtotal = snapshot.Subtotal
		existing.Total = snapshot.Total
		existing.Tax = tax
		existing.PeriodStart = snapshot.PeriodStart
		existing.PeriodEnd = snapshot.PeriodEnd
		existing.DueDate = snapshot.DueDate
		existing.PaidAt = snapshot.PaidAt
		existing.AttemptCount = snapshot.AttemptCount
		if _, err := r.Invoices.Update(ctx, existing); err != nil {
			return fmt.Errorf("reconcile: update invoice %q: %w", externalID, err)
		}
		return nil
	case errors.Is(err, core.ErrInvoiceNotFound):
		_, err := r.Invoices.Create(ctx, core.Invoice{
			ExternalID:      externalID,
			CustomerID:      customer.ID,
			SubscriptionID:  subscriptionID,
			Status:          snapshot.Status,
			Currency:        snapshot.Currency,
			AmountDue:       snapshot.AmountDue,
			AmountPaid:      snapshot.AmountPaid,
			AmountRemaining: snapshot.AmountRemaining,
			Subtotal:        snapshot.Subtotal,
			Total:           snapshot.Total,
			Tax:             tax,
			PeriodStart:     snapshot.PeriodStart,
			PeriodEnd:       snapshot.PeriodEnd,
			DueDate:         snapshot.DueDate,
			PaidAt:          snapshot.PaidAt,
			AttemptCount:    snapshot.AttemptCount,
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("reconcile: create invoice %q: %w", externalID, err)
		}
		return nil
	default:
		return fmt.Errorf("reconcile: load invoice %q: %w", externalID, err)
	}
}

func (r *Reconciler) ensureCustomer(ctx context.Context, externalID string) (core.Customer, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.Customer{}, core.NewValidationError("subscription customer id is required", nil)
	}
	customer, err := r.Customers.GetByExternalID(ctx, externalID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, core.ErrCustomerNotFound) {
		return core.Customer{}, fmt.Errorf("reconcile: load customer %q: %w", externalID, err)
	}
	if err := r.SyncCustomer(ctx, externalID); err != nil {
		return core.Customer{}, err
	}
	customer, err = r.Customers.GetByExternalID(ctx, externalID)
	if err != nil {
		return core.Customer{}, fmt.Errorf("reconcile: load customer %q after sync: %w", externalID, err)
	}
	return customer, nil
}

func (r *Reconciler) ensureProduct(ctx context.Context, externalID string) (core.Product, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.Product{}, core.NewValidationError("price product id is required", nil)
	}
	product, err := r.Products.GetByExternalID(ctx, externalID)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, core.ErrProductNotFound) {
		return core.Product{}, fmt.Errorf("reconcile: load product %q: %w", externalID, err)
	}
	if err := r.SyncProduct(ctx, externalID); err != nil {
		return core.Product{}, err
	}
	product, err = r.Products.GetByExternalID(ctx, externalID)
	if err != nil {
		return core.Product{}, fmt.Errorf("reconcile: load product %q after sync: %w", externalID, err)
	}
	return product, nil
}

func (r *Reconciler) ensurePrice(ctx context.Context, externalID string) (core.Price, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.Price{}, core.NewValidationError("subscription price id is required", nil)
	}
	price, err := r.Prices.GetByExternalID(ctx, externalID)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, core.ErrPriceNotFound) {
		return core.Price{}, fmt.Errorf("reconcile: load price %q: %w", externalID, err)
	}
	if err := r.SyncPrice(ctx, externalID); err != nil {
		return core.Price{}, err
	}
	price, err = r.Prices.GetByExternalID(ctx, externalID)
	if err != nil {
		return core.Price{}, fmt.Errorf("reconcile: load price %q after sync: %w", externalID, err)
	}
	return price, nil
}

// deriveTax returns total minus total-excluding-tax when the provider reports
// the latter, nil otherwise. Tax is never guessed from a rate.
func deriveTax(total int64, totalExcludingTax *int64) *int64 {
	if totalExcludingTax == nil {
		return nil
	}
	tax := total - *totalExcludingTax
	return &tax
}

func (r *Reconciler) check() error {
	if r == nil {
		return fmt.Errorf("reconcile: reconciler is nil")
	}
	if r.Provider == nil {
		return fmt.Errorf("reconcile: provider client is required")
	}
	if r.Customers == nil || r.Subscriptions == nil || r.Products == nil || r.Prices == nil || r.Invoices == nil {
		return fmt.Errorf("reconcile: entity stores are required")
	}
	return nil
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Reconciler) logInfo(msg string, args ...any) {
	if r.Logger != nil {
		r.Logger.Info(msg, args...)
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
