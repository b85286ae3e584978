package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-billing-sync/core"
)

type stubNotifier struct {
	notifications []core.Notification
	err           error
}

func (n *stubNotifier) Dispatch(ctx context.Context, notification core.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

func invoiceEvent(eventType string, objectID string) core.EventContext {
	return core.EventContext{
		EventID:   "evt_1",
		EventType: eventType,
		Category:  core.CategorizeEventType(eventType),
		ObjectID:  objectID,
	}
}

func TestCustomerHandlerRoutesDeletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.customers["cus_1"] = core.ProviderCustomer{ID: "cus_1", Email: "a@example.com"}
	if err := env.reconciler.SyncCustomer(ctx, "cus_1"); err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	handler := &CustomerHandler{Reconciler: env.reconciler}
	err := handler.Handle(ctx, invoiceEvent("customer.deleted", "cus_1"))
	if err != nil {
		t.Fatalf("handle deletion: %v", err)
	}

	customer, _ := env.customers.GetByExternalID(ctx, "cus_1")
	if customer.DeactivatedAt == nil {
		t.Fatal("expected customer deactivated")
	}
	// No provider fetch for deletions.
	if env.provider.calls["GetCustomer"] != 1 {
		t.Fatalf("expected 1 provider call from seeding only, got %d", env.provider.calls["GetCustomer"])
	}
}

func TestCustomerHandlerRequiresObjectID(t *testing.T) {
	env := newTestEnv(t)
	handler := &CustomerHandler{Reconciler: env.reconciler}

	err := handler.Handle(context.Background(), invoiceEvent("customer.created", ""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !core.IsTerminalProcessingError(err) {
		t.Fatal("missing object id must be terminal")
	}
}

func TestInvoiceHandlerSkipCompletesQuietly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.invoices["in_1"] = core.ProviderInvoice{ID: "in_1", CustomerID: "cus_9"}

	handler := &InvoiceHandler{Reconciler: env.reconciler}
	if err := handler.Handle(ctx, invoiceEvent("invoice.created", "in_1")); err != nil {
		t.Fatalf("skipped invoice must not fail the event: %v", err)
	}

	pending, _ := env.skips.ListPending(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected skip recorded, got %d", len(pending))
	}
}

func TestInvoiceHandlerNotifiesOnPaymentFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.customers["cus_1"] = core.ProviderCustomer{ID: "cus_1"}
	if err := env.reconciler.SyncCustomer(ctx, "cus_1"); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	env.provider.invoices["in_1"] = core.ProviderInvoice{ID: "in_1", CustomerID: "cus_1", Status: "open", AttemptCount: 2}

	notifier := &stubNotifier{}
	handler := &InvoiceHandler{Reconciler: env.reconciler, Notifier: notifier}

	if err := handler.Handle(ctx, invoiceEvent("invoice.payment_failed", "in_1")); err != nil {
		t.Fatalf("handle payment failure: %v", err)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notifications))
	}
	notification := notifier.notifications[0]
	if notification.TemplateID != "invoice-payment-failed" {
		t.Fatalf("unexpected template %q", notification.TemplateID)
	}
	if notification.IdempotencyKey != "invoice.payment_failed/evt_1" {
		t.Fatalf("unexpected idempotency key %q", notification.IdempotencyKey)
	}

	// invoice.paid raises nothing.
	if err := handler.Handle(ctx, invoiceEvent("invoice.paid", "in_1")); err != nil {
		t.Fatalf("handle paid: %v", err)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected no further notifications, got %d", len(notifier.notifications))
	}
}

func TestInvoiceHandlerNotificationFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.customers["cus_1"] = core.ProviderCustomer{ID: "cus_1"}
	if err := env.reconciler.SyncCustomer(ctx, "cus_1"); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	env.provider.invoices["in_1"] = core.ProviderInvoice{ID: "in_1", CustomerID: "cus_1", Status: "open"}

	notifier := &stubNotifier{err: errors.New("queue down")}
	handler := &InvoiceHandler{Reconciler: env.reconciler, Notifier: notifier}

	if err := handler.Handle(ctx, invoiceEvent("invoice.payment_failed", "in_1")); err != nil {
		t.Fatalf("notification failure must not fail reconciliation: %v", err)
	}
	if _, err := env.invoices.GetByExternalID(ctx, "in_1"); err != nil {
		t.Fatalf("expected invoice synced despite notification failure: %v", err)
	}
}

func TestCatalogHandlerRoutesByFamily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.products["prod_1"] = core.ProviderProduct{ID: "prod_1", Active: true}
	env.provider.prices["price_1"] = core.ProviderPrice{ID: "price_1", ProductID: "prod_1"}

	handler := &CatalogHandler{Reconciler: env.reconciler}

	if err := handler.Handle(ctx, invoiceEvent("product.created", "prod_1")); err != nil {
		t.Fatalf("handle product event: %v", err)
	}
	if _, err := env.products.GetByExternalID(ctx, "prod_1"); err != nil {
		t.Fatalf("expected product synced: %v", err)
	}

	if err := handler.Handle(ctx, invoiceEvent("price.updated", "price_1")); err != nil {
		t.Fatalf("handle price event: %v", err)
	}
	if _, err := env.prices.GetByExternalID(ctx, "price_1"); err != nil {
		t.Fatalf("expected price synced: %v", err)
	}

	// Legacy plan events map to the price mirror.
	if err := handler.Handle(ctx, invoiceEvent("plan.updated", "price_1")); err != nil {
		t.Fatalf("handle plan event: %v", err)
	}
}

func TestPaymentIntentHandlerCascadesAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.customers["cus_1"] = core.ProviderCustomer{ID: "cus_1"}
	if err := env.reconciler.SyncCustomer(ctx, "cus_1"); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	env.provider.invoices["in_1"] = core.ProviderInvoice{ID: "in_1", CustomerID: "cus_1", Status: "open"}
	env.provider.paymentIntents["pi_1"] = core.ProviderPaymentIntent{
		ID: "pi_1", CustomerID: "cus_1", InvoiceID: "in_1",
		Status: "requires_payment_method", LastErrorMessage: "card_declined",
	}

	notifier := &stubNotifier{}
	handler := &PaymentIntentHandler{Reconciler: env.reconciler, Notifier: notifier}

	if err := handler.Handle(ctx, invoiceEvent("payment_intent.payment_failed", "pi_1")); err != nil {
		t.Fatalf("handle payment intent: %v", err)
	}
	if _, err := env.invoices.GetByExternalID(ctx, "in_1"); err != nil {
		t.Fatalf("expected invoice cascaded: %v", err)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notifications))
	}
	if notifier.notifications[0].Metadata["last_error"] != "card_declined" {
		t.Fatalf("expected provider error carried, got %v", notifier.notifications[0].Metadata)
	}
}

func TestRegisterHandlersCoversAllCategories(t *testing.T) {
	env := newTestEnv(t)
	registry := core.NewHandlerRegistry()

	if err := RegisterHandlers(registry, env.reconciler, &stubNotifier{}, nil); err != nil {
		t.Fatalf("register handlers: %v", err)
	}

	for _, category := range []core.EventCategory{
		core.EventCategoryCustomer,
		core.EventCategorySubscription,
		core.EventCategoryInvoice,
		core.EventCategoryCatalog,
		core.EventCategoryPaymentIntent,
	} {
		if registry.Resolve(category) == nil {
			t.Fatalf("expected handler registered for %q", category)
		}
	}
}
