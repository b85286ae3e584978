package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-billing-sync/core"
)

// CustomerHandler reconciles customer.* events. Deletions deactivate the local
// row directly; the provider no longer serves a useful snapshot for them.
type CustomerHandler struct {
	Reconciler *Reconciler
}

var _ core.EventHandler = (*CustomerHandler)(nil)

func (h *CustomerHandler) Category() core.EventCategory { return core.EventCategoryCustomer }

func (h *CustomerHandler) Handle(ctx context.Context, event core.EventContext) error {
	objectID, err := requireObjectID(event)
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(event.EventType), "customer.deleted") {
		return h.Reconciler.DeactivateCustomer(ctx, objectID)
	}
	return h.Reconciler.SyncCustomer(ctx, objectID)
}

// SubscriptionHandler reconciles subscription lifecycle events, including the
// customer.subscription.* family.
type SubscriptionHandler struct {
	Reconciler *Reconciler
}

var _ core.EventHandler = (*SubscriptionHandler)(nil)

func (h *SubscriptionHandler) Category() core.EventCategory { return core.EventCategorySubscription }

func (h *SubscriptionHandler) Handle(ctx context.Context, event core.EventContext) error {
	objectID, err := requireObjectID(event)
	if err != nil {
		return err
	}
	// A deferred subscription completes the ledger entry; the sweeper owns
	// the retry.
	if err := h.Reconciler.SyncSubscription(ctx, objectID); err != nil && !errors.Is(err, ErrSyncSkipped) {
		return err
	}
	return nil
}

// InvoiceHandler reconciles invoice.* events and raises a payment-failure
// notification after the mirror is current. A deferred invoice completes the
// ledger entry; the sweeper owns the retry.
type InvoiceHandler struct {
	Reconciler *Reconciler
	Notifier   core.Notifier
	Logger     core.Logger
}

var _ core.EventHandler = (*InvoiceHandler)(nil)

func (h *InvoiceHandler) Category() core.EventCategory { return core.EventCategoryInvoice }

func (h *InvoiceHandler) Handle(ctx context.Context, event core.EventContext) error {
	objectID, err := requireObjectID(event)
	if err != nil {
		return err
	}

	if err := h.Reconciler.SyncInvoice(ctx, objectID); err != nil {
		if errors.Is(err, ErrSyncSkipped) {
			return nil
		}
		return err
	}

	if strings.EqualFold(strings.TrimSpace(event.EventType), "invoice.payment_failed") {
		h.notifyPaymentFailed(ctx, event, objectID)
	}
	return nil
}

func (h *InvoiceHandler) notifyPaymentFailed(ctx context.Context, event core.EventContext, invoiceID string) {
	if h.Notifier == nil {
		return
	}
	err := h.Notifier.Dispatch(ctx, core.Notification{
		TemplateID:     "invoice-payment-failed",
		RecipientKey:   invoiceID,
		IdempotencyKey: event.EventType + "/" + event.EventID,
		Metadata: map[string]any{
			"invoice_id": invoiceID,
			"event_id":   event.EventID,
		},
	})
	if err != nil && h.Logger != nil {
		// Best effort: a notification failure never fails the reconciliation.
		h.Logger.Error("dispatch payment-failed notification",
			"invoice_id", invoiceID,
			"error", err,
		)
	}
}

// CatalogHandler reconciles product.*, price.*, and plan.* events. Plans are
// the provider's legacy price object and map onto the price mirror.
type CatalogHandler struct {
	Reconciler *Reconciler
}

var _ core.EventHandler = (*CatalogHandler)(nil)

func (h *CatalogHandler) Category() core.EventCategory { return core.EventCategoryCatalog }

func (h *CatalogHandler) Handle(ctx context.Context, event core.EventContext) error {
	objectID, err := requireObjectID(event)
	if err != nil {
		return err
	}
	family, _, _ := strings.Cut(strings.TrimSpace(strings.ToLower(event.EventType)), ".")
	switch family {
	case "product":
		return h.Reconciler.SyncProduct(ctx, objectID)
	case "price", "plan":
		// A price parked behind its product cascade is the sweeper's to
		// retry, not the queue's.
		if err := h.Reconciler.SyncPrice(ctx, objectID); err != nil && !errors.Is(err, ErrSyncSkipped) {
			return err
		}
		return nil
	default:
		return core.NewValidationError("unsupported catalog event type", map[string]any{
			"event_type": event.EventType,
		})
	}
}

// PaymentIntentHandler cascades a payment intent to its invoice and raises a
// payment-failure notification with the provider's last error.
type PaymentIntentHandler struct {
	Reconciler *Reconciler
	Notifier   core.Notifier
	Logger     core.Logger
}

var _ core.EventHandler = (*PaymentIntentHandler)(nil)

func (h *PaymentIntentHandler) Category() core.EventCategory { return core.EventCategoryPaymentIntent }

func (h *PaymentIntentHandler) Handle(ctx context.Context, event core.EventContext) error {
	objectID, err := requireObjectID(event)
	if err != nil {
		return err
	}

	intent, err := h.Reconciler.Provider.GetPaymentIntent(ctx, objectID)
	if err != nil {
		return core.NewProviderCallError(err, "GetPaymentIntent", objectID)
	}

	if strings.TrimSpace(intent.InvoiceID) != "" {
		if err := h.Reconciler.SyncInvoice(ctx, intent.InvoiceID); err != nil && !errors.Is(err, ErrSyncSkipped) {
			return err
		}
	}

	if strings.EqualFold(strings.TrimSpace(event.EventType), "payment_intent.payment_failed") {
		h.notifyPaymentFailed(ctx, event, intent)
	}
	return nil
}

func (h *PaymentIntentHandler) notifyPaymentFailed(ctx context.Context, event core.EventContext, intent core.ProviderPaymentIntent) {
	if h.Notifier == nil {
		return
	}
	err := h.Notifier.Dispatch(ctx, core.Notification{
		TemplateID:     "payment-intent-failed",
		RecipientKey:   intent.CustomerID,
		IdempotencyKey: event.EventType + "/" + event.EventID,
		Metadata: map[string]any{
			"payment_intent_id": intent.ID,
			"invoice_id":        intent.InvoiceID,
			"last_error":        intent.LastErrorMessage,
			"event_id":          event.EventID,
		},
	})
	if err != nil && h.Logger != nil {
		h.Logger.Error("dispatch payment-intent-failed notification",
			"payment_intent_id", intent.ID,
			"error", err,
		)
	}
}

// RegisterHandlers wires the full handler set into a registry.
func RegisterHandlers(registry *core.HandlerRegistry, reconciler *Reconciler, notifier core.Notifier, logger core.Logger) error {
	handlers := []core.EventHandler{
		&CustomerHandler{Reconciler: reconciler},
		&SubscriptionHandler{Reconciler: reconciler},
		&InvoiceHandler{Reconciler: reconciler, Notifier: notifier, Logger: logger},
		&CatalogHandler{Reconciler: reconciler},
		&PaymentIntentHandler{Reconciler: reconciler, Notifier: notifier, Logger: logger},
	}
	for _, handler := range handlers {
		if err := registry.Register(handler); err != nil {
			return err
		}
	}
	return nil
}

func requireObjectID(event core.EventContext) (string, error) {
	objectID := strings.TrimSpace(event.ObjectID)
	if objectID == "" {
		return "", core.NewValidationError("event payload is missing object id", map[string]any{
			"event_id":   event.EventID,
			"event_type": event.EventType,
		})
	}
	return objectID, nil
}
