package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// EventCategory is the closed set of reconciliation families. Dispatch goes
// through CategorizeEventType plus a HandlerRegistry instead of ad hoc
// prefix checks at call sites.
type EventCategory string

const (
	EventCategoryCustomer      EventCategory = "customer"
	EventCategorySubscription  EventCategory = "subscription"
	EventCategoryInvoice       EventCategory = "invoice"
	EventCategoryCatalog       EventCategory = "catalog"
	EventCategoryPaymentIntent EventCategory = "payment_intent"
	EventCategoryUnknown       EventCategory = "unknown"
)

// CategorizeEventType maps a provider event type string to its category.
// Unrecognized types resolve to EventCategoryUnknown, which the processor
// completes without side effects.
func CategorizeEventType(eventType string) EventCategory {
	eventType = strings.TrimSpace(strings.ToLower(eventType))
	family, _, _ := strings.Cut(eventType, ".")
	switch family {
	case "customer":
		// Subscription lifecycle events arrive under the customer family
		// as customer.subscription.*.
		if strings.HasPrefix(eventType, "customer.subscription.") {
			return EventCategorySubscription
		}
		return EventCategoryCustomer
	case "subscription":
		return EventCategorySubscription
	case "invoice":
		return EventCategoryInvoice
	case "product", "price", "plan":
		return EventCategoryCatalog
	case "payment_intent":
		return EventCategoryPaymentIntent
	default:
		return EventCategoryUnknown
	}
}

// EventContext is the routed unit of work handed to a reconciliation handler.
type EventContext struct {
	EventID   string
	EventType string
	Category  EventCategory
	ObjectID  string
	Payload   []byte
	Livemode  bool
}

type EventHandler interface {
	Category() EventCategory
	Handle(ctx context.Context, event EventContext) error
}

// HandlerRegistry binds event categories to reconciliation handlers. It is
// populated once at composition time; there is no process-wide registration.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[EventCategory]EventHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: map[EventCategory]EventHandler{},
	}
}

func (r *HandlerRegistry) Register(handler EventHandler) error {
	if r == nil {
		return fmt.Errorf("core: handler registry is nil")
	}
	if handler == nil {
		return fmt.Errorf("core: event handler is nil")
	}
	category := handler.Category()
	switch category {
	case EventCategoryCustomer,
		EventCategorySubscription,
		EventCategoryInvoice,
		EventCategoryCatalog,
		EventCategoryPaymentIntent:
	default:
		return fmt.Errorf("core: unsupported event category %q", category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[category]; exists {
		return fmt.Errorf("core: handler already registered for category %q", category)
	}
	r.handlers[category] = handler
	return nil
}

// Resolve returns the handler for a category, nil when none is registered.
func (r *HandlerRegistry) Resolve(category EventCategory) EventHandler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[category]
}

func (r *HandlerRegistry) Categories() []EventCategory {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventCategory, 0, len(r.handlers))
	for category := range r.handlers {
		out = append(out, category)
	}
	return out
}
