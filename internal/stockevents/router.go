package stockevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
)

var ErrUnsupportedEventType = errors.New("unsupported stock event type")

// Event is a delivered stock event with its payload decoded to the registry type.
type Event struct {
	ID          uuid.UUID
	Type        enums.OutboxEventType
	AggregateID uuid.UUID
	OccurredAt  time.Time
	Actor       *outbox.ActorRef
	Payload     any
}

// Handler reacts to one decoded stock event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Router fans an event out to every handler registered for its type.
type Router struct {
	handlers map[enums.OutboxEventType][]Handler
}

func NewRouter() *Router {
	return &Router{handlers: map[enums.OutboxEventType][]Handler{}}
}

// Register appends handlers for eventType. Nil handlers are ignored.
func (r *Router) Register(eventType enums.OutboxEventType, handlers ...Handler) {
	for _, h := range handlers {
		if h == nil {
			continue
		}
		r.handlers[eventType] = append(r.handlers[eventType], h)
	}
}

// Handle runs every handler even when an earlier one fails and returns the combined error.
func (r *Router) Handle(ctx context.Context, event Event) error {
	handlers, ok := r.handlers[event.Type]
	if !ok || len(handlers) == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, event.Type)
	}
	var errs error
	for _, h := range handlers {
		errs = multierr.Append(errs, h.Handle(ctx, event))
	}
	return errs
}

// NewDefaultRouter invalidates the cached snapshot on every stock event and
// raises alerts for low stock and deactivation.
func NewDefaultRouter(cache inventory.StockCache, m *metrics.InventoryMetrics, logg *logger.Logger) (*Router, error) {
	if cache == nil {
		return nil, errors.New("stock cache is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	r := NewRouter()
	invalidate := newCacheInvalidationHandler(cache, logg)
	for _, eventType := range enums.OutboxEventTypes() {
		r.Register(eventType, invalidate)
	}
	r.Register(enums.EventLowStockDetected, newLowStockAlertHandler(m, logg))
	r.Register(enums.EventStockItemDeactivated, newDeactivationHandler(logg))
	return r, nil
}
