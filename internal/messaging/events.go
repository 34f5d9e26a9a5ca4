package messaging

import (
	"context"
	"errors"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// OrderEvents publishes order lifecycle events, one topic per event type.
type OrderEvents struct {
	created       *Producer
	statusChanged *Producer
}

func NewOrderEvents(brokers []string) *OrderEvents {
	return &OrderEvents{
		created:       NewProducer(brokers, domain.TopicOrderCreated),
		statusChanged: NewProducer(brokers, domain.TopicOrderStatusChanged),
	}
}

func (e *OrderEvents) OrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	return e.created.Publish(ctx, domain.EventOrderCreated, event.OrderID, event)
}

func (e *OrderEvents) OrderStatusChanged(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	return e.statusChanged.Publish(ctx, domain.EventOrderStatusChanged, event.OrderID, event)
}

func (e *OrderEvents) Close() error {
	return errors.Join(e.created.Close(), e.statusChanged.Close())
}
