package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// ChangeStatus moves an order of sellerID to target. Canceling an order that
// is still new returns its quantities to stock in the same transaction.
func (e *Engine) ChangeStatus(ctx context.Context, sellerID, orderID string, target domain.OrderStatus) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.ChangeStatus", trace.WithAttributes(
		attribute.String("seller.id", sellerID),
		attribute.String("order.id", orderID),
		attribute.String("order.status.target", string(target)),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "change_status", start, err) }()

	if !target.Valid() {
		return nil, domain.InvalidInput(fmt.Sprintf("unknown order status %q", target))
	}

	var (
		from      domain.OrderStatus
		restocked int
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		restocked = 0

		current, err := tx.OrderForSeller(ctx, sellerID, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if current == nil {
			return domain.OrderNotFound(orderID)
		}
		from = current.Status
		if !from.CanTransition(target) {
			return domain.InvalidTransition(from, target)
		}

		if target == domain.OrderStatusCanceled && from == domain.OrderStatusNew {
			now := e.now()
			for _, item := range current.Items {
				if err := tx.AdjustStock(ctx, item.ProductID, item.Quantity, now); err != nil {
					return fmt.Errorf("restock %s: %w", item.ProductID, err)
				}
				restocked += item.Quantity
			}
		}

		if err := tx.SetOrderStatus(ctx, orderID, target); err != nil {
			return fmt.Errorf("set order status: %w", err)
		}
		current.Status = target
		order = current
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	e.metrics.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(target))))
	if restocked > 0 {
		e.metrics.restocked.Add(ctx, int64(restocked))
	}
	e.logger.Info("order status changed",
		"order_id", order.ID, "seller_id", sellerID, "from", from, "to", target, "restocked_units", restocked)

	if e.publisher != nil {
		event := domain.OrderStatusChangedEvent{
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			SellerID:  order.SellerID,
			From:      from,
			To:        target,
			Restocked: restocked > 0,
			Timestamp: e.now(),
		}
		if err := e.publisher.OrderStatusChanged(ctx, event); err != nil {
			e.logger.Error("failed to publish order status changed event", "error", err, "order_id", order.ID)
		}
	}
	return order, nil
}
