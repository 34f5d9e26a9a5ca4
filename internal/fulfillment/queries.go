package fulfillment

import (
	"context"
	"fmt"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// GetOrder returns an order only if it belongs to buyerID.
func (e *Engine) GetOrder(ctx context.Context, buyerID, orderID string) (*domain.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("get order: %w", err))
	}
	if order == nil || order.BuyerID != buyerID {
		return nil, domain.OrderNotFound(orderID)
	}
	return order, nil
}

func (e *Engine) ListBuyerOrders(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.InvalidInput(fmt.Sprintf("unknown order status %q", filter.Status))
	}
	orders, err := e.store.ListBuyerOrders(ctx, buyerID, filter)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("list buyer orders: %w", err))
	}
	return orders, nil
}

func (e *Engine) ListSellerOrders(ctx context.Context, sellerID string) ([]domain.Order, error) {
	orders, err := e.store.ListSellerOrders(ctx, sellerID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("list seller orders: %w", err))
	}
	return orders, nil
}

func (e *Engine) GetCheckoutGroup(ctx context.Context, buyerID, groupID string) (*CheckoutGroup, error) {
	orders, err := e.store.ListCheckoutGroup(ctx, buyerID, groupID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("list checkout group: %w", err))
	}
	return &CheckoutGroup{ID: groupID, Orders: orders}, nil
}

func (e *Engine) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("get product: %w", err))
	}
	if product == nil {
		return nil, domain.ProductsUnavailable(fmt.Sprintf("product %s not found", productID))
	}
	return product, nil
}
