// Package fulfillment places marketplace orders against seller inventory and
// drives them through their lifecycle. All stock mutations run inside a single
// serializable Store transaction per operation; the engine itself keeps no
// in-process locks.
package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

type Engine struct {
	store     Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *engineMetrics
	now       func() time.Time
	newID     func() string
}

type Option func(*Engine)

// WithPublisher sets where lifecycle events go after commit.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(store Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	metrics, err := newEngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("create engine metrics: %w", err)
	}

	e := &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	// Postgres keeps microseconds; returned timestamps must match later reads.
	clock := e.now
	e.now = func() time.Time { return clock().Truncate(time.Microsecond) }
	return e, nil
}

// CheckoutGroup is the result of a grouped checkout.
type CheckoutGroup struct {
	ID     string         `json:"checkout_group_id"`
	Orders []domain.Order `json:"orders"`
}

// SellerCart is the part of a grouped checkout addressed to one seller.
type SellerCart struct {
	SellerID string               `json:"seller_id"`
	Items    []domain.LineRequest `json:"items"`
}

// CreateOrder reserves stock and persists a single-seller order with frozen
// prices. On failure nothing is persisted.
func (e *Engine) CreateOrder(ctx context.Context, req domain.OrderRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.CreateOrder", trace.WithAttributes(
		attribute.String("buyer.id", req.BuyerID),
		attribute.String("seller.id", req.SellerID),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "create_order", start, err) }()

	lines, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = e.placeOrder(ctx, tx, req, lines, "")
		return err
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	e.metrics.ordersCreated.Add(ctx, 1)
	e.logger.Info("order created",
		"order_id", order.ID, "buyer_id", order.BuyerID, "seller_id", order.SellerID, "total", order.Total.StringFixed(2))
	e.publishCreated(ctx, order)
	return order, nil
}

// CreateCheckoutGroup places one order per cart in input order inside a single
// transaction, all sharing a fresh checkout group id. The first failing cart
// aborts the whole group.
func (e *Engine) CreateCheckoutGroup(ctx context.Context, buyerID string, carts []SellerCart) (group *CheckoutGroup, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.CreateCheckoutGroup", trace.WithAttributes(
		attribute.String("buyer.id", buyerID),
		attribute.Int("carts", len(carts)),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "create_checkout_group", start, err) }()

	if len(carts) == 0 {
		return nil, domain.InvalidInput("at least one order is required")
	}

	reqs := make([]domain.OrderRequest, len(carts))
	normalized := make([][]line, len(carts))
	for i, cart := range carts {
		reqs[i] = domain.OrderRequest{BuyerID: buyerID, SellerID: cart.SellerID, Items: cart.Items}
		lines, err := e.validate(reqs[i])
		if err != nil {
			return nil, forSeller(cart.SellerID, err)
		}
		normalized[i] = lines
	}

	groupID := e.newID()
	var created []domain.Order
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		created = created[:0]
		for i, req := range reqs {
			order, err := e.placeOrder(ctx, tx, req, normalized[i], groupID)
			if err != nil {
				return forSeller(req.SellerID, err)
			}
			created = append(created, *order)
		}
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	e.metrics.ordersCreated.Add(ctx, int64(len(created)))
	e.logger.Info("checkout group created", "checkout_group_id", groupID, "buyer_id", buyerID, "orders", len(created))
	for i := range created {
		e.publishCreated(ctx, &created[i])
	}
	return &CheckoutGroup{ID: groupID, Orders: created}, nil
}

func (e *Engine) validate(req domain.OrderRequest) ([]line, error) {
	if req.BuyerID == "" {
		return nil, domain.InvalidInput("buyer id is required")
	}
	if req.SellerID == "" {
		return nil, domain.InvalidInput("seller id is required")
	}
	return normalize(req.Items)
}

// placeOrder runs the reservation inside an existing transaction. Every check
// happens before the first stock write.
func (e *Engine) placeOrder(ctx context.Context, tx Tx, req domain.OrderRequest, lines []line, groupID string) (*domain.Order, error) {
	ok, err := tx.SellerExists(ctx, req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("check seller: %w", err)
	}
	if !ok {
		return nil, domain.InvalidSeller(req.SellerID)
	}

	ids := productIDs(lines)
	products, err := tx.LockProducts(ctx, req.SellerID, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	if len(products) != len(ids) {
		return nil, domain.ProductsUnavailable("one or more products do not exist, are inactive or belong to another seller")
	}

	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, l := range lines {
		if p := byID[l.productID]; p.Stock < l.quantity {
			return nil, domain.InsufficientStock(p, l.quantity)
		}
	}

	now := e.now()
	for _, l := range lines {
		if err := tx.AdjustStock(ctx, l.productID, -l.quantity, now); err != nil {
			return nil, fmt.Errorf("reserve stock for %s: %w", l.productID, err)
		}
	}

	order := &domain.Order{
		ID:              e.newID(),
		BuyerID:         req.BuyerID,
		SellerID:        req.SellerID,
		CheckoutGroupID: groupID,
		Status:          domain.OrderStatusNew,
		Total:           decimal.Zero,
		Items:           make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:       now,
	}
	for _, l := range lines {
		p := byID[l.productID]
		unit := p.Price
		subtotal := unit.Mul(decimal.NewFromInt(int64(l.quantity)))
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   l.productID,
			ProductName: p.Name,
			Quantity:    l.quantity,
			UnitPrice:   unit,
			Subtotal:    subtotal,
		})
		order.Total = order.Total.Add(subtotal)
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (e *Engine) publishCreated(ctx context.Context, order *domain.Order) {
	if e.publisher == nil {
		return
	}
	event := domain.OrderCreatedEvent{
		OrderID:         order.ID,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		CheckoutGroupID: order.CheckoutGroupID,
		Items:           order.Items,
		Total:           order.Total,
		Timestamp:       order.CreatedAt,
	}
	if err := e.publisher.OrderCreated(ctx, event); err != nil {
		e.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

func (e *Engine) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	e.metrics.observe(ctx, op, start, err)
	if err != nil {
		de := domain.AsError(err)
		span.SetAttributes(attribute.String("error.kind", string(de.Kind)))
		if de.Kind == domain.KindPersistence {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("fulfillment operation failed", "op", op, "error", err)
		} else {
			e.logger.Info("fulfillment operation rejected", "op", op, "kind", de.Kind, "detail", de.Detail)
		}
	}
	span.End()
}

// forSeller prefixes a business error's detail with the seller it came from,
// keeping its kind and structured fields.
func forSeller(sellerID string, err error) error {
	de := domain.AsError(err)
	if de.Kind == domain.KindPersistence || de.Kind == domain.KindConcurrencyConflict {
		return err
	}
	cp := *de
	cp.Detail = fmt.Sprintf("seller %s: %s", sellerID, de.Detail)
	return &cp
}
