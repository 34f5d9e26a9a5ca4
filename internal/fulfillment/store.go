package fulfillment

import (
	"context"
	"time"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// Store is the shared inventory and order ledger. WithinTx must run fn as one
// serializable unit: either every effect of fn becomes visible or none does.
// If fn returns an error, or ctx is done before commit, the unit rolls back.
// Conflicting concurrent writes surface as domain.ErrConcurrencyConflict.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader holds the read-only queries. Lookups of a single record return
// (nil, nil) when nothing matches.
type Reader interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string) ([]domain.Order, error)
	ListCheckoutGroup(ctx context.Context, buyerID, groupID string) ([]domain.Order, error)
	HasDeliveredProduct(ctx context.Context, buyerID, productID string) (bool, error)
	ListReviews(ctx context.Context, productID string) ([]domain.Review, error)
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	SellerExists(ctx context.Context, sellerID string) (bool, error)
	// LockProducts loads the active products among ids owned by sellerID and
	// holds them against concurrent modification until the transaction ends.
	LockProducts(ctx context.Context, sellerID string, ids []string) ([]domain.Product, error)
	// AdjustStock adds delta to the product stock, bumps its version and sets
	// its update time.
	AdjustStock(ctx context.Context, productID string, delta int, at time.Time) error
	InsertOrder(ctx context.Context, order *domain.Order) error
	// OrderForSeller loads an order with its items scoped to sellerID and
	// locks it for the status change.
	OrderForSeller(ctx context.Context, sellerID, orderID string) (*domain.Order, error)
	SetOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error

	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	HasDeliveredProduct(ctx context.Context, buyerID, productID string) (bool, error)
	// InsertReview fails with domain.ErrDuplicateReview when the buyer already
	// reviewed the product.
	InsertReview(ctx context.Context, review *domain.Review) error
}

// EventPublisher receives order lifecycle events after commit.
type EventPublisher interface {
	OrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error
	OrderStatusChanged(ctx context.Context, event domain.OrderStatusChangedEvent) error
}
