package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCanceled  OrderStatus = "canceled"
)

var nextStatuses = map[OrderStatus][]OrderStatus{
	OrderStatusNew:       {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: nil,
	OrderStatusCanceled:  nil,
}

func (s OrderStatus) Valid() bool {
	_, ok := nextStatuses[s]
	return ok
}

// CanTransition reports whether an order in status s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range nextStatuses[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a line of an order. UnitPrice is the product price frozen at
// order time; ProductName is for display only.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	CheckoutGroupID string          `json:"checkout_group_id,omitempty"`
	Status          OrderStatus     `json:"status"`
	Total           decimal.Decimal `json:"total"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LineRequest is one requested (product, quantity) pair as received from a
// caller, before normalization.
type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// OrderRequest asks for a single-seller order.
type OrderRequest struct {
	BuyerID  string        `json:"buyer_id"`
	SellerID string        `json:"seller_id"`
	Items    []LineRequest `json:"items"`
}

// OrderFilter narrows buyer order listings. Zero values match everything.
type OrderFilter struct {
	SellerID string
	Status   OrderStatus
}
