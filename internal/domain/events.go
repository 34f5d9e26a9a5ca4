package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

// Event types travel in the x-event-type message header and select how a
// consumer decodes the payload.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreatedEvent struct {
	OrderID         string          `json:"order_id"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	CheckoutGroupID string          `json:"checkout_group_id,omitempty"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Timestamp       time.Time       `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID   string      `json:"order_id"`
	BuyerID   string      `json:"buyer_id"`
	SellerID  string      `json:"seller_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Restocked bool        `json:"restocked"`
	Timestamp time.Time   `json:"timestamp"`
}
