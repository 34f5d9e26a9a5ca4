package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// NotificationHandler emails buyers about their orders' lifecycle events.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle dispatches on the event type. Unknown types are skipped so they do
// not block the consumer group.
func (h *NotificationHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case domain.EventOrderCreated:
		var event domain.OrderCreatedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("unmarshal order created event: %w", err)
		}
		return h.orderCreated(ctx, event)

	case domain.EventOrderStatusChanged:
		var event domain.OrderStatusChangedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("unmarshal order status changed event: %w", err)
		}
		return h.statusChanged(ctx, event)

	default:
		h.logger.Warn("skipping message with unknown event type", "event_type", eventType)
		return nil
	}
}

func (h *NotificationHandler) orderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	h.logger.Info("processing order created event", "order_id", event.OrderID, "buyer_id", event.BuyerID)

	body := fmt.Sprintf("Your order %s with %d items was received. Total: %s.",
		event.OrderID, len(event.Items), event.Total.StringFixed(2))
	if event.CheckoutGroupID != "" {
		body += fmt.Sprintf(" It is part of checkout %s.", event.CheckoutGroupID)
	}

	if err := h.sendEmail(ctx, email{
		To:      recipient(event.BuyerID),
		Subject: "Order Received: " + event.OrderID,
		Body:    body,
	}); err != nil {
		h.logger.Error("failed to send order received email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send order received email: %w", err)
	}
	return nil
}

func (h *NotificationHandler) statusChanged(ctx context.Context, event domain.OrderStatusChangedEvent) error {
	h.logger.Info("processing order status changed event",
		"order_id", event.OrderID, "buyer_id", event.BuyerID, "from", event.From, "to", event.To)

	var msg email
	switch event.To {
	case domain.OrderStatusShipped:
		msg = email{
			Subject: "Order Shipped: " + event.OrderID,
			Body:    fmt.Sprintf("Your order %s is on its way.", event.OrderID),
		}
	case domain.OrderStatusDelivered:
		msg = email{
			Subject: "Order Delivered: " + event.OrderID,
			Body:    fmt.Sprintf("Your order %s was delivered. You can now review its products.", event.OrderID),
		}
	case domain.OrderStatusCanceled:
		msg = email{
			Subject: "Order Cancelled: " + event.OrderID,
			Body:    fmt.Sprintf("Your order %s has been cancelled by the seller. You will be reimbursed.", event.OrderID),
		}
	default:
		return nil
	}
	msg.To = recipient(event.BuyerID)

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send status email", "error", err, "order_id", event.OrderID, "status", event.To)
		return fmt.Errorf("send %s email: %w", event.To, err)
	}
	return nil
}

func recipient(buyerID string) string {
	return buyerID + "@example.com"
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg email) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
