package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

const orderColumns = `id, buyer_id, seller_id, checkout_group_id, status, total, created_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order   domain.Order
		groupID sql.NullString
	)
	err := row.Scan(&order.ID, &order.BuyerID, &order.SellerID, &groupID, &order.Status, &order.Total, &order.CreatedAt)
	order.CheckoutGroupID = groupID.String
	order.CreatedAt = order.CreatedAt.UTC()
	return order, err
}

func insertOrder(ctx context.Context, q querier, order *domain.Order) error {
	var groupID sql.NullString
	if order.CheckoutGroupID != "" {
		groupID = sql.NullString{String: order.CheckoutGroupID, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, seller_id, checkout_group_id, status, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, order.ID, order.BuyerID, order.SellerID, groupID, order.Status, order.Total, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return err
		}
	}

	return nil
}

func orderForSeller(ctx context.Context, q querier, sellerID, orderID string) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND seller_id = $2
		FOR UPDATE
	`, orderID, sellerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	orders := []domain.Order{order}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func setOrderStatus(ctx context.Context, q querier, orderID string, status domain.OrderStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}

	return nil
}

func hasDeliveredProduct(ctx context.Context, q querier, buyerID, productID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items oi ON oi.order_id = o.id
			WHERE o.buyer_id = $1 AND o.status = $2 AND oi.product_id = $3
		)
	`, buyerID, domain.OrderStatusDelivered, productID).Scan(&exists)
	return exists, err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	orders, err := s.listOrders(ctx, `id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Store) ListBuyerOrders(ctx context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	conds := []string{`buyer_id = $1`}
	args := []any{buyerID}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		conds = append(conds, fmt.Sprintf(`seller_id = $%d`, len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf(`status = $%d`, len(args)))
	}
	return s.listOrders(ctx, strings.Join(conds, " AND "), args...)
}

func (s *Store) ListSellerOrders(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return s.listOrders(ctx, `seller_id = $1`, sellerID)
}

func (s *Store) ListCheckoutGroup(ctx context.Context, buyerID, groupID string) ([]domain.Order, error) {
	return s.listOrders(ctx, `buyer_id = $1 AND checkout_group_id = $2`, buyerID, groupID)
}

// listOrders loads the matching orders newest first, then their items with a
// single query.
func (s *Store) listOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadItems(ctx, s.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func loadItems(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[string]int, len(orders))
	orderIDs := make([]string, len(orders))
	for i := range orders {
		orders[i].Items = []domain.OrderItem{}
		index[orders[i].ID] = i
		orderIDs[i] = orders[i].ID
	}

	rows, err := q.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, p.name, oi.quantity, oi.unit_price, oi.subtotal
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return err
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	return rows.Err()
}
