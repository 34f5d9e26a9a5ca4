package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

const productColumns = `id, seller_id, name, price, stock, is_active, version, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Stock, &p.Active, &p.Version, &p.UpdatedAt)
	return p, err
}

// lockProducts takes the row locks in id order so two transactions touching
// overlapping product sets cannot deadlock on each other.
func lockProducts(ctx context.Context, q querier, sellerID string, ids []string) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1) AND seller_id = $2 AND is_active
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids), sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func adjustStock(ctx context.Context, q querier, productID string, delta int, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND stock + $2 >= 0
	`, productID, delta, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("stock of product %s cannot change by %d", productID, delta)
	}

	return nil
}

func getProduct(ctx context.Context, q querier, productID string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
