package postgres

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

func insertReview(ctx context.Context, q querier, review *domain.Review) error {
	var comment sql.NullString
	if review.Comment != "" {
		comment = sql.NullString{String: review.Comment, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO reviews (id, product_id, buyer_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, review.ID, review.ProductID, review.BuyerID, review.Rating, comment, review.CreatedAt)
	if isUniqueViolation(err) {
		return domain.DuplicateReview(review.ProductID)
	}
	return err
}

func listReviews(ctx context.Context, q querier, productID string) ([]domain.Review, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, buyer_id, rating, comment, created_at
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	reviews := []domain.Review{}
	for rows.Next() {
		var (
			r       domain.Review
			comment sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.ProductID, &r.BuyerID, &r.Rating, &comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Comment = comment.String
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reviews, nil
}
