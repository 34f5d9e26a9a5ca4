package fulfillment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

// HasReceivedProduct reports whether buyerID has at least one delivered order
// containing productID.
func (e *Engine) HasReceivedProduct(ctx context.Context, buyerID, productID string) (bool, error) {
	ok, err := e.store.HasDeliveredProduct(ctx, buyerID, productID)
	if err != nil {
		return false, domain.Persistence(fmt.Errorf("check delivered product: %w", err))
	}
	return ok, nil
}

// CreateReview records a buyer's review of a product they have received. A
// buyer reviews a product at most once.
func (e *Engine) CreateReview(ctx context.Context, buyerID, productID string, rating int, comment string) (review *domain.Review, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.CreateReview", trace.WithAttributes(
		attribute.String("buyer.id", buyerID),
		attribute.String("product.id", productID),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "create_review", start, err) }()

	if buyerID == "" || productID == "" {
		return nil, domain.InvalidInput("buyer id and product id are required")
	}
	if rating < domain.MinRating || rating > domain.MaxRating {
		return nil, domain.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > domain.MaxCommentLength {
		return nil, domain.InvalidInput(fmt.Sprintf("comment must be at most %d characters", domain.MaxCommentLength))
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if product == nil || !product.Active {
			return domain.ProductsUnavailable("product not found or inactive")
		}

		received, err := tx.HasDeliveredProduct(ctx, buyerID, productID)
		if err != nil {
			return fmt.Errorf("check delivered product: %w", err)
		}
		if !received {
			return domain.NotEligible(productID)
		}

		review = &domain.Review{
			ID:        e.newID(),
			ProductID: productID,
			BuyerID:   buyerID,
			Rating:    rating,
			Comment:   comment,
			CreatedAt: e.now(),
		}
		return tx.InsertReview(ctx, review)
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	e.logger.Info("review created", "review_id", review.ID, "product_id", productID, "buyer_id", buyerID, "rating", rating)
	return review, nil
}

// ListReviews returns the reviews of an active product, newest first.
func (e *Engine) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("load product: %w", err))
	}
	if product == nil || !product.Active {
		return nil, domain.ProductsUnavailable("product not found or inactive")
	}

	reviews, err := e.store.ListReviews(ctx, productID)
	if err != nil {
		return nil, domain.Persistence(fmt.Errorf("list reviews: %w", err))
	}
	return reviews, nil
}
