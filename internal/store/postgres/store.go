// Package postgres implements the fulfillment store on PostgreSQL. Every
// transaction runs at SERIALIZABLE isolation and locks the product rows it
// touches, so concurrent reservations of the same product either wait or are
// rejected with a serialization failure.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ fulfillment.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{q: sqlTx}); err != nil {
		return classify(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify turns storage errors into typed fulfillment errors. Business errors
// pass through untouched.
func classify(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return domain.ConcurrencyConflict(err)
		}
	}
	return domain.Persistence(err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == sqlStateUniqueViolation
}

type tx struct {
	q querier
}

func (t *tx) SellerExists(ctx context.Context, sellerID string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND role = 'seller')
	`, sellerID).Scan(&exists)
	return exists, err
}

func (t *tx) LockProducts(ctx context.Context, sellerID string, ids []string) ([]domain.Product, error) {
	return lockProducts(ctx, t.q, sellerID, ids)
}

func (t *tx) AdjustStock(ctx context.Context, productID string, delta int, at time.Time) error {
	return adjustStock(ctx, t.q, productID, delta, at)
}

func (t *tx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return insertOrder(ctx, t.q, order)
}

func (t *tx) OrderForSeller(ctx context.Context, sellerID, orderID string) (*domain.Order, error) {
	return orderForSeller(ctx, t.q, sellerID, orderID)
}

func (t *tx) SetOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	return setOrderStatus(ctx, t.q, orderID, status)
}

func (t *tx) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, t.q, productID)
}

func (t *tx) HasDeliveredProduct(ctx context.Context, buyerID, productID string) (bool, error) {
	return hasDeliveredProduct(ctx, t.q, buyerID, productID)
}

func (t *tx) InsertReview(ctx context.Context, review *domain.Review) error {
	return insertReview(ctx, t.q, review)
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return getProduct(ctx, s.db, productID)
}

func (s *Store) HasDeliveredProduct(ctx context.Context, buyerID, productID string) (bool, error) {
	return hasDeliveredProduct(ctx, s.db, buyerID, productID)
}

func (s *Store) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	return listReviews(ctx, s.db, productID)
}
