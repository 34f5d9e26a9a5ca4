// Package memory is an in-process fulfillment store. Transactions are
// serialized behind one writer lock and applied to a private copy of the
// state that replaces the live state only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
)

type state struct {
	accounts map[string]domain.Account
	products map[string]domain.Product
	orders   map[string]domain.Order
	// insertion order, oldest first
	orderIDs []string
	reviews  []domain.Review
}

func (s *state) clone() *state {
	c := &state{
		accounts: make(map[string]domain.Account, len(s.accounts)),
		products: make(map[string]domain.Product, len(s.products)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		orderIDs: append([]string(nil), s.orderIDs...),
		reviews:  append([]domain.Review(nil), s.reviews...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	// items are never mutated after insert, so sharing the slices is safe
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

var _ fulfillment.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		accounts: map[string]domain.Account{},
		products: map[string]domain.Product{},
		orders:   map[string]domain.Order{},
	}}
}

// PutAccount creates or replaces an account.
func (s *Store) PutAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.accounts[a.ID] = a
}

// PutProduct creates or replaces a product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Persistence(fmt.Errorf("begin transaction: %w", err))
	}

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return domain.Persistence(fmt.Errorf("commit transaction: %w", err))
	}
	s.st = work
	return nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.product(productID), nil
}

func (s *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.st.orders[orderID]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (s *Store) ListBuyerOrders(_ context.Context, buyerID string, filter domain.OrderFilter) ([]domain.Order, error) {
	return s.list(func(o domain.Order) bool {
		return o.BuyerID == buyerID &&
			(filter.SellerID == "" || o.SellerID == filter.SellerID) &&
			(filter.Status == "" || o.Status == filter.Status)
	}), nil
}

func (s *Store) ListSellerOrders(_ context.Context, sellerID string) ([]domain.Order, error) {
	return s.list(func(o domain.Order) bool { return o.SellerID == sellerID }), nil
}

func (s *Store) ListCheckoutGroup(_ context.Context, buyerID, groupID string) ([]domain.Order, error) {
	return s.list(func(o domain.Order) bool {
		return o.BuyerID == buyerID && o.CheckoutGroupID != "" && o.CheckoutGroupID == groupID
	}), nil
}

func (s *Store) HasDeliveredProduct(_ context.Context, buyerID, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hasDelivered(buyerID, productID), nil
}

func (s *Store) ListReviews(_ context.Context, productID string) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Review{}
	for i := len(s.st.reviews) - 1; i >= 0; i-- {
		if r := s.st.reviews[i]; r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

// list returns matching orders newest first.
func (s *Store) list(match func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Order{}
	for i := len(s.st.orderIDs) - 1; i >= 0; i-- {
		if o := s.st.orders[s.st.orderIDs[i]]; match(o) {
			out = append(out, *copyOrder(o))
		}
	}
	return out
}

func (s *state) product(id string) *domain.Product {
	p, ok := s.products[id]
	if !ok {
		return nil
	}
	return &p
}

func (s *state) hasDelivered(buyerID, productID string) bool {
	for _, o := range s.orders {
		if o.BuyerID != buyerID || o.Status != domain.OrderStatusDelivered {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true
			}
		}
	}
	return false
}

type tx struct {
	st *state
}

func (t *tx) SellerExists(_ context.Context, sellerID string) (bool, error) {
	a, ok := t.st.accounts[sellerID]
	return ok && a.Role == domain.RoleSeller, nil
}

func (t *tx) LockProducts(_ context.Context, sellerID string, ids []string) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := t.st.products[id]
		if ok && p.SellerID == sellerID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) AdjustStock(_ context.Context, productID string, delta int, at time.Time) error {
	p, ok := t.st.products[productID]
	if !ok {
		return fmt.Errorf("product %s not found", productID)
	}
	if p.Stock+delta < 0 {
		return fmt.Errorf("stock of product %s would become negative", productID)
	}
	p.Stock += delta
	p.Version++
	p.UpdatedAt = at
	t.st.products[productID] = p
	return nil
}

func (t *tx) InsertOrder(_ context.Context, order *domain.Order) error {
	if _, ok := t.st.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	for _, it := range order.Items {
		if _, ok := t.st.products[it.ProductID]; !ok {
			return fmt.Errorf("order item references unknown product %s", it.ProductID)
		}
	}
	t.st.orders[order.ID] = *copyOrder(*order)
	t.st.orderIDs = append(t.st.orderIDs, order.ID)
	return nil
}

func (t *tx) OrderForSeller(_ context.Context, sellerID, orderID string) (*domain.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok || o.SellerID != sellerID {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (t *tx) SetOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Status = status
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	return t.st.product(productID), nil
}

func (t *tx) HasDeliveredProduct(_ context.Context, buyerID, productID string) (bool, error) {
	return t.st.hasDelivered(buyerID, productID), nil
}

func (t *tx) InsertReview(_ context.Context, review *domain.Review) error {
	for _, r := range t.st.reviews {
		if r.ProductID == review.ProductID && r.BuyerID == review.BuyerID {
			return domain.DuplicateReview(review.ProductID)
		}
	}
	t.st.reviews = append(t.st.reviews, *review)
	return nil
}

func copyOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o
}
