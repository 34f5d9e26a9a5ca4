package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	Seed(s, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return s
}

func TestStore_WithinTx(t *testing.T) {
	t.Run("error rolls back every write", func(t *testing.T) {
		s := seeded(t)
		boom := errors.New("boom")

		err := s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			if err := tx.AdjustStock(ctx, "ITEM-001", -5, time.Now()); err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, &domain.Order{ID: "o-1", BuyerID: "buyer-001", SellerID: "seller-001"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		p, _ := s.GetProduct(context.Background(), "ITEM-001")
		if p.Stock != 100 {
			t.Errorf("expected stock 100, got %d", p.Stock)
		}
		o, _ := s.GetOrder(context.Background(), "o-1")
		if o != nil {
			t.Errorf("expected no order, got %+v", o)
		}
	})

	t.Run("commit publishes writes", func(t *testing.T) {
		s := seeded(t)

		err := s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			return tx.AdjustStock(ctx, "ITEM-002", -3, time.Now())
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p, _ := s.GetProduct(context.Background(), "ITEM-002")
		if p.Stock != 17 {
			t.Errorf("expected stock 17, got %d", p.Stock)
		}
		if p.Version != 1 {
			t.Errorf("expected version 1, got %d", p.Version)
		}
	})

	t.Run("context canceled during fn discards writes", func(t *testing.T) {
		s := seeded(t)
		ctx, cancel := context.WithCancel(context.Background())

		err := s.WithinTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
			if err := tx.AdjustStock(ctx, "ITEM-001", -1, time.Now()); err != nil {
				return err
			}
			cancel()
			return nil
		})
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected persistence error, got %v", err)
		}

		p, _ := s.GetProduct(context.Background(), "ITEM-001")
		if p.Stock != 100 {
			t.Errorf("expected stock 100, got %d", p.Stock)
		}
	})
}

func TestTx(t *testing.T) {
	t.Run("stock never goes negative", func(t *testing.T) {
		s := seeded(t)

		err := s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			return tx.AdjustStock(ctx, "ITEM-003", -2, time.Now())
		})
		if err == nil {
			t.Fatal("expected error for negative stock")
		}
	})

	t.Run("lock products filters by seller and active flag", func(t *testing.T) {
		s := seeded(t)
		s.PutProduct(domain.Product{ID: "ITEM-009", SellerID: "seller-001", Price: decimal.NewFromInt(1), Stock: 1})

		var got []domain.Product
		err := s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			var err error
			got, err = tx.LockProducts(ctx, "seller-001", []string{"ITEM-002", "ITEM-003", "ITEM-009", "ITEM-001"})
			return err
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(got) != 2 || got[0].ID != "ITEM-001" || got[1].ID != "ITEM-002" {
			t.Errorf("expected [ITEM-001 ITEM-002], got %+v", got)
		}
	})

	t.Run("seller exists only for seller accounts", func(t *testing.T) {
		s := seeded(t)

		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			if ok, _ := tx.SellerExists(ctx, "seller-001"); !ok {
				t.Error("expected seller-001 to be a seller")
			}
			if ok, _ := tx.SellerExists(ctx, "buyer-001"); ok {
				t.Error("expected buyer-001 not to be a seller")
			}
			return nil
		})
	})

	t.Run("duplicate review", func(t *testing.T) {
		s := seeded(t)
		insert := func() error {
			return s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
				return tx.InsertReview(ctx, &domain.Review{ID: "r", ProductID: "ITEM-001", BuyerID: "buyer-001", Rating: 4})
			})
		}

		if err := insert(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := insert(); !errors.Is(err, domain.ErrDuplicateReview) {
			t.Fatalf("expected duplicate review, got %v", err)
		}
	})
}

func TestStore_Reads(t *testing.T) {
	t.Run("reviews list is never nil", func(t *testing.T) {
		s := seeded(t)

		reviews, err := s.ListReviews(context.Background(), "ITEM-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reviews == nil {
			t.Error("expected empty slice, got nil")
		}
	})

	t.Run("returned orders are copies", func(t *testing.T) {
		s := seeded(t)
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
			return tx.InsertOrder(ctx, &domain.Order{
				ID: "o-1", BuyerID: "buyer-001", SellerID: "seller-001", Status: domain.OrderStatusNew,
				Items: []domain.OrderItem{{ProductID: "ITEM-001", Quantity: 1}},
			})
		})

		o, _ := s.GetOrder(context.Background(), "o-1")
		o.Items[0].Quantity = 99
		o.Status = domain.OrderStatusCanceled

		again, _ := s.GetOrder(context.Background(), "o-1")
		if again.Items[0].Quantity != 1 || again.Status != domain.OrderStatusNew {
			t.Errorf("expected stored order unchanged, got %+v", again)
		}
	})
}
