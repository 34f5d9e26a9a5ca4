package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.Kind
	}{
		{"serialization failure", &pq.Error{Code: sqlStateSerializationFailure}, domain.KindConcurrencyConflict},
		{"deadlock", &pq.Error{Code: sqlStateDeadlockDetected}, domain.KindConcurrencyConflict},
		{"wrapped serialization failure", fmt.Errorf("commit transaction: %w", &pq.Error{Code: sqlStateSerializationFailure}), domain.KindConcurrencyConflict},
		{"unique violation", &pq.Error{Code: sqlStateUniqueViolation}, domain.KindPersistence},
		{"undefined table", &pq.Error{Code: "42P01"}, domain.KindPersistence},
		{"connection refused", errors.New("dial tcp: connection refused"), domain.KindPersistence},
		{"no rows", sql.ErrNoRows, domain.KindPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)

			var de *domain.Error
			if !errors.As(got, &de) {
				t.Fatalf("expected *domain.Error, got %T", got)
			}
			if de.Kind != tt.want {
				t.Errorf("expected kind %s, got %s", tt.want, de.Kind)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("expected cause %v to be kept", tt.err)
			}
		})
	}

	t.Run("conflicts are retryable", func(t *testing.T) {
		var de *domain.Error
		errors.As(classify(&pq.Error{Code: sqlStateDeadlockDetected}), &de)
		if !de.Retryable() {
			t.Error("expected conflict to be retryable")
		}
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		stock := domain.InsufficientStock(domain.Product{ID: "ITEM-003", Name: "Gizmo", Stock: 1}, 2)
		dup := domain.DuplicateReview("ITEM-001")

		for _, err := range []error{stock, fmt.Errorf("place order: %w", stock), dup} {
			got := classify(err)
			var de *domain.Error
			if !errors.As(got, &de) {
				t.Fatalf("expected *domain.Error, got %T", got)
			}
			if de.Kind == domain.KindPersistence {
				t.Errorf("expected business kind to survive, got %s", de.Kind)
			}
		}
		if got := classify(stock); got != stock {
			t.Errorf("expected the same error back, got %v", got)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pq.Error{Code: sqlStateUniqueViolation}, true},
		{"wrapped unique violation", fmt.Errorf("insert review: %w", &pq.Error{Code: sqlStateUniqueViolation}), true},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStore_WithinTx_ClassifiesBeginFailure(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = db.Close() }()

	called := false
	err = NewStore(db).WithinTx(context.Background(), func(context.Context, fulfillment.Tx) error {
		called = true
		return nil
	})

	if called {
		t.Error("expected fn not to run without a transaction")
	}
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected persistence error, got %v", err)
	}
}
