package orders

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/respond"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/store/memory"
)

type memoryIdempotency struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryIdempotency) Claim(_ context.Context, key string) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	data, ok := m.data[key]
	if !ok {
		m.data[key] = nil
		return true, nil, nil
	}
	return false, data, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key string, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = response
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestServer(t *testing.T, idem IdempotencyStore) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.New()
	memory.Seed(store, time.Now().UTC())
	engine, err := fulfillment.NewEngine(store, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(engine, idem, logger).Register(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

const createBody = `{"buyer_id":"buyer-001","seller_id":"seller-001","items":[{"product_id":"ITEM-001","quantity":3}]}`

func TestHandler_HandleCreate(t *testing.T) {
	t.Run("creates order", func(t *testing.T) {
		h := newTestServer(t, nil)

		rec := do(t, h, http.MethodPost, "/orders", createBody)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		order := decode[domain.Order](t, rec)
		if order.Total.StringFixed(2) != "15.00" {
			t.Errorf("expected total 15.00, got %s", order.Total)
		}
		if order.Status != domain.OrderStatusNew {
			t.Errorf("expected status new, got %s", order.Status)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		h := newTestServer(t, nil)

		rec := do(t, h, http.MethodPost, "/orders", `{`)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("maps domain errors", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want int
			kind domain.Kind
		}{
			{"invalid quantities", `{"buyer_id":"buyer-001","seller_id":"seller-001","items":[{"product_id":"ITEM-001","quantity":0}]}`, http.StatusBadRequest, domain.KindInvalidInput},
			{"unknown seller", `{"buyer_id":"buyer-001","seller_id":"nobody","items":[{"product_id":"ITEM-001","quantity":1}]}`, http.StatusUnprocessableEntity, domain.KindInvalidSeller},
			{"foreign product", `{"buyer_id":"buyer-001","seller_id":"seller-001","items":[{"product_id":"ITEM-003","quantity":1}]}`, http.StatusUnprocessableEntity, domain.KindProductsUnavailable},
			{"insufficient stock", `{"buyer_id":"buyer-001","seller_id":"seller-002","items":[{"product_id":"ITEM-003","quantity":2}]}`, http.StatusConflict, domain.KindInsufficientStock},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := newTestServer(t, nil)

				rec := do(t, h, http.MethodPost, "/orders", tt.body)

				if rec.Code != tt.want {
					t.Fatalf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
				}
				body := decode[respond.ErrorBody](t, rec)
				if body.Error != string(tt.kind) {
					t.Errorf("expected error %s, got %s", tt.kind, body.Error)
				}
			})
		}
	})

	t.Run("replays response for a repeated idempotency key", func(t *testing.T) {
		h := newTestServer(t, &memoryIdempotency{})

		first := do(t, h, http.MethodPost, "/orders", createBody, "Idempotency-Key", "k-1")
		second := do(t, h, http.MethodPost, "/orders", createBody, "Idempotency-Key", "k-1")

		if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
			t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
		}
		if second.Header().Get("Idempotent-Replayed") != "true" {
			t.Error("expected replay header on second response")
		}
		a, b := decode[domain.Order](t, first), decode[domain.Order](t, second)
		if a.ID != b.ID {
			t.Errorf("expected same order id, got %s and %s", a.ID, b.ID)
		}

		list := do(t, h, http.MethodGet, "/orders?buyer_id=buyer-001", "")
		if orders := decode[[]domain.Order](t, list); len(orders) != 1 {
			t.Errorf("expected 1 order, got %d", len(orders))
		}
	})

	t.Run("key still in flight is rejected", func(t *testing.T) {
		idem := &memoryIdempotency{}
		h := newTestServer(t, idem)
		if claimed, _, _ := idem.Claim(context.Background(), "create:buyer-001:k-2"); !claimed {
			t.Fatal("expected to claim key")
		}

		rec := do(t, h, http.MethodPost, "/orders", createBody, "Idempotency-Key", "k-2")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", rec.Code, rec.Body.String())
		}
		list := do(t, h, http.MethodGet, "/orders?buyer_id=buyer-001", "")
		if orders := decode[[]domain.Order](t, list); len(orders) != 0 {
			t.Errorf("expected no orders, got %d", len(orders))
		}
	})

	t.Run("concurrent requests with one key place one order", func(t *testing.T) {
		h := newTestServer(t, &memoryIdempotency{})

		const n = 8
		var wg sync.WaitGroup
		recs := make([]*httptest.ResponseRecorder, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				recs[i] = do(t, h, http.MethodPost, "/orders", createBody, "Idempotency-Key", "k-3")
			}()
		}
		wg.Wait()

		ids := map[string]bool{}
		for _, rec := range recs {
			switch rec.Code {
			case http.StatusCreated:
				ids[decode[domain.Order](t, rec).ID] = true
			case http.StatusConflict:
			default:
				t.Errorf("expected status 201 or 409, got %d: %s", rec.Code, rec.Body.String())
			}
		}
		if len(ids) != 1 {
			t.Errorf("expected a single order id across responses, got %d", len(ids))
		}

		list := do(t, h, http.MethodGet, "/orders?buyer_id=buyer-001", "")
		if orders := decode[[]domain.Order](t, list); len(orders) != 1 {
			t.Errorf("expected 1 order, got %d", len(orders))
		}
	})

	t.Run("failed request frees the key", func(t *testing.T) {
		h := newTestServer(t, &memoryIdempotency{})
		bad := `{"buyer_id":"buyer-001","seller_id":"seller-001","items":[{"product_id":"ITEM-001","quantity":0}]}`

		first := do(t, h, http.MethodPost, "/orders", bad, "Idempotency-Key", "k-4")
		second := do(t, h, http.MethodPost, "/orders", createBody, "Idempotency-Key", "k-4")

		if first.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", first.Code)
		}
		if second.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", second.Code, second.Body.String())
		}
		if second.Header().Get("Idempotent-Replayed") != "" {
			t.Error("expected a fresh response, got a replay")
		}
	})
}

func TestHandler_HandleCreateBatch(t *testing.T) {
	t.Run("creates checkout group", func(t *testing.T) {
		h := newTestServer(t, nil)

		rec := do(t, h, http.MethodPost, "/orders/batch", `{"buyer_id":"buyer-001","orders":[
			{"seller_id":"seller-001","items":[{"product_id":"ITEM-001","quantity":1}]},
			{"seller_id":"seller-002","items":[{"product_id":"ITEM-003","quantity":1}]}]}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		group := decode[fulfillment.CheckoutGroup](t, rec)
		if len(group.Orders) != 2 {
			t.Fatalf("expected 2 orders, got %d", len(group.Orders))
		}

		got := do(t, h, http.MethodGet, "/checkout-groups/"+group.ID+"?buyer_id=buyer-001", "")
		if fetched := decode[fulfillment.CheckoutGroup](t, got); len(fetched.Orders) != 2 {
			t.Errorf("expected 2 orders in group, got %d", len(fetched.Orders))
		}
	})

	t.Run("failing seller creates nothing", func(t *testing.T) {
		h := newTestServer(t, nil)

		rec := do(t, h, http.MethodPost, "/orders/batch", `{"buyer_id":"buyer-001","orders":[
			{"seller_id":"seller-001","items":[{"product_id":"ITEM-001","quantity":1}]},
			{"seller_id":"seller-002","items":[{"product_id":"ITEM-003","quantity":5}]}]}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", rec.Code, rec.Body.String())
		}
		list := do(t, h, http.MethodGet, "/orders?buyer_id=buyer-001", "")
		if orders := decode[[]domain.Order](t, list); len(orders) != 0 {
			t.Errorf("expected no orders, got %d", len(orders))
		}
	})
}

func TestHandler_Reads(t *testing.T) {
	h := newTestServer(t, nil)
	order := decode[domain.Order](t, do(t, h, http.MethodPost, "/orders", createBody))

	t.Run("get own order", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/orders/"+order.ID+"?buyer_id=buyer-001", "")
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("other buyer gets not found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/orders/"+order.ID+"?buyer_id=buyer-002", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("missing buyer id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/orders/"+order.ID, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("seller listing", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/sellers/seller-001/orders", "")
		if orders := decode[[]domain.Order](t, rec); len(orders) != 1 {
			t.Errorf("expected 1 order, got %d", len(orders))
		}
	})

	t.Run("unknown status filter", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/orders?buyer_id=buyer-001&status=lost", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleUpdateStatus(t *testing.T) {
	h := newTestServer(t, nil)
	order := decode[domain.Order](t, do(t, h, http.MethodPost, "/orders", createBody))
	path := "/sellers/seller-001/orders/" + order.ID + "/status"

	rec := do(t, h, http.MethodPatch, path, `{"status":"delivered"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	body := decode[respond.ErrorBody](t, rec)
	if body.From != domain.OrderStatusNew || body.To != domain.OrderStatusDelivered {
		t.Errorf("expected new -> delivered, got %s -> %s", body.From, body.To)
	}

	rec = do(t, h, http.MethodPatch, path, `{"status":"canceled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Order](t, rec); got.Status != domain.OrderStatusCanceled {
		t.Errorf("expected canceled, got %s", got.Status)
	}

	rec = do(t, h, http.MethodPatch, "/sellers/seller-002/orders/"+order.ID+"/status", `{"status":"shipped"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for another seller, got %d", rec.Code)
	}
}
