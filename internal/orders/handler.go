package orders

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/respond"
)

const headerIdempotencyKey = "Idempotency-Key"

type Handler struct {
	engine *fulfillment.Engine
	idem   IdempotencyStore
	logger *slog.Logger
}

// NewHandler wires the order endpoints. idem may be nil, which disables
// Idempotency-Key handling.
func NewHandler(engine *fulfillment.Engine, idem IdempotencyStore, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		idem:   idem,
		logger: logger,
	}
}

// Register mounts the routes on mux, wrapping each handler with wrap.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /orders", wrap(h.HandleCreate))
	mux.HandleFunc("POST /orders/batch", wrap(h.HandleCreateBatch))
	mux.HandleFunc("GET /orders", wrap(h.HandleList))
	mux.HandleFunc("GET /orders/{id}", wrap(h.HandleGet))
	mux.HandleFunc("GET /checkout-groups/{id}", wrap(h.HandleGetGroup))
	mux.HandleFunc("GET /sellers/{sellerId}/orders", wrap(h.HandleListSellerOrders))
	mux.HandleFunc("PATCH /sellers/{sellerId}/orders/{id}/status", wrap(h.HandleUpdateStatus))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	key, done := h.claim(w, r, "create", req.BuyerID)
	if done {
		return
	}

	order, err := h.engine.CreateOrder(r.Context(), req)
	if err != nil {
		h.release(r, key)
		respond.Error(w, h.logger, err)
		return
	}

	h.complete(r, key, order)
	respond.JSON(w, h.logger, http.StatusCreated, order)
}

type createBatchRequest struct {
	BuyerID string                   `json:"buyer_id"`
	Orders  []fulfillment.SellerCart `json:"orders"`
}

func (h *Handler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	key, done := h.claim(w, r, "batch", req.BuyerID)
	if done {
		return
	}

	group, err := h.engine.CreateCheckoutGroup(r.Context(), req.BuyerID, req.Orders)
	if err != nil {
		h.release(r, key)
		respond.Error(w, h.logger, err)
		return
	}

	h.complete(r, key, group)
	respond.JSON(w, h.logger, http.StatusCreated, group)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	buyerID := r.URL.Query().Get("buyer_id")
	if id == "" || buyerID == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing order id or buyer id")
		return
	}

	order, err := h.engine.GetOrder(r.Context(), buyerID, id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buyerID := q.Get("buyer_id")
	if buyerID == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing buyer id")
		return
	}

	orders, err := h.engine.ListBuyerOrders(r.Context(), buyerID, domain.OrderFilter{
		SellerID: q.Get("seller_id"),
		Status:   domain.OrderStatus(q.Get("status")),
	})
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "buyer_id", buyerID, "count", len(orders))
	respond.JSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleGetGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	buyerID := r.URL.Query().Get("buyer_id")
	if id == "" || buyerID == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing checkout group id or buyer id")
		return
	}

	group, err := h.engine.GetCheckoutGroup(r.Context(), buyerID, id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, group)
}

func (h *Handler) HandleListSellerOrders(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")
	if sellerID == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing seller id")
		return
	}

	orders, err := h.engine.ListSellerOrders(r.Context(), sellerID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("seller orders listed", "seller_id", sellerID, "count", len(orders))
	respond.JSON(w, h.logger, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")
	id := r.PathValue("id")
	if sellerID == "" || id == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing seller id or order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.ChangeStatus(r.Context(), sellerID, id, req.Status)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, order)
}

// claim takes the request's Idempotency-Key, if any. It returns the scoped
// key to complete or release later, and done when a response was already
// written: the stored one for a finished request, or 409 while the first
// request with the key is still running.
func (h *Handler) claim(w http.ResponseWriter, r *http.Request, op, buyerID string) (key string, done bool) {
	header := r.Header.Get(headerIdempotencyKey)
	if h.idem == nil || header == "" {
		return "", false
	}
	key = op + ":" + buyerID + ":" + header

	claimed, data, err := h.idem.Claim(r.Context(), key)
	if err != nil {
		h.logger.Error("idempotency claim failed", "error", err, "idempotency_key", key)
		respond.Message(w, h.logger, http.StatusServiceUnavailable, "idempotency store unavailable, please retry")
		return "", true
	}
	if claimed {
		return key, false
	}

	if data == nil {
		h.logger.Info("idempotent request still in progress", "idempotency_key", key)
		respond.Message(w, h.logger, http.StatusConflict, "a request with this idempotency key is still in progress")
		return "", true
	}

	h.logger.Info("replaying idempotent response", "idempotency_key", key)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
	return "", true
}

func (h *Handler) complete(r *http.Request, key string, v any) {
	if key == "" {
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		h.logger.Warn("failed to encode idempotent response", "error", err)
		h.release(r, key)
		return
	}
	if err := h.idem.Complete(r.Context(), key, buf.Bytes()); err != nil {
		h.logger.Warn("failed to store idempotent response", "error", err, "idempotency_key", key)
	}
}

func (h *Handler) release(r *http.Request, key string) {
	if key == "" {
		return
	}
	if err := h.idem.Release(r.Context(), key); err != nil {
		h.logger.Warn("failed to release idempotency key", "error", err, "idempotency_key", key)
	}
}
