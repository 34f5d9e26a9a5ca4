// Package inventory serves the buyer-facing product endpoints: product
// lookup, reviews and review eligibility.
package inventory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"
	"github.com/joao-fontenele/marketplace-fulfillment/internal/respond"
)

type Handler struct {
	engine *fulfillment.Engine
	logger *slog.Logger
}

func NewHandler(engine *fulfillment.Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET /products/{id}", wrap(h.HandleGetProduct))
	mux.HandleFunc("GET /products/{id}/reviews", wrap(h.HandleListReviews))
	mux.HandleFunc("POST /products/{id}/reviews", wrap(h.HandleCreateReview))
	mux.HandleFunc("GET /eligibility", wrap(h.HandleEligibility))
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.engine.GetProduct(r.Context(), id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	h.logger.Info("product retrieved", "product_id", id)
	respond.JSON(w, h.logger, http.StatusOK, product)
}

func (h *Handler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	reviews, err := h.engine.ListReviews(r.Context(), id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, reviews)
}

type createReviewRequest struct {
	BuyerID string `json:"buyer_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	review, err := h.engine.CreateReview(r.Context(), req.BuyerID, id, req.Rating, req.Comment)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusCreated, review)
}

type eligibilityResponse struct {
	BuyerID   string `json:"buyer_id"`
	ProductID string `json:"product_id"`
	Eligible  bool   `json:"eligible"`
}

func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buyerID, productID := q.Get("buyer_id"), q.Get("product_id")
	if buyerID == "" || productID == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "missing buyer id or product id")
		return
	}

	ok, err := h.engine.HasReceivedProduct(r.Context(), buyerID, productID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}

	respond.JSON(w, h.logger, http.StatusOK, eligibilityResponse{
		BuyerID:   buyerID,
		ProductID: productID,
		Eligible:  ok,
	})
}
