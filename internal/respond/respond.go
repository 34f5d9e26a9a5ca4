// Package respond writes JSON responses and maps fulfillment errors onto
// HTTP statuses.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

func JSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func Message(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	JSON(w, logger, status, map[string]string{"error": message})
}

// ErrorBody is the JSON shape of a failed fulfillment operation.
type ErrorBody struct {
	Error     string             `json:"error"`
	Detail    string             `json:"detail"`
	Retryable bool               `json:"retryable,omitempty"`
	ProductID string             `json:"product_id,omitempty"`
	Available *int               `json:"available,omitempty"`
	Requested *int               `json:"requested,omitempty"`
	From      domain.OrderStatus `json:"from,omitempty"`
	To        domain.OrderStatus `json:"to,omitempty"`
}

// Error writes err as an ErrorBody. Storage causes are logged, never sent.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	de := domain.AsError(err)
	status := StatusFor(de.Kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}

	body := ErrorBody{
		Error:     string(de.Kind),
		Detail:    de.Detail,
		Retryable: de.Retryable(),
		ProductID: de.ProductID,
		From:      de.From,
		To:        de.To,
	}
	if de.Kind == domain.KindInsufficientStock {
		available, requested := de.Available, de.Requested
		body.Available, body.Requested = &available, &requested
	}
	JSON(w, logger, status, body)
}

func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindInvalidSeller, domain.KindProductsUnavailable, domain.KindInvalidTransition, domain.KindNotEligible:
		return http.StatusUnprocessableEntity
	case domain.KindOrderNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindConcurrencyConflict, domain.KindDuplicateReview:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
