// Package mailsink is a development stand-in for the email service the
// notification worker delivers to. It logs every message and keeps the most
// recent ones in memory for inspection.
package mailsink

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/respond"
)

const defaultCapacity = 100

type Message struct {
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

type Handler struct {
	logger   *slog.Logger
	capacity int

	mu   sync.Mutex
	sent []Message
}

func NewHandler(logger *slog.Logger, capacity int) *Handler {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Handler{
		logger:   logger,
		capacity: capacity,
	}
}

func (h *Handler) Register(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("POST /send", wrap(h.HandleSend))
	mux.HandleFunc("GET /sent", wrap(h.HandleSent))
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respond.Message(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(msg.To, "@") || msg.Subject == "" {
		respond.Message(w, h.logger, http.StatusBadRequest, "recipient and subject are required")
		return
	}
	msg.ReceivedAt = time.Now().UTC()

	h.mu.Lock()
	h.sent = append(h.sent, msg)
	if over := len(h.sent) - h.capacity; over > 0 {
		h.sent = append(h.sent[:0], h.sent[over:]...)
	}
	h.mu.Unlock()

	h.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	respond.JSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}

// HandleSent lists kept messages, newest first, optionally only those for ?to=.
func (h *Handler) HandleSent(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("to")

	h.mu.Lock()
	out := make([]Message, 0, len(h.sent))
	for i := len(h.sent) - 1; i >= 0; i-- {
		if to == "" || h.sent[i].To == to {
			out = append(out, h.sent[i])
		}
	}
	h.mu.Unlock()

	respond.JSON(w, h.logger, http.StatusOK, out)
}
