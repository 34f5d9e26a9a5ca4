package mailsink

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestMux(capacity int) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), capacity).
		Register(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })
	return mux
}

func send(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)))
	return rec
}

func sent(t *testing.T, mux *http.ServeMux, query string) []Message {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sent"+query, nil))
	var out []Message
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestHandler_HandleSend(t *testing.T) {
	t.Run("accepts and lists messages", func(t *testing.T) {
		mux := newTestMux(0)

		rec := send(mux, `{"to":"buyer-1@example.com","subject":"Order Received: o-1","body":"hi"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		send(mux, `{"to":"buyer-2@example.com","subject":"Order Shipped: o-2"}`)

		all := sent(t, mux, "")
		if len(all) != 2 || all[0].Subject != "Order Shipped: o-2" {
			t.Errorf("expected newest first, got %+v", all)
		}
		only := sent(t, mux, "?to=buyer-1@example.com")
		if len(only) != 1 || only[0].Body != "hi" {
			t.Errorf("expected one message for buyer-1, got %+v", only)
		}
	})

	t.Run("rejects incomplete messages", func(t *testing.T) {
		mux := newTestMux(0)

		for _, body := range []string{`{`, `{"to":"nobody","subject":"x"}`, `{"to":"a@b.c"}`} {
			if rec := send(mux, body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400 for %s, got %d", body, rec.Code)
			}
		}
	})

	t.Run("keeps only the most recent messages", func(t *testing.T) {
		mux := newTestMux(2)

		for i := range 3 {
			send(mux, fmt.Sprintf(`{"to":"a@b.c","subject":"s-%d"}`, i))
		}

		all := sent(t, mux, "")
		if len(all) != 2 || all[0].Subject != "s-2" || all[1].Subject != "s-1" {
			t.Errorf("expected [s-2 s-1], got %+v", all)
		}
	})
}
