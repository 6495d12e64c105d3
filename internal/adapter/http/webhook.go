package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/neolearn/subsync/internal/domain"
)

// maxPayloadBytes caps the accepted webhook body size. Provider events
// are small; anything larger is hostile or broken.
const maxPayloadBytes = 64 * 1024

// EventVerifier authenticates a raw payload and yields a canonical
// event.
type EventVerifier interface {
	VerifyAndParse(payload []byte, signatureHeader string) (domain.LifecycleEvent, error)
}

// EventRouter dispatches a verified event to its handler.
type EventRouter interface {
	Route(ctx context.Context, ev domain.LifecycleEvent)
}

// WebhookHandler is the single inbound endpoint for provider lifecycle
// events.
type WebhookHandler struct {
	verifier EventVerifier
	router   EventRouter
	logger   *slog.Logger
}

// NewWebhookHandler creates the webhook endpoint handler.
func NewWebhookHandler(verifier EventVerifier, router EventRouter, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, router: router, logger: logger}
}

// ServeHTTP verifies, routes and acknowledges one delivery. Only
// verification failures produce a non-success status; handler failures
// are contained by the router so the provider does not redeliver events
// whose side effects we will reconcile ourselves.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.WarnContext(r.Context(), "reading webhook body failed", "error", err)
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := h.verifier.VerifyAndParse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var sigErr *domain.SignatureError
		switch {
		case errors.As(err, &sigErr):
			h.logger.WarnContext(r.Context(), "rejected unverified event", "error", err)
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, domain.ErrMalformedPayload):
			h.logger.WarnContext(r.Context(), "rejected malformed event", "error", err)
			writeError(w, http.StatusBadRequest, "malformed payload")
		default:
			h.logger.ErrorContext(r.Context(), "event verification failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.router.Route(r.Context(), event)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
