package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"event-registration/internal/lib/logger/sl"
	"event-registration/internal/status"

	"github.com/pocketbase/pocketbase/core"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	payments PaymentFlow
	log      *slog.Logger
}

func NewWebhookHandler(payments PaymentFlow, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{payments: payments, log: log}
}

// Receive - POST /api/v1/webhooks/{provider}
//
// Gateways retry anything that is not a 2xx, so only a bad signature or an
// internal failure answers with an error. A payer that was settled but whose
// registrations were not updated is acknowledged; a redelivery would find it
// settled and change nothing, so it is left to an operator reconcile.
func (h *WebhookHandler) Receive(e *core.RequestEvent) error {
	provider := e.Request.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(e.Request.Body, maxWebhookBody))
	if err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "unreadable body"})
	}

	res, err := h.payments.HandleWebhook(e.Request.Context(), provider, body, e.Request.Header)
	if err != nil {
		if errors.Is(err, status.ErrSignatureInvalid) {
			return e.JSON(http.StatusUnauthorized, map[string]any{"error": "invalid signature"})
		}
		var pe *status.PartialUpdateError
		if errors.As(err, &pe) {
			h.log.Error("webhook left registrations pending reconciliation",
				slog.String("provider", provider),
				slog.String("payer_id", pe.PayerID),
				slog.String("reference", pe.Reference),
				sl.Err(err),
			)
			return e.JSON(http.StatusOK, map[string]any{
				"received":       true,
				"actionable":     true,
				"reconciliation": "pending",
			})
		}
		return respondError(e, h.log, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received":   true,
		"event":      res.Event,
		"actionable": res.Actionable,
	})
}
