package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"event-registration/internal/lib/logger/sl"
	"event-registration/internal/status"
	"event-registration/internal/store"

	"github.com/pocketbase/pocketbase/core"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, status.ErrValidation), errors.Is(err, status.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrUnknownTransaction),
		errors.Is(err, store.ErrRegistrationNotFound),
		errors.Is(err, store.ErrPayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, status.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, status.ErrGatewayUnreachable), errors.Is(err, status.ErrGatewayRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON with the status it maps to. Internal
// details are logged, not returned.
func respondError(e *core.RequestEvent, log *slog.Logger, err error) error {
	code := errorStatus(err)
	body := map[string]any{"error": http.StatusText(code)}

	var ve *status.ValidationError
	var pe *status.PartialUpdateError
	switch {
	case errors.As(err, &ve):
		body["error"] = ve.Error()
		body["field"] = ve.Field
	case errors.As(err, &pe):
		body["error"] = "payment verified, registrations pending reconciliation"
		body["payer_id"] = pe.PayerID
		body["reference"] = pe.Reference
	case code == http.StatusBadGateway:
		body["error"] = "payment gateway unavailable"
	case code < http.StatusInternalServerError:
		body["error"] = err.Error()
	}

	if code >= http.StatusInternalServerError {
		log.Error("request failed",
			slog.String("method", e.Request.Method),
			slog.String("path", e.Request.URL.Path),
			slog.Int("status", code),
			sl.Err(err),
		)
	}

	return e.JSON(code, body)
}
