package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"event-registration/internal/services/gateway"
	"event-registration/models"

	"github.com/pocketbase/pocketbase/core"
)

// PaymentFlow is the orchestrator as seen by the HTTP layer.
type PaymentFlow interface {
	Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResult, error)
	Verify(ctx context.Context, reference string) (*models.VerificationResult, error)
	Cancel(ctx context.Context, reference string) (*models.VerificationResult, error)
	HandleWebhook(ctx context.Context, provider string, body []byte, headers http.Header) (*models.WebhookResult, error)
	Reconcile(ctx context.Context, payerID string) (*models.VerificationResult, error)
}

type GatewayLookup interface {
	Gateway(provider gateway.Provider) (gateway.Gateway, error)
}

type PaymentHandler struct {
	payments    PaymentFlow
	gateways    GatewayLookup
	frontendURL string
	log         *slog.Logger
}

func NewPaymentHandler(payments PaymentFlow, gateways GatewayLookup, frontendURL string, log *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments:    payments,
		gateways:    gateways,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		log:         log,
	}
}

// Initiate - POST /api/v1/payments/initiate
func (h *PaymentHandler) Initiate(e *core.RequestEvent) error {
	var req models.InitiateRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	res, err := h.payments.Initiate(e.Request.Context(), req)
	if err != nil {
		return respondError(e, h.log, err)
	}

	return e.JSON(http.StatusCreated, res)
}

// Verify - GET /api/v1/payments/{reference}/verify
func (h *PaymentHandler) Verify(e *core.RequestEvent) error {
	res, err := h.payments.Verify(e.Request.Context(), e.Request.PathValue("reference"))
	if err != nil {
		return respondError(e, h.log, err)
	}
	return e.JSON(http.StatusOK, res)
}

// Callback - GET /api/v1/payments/{provider}/callback
//
// The browser lands here after checkout. The payment is verified and the
// payer is sent on to the front-end status page whatever the outcome.
func (h *PaymentHandler) Callback(e *core.RequestEvent) error {
	provider := e.Request.PathValue("provider")
	log := h.log.With(slog.String("provider", provider))

	reference := h.callbackReference(provider, e.Request.URL.Query())
	if reference == "" {
		log.Warn("callback without reference", slog.String("query", e.Request.URL.RawQuery))
		return e.Redirect(http.StatusSeeOther, h.statusURL(models.VerificationFailed, ""))
	}

	outcome := models.VerificationFailed
	res, err := h.payments.Verify(e.Request.Context(), reference)
	switch {
	case err != nil:
		log.Warn("callback verification failed", slog.String("reference", reference), slog.String("error", err.Error()))
	case res.Valid:
		outcome = models.VerificationSuccess
	case res.Status == models.VerificationPending:
		outcome = models.VerificationPending
	}

	return e.Redirect(http.StatusSeeOther, h.statusURL(outcome, reference))
}

// Cancel - POST /api/v1/payments/{reference}/cancel
func (h *PaymentHandler) Cancel(e *core.RequestEvent) error {
	res, err := h.payments.Cancel(e.Request.Context(), e.Request.PathValue("reference"))
	if err != nil {
		return respondError(e, h.log, err)
	}
	return e.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) callbackReference(provider string, query url.Values) string {
	p, err := gateway.ParseProvider(provider)
	if err != nil {
		return ""
	}
	gw, err := h.gateways.Gateway(p)
	if err != nil {
		return ""
	}
	return gw.CallbackReference(query)
}

func (h *PaymentHandler) statusURL(outcome, reference string) string {
	q := url.Values{}
	q.Set("status", outcome)
	if reference != "" {
		q.Set("reference", reference)
	}
	return fmt.Sprintf("%s/payment/status?%s", h.frontendURL, q.Encode())
}
