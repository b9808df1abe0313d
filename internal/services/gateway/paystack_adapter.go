package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"event-registration/internal/services/gateway/paystack"
	"event-registration/internal/status"

	"github.com/shopspring/decimal"
)

// PaystackAdapter wraps the Paystack client to conform to Gateway.
type PaystackAdapter struct {
	client *paystack.Client
}

func NewPaystackAdapter(cfg *paystack.Config) *PaystackAdapter {
	return &PaystackAdapter{client: paystack.New(cfg)}
}

func (p *PaystackAdapter) Provider() Provider {
	return Paystack
}

func (p *PaystackAdapter) Initialize(ctx context.Context, req *InitRequest) (*Checkout, error) {
	resp, err := p.client.InitializeTransaction(ctx, &paystack.InitializeRequest{
		Email:       req.Email,
		Amount:      toMinor(req.Amount),
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	reference := resp.Data.Reference
	if reference == "" {
		reference = req.Reference
	}

	return &Checkout{
		Reference:   reference,
		CheckoutURL: resp.Data.AuthorizationURL,
		AccessCode:  resp.Data.AccessCode,
	}, nil
}

// paystackPending are transaction states that can still end in success.
var paystackPending = map[string]bool{
	"abandoned":  true,
	"ongoing":    true,
	"pending":    true,
	"processing": true,
	"queued":     true,
}

func (p *PaystackAdapter) Verify(ctx context.Context, reference string) (*Verification, error) {
	resp, err := p.client.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}

	tx := resp.Data
	v := &Verification{
		Reference:     tx.Reference,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		Succeeded:     resp.Status && tx.Status == "success",
		Pending:       resp.Status && paystackPending[tx.Status],
		RawStatus:     tx.Status,
		AmountPaid:    fromMinor(tx.Amount),
		Currency:      tx.Currency,
		PaidAt:        parseTime(tx.PaidAt),
		Channel:       tx.Channel,
	}
	if tx.Fees != nil {
		v.Fee = decimal.NewNullDecimal(fromMinor(*tx.Fees))
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}

func (p *PaystackAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	if !p.client.VerifySignature(body, headers.Get("x-paystack-signature")) {
		return nil, status.ErrSignatureInvalid
	}

	var event paystack.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("paystack webhook: %w", status.NewValidationError("body", err.Error()))
	}

	return &WebhookEvent{
		Provider:  Paystack,
		Event:     event.Event,
		Reference: event.Data.Reference,
		// charge.failed is not sent by every account but is handled when it is.
		Actionable: (event.Event == "charge.success" || event.Event == "charge.failed") && event.Data.Reference != "",
	}, nil
}

func (p *PaystackAdapter) CallbackReference(query url.Values) string {
	if ref := query.Get("reference"); ref != "" {
		return ref
	}
	return query.Get("trxref")
}
