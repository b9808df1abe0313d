package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"event-registration/internal/services/gateway/credo"
	"event-registration/internal/status"
)

// CredoAdapter wraps the Credo client to conform to Gateway. Credo issues
// its own transRef at initialization; that value is the reference we keep.
type CredoAdapter struct {
	client *credo.Client
}

func NewCredoAdapter(cfg *credo.Config) *CredoAdapter {
	return &CredoAdapter{client: credo.New(cfg)}
}

func (c *CredoAdapter) Provider() Provider {
	return Credo
}

func (c *CredoAdapter) Initialize(ctx context.Context, req *InitRequest) (*Checkout, error) {
	first, last := splitName(req.Name)

	resp, err := c.client.Initialize(ctx, &credo.InitializeRequest{
		Amount:            toMinor(req.Amount),
		Email:             req.Email,
		Currency:          req.Currency,
		Reference:         req.Reference,
		CallbackURL:       req.CallbackURL,
		CustomerFirstName: first,
		CustomerLastName:  last,
		Metadata:          req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	reference := resp.Data.CredoReference
	if reference == "" {
		reference = req.Reference
	}

	return &Checkout{
		Reference:   reference,
		CheckoutURL: resp.Data.AuthorizationURL,
	}, nil
}

func (c *CredoAdapter) Verify(ctx context.Context, reference string) (*Verification, error) {
	resp, err := c.client.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	tx := resp.Data
	v := &Verification{
		Reference:     tx.TransRef,
		TransactionID: tx.TransRef,
		Succeeded:     resp.Status == credo.StatusOK && tx.Status == credo.TransactionSuccessful,
		RawStatus:     strconv.Itoa(tx.Status),
		AmountPaid:    tx.TransAmount,
		Currency:      tx.CurrencyCode,
		PaidAt:        parseTime(tx.TransactionDate),
		Channel:       tx.Channel,
		Fee:           tx.TransFeeAmount,
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}

func (c *CredoAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	var event credo.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Unparseable bodies cannot carry a matching business code.
		return nil, status.ErrSignatureInvalid
	}

	if !c.client.VerifySignature(headers.Get("X-Credo-Signature"), event.Data.BusinessCode) {
		return nil, status.ErrSignatureInvalid
	}

	return &WebhookEvent{
		Provider:   Credo,
		Event:      event.Event,
		Reference:  event.Data.TransRef,
		Actionable: strings.HasPrefix(event.Event, "transaction.") && event.Data.TransRef != "",
	}, nil
}

func (c *CredoAdapter) CallbackReference(query url.Values) string {
	return query.Get("transRef")
}
