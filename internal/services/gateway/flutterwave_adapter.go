package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"event-registration/internal/services/gateway/flutterwave"
	"event-registration/internal/status"
)

// FlutterwaveAdapter wraps the Flutterwave client to conform to Gateway.
type FlutterwaveAdapter struct {
	client *flutterwave.Client
}

func NewFlutterwaveAdapter(cfg *flutterwave.Config) *FlutterwaveAdapter {
	return &FlutterwaveAdapter{client: flutterwave.New(cfg)}
}

func (f *FlutterwaveAdapter) Provider() Provider {
	return Flutterwave
}

func (f *FlutterwaveAdapter) Initialize(ctx context.Context, req *InitRequest) (*Checkout, error) {
	resp, err := f.client.CreatePayment(ctx, &flutterwave.PaymentRequest{
		TxRef:       req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		RedirectURL: req.CallbackURL,
		Customer:    flutterwave.Customer{Email: req.Email, Name: req.Name},
		Meta:        req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	return &Checkout{
		Reference:   req.Reference,
		CheckoutURL: resp.Data.Link,
	}, nil
}

func (f *FlutterwaveAdapter) Verify(ctx context.Context, reference string) (*Verification, error) {
	resp, err := f.client.VerifyByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	tx := resp.Data
	v := &Verification{
		Reference:     tx.TxRef,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		Succeeded:     resp.Status == "success" && tx.Status == "successful",
		Pending:       resp.Status == "success" && tx.Status == "pending",
		RawStatus:     tx.Status,
		AmountPaid:    tx.Amount,
		Currency:      tx.Currency,
		PaidAt:        parseTime(tx.CreatedAt),
		Channel:       tx.PaymentType,
		Fee:           tx.AppFee,
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return v, nil
}

func (f *FlutterwaveAdapter) ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error) {
	if !f.client.VerifyHash(headers.Get("verif-hash")) {
		return nil, status.ErrSignatureInvalid
	}

	var event flutterwave.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("flutterwave webhook: %w", status.NewValidationError("body", err.Error()))
	}

	return &WebhookEvent{
		Provider:   Flutterwave,
		Event:      event.Event,
		Reference:  event.Data.TxRef,
		Actionable: event.Event == "charge.completed" && event.Data.TxRef != "",
	}, nil
}

func (f *FlutterwaveAdapter) CallbackReference(query url.Values) string {
	return query.Get("tx_ref")
}
