package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"event-registration/internal/status"

	"github.com/shopspring/decimal"
)

// Provider identifies an external payment gateway.
type Provider string

const (
	Flutterwave Provider = "flutterwave"
	Paystack    Provider = "paystack"
	Credo       Provider = "credo"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case Flutterwave, Paystack, Credo:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", status.ErrUnsupportedProvider, s)
	}
}

// InitRequest describes a checkout. Amount is in major units.
type InitRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Name        string
	CallbackURL string
	Metadata    map[string]string
}

// Checkout is what the payer is redirected to. Reference is the value the
// gateway will echo back on callbacks and webhooks.
type Checkout struct {
	Reference   string
	CheckoutURL string
	AccessCode  string
}

// Verification is a gateway's answer, normalized. Amounts are major units.
// Pending is set while the transaction can still succeed, for example while
// the checkout page is open.
type Verification struct {
	Reference     string
	TransactionID string
	Succeeded     bool
	Pending       bool
	RawStatus     string
	AmountPaid    decimal.Decimal
	Currency      string
	PaidAt        time.Time
	Channel       string
	Fee           decimal.NullDecimal
}

// WebhookEvent is an authenticated webhook. Only actionable events lead to a
// verification.
type WebhookEvent struct {
	Provider   Provider
	Event      string
	Reference  string
	Actionable bool
}

// Gateway is implemented by every payment provider adapter.
type Gateway interface {
	// Provider returns the gateway identifier.
	Provider() Provider

	// Initialize opens a checkout. Errors wrap status.ErrGatewayUnreachable
	// or status.ErrGatewayRejected.
	Initialize(ctx context.Context, req *InitRequest) (*Checkout, error)

	// Verify asks the gateway for the authoritative transaction state.
	Verify(ctx context.Context, reference string) (*Verification, error)

	// ParseWebhook authenticates and decodes a webhook delivery. A bad
	// signature returns status.ErrSignatureInvalid.
	ParseWebhook(body []byte, headers http.Header) (*WebhookEvent, error)

	// CallbackReference extracts the reference from a redirect callback.
	CallbackReference(query url.Values) string
}
