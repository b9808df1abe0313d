package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"event-registration/internal/services/gateway/credo"
	"event-registration/internal/services/gateway/flutterwave"
	"event-registration/internal/services/gateway/paystack"
	"event-registration/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestPaystackAdapter_InitializeConvertsToKobo(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(500050), body["amount"])
		assert.Equal(t, "https://api.example.com/api/v1/payments/paystack/callback", body["callback_url"])
		w.Write([]byte(`{"status":true,"data":{"authorization_url":"https://checkout.paystack.com/x","access_code":"x","reference":"EVT-1"}}`))
	})
	a := NewPaystackAdapter(&paystack.Config{BaseURL: base, SecretKey: "sk", Timeout: time.Second})

	checkout, err := a.Initialize(context.Background(), &InitRequest{
		Reference:   "EVT-1",
		Amount:      decimal.RequireFromString("5000.50"),
		Email:       "ada@example.com",
		CallbackURL: "https://api.example.com/api/v1/payments/paystack/callback",
	})

	require.NoError(t, err)
	assert.Equal(t, "EVT-1", checkout.Reference)
	assert.Equal(t, "https://checkout.paystack.com/x", checkout.CheckoutURL)
}

func TestPaystackAdapter_Verify(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		succeeded bool
		pending   bool
	}{
		{"success", `{"status":true,"data":{"id":9,"status":"success","reference":"EVT-1","amount":500000,"fees":7500,"currency":"NGN","paid_at":"2024-03-01T10:00:00.000Z","channel":"card"}}`, true, false},
		{"abandoned", `{"status":true,"data":{"id":9,"status":"abandoned","reference":"EVT-1","amount":500000,"currency":"NGN"}}`, false, true},
		{"ongoing", `{"status":true,"data":{"id":9,"status":"ongoing","reference":"EVT-1","amount":500000,"currency":"NGN"}}`, false, true},
		{"failed", `{"status":true,"data":{"id":9,"status":"failed","reference":"EVT-1","amount":500000,"currency":"NGN"}}`, false, false},
		{"reversed", `{"status":true,"data":{"id":9,"status":"reversed","reference":"EVT-1","amount":500000,"currency":"NGN"}}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			a := NewPaystackAdapter(&paystack.Config{BaseURL: base, SecretKey: "sk"})

			v, err := a.Verify(context.Background(), "EVT-1")

			require.NoError(t, err)
			assert.Equal(t, tt.succeeded, v.Succeeded)
			assert.Equal(t, tt.pending, v.Pending)
			assert.True(t, v.AmountPaid.Equal(decimal.NewFromInt(5000)))
			assert.Equal(t, "9", v.TransactionID)
			if tt.succeeded {
				require.True(t, v.Fee.Valid)
				assert.True(t, v.Fee.Decimal.Equal(decimal.NewFromInt(75)))
				assert.Equal(t, 2024, v.PaidAt.Year())
			} else {
				assert.False(t, v.Fee.Valid)
			}
		})
	}
}

func TestPaystackAdapter_ParseWebhook(t *testing.T) {
	a := NewPaystackAdapter(&paystack.Config{SecretKey: "sk"})
	body := []byte(`{"event":"charge.success","data":{"reference":"EVT-1","status":"success"}}`)

	h := http.Header{}
	h.Set("x-paystack-signature", paystack.Sign(body, "sk"))
	event, err := a.ParseWebhook(body, h)
	require.NoError(t, err)
	assert.True(t, event.Actionable)
	assert.Equal(t, "EVT-1", event.Reference)

	h.Set("x-paystack-signature", paystack.Sign(body, "wrong"))
	_, err = a.ParseWebhook(body, h)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)

	transfer := []byte(`{"event":"transfer.success","data":{"reference":"TRF-1"}}`)
	h.Set("x-paystack-signature", paystack.Sign(transfer, "sk"))
	event, err = a.ParseWebhook(transfer, h)
	require.NoError(t, err)
	assert.False(t, event.Actionable)
}

func TestPaystackAdapter_CallbackReference(t *testing.T) {
	a := NewPaystackAdapter(&paystack.Config{})

	assert.Equal(t, "r1", a.CallbackReference(url.Values{"reference": {"r1"}, "trxref": {"r2"}}))
	assert.Equal(t, "r2", a.CallbackReference(url.Values{"trxref": {"r2"}}))
	assert.Equal(t, "", a.CallbackReference(url.Values{}))
}

func TestFlutterwaveAdapter_Verify(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"id":77,"tx_ref":"EVT-2","amount":5000,"app_fee":70,"currency":"NGN","status":"successful","payment_type":"card","created_at":"2024-03-01T10:00:00.000Z"}}`))
	})
	a := NewFlutterwaveAdapter(&flutterwave.Config{BaseURL: base, SecretKey: "sk"})

	v, err := a.Verify(context.Background(), "EVT-2")

	require.NoError(t, err)
	assert.True(t, v.Succeeded)
	assert.False(t, v.Pending)
	assert.Equal(t, "successful", v.RawStatus)
	assert.True(t, v.AmountPaid.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, "77", v.TransactionID)
	assert.True(t, v.Fee.Valid)
}

func TestFlutterwaveAdapter_VerifyFailedCharge(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"id":77,"tx_ref":"EVT-2","amount":5000,"currency":"NGN","status":"failed"}}`))
	})
	a := NewFlutterwaveAdapter(&flutterwave.Config{BaseURL: base})

	v, err := a.Verify(context.Background(), "EVT-2")

	require.NoError(t, err)
	assert.False(t, v.Succeeded)
	assert.False(t, v.Pending)
	assert.Equal(t, "failed", v.RawStatus)
}

func TestFlutterwaveAdapter_VerifyPendingCharge(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"id":77,"tx_ref":"EVT-2","amount":5000,"currency":"NGN","status":"pending"}}`))
	})
	a := NewFlutterwaveAdapter(&flutterwave.Config{BaseURL: base})

	v, err := a.Verify(context.Background(), "EVT-2")

	require.NoError(t, err)
	assert.False(t, v.Succeeded)
	assert.True(t, v.Pending)
}

func TestFlutterwaveAdapter_ParseWebhook(t *testing.T) {
	a := NewFlutterwaveAdapter(&flutterwave.Config{SecretHash: "my-hash"})
	body := []byte(`{"event":"charge.completed","data":{"id":1,"tx_ref":"EVT-2","status":"successful"}}`)

	h := http.Header{}
	h.Set("verif-hash", "my-hash")
	event, err := a.ParseWebhook(body, h)
	require.NoError(t, err)
	assert.True(t, event.Actionable)
	assert.Equal(t, "EVT-2", event.Reference)
	assert.Equal(t, Flutterwave, event.Provider)

	h.Set("verif-hash", "nope")
	_, err = a.ParseWebhook(body, h)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestCredoAdapter_InitializeUsesCredoReference(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body credo.InitializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body.CustomerFirstName)
		assert.Equal(t, "Lovelace King", body.CustomerLastName)
		assert.Equal(t, int64(250000), body.Amount)
		w.Write([]byte(`{"status":200,"data":{"authorizationUrl":"https://pay.credo/x","reference":"EVT-3","credoReference":"CR-777"}}`))
	})
	a := NewCredoAdapter(&credo.Config{BaseURL: base, PublicKey: "pk"})

	checkout, err := a.Initialize(context.Background(), &InitRequest{
		Reference: "EVT-3",
		Amount:    decimal.NewFromInt(2500),
		Name:      "Ada Lovelace King",
		Email:     "ada@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "CR-777", checkout.Reference)
}

func TestCredoAdapter_Verify(t *testing.T) {
	base := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":200,"data":{"businessCode":"700","transRef":"CR-777","transAmount":2500,"transFeeAmount":40,"currencyCode":"NGN","transactionDate":"2024-03-01 10:00:00","status":0}}`))
	})
	a := NewCredoAdapter(&credo.Config{BaseURL: base, SecretKey: "sk"})

	v, err := a.Verify(context.Background(), "CR-777")

	require.NoError(t, err)
	assert.True(t, v.Succeeded)
	assert.Equal(t, "0", v.RawStatus)
	assert.True(t, v.AmountPaid.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, 10, v.PaidAt.Hour())
}

func TestCredoAdapter_ParseWebhook(t *testing.T) {
	a := NewCredoAdapter(&credo.Config{WebhookToken: "tok", BusinessCode: "700"})
	body := []byte(`{"event":"transaction.successful","data":{"businessCode":"700","transRef":"CR-777","status":0}}`)

	h := http.Header{}
	h.Set("X-Credo-Signature", credo.Sign("tok", "700"))
	event, err := a.ParseWebhook(body, h)
	require.NoError(t, err)
	assert.True(t, event.Actionable)
	assert.Equal(t, "CR-777", event.Reference)

	foreign := []byte(`{"event":"transaction.successful","data":{"businessCode":"999","transRef":"CR-1"}}`)
	_, err = a.ParseWebhook(foreign, h)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)

	_, err = a.ParseWebhook([]byte(`not json`), h)
	assert.ErrorIs(t, err, status.ErrSignatureInvalid)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Paystack ")
	require.NoError(t, err)
	assert.Equal(t, Paystack, p)

	_, err = ParseProvider("stripe")
	assert.ErrorIs(t, err, status.ErrUnsupportedProvider)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(500000), toMinor(decimal.NewFromInt(5000)))
	assert.Equal(t, int64(1999), toMinor(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), toMinor(decimal.RequireFromString("9.995")))
	assert.True(t, fromMinor(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestParseTime(t *testing.T) {
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("yesterday").IsZero())
	assert.Equal(t, 2024, parseTime("2024-03-01T10:00:00Z").Year())
	assert.Equal(t, 2024, parseTime("2024-03-01 10:00:00").Year())
}
