package flutterwave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-registration/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{BaseURL: srv.URL, SecretKey: "FLWSECK_TEST", SecretHash: "hash-123", Timeout: time.Second})
}

func TestCreatePayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/payments", r.URL.Path)
		assert.Equal(t, "Bearer FLWSECK_TEST", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "EVT-9", body["tx_ref"])
		assert.Equal(t, "5000.5", body["amount"])

		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/abc"}}`))
	})

	resp, err := c.CreatePayment(context.Background(), &PaymentRequest{
		TxRef:    "EVT-9",
		Amount:   decimal.RequireFromString("5000.50"),
		Currency: "NGN",
		Customer: Customer{Email: "ada@example.com"},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/abc", resp.Data.Link)
}

func TestCreatePayment_MissingLink(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"Invalid currency"}`))
	})

	_, err := c.CreatePayment(context.Background(), &PaymentRequest{TxRef: "x", Amount: decimal.NewFromInt(1)})

	assert.ErrorIs(t, err, status.ErrGatewayRejected)
	assert.Contains(t, err.Error(), "Invalid currency")
}

func TestVerifyByReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "EVT-9", r.URL.Query().Get("tx_ref"))
		w.Write([]byte(`{"status":"success","message":"Transaction fetched successfully","data":{"id":1234,"tx_ref":"EVT-9","flw_ref":"FLW-MOCK","amount":5000,"charged_amount":5070,"app_fee":70,"currency":"NGN","status":"successful","payment_type":"card","created_at":"2024-03-01T10:00:00.000Z"}}`))
	})

	resp, err := c.VerifyByReference(context.Background(), "EVT-9")

	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "successful", resp.Data.Status)
	assert.True(t, resp.Data.Amount.Equal(decimal.NewFromInt(5000)))
	require.True(t, resp.Data.AppFee.Valid)
	assert.True(t, resp.Data.AppFee.Decimal.Equal(decimal.NewFromInt(70)))
}

func TestVerifyByReference_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"No transaction was found for this id"}`))
	})

	_, err := c.VerifyByReference(context.Background(), "missing")

	assert.ErrorIs(t, err, status.ErrGatewayRejected)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No transaction was found for this id", apiErr.Message)
}

func TestVerifyByReference_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.VerifyByReference(context.Background(), "EVT-9")

	assert.ErrorIs(t, err, status.ErrGatewayUnreachable)
}

func TestVerifyHash(t *testing.T) {
	c := New(&Config{SecretHash: "hash-123"})

	assert.True(t, c.VerifyHash("hash-123"))
	assert.False(t, c.VerifyHash("hash-124"))
	assert.False(t, c.VerifyHash(""))

	unset := New(&Config{})
	assert.False(t, unset.VerifyHash(""))
}
