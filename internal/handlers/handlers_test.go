package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"event-registration/internal/services/gateway"
	"event-registration/internal/services/gateway/paystack"
	"event-registration/internal/status"
	"event-registration/internal/store"
	"event-registration/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.InitiateResult)
	return res, args.Error(1)
}

func (m *mockPayments) Verify(ctx context.Context, reference string) (*models.VerificationResult, error) {
	args := m.Called(ctx, reference)
	res, _ := args.Get(0).(*models.VerificationResult)
	return res, args.Error(1)
}

func (m *mockPayments) Cancel(ctx context.Context, reference string) (*models.VerificationResult, error) {
	args := m.Called(ctx, reference)
	res, _ := args.Get(0).(*models.VerificationResult)
	return res, args.Error(1)
}

func (m *mockPayments) HandleWebhook(ctx context.Context, provider string, body []byte, headers http.Header) (*models.WebhookResult, error) {
	args := m.Called(ctx, provider, body, headers)
	res, _ := args.Get(0).(*models.WebhookResult)
	return res, args.Error(1)
}

func (m *mockPayments) Reconcile(ctx context.Context, payerID string) (*models.VerificationResult, error) {
	args := m.Called(ctx, payerID)
	res, _ := args.Get(0).(*models.VerificationResult)
	return res, args.Error(1)
}

type stubRegistrations struct {
	regs    []models.Registration
	applied bool
	err     error
}

func (s *stubRegistrations) FindRegistrationsByReference(context.Context, string) ([]models.Registration, error) {
	return s.regs, s.err
}

func (s *stubRegistrations) CheckIn(context.Context, string) (bool, error) {
	return s.applied, s.err
}

type stubSweeper struct {
	maxAge time.Duration
	n      int64
}

func (s *stubSweeper) Sweep(context.Context) (int64, error) { return s.n, nil }

func (s *stubSweeper) SweepOlderThan(_ context.Context, maxAge time.Duration) (int64, error) {
	s.maxAge = maxAge
	return s.n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRequestEvent(method, target, body string, pathValues map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func newPaymentHandler(t *testing.T, payments PaymentFlow) *PaymentHandler {
	t.Helper()

	registry := gateway.NewRegistry(gateway.NewFactory())
	require.NoError(t, registry.RegisterGateway(gateway.Paystack, &paystack.Config{SecretKey: "sk_test"}))
	return NewPaymentHandler(payments, registry, "https://app.example.org/", testLogger())
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{status.NewValidationError("email", "is required"), http.StatusBadRequest},
		{fmt.Errorf("x: %w", status.ErrUnsupportedProvider), http.StatusBadRequest},
		{fmt.Errorf("x: %w", status.ErrUnknownTransaction), http.StatusNotFound},
		{fmt.Errorf("x: %w", store.ErrRegistrationNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", status.ErrSignatureInvalid), http.StatusUnauthorized},
		{fmt.Errorf("x: %w", status.ErrGatewayUnreachable), http.StatusBadGateway},
		{fmt.Errorf("x: %w", status.ErrGatewayRejected), http.StatusBadGateway},
		{&status.PartialUpdateError{PayerID: "p1", Err: errors.New("locked")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}

func TestPaymentHandler_Initiate(t *testing.T) {
	payments := &mockPayments{}
	h := newPaymentHandler(t, payments)

	payments.On("Initiate", mock.Anything, mock.MatchedBy(func(r models.InitiateRequest) bool {
		return r.Name == "Jane" && r.Amount.IntPart() == 5000 && len(r.PersonIDs) == 2
	})).Return(&models.InitiateResult{PayerID: "payer1", Reference: "ref-1", CheckoutURL: "https://checkout"}, nil)

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/payments/initiate",
		`{"name":"Jane","email":"jane@x.com","amount":5000,"event_id":"evt1","person_ids":["p1","p2"]}`, nil)

	require.NoError(t, h.Initiate(e))
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ref-1", body["reference"])
	assert.Equal(t, "https://checkout", body["checkout_url"])
	payments.AssertExpectations(t)
}

func TestPaymentHandler_InitiateValidation(t *testing.T) {
	payments := &mockPayments{}
	h := newPaymentHandler(t, payments)

	payments.On("Initiate", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("op: %w", status.NewValidationError("email", "is not a valid address")))

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/payments/initiate", `{"name":"Jane","email":"nope"}`, nil)

	require.NoError(t, h.Initiate(e))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeBody(t, rec)["field"])
}

func TestPaymentHandler_Verify(t *testing.T) {
	payments := &mockPayments{}
	h := newPaymentHandler(t, payments)

	payments.On("Verify", mock.Anything, "ref-1").
		Return(&models.VerificationResult{Status: models.VerificationSuccess, Valid: true, Reference: "ref-1"}, nil)
	payments.On("Verify", mock.Anything, "ref-unknown").
		Return(nil, fmt.Errorf("op: %w", status.ErrUnknownTransaction))
	payments.On("Verify", mock.Anything, "ref-partial").
		Return(nil, fmt.Errorf("op: %w", &status.PartialUpdateError{PayerID: "payer9", Reference: "ref-partial", Err: errors.New("locked")}))

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/payments/ref-1/verify", "", map[string]string{"reference": "ref-1"})
	require.NoError(t, h.Verify(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["valid"])

	e, rec = newRequestEvent(http.MethodGet, "/api/v1/payments/ref-unknown/verify", "", map[string]string{"reference": "ref-unknown"})
	require.NoError(t, h.Verify(e))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e, rec = newRequestEvent(http.MethodGet, "/api/v1/payments/ref-partial/verify", "", map[string]string{"reference": "ref-partial"})
	require.NoError(t, h.Verify(e))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payer9", decodeBody(t, rec)["payer_id"])
}

func TestPaymentHandler_Callback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		result   *models.VerificationResult
		err      error
		location string
	}{
		{
			name:     "verified",
			query:    "?reference=ref-1&trxref=ref-1",
			result:   &models.VerificationResult{Status: models.VerificationSuccess, Valid: true},
			location: "https://app.example.org/payment/status?reference=ref-1&status=success",
		},
		{
			name:     "underpaid",
			query:    "?trxref=ref-1",
			result:   &models.VerificationResult{Status: models.VerificationSuccess, Valid: false},
			location: "https://app.example.org/payment/status?reference=ref-1&status=failed",
		},
		{
			name:     "checkout still open",
			query:    "?reference=ref-1",
			result:   &models.VerificationResult{Status: models.VerificationPending},
			location: "https://app.example.org/payment/status?reference=ref-1&status=pending",
		},
		{
			name:     "gateway down",
			query:    "?reference=ref-1",
			err:      status.ErrGatewayUnreachable,
			location: "https://app.example.org/payment/status?reference=ref-1&status=failed",
		},
		{
			name:     "missing reference",
			query:    "",
			location: "https://app.example.org/payment/status?status=failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &mockPayments{}
			h := newPaymentHandler(t, payments)
			if tt.result != nil || tt.err != nil {
				payments.On("Verify", mock.Anything, "ref-1").Return(tt.result, tt.err)
			}

			e, rec := newRequestEvent(http.MethodGet, "/api/v1/payments/paystack/callback"+tt.query, "", map[string]string{"provider": "paystack"})

			require.NoError(t, h.Callback(e))
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
			payments.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_Cancel(t *testing.T) {
	payments := &mockPayments{}
	h := newPaymentHandler(t, payments)

	payments.On("Cancel", mock.Anything, "ref-1").
		Return(&models.VerificationResult{Status: models.VerificationCancelled, Reference: "ref-1"}, nil)

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/payments/ref-1/cancel", "", map[string]string{"reference": "ref-1"})
	require.NoError(t, h.Cancel(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody(t, rec)["status"])
}

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		payments := &mockPayments{}
		h := NewWebhookHandler(payments, testLogger())
		payments.On("HandleWebhook", mock.Anything, "paystack", []byte(`{"event":"charge.success"}`), mock.Anything).
			Return(nil, fmt.Errorf("op: %w", status.ErrSignatureInvalid))

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/webhooks/paystack", `{"event":"charge.success"}`, map[string]string{"provider": "paystack"})

		require.NoError(t, h.Receive(e))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepted", func(t *testing.T) {
		payments := &mockPayments{}
		h := NewWebhookHandler(payments, testLogger())
		payments.On("HandleWebhook", mock.Anything, "flutterwave", mock.Anything, mock.Anything).
			Return(&models.WebhookResult{Event: "charge.completed", Actionable: true}, nil)

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/webhooks/flutterwave", `{}`, map[string]string{"provider": "flutterwave"})

		require.NoError(t, h.Receive(e))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "charge.completed", decodeBody(t, rec)["event"])
	})

	t.Run("partial update is acknowledged", func(t *testing.T) {
		payments := &mockPayments{}
		h := NewWebhookHandler(payments, testLogger())
		payments.On("HandleWebhook", mock.Anything, "paystack", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("op: %w", &status.PartialUpdateError{PayerID: "p1", Reference: "ref-1", Err: errors.New("database is locked")}))

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/webhooks/paystack", `{}`, map[string]string{"provider": "paystack"})

		require.NoError(t, h.Receive(e))
		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["received"])
		assert.Equal(t, "pending", body["reconciliation"])
	})

	t.Run("internal failure is retried by the gateway", func(t *testing.T) {
		payments := &mockPayments{}
		h := NewWebhookHandler(payments, testLogger())
		payments.On("HandleWebhook", mock.Anything, "credo", mock.Anything, mock.Anything).
			Return(nil, errors.New("database is locked"))

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/webhooks/credo", `{}`, map[string]string{"provider": "credo"})

		require.NoError(t, h.Receive(e))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRegistrationHandler(t *testing.T) {
	t.Run("by reference", func(t *testing.T) {
		h := NewRegistrationHandler(&stubRegistrations{regs: []models.Registration{{ID: "r1"}, {ID: "r2"}}}, testLogger())
		e, rec := newRequestEvent(http.MethodGet, "/api/v1/registrations/ref/ref-1", "", map[string]string{"reference": "ref-1"})

		require.NoError(t, h.ByReference(e))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["registrations"], 2)
	})

	t.Run("unknown reference", func(t *testing.T) {
		h := NewRegistrationHandler(&stubRegistrations{}, testLogger())
		e, rec := newRequestEvent(http.MethodGet, "/api/v1/registrations/ref/nope", "", map[string]string{"reference": "nope"})

		require.NoError(t, h.ByReference(e))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	tests := []struct {
		name string
		st   *stubRegistrations
		want int
	}{
		{"checked in", &stubRegistrations{applied: true}, http.StatusOK},
		{"already checked in", &stubRegistrations{}, http.StatusConflict},
		{"missing", &stubRegistrations{err: fmt.Errorf("op: %w", store.ErrRegistrationNotFound)}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRegistrationHandler(tt.st, testLogger())
			e, rec := newRequestEvent(http.MethodPost, "/api/v1/registrations/r1/check-in", "", map[string]string{"id": "r1"})

			require.NoError(t, h.CheckIn(e))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAdminHandler(t *testing.T) {
	t.Run("reconcile", func(t *testing.T) {
		payments := &mockPayments{}
		h := NewAdminHandler(payments, &stubSweeper{}, testLogger())
		payments.On("Reconcile", mock.Anything, "payer1").
			Return(&models.VerificationResult{Status: models.VerificationSuccess, Valid: true, RegistrationsUpdated: 2}, nil)

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/admin/payers/payer1/reconcile", "", map[string]string{"payerId": "payer1"})

		require.NoError(t, h.Reconcile(e))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), decodeBody(t, rec)["registrations_updated"])
	})

	t.Run("run reaper", func(t *testing.T) {
		sweeper := &stubSweeper{n: 4}
		h := NewAdminHandler(&mockPayments{}, sweeper, testLogger())

		e, rec := newRequestEvent(http.MethodPost, "/api/v1/admin/reaper/run?max_age=48h", "", nil)
		require.NoError(t, h.RunReaper(e))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(4), decodeBody(t, rec)["deleted"])
		assert.Equal(t, 48*time.Hour, sweeper.maxAge)

		e, rec = newRequestEvent(http.MethodPost, "/api/v1/admin/reaper/run?max_age=soon", "", nil)
		require.NoError(t, h.RunReaper(e))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
