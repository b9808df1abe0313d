package flutterwave

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"event-registration/internal/status"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.flutterwave.com"

type Config struct {
	BaseURL    string        `json:"baseUrl" mapstructure:"base_url"`
	SecretKey  string        `json:"secretKey" mapstructure:"secret_key"`
	SecretHash string        `json:"secretHash" mapstructure:"secret_hash"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

type Client struct {
	baseURL    string
	secretKey  string
	secretHash string
	hc         *http.Client
}

// New creates a Flutterwave v3 client.
func New(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  cfg.SecretKey,
		secretHash: cfg.SecretHash,
		hc:         &http.Client{Timeout: timeout},
	}
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// PaymentRequest is the body of POST /v3/payments. Amount is in major units.
type PaymentRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Customer    Customer          `json:"customer"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type PaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

type Transaction struct {
	ID            int64               `json:"id"`
	TxRef         string              `json:"tx_ref"`
	FlwRef        string              `json:"flw_ref"`
	Amount        decimal.Decimal     `json:"amount"`
	ChargedAmount decimal.Decimal     `json:"charged_amount"`
	AppFee        decimal.NullDecimal `json:"app_fee"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	PaymentType   string              `json:"payment_type"`
	CreatedAt     string              `json:"created_at"`
}

type VerifyResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

type WebhookEvent struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("flutterwave: status %d: %s", e.StatusCode, e.Message)
}

// CreatePayment starts a standard checkout and returns the hosted link.
func (c *Client) CreatePayment(ctx context.Context, r *PaymentRequest) (*PaymentResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("flutterwave.CreatePayment: json.Marshal: %w", err)
	}

	var reply PaymentResponse
	if err := c.do(ctx, http.MethodPost, "/v3/payments", body, &reply); err != nil {
		return nil, fmt.Errorf("flutterwave.CreatePayment: %w", err)
	}
	if reply.Status != "success" || reply.Data.Link == "" {
		return nil, fmt.Errorf("flutterwave.CreatePayment: %w: %s", status.ErrGatewayRejected, reply.Message)
	}

	return &reply, nil
}

// VerifyByReference looks a transaction up by our tx_ref.
func (c *Client) VerifyByReference(ctx context.Context, txRef string) (*VerifyResponse, error) {
	path := "/v3/transactions/verify_by_reference?" + url.Values{"tx_ref": []string{txRef}}.Encode()

	var reply VerifyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return nil, fmt.Errorf("flutterwave.VerifyByReference: %w", err)
	}

	return &reply, nil
}

// VerifyHash compares the verif-hash header with the configured secret hash.
func (c *Client) VerifyHash(header string) bool {
	if header == "" || c.secretHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(c.secretHash)) == 1
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", status.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", status.ErrGatewayUnreachable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", status.ErrGatewayUnreachable, newAPIError(resp.StatusCode, respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w", status.ErrGatewayRejected, newAPIError(resp.StatusCode, respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: json.Unmarshal: %w", status.ErrGatewayRejected, err)
	}
	return nil
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Message: string(body)}

	var reply struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Message != "" {
		apiErr.Message = reply.Message
	}
	return apiErr
}
