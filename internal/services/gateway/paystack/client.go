package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"event-registration/internal/status"
)

const DefaultBaseURL = "https://api.paystack.co"

type Config struct {
	BaseURL   string        `json:"baseUrl" mapstructure:"base_url"`
	SecretKey string        `json:"secretKey" mapstructure:"secret_key"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

type Client struct {
	// baseURL is the base url of the Paystack API.
	baseURL string

	// secretKey authenticates API calls and signs webhooks.
	secretKey string

	// hc is the http client.
	hc *http.Client
}

// New creates a Paystack client.
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
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: cfg.SecretKey,
		hc:        &http.Client{Timeout: timeout},
	}
}

// InitializeRequest is the body of POST /transaction/initialize. Amount is in kobo.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Transaction amounts and fees are in kobo.
type Transaction struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Fees      *int64          `json:"fees"`
	Currency  string          `json:"currency"`
	PaidAt    string          `json:"paid_at"`
	CreatedAt string          `json:"created_at"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
}

type VerifyResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    Transaction `json:"data"`
}

type WebhookEvent struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

// APIError is a non-2xx reply from Paystack.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: status %d: %s", e.StatusCode, e.Message)
}

// InitializeTransaction starts a checkout and returns the authorization url.
func (c *Client) InitializeTransaction(ctx context.Context, r *InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("paystack.InitializeTransaction: json.Marshal: %w", err)
	}

	var reply InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &reply); err != nil {
		return nil, fmt.Errorf("paystack.InitializeTransaction: %w", err)
	}
	if !reply.Status {
		return nil, fmt.Errorf("paystack.InitializeTransaction: %w: %s", status.ErrGatewayRejected, reply.Message)
	}

	return &reply, nil
}

// VerifyTransaction fetches the transaction state for reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error) {
	var reply VerifyResponse
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &reply); err != nil {
		return nil, fmt.Errorf("paystack.VerifyTransaction: %w", err)
	}
	if !reply.Status {
		return nil, fmt.Errorf("paystack.VerifyTransaction: %w: %s", status.ErrGatewayRejected, reply.Message)
	}

	return &reply, nil
}

// VerifySignature checks the x-paystack-signature header, a hex HMAC-SHA512
// of the raw body keyed with the secret key.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	if signature == "" || c.secretKey == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(payload, c.secretKey)))
}

// Sign returns the signature Paystack sends for payload.
func Sign(payload []byte, secretKey string) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
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

	if resp.StatusCode != http.StatusOK {
		return handleAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: json.Unmarshal: %w", status.ErrGatewayRejected, err)
	}
	return nil
}

func handleAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Message: string(body)}

	var reply struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &reply); err == nil && reply.Message != "" {
		apiErr.Message = reply.Message
	}

	if statusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", status.ErrGatewayUnreachable, apiErr)
	}
	return fmt.Errorf("%w: %w", status.ErrGatewayRejected, apiErr)
}
