package credo

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
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

const DefaultBaseURL = "https://api.credocentral.com"

// StatusOK is the top-level status Credo reports on a successful call.
const StatusOK = 200

// TransactionSuccessful is the data.status of a settled transaction.
const TransactionSuccessful = 0

type Config struct {
	BaseURL      string        `json:"baseUrl" mapstructure:"base_url"`
	PublicKey    string        `json:"publicKey" mapstructure:"public_key"`
	SecretKey    string        `json:"secretKey" mapstructure:"secret_key"`
	WebhookToken string        `json:"webhookToken" mapstructure:"webhook_token"`
	BusinessCode string        `json:"businessCode" mapstructure:"business_code"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
}

type Client struct {
	baseURL string

	// publicKey authorizes initialize calls, secretKey authorizes verify calls.
	publicKey string
	secretKey string

	webhookToken string
	businessCode string

	hc *http.Client
}

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
		baseURL:      strings.TrimRight(baseURL, "/"),
		publicKey:    cfg.PublicKey,
		secretKey:    cfg.SecretKey,
		webhookToken: cfg.WebhookToken,
		businessCode: cfg.BusinessCode,
		hc:           &http.Client{Timeout: timeout},
	}
}

// InitializeRequest amount is in kobo.
type InitializeRequest struct {
	Amount            int64             `json:"amount"`
	Email             string            `json:"email"`
	Currency          string            `json:"currency,omitempty"`
	Reference         string            `json:"reference"`
	CallbackURL       string            `json:"callbackUrl,omitempty"`
	CustomerFirstName string            `json:"customerFirstName,omitempty"`
	CustomerLastName  string            `json:"customerLastName,omitempty"`
	Bearer            int               `json:"bearer"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorizationUrl"`
		Reference        string `json:"reference"`
		CredoReference   string `json:"credoReference"`
	} `json:"data"`
}

// Transaction amounts are in major units.
type Transaction struct {
	BusinessCode    string              `json:"businessCode"`
	TransRef        string              `json:"transRef"`
	BusinessRef     string              `json:"businessRef"`
	DebitedAmount   decimal.Decimal     `json:"debitedAmount"`
	TransAmount     decimal.Decimal     `json:"transAmount"`
	TransFeeAmount  decimal.NullDecimal `json:"transFeeAmount"`
	CurrencyCode    string              `json:"currencyCode"`
	TransactionDate string              `json:"transactionDate"`
	Channel         string              `json:"channelId"`
	Status          int                 `json:"status"`
}

type VerifyResponse struct {
	Status  int         `json:"status"`
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
	return fmt.Sprintf("credo: status %d: %s", e.StatusCode, e.Message)
}

// Initialize starts a checkout. The returned credoReference identifies the
// transaction in every later Credo call.
func (c *Client) Initialize(ctx context.Context, r *InitializeRequest) (*InitializeResponse, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("credo.Initialize: json.Marshal: %w", err)
	}

	var reply InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", c.publicKey, body, &reply); err != nil {
		return nil, fmt.Errorf("credo.Initialize: %w", err)
	}
	if reply.Status != StatusOK || reply.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("credo.Initialize: %w: status %d: %s", status.ErrGatewayRejected, reply.Status, reply.Message)
	}

	return &reply, nil
}

func (c *Client) Verify(ctx context.Context, transRef string) (*VerifyResponse, error) {
	var reply VerifyResponse
	path := "/transaction/" + url.PathEscape(transRef) + "/verify"
	if err := c.do(ctx, http.MethodGet, path, c.secretKey, nil, &reply); err != nil {
		return nil, fmt.Errorf("credo.Verify: %w", err)
	}
	if reply.Status != StatusOK {
		return nil, fmt.Errorf("credo.Verify: %w: status %d: %s", status.ErrGatewayRejected, reply.Status, reply.Message)
	}

	return &reply, nil
}

// VerifySignature checks X-Credo-Signature, the hex SHA-512 of the webhook
// token concatenated with the business code, and that the payload belongs
// to our business.
func (c *Client) VerifySignature(signature, payloadBusinessCode string) bool {
	if signature == "" || c.webhookToken == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(Sign(c.webhookToken, c.businessCode))) != 1 {
		return false
	}
	return payloadBusinessCode == c.businessCode
}

func Sign(webhookToken, businessCode string) string {
	sum := sha512.Sum512([]byte(webhookToken + businessCode))
	return hex.EncodeToString(sum[:])
}

func (c *Client) do(ctx context.Context, method, path, key string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	// Credo takes the raw key, without a Bearer prefix.
	req.Header.Set("Authorization", key)
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
