package models

import "github.com/shopspring/decimal"

type InitiateRequest struct {
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Amount    decimal.Decimal `json:"amount"`
	EventID   string          `json:"event_id"`
	PersonIDs []string        `json:"person_ids"`
	Provider  string          `json:"provider,omitempty"`
}

type InitiateResult struct {
	PayerID         string   `json:"payer_id"`
	RegistrationIDs []string `json:"registration_ids"`
	Reference       string   `json:"reference"`
	CheckoutURL     string   `json:"checkout_url"`
	Provider        string   `json:"provider"`
}

const (
	VerificationSuccess   = "success"
	VerificationFailed    = "failed"
	VerificationCancelled = "cancelled"
	VerificationPending   = "pending"
)

// VerificationResult is what every verification trigger (redirect, polling,
// webhook) reports back. Repeating a verification yields the same result.
type VerificationResult struct {
	Status               string `json:"status"`
	Valid                bool   `json:"valid"`
	PayerID              string `json:"payer_id"`
	Reference            string `json:"reference"`
	AlreadyProcessed     bool   `json:"already_processed,omitempty"`
	RegistrationsUpdated int64  `json:"registrations_updated"`
}

// StatusUpdate is pushed to the payer's live channel on terminal transitions.
type StatusUpdate struct {
	Type      string      `json:"type"`
	PayerID   string      `json:"payer_id"`
	Reference string      `json:"reference"`
	Status    PayerStatus `json:"status"`
}

// WebhookResult describes how a webhook delivery was handled. Verification is
// nil for events that do not concern a known payment.
type WebhookResult struct {
	Provider     string              `json:"provider"`
	Event        string              `json:"event"`
	Reference    string              `json:"reference,omitempty"`
	Actionable   bool                `json:"actionable"`
	Verification *VerificationResult `json:"verification,omitempty"`
}
