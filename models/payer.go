package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayerStatus string

const (
	PayerPending   PayerStatus = "pending"
	PayerVerified  PayerStatus = "verified"
	PayerFailed    PayerStatus = "failed"
	PayerCancelled PayerStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s PayerStatus) IsTerminal() bool {
	return s == PayerVerified || s == PayerFailed || s == PayerCancelled
}

// CanTransition reports whether s -> to is a legal payer transition.
// Only pending may move, and only to a terminal state.
func (s PayerStatus) CanTransition(to PayerStatus) bool {
	return s == PayerPending && to.IsTerminal()
}

// Payer represents one payment attempt. It owns one or more registrations.
type Payer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Currency       string          `json:"currency"`
	Provider       string          `json:"provider"`
	TransactionRef string          `json:"transaction_ref"`
	Status         PayerStatus     `json:"status"`
	NeedsReview    bool            `json:"needs_review"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created"`
}

type PayerDraft struct {
	Name           string
	Email          string
	ExpectedAmount decimal.Decimal
	Currency       string
	Provider       string
}
