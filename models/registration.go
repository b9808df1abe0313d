package models

import "time"

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationPaid      RegistrationStatus = "paid"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationVerified  RegistrationStatus = "verified"
)

// RegistrationStatusFor derives the registration status from its payer's
// status. Registrations never run ahead of the payer.
func RegistrationStatusFor(s PayerStatus) RegistrationStatus {
	switch s {
	case PayerVerified:
		return RegistrationPaid
	case PayerFailed, PayerCancelled:
		return RegistrationCancelled
	default:
		return RegistrationPending
	}
}

// Registration links one person to one event under one payer.
type Registration struct {
	ID             string             `json:"id"`
	EventID        string             `json:"event_id"`
	PersonID       string             `json:"person_id"`
	PayerID        string             `json:"payer_id"`
	TransactionRef string             `json:"transaction_ref"`
	PaymentID      string             `json:"payment_id,omitempty"`
	Status         RegistrationStatus `json:"status"`
	CheckedIn      bool               `json:"checked_in"`
	CheckedInAt    *time.Time         `json:"checked_in_at,omitempty"`
	CreatedAt      time.Time          `json:"created"`
	UpdatedAt      time.Time          `json:"updated"`
}

type RegistrationDraft struct {
	EventID  string
	PersonID string
}

// CreatedPayer is the result of the atomic payer + registrations write.
type CreatedPayer struct {
	PayerID         string
	RegistrationIDs []string
}
