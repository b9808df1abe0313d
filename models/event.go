package models

import "github.com/shopspring/decimal"

// Event, RecurringEvent, Person and Zone are owned by the pocketbase CRUD
// collections. The payment core only reads the fields below.

type PriceCategory struct {
	Category string          `json:"category"` // teacher, teenager, child
	Amount   decimal.Decimal `json:"amount"`
}

type Event struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`     // recurring, one-time
	Platform         string          `json:"platform"` // online, on-site
	PaidEvent        bool            `json:"paid_event"`
	Price            []PriceCategory `json:"price"`
	Live             bool            `json:"live"`
	RecurringEventID string          `json:"recurring_event_id,omitempty"`
	Year             int             `json:"year"`
}

type RecurringEvent struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Month          string `json:"month"`
	DurationInDays int    `json:"duration_in_days"`
}

type Person struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	HasPaid   bool   `json:"has_paid"`
}
