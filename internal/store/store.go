package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"event-registration/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"
)

var (
	ErrPayerNotFound        = errors.New("payer not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrInvalidTransition    = errors.New("invalid payer status transition")
)

// Store keeps payers and registrations in pocketbase collections. Status
// changes go through guarded UPDATEs so that concurrent verifications of the
// same payer serialize on the row.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// TransitionOptions carries the optional columns written with a transition.
type TransitionOptions struct {
	AmountPaid decimal.NullDecimal
}

// CreatePayerWithRegistrations writes one pending payer and one pending
// registration per draft in a single transaction.
func (s *Store) CreatePayerWithRegistrations(ctx context.Context, payer models.PayerDraft, regs []models.RegistrationDraft) (*models.CreatedPayer, error) {
	const op = "store.CreatePayerWithRegistrations"

	if len(regs) == 0 {
		return nil, fmt.Errorf("%s: at least one registration is required", op)
	}

	created := &models.CreatedPayer{RegistrationIDs: make([]string, 0, len(regs))}

	err := s.app.RunInTransaction(func(txApp core.App) error {
		payers, err := txApp.FindCollectionByNameOrId(CollectionPayers)
		if err != nil {
			return err
		}
		registrations, err := txApp.FindCollectionByNameOrId(CollectionRegistrations)
		if err != nil {
			return err
		}

		p := core.NewRecord(payers)
		p.Set("name", payer.Name)
		p.Set("email", payer.Email)
		p.Set("expected_amount", payer.ExpectedAmount.InexactFloat64())
		p.Set("amount_paid", 0)
		p.Set("currency", payer.Currency)
		p.Set("provider", payer.Provider)
		p.Set("status", string(models.PayerPending))
		p.Set("needs_review", false)
		if err := txApp.SaveWithContext(ctx, p); err != nil {
			return fmt.Errorf("save payer: %w", err)
		}
		created.PayerID = p.Id

		for _, d := range regs {
			r := core.NewRecord(registrations)
			r.Set("event_id", d.EventID)
			r.Set("person_id", d.PersonID)
			r.Set("payer_id", p.Id)
			r.Set("status", string(models.RegistrationPending))
			r.Set("checked_in", false)
			if err := txApp.SaveWithContext(ctx, r); err != nil {
				return fmt.Errorf("save registration for person %s: %w", d.PersonID, err)
			}
			created.RegistrationIDs = append(created.RegistrationIDs, r.Id)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return created, nil
}

// AttachReference stamps the gateway reference on the payer and the given
// registrations. Either all of them get it or none does.
func (s *Store) AttachReference(ctx context.Context, payerID string, registrationIDs []string, reference string) error {
	const op = "store.AttachReference"

	err := s.app.RunInTransaction(func(txApp core.App) error {
		p, err := txApp.FindRecordById(CollectionPayers, payerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPayerNotFound
			}
			return err
		}
		p.Set("transaction_ref", reference)
		if err := txApp.SaveWithContext(ctx, p); err != nil {
			return err
		}

		for _, id := range registrationIDs {
			r, err := txApp.FindRecordById(CollectionRegistrations, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: %s", ErrRegistrationNotFound, id)
				}
				return err
			}
			r.Set("transaction_ref", reference)
			if err := txApp.SaveWithContext(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TransitionPayer moves the payer from -> to only if it is still in from.
// applied is false when another caller got there first.
func (s *Store) TransitionPayer(ctx context.Context, payerID string, from, to models.PayerStatus, opts TransitionOptions) (bool, error) {
	const op = "store.TransitionPayer"

	if !from.CanTransition(to) {
		return false, fmt.Errorf("%s: %w: %s -> %s", op, ErrInvalidTransition, from, to)
	}

	now := types.NowDateTime().String()
	params := dbx.Params{
		"status":       string(to),
		"processed_at": now,
		"updated":      now,
	}
	if opts.AmountPaid.Valid {
		params["amount_paid"] = opts.AmountPaid.Decimal.InexactFloat64()
	}

	res, err := s.app.NonconcurrentDB().
		Update(CollectionPayers, params, dbx.HashExp{"id": payerID, "status": string(from)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n == 1, nil
}

// TransitionRegistrationsForPayer moves every registration of the payer to
// status to and returns how many rows changed. Rows already in to are left
// alone, so repeating the call reports 0. Moving to paid also flags the
// registered persons as paid.
func (s *Store) TransitionRegistrationsForPayer(ctx context.Context, payerID string, to models.RegistrationStatus, paymentID string) (int64, error) {
	const op = "store.TransitionRegistrationsForPayer"

	var modified int64
	err := s.app.RunInTransaction(func(txApp core.App) error {
		now := types.NowDateTime().String()
		params := dbx.Params{"status": string(to), "updated": now}
		if paymentID != "" {
			params["payment_id"] = paymentID
		}

		res, err := txApp.NonconcurrentDB().
			Update(CollectionRegistrations, params, dbx.And(
				dbx.HashExp{"payer_id": payerID},
				dbx.NewExp("[[status]] != {:to}", dbx.Params{"to": string(to)}),
			)).
			WithContext(ctx).
			Execute()
		if err != nil {
			return err
		}
		if modified, err = res.RowsAffected(); err != nil {
			return err
		}

		if to != models.RegistrationPaid || modified == 0 {
			return nil
		}

		regs, err := txApp.FindRecordsByFilter(CollectionRegistrations, "payer_id = {:payer}", "", 0, 0, dbx.Params{"payer": payerID})
		if err != nil {
			return err
		}
		personIDs := make([]any, 0, len(regs))
		for _, r := range regs {
			personIDs = append(personIDs, r.GetString("person_id"))
		}
		if len(personIDs) == 0 {
			return nil
		}

		_, err = txApp.NonconcurrentDB().
			Update(CollectionPersons, dbx.Params{"has_paid": true, "updated": now}, dbx.In("id", personIDs...)).
			WithContext(ctx).
			Execute()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return modified, nil
}

// RecordUnderpayment keeps the payer pending but saves what was paid and
// flags it for manual review. The reaper leaves flagged payers alone.
func (s *Store) RecordUnderpayment(ctx context.Context, payerID string, amountPaid decimal.Decimal) error {
	const op = "store.RecordUnderpayment"

	_, err := s.app.NonconcurrentDB().
		Update(CollectionPayers, dbx.Params{
			"amount_paid":  amountPaid.InexactFloat64(),
			"needs_review": true,
			"updated":      types.NowDateTime().String(),
		}, dbx.HashExp{"id": payerID, "status": string(models.PayerPending)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) FindPayerByID(ctx context.Context, id string) (*models.Payer, error) {
	const op = "store.FindPayerByID"

	if id == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrPayerNotFound)
	}

	r, err := s.app.FindRecordById(CollectionPayers, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPayerNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payerFromRecord(r), nil
}

func (s *Store) FindPayerByReference(ctx context.Context, reference string) (*models.Payer, error) {
	const op = "store.FindPayerByReference"

	if reference == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrPayerNotFound)
	}

	r, err := s.app.FindFirstRecordByFilter(CollectionPayers, "transaction_ref = {:ref}", dbx.Params{"ref": reference})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPayerNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payerFromRecord(r), nil
}

func (s *Store) FindRegistrationsByReference(ctx context.Context, reference string) ([]models.Registration, error) {
	const op = "store.FindRegistrationsByReference"

	if reference == "" {
		return nil, nil
	}

	records, err := s.app.FindRecordsByFilter(CollectionRegistrations, "transaction_ref = {:ref}", "created", 0, 0, dbx.Params{"ref": reference})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	regs := make([]models.Registration, 0, len(records))
	for _, r := range records {
		regs = append(regs, registrationFromRecord(r))
	}
	return regs, nil
}

func (s *Store) FindRegistrationsByPayer(ctx context.Context, payerID string) ([]models.Registration, error) {
	const op = "store.FindRegistrationsByPayer"

	records, err := s.app.FindRecordsByFilter(CollectionRegistrations, "payer_id = {:payer}", "created", 0, 0, dbx.Params{"payer": payerID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	regs := make([]models.Registration, 0, len(records))
	for _, r := range records {
		regs = append(regs, registrationFromRecord(r))
	}
	return regs, nil
}

// CheckIn marks a paid registration as checked in. applied is false when the
// registration was already checked in or is not paid.
func (s *Store) CheckIn(ctx context.Context, registrationID string) (bool, error) {
	const op = "store.CheckIn"

	now := types.NowDateTime().String()
	res, err := s.app.NonconcurrentDB().
		Update(CollectionRegistrations, dbx.Params{
			"checked_in":    true,
			"checked_in_at": now,
			"updated":       now,
		}, dbx.And(
			dbx.HashExp{"id": registrationID, "checked_in": false},
			dbx.In("status", string(models.RegistrationPaid), string(models.RegistrationVerified)),
		)).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 1 {
		return true, nil
	}

	if _, err := s.app.FindRecordById(CollectionRegistrations, registrationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, ErrRegistrationNotFound)
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return false, nil
}

// DeleteStaleByAge removes pending payers created more than maxAge ago,
// together with their registrations. Payers flagged for review are kept.
func (s *Store) DeleteStaleByAge(ctx context.Context, maxAge time.Duration) (int64, error) {
	const op = "store.DeleteStaleByAge"

	cutoff, err := types.ParseDateTime(time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var deleted int64
	err = s.app.RunInTransaction(func(txApp core.App) error {
		stale, err := txApp.FindRecordsByFilter(
			CollectionPayers,
			"status = {:status} && needs_review = false && created < {:cutoff}",
			"created",
			0,
			0,
			dbx.Params{"status": string(models.PayerPending), "cutoff": cutoff.String()},
		)
		if err != nil {
			return err
		}

		for _, p := range stale {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Registrations go with it through the cascading relation.
			if err := txApp.DeleteWithContext(ctx, p); err != nil {
				return fmt.Errorf("delete payer %s: %w", p.Id, err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return deleted, nil
}

func (s *Store) FindEvent(ctx context.Context, id string) (*models.Event, error) {
	const op = "store.FindEvent"

	if id == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}

	r, err := s.app.FindRecordById(CollectionEvents, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event := &models.Event{
		ID:               r.Id,
		Name:             r.GetString("name"),
		Type:             r.GetString("type"),
		Platform:         r.GetString("platform"),
		PaidEvent:        r.GetBool("paid_event"),
		Live:             r.GetBool("live"),
		RecurringEventID: r.GetString("recurring_event_id"),
		Year:             r.GetInt("year"),
	}
	if raw := r.GetString("price"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &event.Price); err != nil {
			return nil, fmt.Errorf("%s: price: %w", op, err)
		}
	}
	return event, nil
}

// CountPersons returns how many of ids exist. Duplicates count once.
func (s *Store) CountPersons(ctx context.Context, ids []string) (int64, error) {
	const op = "store.CountPersons"

	if len(ids) == 0 {
		return 0, nil
	}

	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}

	n, err := s.app.CountRecords(CollectionPersons, dbx.In("id", values...))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	const op = "store.CountPending"

	n, err := s.app.CountRecords(CollectionPayers, dbx.HashExp{"status": string(models.PayerPending)})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func payerFromRecord(r *core.Record) *models.Payer {
	p := &models.Payer{
		ID:             r.Id,
		Name:           r.GetString("name"),
		Email:          r.GetString("email"),
		ExpectedAmount: decimal.NewFromFloat(r.GetFloat("expected_amount")),
		AmountPaid:     decimal.NewFromFloat(r.GetFloat("amount_paid")),
		Currency:       r.GetString("currency"),
		Provider:       r.GetString("provider"),
		TransactionRef: r.GetString("transaction_ref"),
		Status:         models.PayerStatus(r.GetString("status")),
		NeedsReview:    r.GetBool("needs_review"),
		CreatedAt:      r.GetDateTime("created").Time(),
	}
	if processed := r.GetDateTime("processed_at"); !processed.IsZero() {
		t := processed.Time()
		p.ProcessedAt = &t
	}
	return p
}

func registrationFromRecord(r *core.Record) models.Registration {
	reg := models.Registration{
		ID:             r.Id,
		EventID:        r.GetString("event_id"),
		PersonID:       r.GetString("person_id"),
		PayerID:        r.GetString("payer_id"),
		TransactionRef: r.GetString("transaction_ref"),
		PaymentID:      r.GetString("payment_id"),
		Status:         models.RegistrationStatus(r.GetString("status")),
		CheckedIn:      r.GetBool("checked_in"),
		CreatedAt:      r.GetDateTime("created").Time(),
		UpdatedAt:      r.GetDateTime("updated").Time(),
	}
	if at := r.GetDateTime("checked_in_at"); !at.IsZero() {
		t := at.Time()
		reg.CheckedInAt = &t
	}
	return reg
}
