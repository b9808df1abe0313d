package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	CollectionPayers          = "payers"
	CollectionRegistrations   = "registrations"
	CollectionEvents          = "events"
	CollectionRecurringEvents = "recurring_events"
	CollectionPersons         = "persons"
	CollectionZones           = "zones"
)

// EnsureCollections creates every collection the service needs. Existing
// collections are left untouched, so it is safe to call on every start.
func EnsureCollections(app core.App) error {
	const op = "store.EnsureCollections"

	recurring, err := ensureCollection(app, CollectionRecurringEvents, buildRecurringEvents)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	steps := []struct {
		name  string
		build func(c *core.Collection)
	}{
		{CollectionZones, buildZones},
		{CollectionPersons, buildPersons},
		{CollectionEvents, func(c *core.Collection) { buildEvents(c, recurring.Id) }},
	}
	for _, s := range steps {
		if _, err := ensureCollection(app, s.name, s.build); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	payers, err := ensureCollection(app, CollectionPayers, buildPayers)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := ensureCollection(app, CollectionRegistrations, func(c *core.Collection) {
		buildRegistrations(c, payers.Id)
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func ensureCollection(app core.App, name string, build func(c *core.Collection)) (*core.Collection, error) {
	existing, err := app.FindCollectionByNameOrId(name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find %s: %w", name, err)
	}

	c := core.NewBaseCollection(name)
	build(c)
	if err := app.Save(c); err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return c, nil
}

func timestamps(c *core.Collection) {
	c.Fields.Add(
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
}

// publicRead exposes list and view through the record API.
func publicRead(c *core.Collection) {
	c.ListRule = types.Pointer("")
	c.ViewRule = types.Pointer("")
}

func buildPayers(c *core.Collection) {
	c.Fields.Add(
		&core.TextField{Name: "name", Required: true, Max: 200},
		&core.EmailField{Name: "email", Required: true},
		&core.NumberField{Name: "expected_amount"},
		&core.NumberField{Name: "amount_paid"},
		&core.TextField{Name: "currency", Max: 3},
		&core.TextField{Name: "provider", Max: 32},
		&core.TextField{Name: "transaction_ref", Max: 128},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{"pending", "verified", "failed", "cancelled"},
		},
		&core.BoolField{Name: "needs_review"},
		&core.DateField{Name: "processed_at"},
	)
	timestamps(c)
	c.AddIndex("idx_payers_transaction_ref", false, "transaction_ref", "")
	c.AddIndex("idx_payers_status_created", false, "status, created", "")
}

func buildRegistrations(c *core.Collection, payersID string) {
	c.Fields.Add(
		&core.TextField{Name: "event_id", Required: true},
		&core.TextField{Name: "person_id", Required: true},
		&core.RelationField{
			Name:          "payer_id",
			Required:      true,
			CollectionId:  payersID,
			CascadeDelete: true,
			MaxSelect:     1,
		},
		&core.TextField{Name: "transaction_ref", Max: 128},
		&core.TextField{Name: "payment_id", Max: 128},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values:    []string{"pending", "paid", "cancelled", "verified"},
		},
		&core.BoolField{Name: "checked_in"},
		&core.DateField{Name: "checked_in_at"},
	)
	timestamps(c)
	c.AddIndex("idx_registrations_transaction_ref", false, "transaction_ref", "")
	c.AddIndex("idx_registrations_payer_id", false, "payer_id", "")
	c.AddIndex("idx_registrations_event_person", false, "event_id, person_id", "")
}

func buildEvents(c *core.Collection, recurringID string) {
	publicRead(c)
	c.Fields.Add(
		&core.TextField{Name: "name", Required: true},
		&core.SelectField{Name: "type", MaxSelect: 1, Values: []string{"recurring", "one-time"}},
		&core.SelectField{Name: "platform", MaxSelect: 1, Values: []string{"online", "on-site"}},
		&core.BoolField{Name: "paid_event"},
		&core.JSONField{Name: "price"},
		&core.BoolField{Name: "live"},
		&core.RelationField{Name: "recurring_event_id", CollectionId: recurringID, MaxSelect: 1},
		&core.TextField{Name: "venue"},
		&core.DateField{Name: "start_date"},
		&core.TextField{Name: "start_time"},
		&core.NumberField{Name: "year", OnlyInt: true},
	)
	timestamps(c)
}

func buildRecurringEvents(c *core.Collection) {
	publicRead(c)
	c.Fields.Add(
		&core.TextField{Name: "name", Required: true},
		&core.TextField{Name: "description"},
		&core.TextField{Name: "month"},
		&core.NumberField{Name: "duration_in_days", OnlyInt: true},
	)
	timestamps(c)
}

func buildPersons(c *core.Collection) {
	publicRead(c)
	// Registrants create their own person entries from the public form.
	c.CreateRule = types.Pointer("")
	c.Fields.Add(
		&core.TextField{Name: "first_name", Required: true},
		&core.TextField{Name: "last_name", Required: true},
		&core.EmailField{Name: "email"},
		&core.NumberField{Name: "year_of_birth", OnlyInt: true},
		&core.SelectField{Name: "gender", MaxSelect: 1, Values: []string{"male", "female"}},
		&core.TextField{Name: "origin"},
		&core.TextField{Name: "parish"},
		&core.TextField{Name: "zone"},
		&core.TextField{Name: "region"},
		&core.TextField{Name: "province"},
		&core.TextField{Name: "denomination"},
		&core.JSONField{Name: "details"},
		&core.BoolField{Name: "has_paid"},
	)
	timestamps(c)
	c.AddIndex("idx_persons_email", false, "email", "")
}

func buildZones(c *core.Collection) {
	publicRead(c)
	c.Fields.Add(
		&core.TextField{Name: "name", Required: true},
		&core.TextField{Name: "region"},
	)
	timestamps(c)
}
