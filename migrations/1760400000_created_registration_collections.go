package migrations

import (
	"event-registration/internal/store"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		return store.EnsureCollections(app)
	}, func(app core.App) error {
		for _, name := range []string{
			store.CollectionRegistrations,
			store.CollectionPayers,
			store.CollectionEvents,
			store.CollectionPersons,
			store.CollectionZones,
			store.CollectionRecurringEvents,
		} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
