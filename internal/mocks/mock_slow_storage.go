package mocks

import (
	"context"
	"time"

	"github.com/openfga/mpath/pkg/storage"
)

// slowDataStorage is a proxy to the actual ds except the writes of single fields are slowed down
// by updateDelay. This allows observing how many cascading updates are in flight at once.
type slowDataStorage struct {
	updateDelay time.Duration
	storage.Datastore
}

// NewMockSlowDataStorage returns a wrapper of a datastore that adds artificial delays into field updates.
func NewMockSlowDataStorage(ds storage.Datastore, updateDelay time.Duration) storage.Datastore {
	return &slowDataStorage{
		updateDelay: updateDelay,
		Datastore:   ds,
	}
}

func (m *slowDataStorage) Close() {}

func (m *slowDataStorage) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	select {
	case <-time.After(m.updateDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.Datastore.UpdateNodeField(ctx, collection, id, field, value)
}
