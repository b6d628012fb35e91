package rental

import (
	"context"
)

// Store persists rental records.
type Store interface {
	// FindLatestOpen returns the open record with the highest id for the item,
	// or nil if the item has no open record.
	FindLatestOpen(ctx context.Context, itemID int64) (*Record, error)
	// FindLatestOpenForMany returns at most one record per item: the open
	// record with the highest id. Items without an open record are absent.
	FindLatestOpenForMany(ctx context.Context, itemIDs []int64) ([]Record, error)
	// Save inserts a record with a zero ID and assigns one, or persists the
	// return of an existing record.
	Save(ctx context.Context, record *Record) (*Record, error)
	// FindAll returns every stored record ordered by id.
	FindAll(ctx context.Context) ([]Record, error)
}

// Locker serializes the check-then-act sequences of one item.
type Locker interface {
	Lock(ctx context.Context, itemID int64) (unlock func(), err error)
}
