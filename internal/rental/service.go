package rental

import (
	"context"
)

// Service defines the rental log: rent, return, and rent-status queries.
type Service interface {
	IsItemRent(ctx context.Context, itemID int64) (bool, error)
	AreItemsRent(ctx context.Context, itemIDs []int64) (*Statuses, error)
	RentItem(ctx context.Context, itemID int64, userID string) (*Record, error)
	ReturnItem(ctx context.Context, itemID int64) (*Record, error)
	ListRentals(ctx context.Context, onlyOpen bool) ([]Record, error)
}
