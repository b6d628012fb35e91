package rental

import (
	"time"
)

// Record is one rental episode of one item. A record without ReturnedAt is open.
type Record struct {
	ID         int64      `json:"id"`
	ItemID     int64      `json:"item_id"`
	UserID     string     `json:"user_id"`
	RentedAt   time.Time  `json:"rented_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// IsOpen reports whether the item of this record is still rented out.
func (r *Record) IsOpen() bool {
	return r != nil && r.ReturnedAt == nil
}

// State is the derived rent state of an item.
type State string

const (
	StateAvailable State = "available"
	StateRented    State = "rented"
)

// ItemStatus is the rent status of a single item.
type ItemStatus struct {
	ItemID int64 `json:"item_id"`
	Rented bool  `json:"rented"`
}

// State returns the state the status describes.
func (s ItemStatus) State() State {
	if s.Rented {
		return StateRented
	}
	return StateAvailable
}
