package rental

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRented = errors.New("item already rented")
	ErrNotRented     = errors.New("item not rented")
	// ErrConflict is returned by stores when a write would break the
	// one-open-record-per-item rule or close a record twice.
	ErrConflict = errors.New("rental conflict")
)

// AlreadyRentedError rejects a rent of an item that has not been returned yet.
type AlreadyRentedError struct {
	ItemID int64
}

func (e *AlreadyRentedError) Error() string {
	return fmt.Sprintf("the item with the id %d has not yet been returned", e.ItemID)
}

func (e *AlreadyRentedError) Is(target error) bool { return target == ErrAlreadyRented }

// NotRentedError rejects a return of an item that is not rented.
type NotRentedError struct {
	ItemID int64
}

func (e *NotRentedError) Error() string {
	return fmt.Sprintf("the item with the id %d is not rented", e.ItemID)
}

func (e *NotRentedError) Is(target error) bool { return target == ErrNotRented }

// ErrInvalidInput is returned for arguments the service refuses before touching the store.
var ErrInvalidInput = errors.New("invalid input")

func isRejection(err error) bool {
	return errors.Is(err, ErrAlreadyRented) || errors.Is(err, ErrNotRented)
}
