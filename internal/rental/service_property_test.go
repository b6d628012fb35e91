package rental_test

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"rentals/internal/rental"
	"rentals/internal/store/memory"
)

// rentalMachine checks the service against a model of which items are rented.
type rentalMachine struct {
	svc    rental.Service
	store  *memory.Store
	rented map[int64]bool
}

func (m *rentalMachine) item(t *rapid.T) int64 {
	return rapid.Int64Range(1, 5).Draw(t, "item")
}

func (m *rentalMachine) rent(t *rapid.T) {
	item := m.item(t)
	user := rapid.StringMatching(`USER[0-9]{3}`).Draw(t, "user")

	rec, err := m.svc.RentItem(context.Background(), item, user)
	if m.rented[item] {
		if err == nil {
			t.Fatalf("rent of rented item %d succeeded", item)
		}
		var already *rental.AlreadyRentedError
		if !errors.As(err, &already) || already.ItemID != item {
			t.Fatalf("rent of rented item %d: unexpected error %v", item, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("rent of available item %d: %v", item, err)
	}
	if !rec.IsOpen() || rec.UserID != user || rec.ItemID != item {
		t.Fatalf("unexpected record %+v", rec)
	}
	m.rented[item] = true
}

func (m *rentalMachine) giveBack(t *rapid.T) {
	item := m.item(t)

	rec, err := m.svc.ReturnItem(context.Background(), item)
	if !m.rented[item] {
		var notRented *rental.NotRentedError
		if err == nil || !errors.As(err, &notRented) || notRented.ItemID != item {
			t.Fatalf("return of available item %d: got %v", item, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("return of rented item %d: %v", item, err)
	}
	if rec.IsOpen() {
		t.Fatalf("returned record %d still open", rec.ID)
	}
	m.rented[item] = false
}

func (m *rentalMachine) query(t *rapid.T) {
	ids := rapid.SliceOf(rapid.Int64Range(1, 5)).Draw(t, "ids")

	statuses, err := m.svc.AreItemsRent(context.Background(), ids)
	if err != nil {
		t.Fatalf("are items rent: %v", err)
	}
	for _, id := range ids {
		got, ok := statuses.Get(id)
		if !ok || got != m.rented[id] {
			t.Fatalf("item %d: got rented=%v present=%v, want %v", id, got, ok, m.rented[id])
		}
	}
}

// check verifies the per-item invariants after every step.
func (m *rentalMachine) check(t *rapid.T) {
	ctx := context.Background()
	records, err := m.store.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}

	open := map[int64]int{}
	var lastID int64
	for _, r := range records {
		if r.ID <= lastID {
			t.Fatalf("ids not increasing: %d after %d", r.ID, lastID)
		}
		lastID = r.ID
		if r.IsOpen() {
			open[r.ItemID]++
		} else if r.ReturnedAt.Before(r.RentedAt) {
			t.Fatalf("record %d returned before it was rented", r.ID)
		}
	}

	for item := int64(1); item <= 5; item++ {
		if open[item] > 1 {
			t.Fatalf("item %d has %d open records", item, open[item])
		}
		rented, err := m.svc.IsItemRent(ctx, item)
		if err != nil {
			t.Fatalf("is item rent: %v", err)
		}
		if rented != m.rented[item] || rented != (open[item] == 1) {
			t.Fatalf("item %d: service says rented=%v, model %v, open records %d", item, rented, m.rented[item], open[item])
		}
	}
}

func TestRentalStateMachine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := memory.NewStore()
		m := &rentalMachine{
			svc:    rental.NewService(store),
			store:  store,
			rented: map[int64]bool{},
		}
		t.Repeat(map[string]func(*rapid.T){
			"rent":   m.rent,
			"return": m.giveBack,
			"query":  m.query,
			"":       m.check,
		})
	})
}
