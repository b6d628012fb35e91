// Package memory is an in-process rental.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rentals/internal/rental"
)

type Store struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]rental.Record
	// open indexes the open record id of each rented item.
	open map[int64]int64
}

func NewStore() *Store {
	return &Store{
		records: make(map[int64]rental.Record),
		open:    make(map[int64]int64),
	}
}

func (s *Store) FindLatestOpen(_ context.Context, itemID int64) (*rental.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.open[itemID]
	if !ok {
		return nil, nil
	}
	record := clone(s.records[id])
	return &record, nil
}

func (s *Store) FindLatestOpenForMany(_ context.Context, itemIDs []int64) ([]rental.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []rental.Record
	seen := make(map[int64]struct{}, len(itemIDs))
	for _, itemID := range itemIDs {
		if _, dup := seen[itemID]; dup {
			continue
		}
		seen[itemID] = struct{}{}
		if id, ok := s.open[itemID]; ok {
			out = append(out, clone(s.records[id]))
		}
	}
	return out, nil
}

func (s *Store) Save(_ context.Context, record *rental.Record) (*rental.Record, error) {
	if record == nil {
		return nil, fmt.Errorf("save rental: nil record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == 0 {
		return s.insert(*record)
	}
	return s.update(*record)
}

func (s *Store) insert(record rental.Record) (*rental.Record, error) {
	if record.IsOpen() {
		if id, ok := s.open[record.ItemID]; ok {
			return nil, fmt.Errorf("%w: item %d already has open rental %d", rental.ErrConflict, record.ItemID, id)
		}
	}

	s.nextID++
	record.ID = s.nextID
	s.records[record.ID] = clone(record)
	if record.IsOpen() {
		s.open[record.ItemID] = record.ID
	}

	out := clone(record)
	return &out, nil
}

func (s *Store) update(record rental.Record) (*rental.Record, error) {
	if record.ReturnedAt == nil {
		return nil, fmt.Errorf("save rental %d: only returns can be persisted", record.ID)
	}

	stored, ok := s.records[record.ID]
	if !ok {
		return nil, fmt.Errorf("save rental: record %d does not exist", record.ID)
	}
	if !stored.IsOpen() {
		return nil, fmt.Errorf("%w: rental %d is already returned", rental.ErrConflict, record.ID)
	}
	// Only the return timestamp may change.
	returnedAt := *record.ReturnedAt
	stored.ReturnedAt = &returnedAt
	s.records[stored.ID] = stored
	if s.open[stored.ItemID] == stored.ID {
		delete(s.open, stored.ItemID)
	}

	out := clone(stored)
	return &out, nil
}

func (s *Store) FindAll(_ context.Context) ([]rental.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rental.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(r rental.Record) rental.Record {
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		r.ReturnedAt = &t
	}
	return r
}
