package rental

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Statuses maps item ids to their rent status and keeps the order in which
// the ids were first added. It encodes to a JSON object in that order.
type Statuses struct {
	order  []int64
	rented map[int64]bool
}

// NewStatuses returns an empty Statuses with room for n items.
func NewStatuses(n int) *Statuses {
	return &Statuses{
		order:  make([]int64, 0, n),
		rented: make(map[int64]bool, n),
	}
}

// Set records the status of an item. Setting an id that is already present
// keeps its first position and its first value.
func (s *Statuses) Set(itemID int64, rented bool) {
	if s.rented == nil {
		s.rented = make(map[int64]bool)
	}
	if _, ok := s.rented[itemID]; ok {
		return
	}
	s.order = append(s.order, itemID)
	s.rented[itemID] = rented
}

// Get returns the status of an item and whether it is present.
func (s *Statuses) Get(itemID int64) (rented, ok bool) {
	rented, ok = s.rented[itemID]
	return rented, ok
}

// ItemIDs returns the item ids in insertion order.
func (s *Statuses) ItemIDs() []int64 {
	return append([]int64(nil), s.order...)
}

// List returns the statuses in insertion order.
func (s *Statuses) List() []ItemStatus {
	out := make([]ItemStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, ItemStatus{ItemID: id, Rented: s.rented[id]})
	}
	return out
}

func (s *Statuses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.FormatInt(id, 10))
		buf.WriteString(`":`)
		buf.WriteString(strconv.FormatBool(s.rented[id]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Statuses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("statuses: expected object, got %v", tok)
	}

	*s = Statuses{rented: make(map[int64]bool)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("statuses: invalid item id %q: %w", key, err)
		}
		var rented bool
		if err := dec.Decode(&rented); err != nil {
			return fmt.Errorf("statuses: item %d: %w", id, err)
		}
		s.Set(id, rented)
	}
	_, err = dec.Token()
	return err
}
