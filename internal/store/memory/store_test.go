package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentals/internal/rental"
)

var rentedAt = time.Date(2023, 8, 10, 7, 30, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, itemID int64, returned bool) rental.Record {
	t.Helper()
	rec, err := s.Save(context.Background(), &rental.Record{ItemID: itemID, UserID: "USER002", RentedAt: rentedAt})
	require.NoError(t, err)
	if returned {
		at := rentedAt.Add(time.Hour)
		rec.ReturnedAt = &at
		rec, err = s.Save(context.Background(), rec)
		require.NoError(t, err)
	}
	return *rec
}

func TestSaveAssignsIncreasingIDs(t *testing.T) {
	s := NewStore()
	a := seed(t, s, 1, true)
	b := seed(t, s, 1, false)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
}

func TestFindLatestOpen(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	// two rents, second not returned
	seed(t, s, 1000, true)
	second := seed(t, s, 1000, false)
	// only rent not returned
	seed(t, s, 2000, false)
	// two rents, both returned
	seed(t, s, 3000, true)
	seed(t, s, 3000, true)
	// only rent returned
	seed(t, s, 4000, true)

	rec, err := s.FindLatestOpen(ctx, 1000)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, second.ID, rec.ID)

	for _, itemID := range []int64{3000, 4000, 5000} {
		rec, err := s.FindLatestOpen(ctx, itemID)
		require.NoError(t, err)
		assert.Nil(t, rec, "item %d", itemID)
	}

	recs, err := s.FindLatestOpenForMany(ctx, []int64{1000, 2000, 3000, 4000, 5000, 1000})
	require.NoError(t, err)
	var items []int64
	for _, r := range recs {
		items = append(items, r.ItemID)
	}
	assert.Equal(t, []int64{1000, 2000}, items)
}

func TestSaveRejectsSecondOpenRecord(t *testing.T) {
	s := NewStore()
	seed(t, s, 7, false)

	_, err := s.Save(context.Background(), &rental.Record{ItemID: 7, UserID: "u", RentedAt: rentedAt})
	assert.ErrorIs(t, err, rental.ErrConflict)
}

func TestSaveClosesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec := seed(t, s, 7, true)

	later := rentedAt.Add(48 * time.Hour)
	rec.ReturnedAt = &later
	_, err := s.Save(ctx, &rec)
	assert.ErrorIs(t, err, rental.ErrConflict)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rentedAt.Add(time.Hour), *all[0].ReturnedAt)
}

func TestSaveKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec := seed(t, s, 9, false)

	at := rentedAt.Add(time.Minute)
	_, err := s.Save(ctx, &rental.Record{ID: rec.ID, ItemID: 9, UserID: "someone-else", RentedAt: at, ReturnedAt: &at})
	require.NoError(t, err)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "USER002", all[0].UserID)
	assert.Equal(t, rentedAt, all[0].RentedAt)
	assert.Equal(t, at, *all[0].ReturnedAt)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, 1, false)

	rec, err := s.FindLatestOpen(ctx, 1)
	require.NoError(t, err)
	now := time.Now()
	rec.ReturnedAt = &now

	again, err := s.FindLatestOpen(ctx, 1)
	require.NoError(t, err)
	assert.True(t, again.IsOpen())
}

func TestSaveRejectsUpdateWithoutReturn(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	open := seed(t, s, 1, false)

	open.UserID = "someone else"
	_, err := s.Save(ctx, &open)
	require.ErrorContains(t, err, "only returns can be persisted")

	stored, err := s.FindLatestOpen(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "USER002", stored.UserID)
	assert.True(t, stored.IsOpen())
}
