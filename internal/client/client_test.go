package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentals/internal/auth"
	"rentals/internal/rental"
	"rentals/internal/store/memory"
)

func newServer(t *testing.T, hash, salt string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := rental.NewService(memory.NewStore(), rental.WithLogger(logger))

	h := rental.NewHandler(svc, logger)
	var srv *httptest.Server
	if hash != "" {
		srv = httptest.NewServer(h.Routes(auth.RequireAPIKey(hash, salt, logger)))
	} else {
		srv = httptest.NewServer(h.Routes())
	}
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t, "", "").URL+"/", "")

	rented, err := c.IsItemRent(ctx, 1000)
	require.NoError(t, err)
	assert.False(t, rented)

	rec, err := c.RentItem(ctx, 1000, "USER 001")
	require.NoError(t, err)
	assert.Equal(t, "USER 001", rec.UserID)

	_, err = c.RentItem(ctx, 1000, "USER002")
	var already *rental.AlreadyRentedError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, int64(1000), already.ItemID)

	_, err = c.RentItem(ctx, 2000, "USER002")
	require.NoError(t, err)

	statuses, err := c.AreItemsRent(ctx, []int64{3000, 2000, 1000})
	require.NoError(t, err)
	assert.Equal(t, []rental.ItemStatus{
		{ItemID: 3000, Rented: false},
		{ItemID: 2000, Rented: true},
		{ItemID: 1000, Rented: true},
	}, statuses.List())

	closed, err := c.ReturnItem(ctx, 1000)
	require.NoError(t, err)
	assert.NotNil(t, closed.ReturnedAt)

	_, err = c.ReturnItem(ctx, 1000)
	assert.ErrorIs(t, err, rental.ErrNotRented)

	open, err := c.ListRentals(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2000), open[0].ItemID)
}

func TestClientKeepsUserIDVerbatim(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t, "", "").URL, "")

	for i, userID := range []string{"team/alice", "50%off", "a b/c?d"} {
		rec, err := c.RentItem(ctx, int64(i+1), userID)
		require.NoError(t, err, userID)
		assert.Equal(t, userID, rec.UserID)
	}

	records, err := c.ListRentals(ctx, true)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "team/alice", records[0].UserID)
	assert.Equal(t, "a b/c?d", records[2].UserID)
}

func TestClientSendsAPIKey(t *testing.T) {
	hash, salt, err := auth.HashKey("s3cret")
	require.NoError(t, err)
	srv := newServer(t, hash, salt)
	ctx := context.Background()

	_, err = New(srv.URL, "wrong").RentItem(ctx, 1, "u")
	assert.ErrorContains(t, err, "401")

	_, err = New(srv.URL, "s3cret").RentItem(ctx, 1, "u")
	assert.NoError(t, err)
}
