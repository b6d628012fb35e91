package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rentals/internal/rental"
)

// setupTestDB connects to the PostgreSQL described by the PG* environment
// variables, migrates it and empties the rentals table. It skips the test if
// no server is reachable.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := getEnv("PGUSER", "user")
	pgPassword := getEnv("PGPASSWORD", "password")
	pgHost := getEnv("PGHOST", "localhost")
	pgPort := getEnv("PGPORT", "5432")
	pgDB := getEnv("PGDATABASE", "testdb")

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping postgres tests: could not connect to postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = Migrate(context.Background(), db)
	require.NoError(t, err)

	_, err = db.Exec(`TRUNCATE TABLE rentals RESTART IDENTITY`)
	require.NoError(t, err)

	return db
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

var rentedAt = time.Date(2023, 8, 10, 7, 30, 0, 0, time.UTC)

func insert(t *testing.T, s *Store, itemID int64, returned bool) *rental.Record {
	t.Helper()
	ctx := context.Background()

	rec, err := s.Save(ctx, &rental.Record{ItemID: itemID, UserID: "USER002", RentedAt: rentedAt})
	require.NoError(t, err)
	if returned {
		at := rentedAt.Add(time.Hour)
		rec.ReturnedAt = &at
		rec, err = s.Save(ctx, rec)
		require.NoError(t, err)
	}
	return rec
}

func seedScenario(t *testing.T, s *Store) *rental.Record {
	t.Helper()
	// two rents, second not returned
	insert(t, s, 1000, true)
	latest := insert(t, s, 1000, false)
	// only rent not returned
	insert(t, s, 2000, false)
	// two rents, both returned
	insert(t, s, 3000, true)
	insert(t, s, 3000, true)
	// only rent returned
	insert(t, s, 4000, true)
	return latest
}

func TestSaveAssignsID(t *testing.T) {
	s := NewStore(setupTestDB(t))

	rec := insert(t, s, 1, false)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, int64(1), rec.ItemID)
	assert.Equal(t, "USER002", rec.UserID)
	assert.True(t, rec.RentedAt.Equal(rentedAt))
	assert.Nil(t, rec.ReturnedAt)
}

func TestFindLatestOpen(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	latest := seedScenario(t, s)

	rec, err := s.FindLatestOpen(ctx, 1000)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, latest.ID, rec.ID)

	rec, err = s.FindLatestOpen(ctx, 2000)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(2000), rec.ItemID)

	for _, itemID := range []int64{3000, 4000, 5000} {
		rec, err := s.FindLatestOpen(ctx, itemID)
		require.NoError(t, err)
		assert.Nil(t, rec, "item %d", itemID)
	}
}

func TestFindLatestOpenForMany(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	seedScenario(t, s)

	recs, err := s.FindLatestOpenForMany(ctx, []int64{1000, 2000, 3000, 4000, 5000})
	require.NoError(t, err)

	var items []int64
	for _, r := range recs {
		items = append(items, r.ItemID)
	}
	assert.Equal(t, []int64{1000, 2000}, items)

	recs, err = s.FindLatestOpenForMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSaveRejectsSecondOpenRecord(t *testing.T) {
	s := NewStore(setupTestDB(t))
	insert(t, s, 42, false)

	_, err := s.Save(context.Background(), &rental.Record{ItemID: 42, UserID: "u", RentedAt: rentedAt})
	assert.ErrorIs(t, err, rental.ErrConflict)
}

func TestSaveReturnsOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	rec := insert(t, s, 42, true)

	again := rentedAt.Add(24 * time.Hour)
	rec.ReturnedAt = &again
	_, err := s.Save(ctx, rec)
	assert.ErrorIs(t, err, rental.ErrConflict)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].ReturnedAt.Equal(rentedAt.Add(time.Hour)))
}

func TestStoreEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	s := NewStore(setupTestDB(t))
	s.tracer = tp.Tracer("test")

	_, err := s.FindLatestOpen(context.Background(), 1)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.find_latest_open", spans[0].Name())
}

func TestConcurrentRentWithAdvisoryLock(t *testing.T) {
	db := setupTestDB(t)
	svc := rental.NewService(NewStore(db), rental.WithLocker(NewAdvisoryLocker(db, 4)))

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RentItem(context.Background(), 777, fmt.Sprintf("member-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, rental.ErrAlreadyRented):
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one concurrent rent should succeed")
	assert.Equal(t, attempts-1, rejected)
}

func TestSaveRejectsUpdateWithoutReturn(t *testing.T) {
	ctx := context.Background()
	s := NewStore(setupTestDB(t))
	rec := insert(t, s, 1, false)

	rec.UserID = "someone else"
	_, err := s.Save(ctx, rec)
	require.ErrorContains(t, err, "only returns can be persisted")

	stored, err := s.FindLatestOpen(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "USER002", stored.UserID)
}
