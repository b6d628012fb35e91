// Package postgres is the PostgreSQL rental.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentals/internal/rental"
)

// Store keeps rental records in the rentals table.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("rentals/store/postgres"),
	}
}

const selectColumns = `id, item_id, user_id, rented_at, returned_at`

// FindLatestOpen returns the open record with the highest id, or nil.
func (s *Store) FindLatestOpen(ctx context.Context, itemID int64) (*rental.Record, error) {
	ctx, span := s.tracer.Start(ctx, "store.find_latest_open",
		trace.WithAttributes(attribute.Int64("item.id", itemID)),
	)
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM rentals
		WHERE item_id = $1 AND returned_at IS NULL
		ORDER BY id DESC
		LIMIT 1
	`, itemID)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query latest open rental: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true), attribute.Int64("rental.id", record.ID))
	return record, nil
}

// FindLatestOpenForMany returns the latest open record of every item in
// itemIDs that has one, ordered by id.
func (s *Store) FindLatestOpenForMany(ctx context.Context, itemIDs []int64) ([]rental.Record, error) {
	ctx, span := s.tracer.Start(ctx, "store.find_latest_open_for_many",
		trace.WithAttributes(attribute.Int("item.count", len(itemIDs))),
	)
	defer span.End()

	if len(itemIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM rentals
		WHERE id IN (
			SELECT MAX(id)
			FROM rentals
			WHERE item_id = ANY($1) AND returned_at IS NULL
			GROUP BY item_id
		)
		ORDER BY id ASC
	`, pq.Array(itemIDs))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query latest open rentals: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("rentals.found", len(records)))
	return records, nil
}

// Save inserts a new record or persists the return of an existing one.
// user_id and rented_at are never rewritten.
func (s *Store) Save(ctx context.Context, record *rental.Record) (*rental.Record, error) {
	if record == nil {
		return nil, errors.New("save rental: nil record")
	}

	ctx, span := s.tracer.Start(ctx, "store.save",
		trace.WithAttributes(
			attribute.Int64("item.id", record.ItemID),
			attribute.Int64("rental.id", record.ID),
		),
	)
	defer span.End()

	var (
		saved *rental.Record
		err   error
	)
	if record.ID == 0 {
		saved, err = s.insert(ctx, record)
	} else {
		saved, err = s.markReturned(ctx, record)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("rental.id", saved.ID))
	return saved, nil
}

func (s *Store) insert(ctx context.Context, record *rental.Record) (*rental.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rentals (item_id, user_id, rented_at, returned_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+selectColumns+`
	`, record.ItemID, record.UserID, record.RentedAt, record.ReturnedAt)

	saved, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: item %d already has an open rental", rental.ErrConflict, record.ItemID)
		}
		return nil, fmt.Errorf("insert rental: %w", err)
	}
	return saved, nil
}

func (s *Store) markReturned(ctx context.Context, record *rental.Record) (*rental.Record, error) {
	if record.ReturnedAt == nil {
		return nil, fmt.Errorf("save rental %d: only returns can be persisted", record.ID)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE rentals
		SET returned_at = $1
		WHERE id = $2 AND returned_at IS NULL
		RETURNING `+selectColumns+`
	`, *record.ReturnedAt, record.ID)

	saved, err := scanRecord(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update rental: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rentals WHERE id = $1)`, record.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("query rental: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("save rental: record %d does not exist", record.ID)
	}
	return nil, fmt.Errorf("%w: rental %d is already returned", rental.ErrConflict, record.ID)
}

// FindAll returns every record ordered by id.
func (s *Store) FindAll(ctx context.Context) ([]rental.Record, error) {
	ctx, span := s.tracer.Start(ctx, "store.find_all")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM rentals
		ORDER BY id ASC
	`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query rentals: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rentals.found", len(records)))
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*rental.Record, error) {
	var (
		record     rental.Record
		returnedAt sql.NullTime
	)
	if err := row.Scan(&record.ID, &record.ItemID, &record.UserID, &record.RentedAt, &returnedAt); err != nil {
		return nil, err
	}
	record.RentedAt = record.RentedAt.UTC()
	if returnedAt.Valid {
		t := returnedAt.Time.UTC()
		record.ReturnedAt = &t
	}
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]rental.Record, error) {
	var records []rental.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rental: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rentals: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}
