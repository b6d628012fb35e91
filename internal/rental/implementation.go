package rental

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"rentals/internal/logging"
)

// service implements the Service interface.
type service struct {
	store   Store
	locker  Locker
	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
}

// Option configures a service built by NewService.
type Option func(*service)

// WithLocker replaces the in-process item locker.
func WithLocker(l Locker) Option {
	return func(s *service) { s.locker = l }
}

// WithClock sets the time source for rent and return timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *service) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *service) { s.tracer = t }
}

// WithMeter sets the meter the outcome counters are created from.
func WithMeter(m metric.Meter) Option {
	return func(s *service) {
		if m, err := newMetrics(m); err == nil {
			s.metrics = m
		}
	}
}

// NewService creates a new rental log service on top of store.
func NewService(store Store, opts ...Option) Service {
	s := &service{
		store:  store,
		locker: NewItemLocker(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
		tracer: otel.Tracer("rentals/rental"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		m, err := newMetrics(nil)
		if err != nil {
			m, _ = newMetrics(noop.NewMeterProvider().Meter("rentals/rental"))
		}
		s.metrics = m
	}
	s.logger = logging.Ensure(s.logger).With("component", "rental.service")
	return s
}

// IsItemRent reports whether the item has an open rental record.
func (s *service) IsItemRent(ctx context.Context, itemID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "rental.is_item_rent",
		trace.WithAttributes(attribute.Int64("item.id", itemID)),
	)
	defer span.End()
	s.metrics.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("shape", "single")))

	record, err := s.store.FindLatestOpen(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("find latest open rental: %w", err)
	}
	return record.IsOpen(), nil
}

// AreItemsRent resolves the status of every distinct item with a single
// store lookup. The result keeps the first-occurrence order of itemIDs.
func (s *service) AreItemsRent(ctx context.Context, itemIDs []int64) (*Statuses, error) {
	ctx, span := s.tracer.Start(ctx, "rental.are_items_rent",
		trace.WithAttributes(attribute.Int("item.count", len(itemIDs))),
	)
	defer span.End()
	s.metrics.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("shape", "batch")))

	distinct := make([]int64, 0, len(itemIDs))
	seen := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	records, err := s.store.FindLatestOpenForMany(ctx, distinct)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find latest open rentals: %w", err)
	}

	rented := make(map[int64]bool, len(records))
	for i := range records {
		if records[i].IsOpen() {
			rented[records[i].ItemID] = true
		}
	}

	statuses := NewStatuses(len(distinct))
	for _, id := range distinct {
		statuses.Set(id, rented[id])
	}
	return statuses, nil
}

// RentItem opens a new rental record for an available item.
func (s *service) RentItem(ctx context.Context, itemID int64, userID string) (record *Record, err error) {
	ctx, span := s.tracer.Start(ctx, "rental.rent_item",
		trace.WithAttributes(
			attribute.Int64("item.id", itemID),
			attribute.String("user.id", userID),
		),
	)
	defer func() {
		s.metrics.record(ctx, s.metrics.rents, outcomeOf(err))
		endSpan(span, err)
	}()

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	unlock, err := s.locker.Lock(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}
	defer unlock()

	open, err := s.store.FindLatestOpen(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("find latest open rental: %w", err)
	}
	if open != nil {
		s.logger.DebugContext(ctx, "rent rejected", "item_id", itemID, "user_id", userID, "open_rental_id", open.ID)
		return nil, &AlreadyRentedError{ItemID: itemID}
	}

	record, err = s.store.Save(ctx, &Record{
		ItemID:   itemID,
		UserID:   userID,
		RentedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("save rental: %w", err)
	}

	s.logger.InfoContext(ctx, "item rented", "item_id", itemID, "user_id", userID, "rental_id", record.ID)
	return record, nil
}

// ReturnItem closes the open rental record of an item.
func (s *service) ReturnItem(ctx context.Context, itemID int64) (record *Record, err error) {
	ctx, span := s.tracer.Start(ctx, "rental.return_item",
		trace.WithAttributes(attribute.Int64("item.id", itemID)),
	)
	defer func() {
		s.metrics.record(ctx, s.metrics.returns, outcomeOf(err))
		endSpan(span, err)
	}()

	unlock, err := s.locker.Lock(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}
	defer unlock()

	open, err := s.store.FindLatestOpen(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("find latest open rental: %w", err)
	}
	if open == nil {
		s.logger.DebugContext(ctx, "return rejected", "item_id", itemID)
		return nil, &NotRentedError{ItemID: itemID}
	}

	returnedAt := s.now()
	closed := *open
	closed.ReturnedAt = &returnedAt

	record, err = s.store.Save(ctx, &closed)
	if err != nil {
		return nil, fmt.Errorf("save rental: %w", err)
	}

	s.logger.InfoContext(ctx, "item returned", "item_id", itemID, "user_id", record.UserID, "rental_id", record.ID)
	return record, nil
}

// ListRentals returns all rental records, or only the open ones.
func (s *service) ListRentals(ctx context.Context, onlyOpen bool) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "rental.list_rentals",
		trace.WithAttributes(attribute.Bool("only_open", onlyOpen)),
	)
	defer span.End()

	records, err := s.store.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find all rentals: %w", err)
	}
	if !onlyOpen {
		if records == nil {
			records = []Record{}
		}
		return records, nil
	}

	open := make([]Record, 0, len(records))
	for i := range records {
		if records[i].IsOpen() {
			open = append(open, records[i])
		}
	}
	return open, nil
}

func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case isRejection(err):
		span.SetAttributes(attribute.String("rejection", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
