package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rentals/internal/rental"
)

// AdvisoryLocker serializes work on an item across processes with a
// session-level pg_advisory_lock keyed by the item id. Each held lock pins one
// pooled connection until it is released.
//
// Callers in the same process queue on an in-process lock first, and at most
// maxConns-1 connections are pinned at once, so the work done under a lock
// always finds a free connection in the pool.
type AdvisoryLocker struct {
	db     *sql.DB
	tracer trace.Tracer
	local  *rental.ItemLocker
	slots  chan struct{}
}

// NewAdvisoryLocker returns a locker for a pool of maxConns connections.
// maxConns <= 0 means the pool is unbounded. A pool of one connection cannot
// serve the work done under a lock; config.Validate rejects it.
func NewAdvisoryLocker(db *sql.DB, maxConns int) *AdvisoryLocker {
	l := &AdvisoryLocker{
		db:     db,
		tracer: otel.Tracer("rentals/store/postgres"),
		local:  rental.NewItemLocker(),
	}
	if maxConns > 0 {
		l.slots = make(chan struct{}, max(1, maxConns-1))
	}
	return l
}

func (l *AdvisoryLocker) Lock(ctx context.Context, itemID int64) (func(), error) {
	ctx, span := l.tracer.Start(ctx, "store.advisory_lock",
		trace.WithAttributes(attribute.Int64("item.id", itemID)),
	)
	defer span.End()

	unlockLocal, err := l.local.Lock(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		}
	}
	releaseSlot := func() {
		if l.slots != nil {
			<-l.slots
		}
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		releaseSlot()
		unlockLocal()
		span.RecordError(err)
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, itemID); err != nil {
		conn.Close()
		releaseSlot()
		unlockLocal()
		span.RecordError(err)
		return nil, fmt.Errorf("advisory lock item %d: %w", itemID, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, itemID); err != nil {
			// Discard the session so the lock dies with it.
			conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
		releaseSlot()
		unlockLocal()
	}, nil
}
