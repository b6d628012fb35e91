package rental

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

type metrics struct {
	rents   metric.Int64Counter
	returns metric.Int64Counter
	queries metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter("rentals/rental")
	}

	rents, err := meter.Int64Counter("rentals.rent.attempts",
		metric.WithDescription("Rent attempts by outcome"))
	if err != nil {
		return nil, err
	}
	returns, err := meter.Int64Counter("rentals.return.attempts",
		metric.WithDescription("Return attempts by outcome"))
	if err != nil {
		return nil, err
	}
	queries, err := meter.Int64Counter("rentals.status.queries",
		metric.WithDescription("Rent status lookups by shape"))
	if err != nil {
		return nil, err
	}

	return &metrics{rents: rents, returns: returns, queries: queries}, nil
}

func (m *metrics) record(ctx context.Context, c metric.Int64Counter, outcome string) {
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case isRejection(err):
		return outcomeRejected
	default:
		return outcomeError
	}
}
