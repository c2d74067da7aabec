package circulation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"lendingdesk/internal/apperr"
)

const meterName = "lendingdesk/circulation"

type metrics struct {
	booksLent     metric.Int64Counter
	booksReturned metric.Int64Counter
	finesPaid     metric.Float64Counter
	rejected      metric.Int64Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter(meterName)
	m, err := buildMetrics(meter)
	if err != nil {
		logger.Warn("circulation metrics disabled", zap.Error(err))
		m, _ = buildMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.booksLent, err = meter.Int64Counter("circulation.books_lent",
		metric.WithDescription("Copies lent to members")); err != nil {
		return nil, err
	}
	if m.booksReturned, err = meter.Int64Counter("circulation.books_returned",
		metric.WithDescription("Copies returned, with or without a fine")); err != nil {
		return nil, err
	}
	if m.finesPaid, err = meter.Float64Counter("circulation.fines_paid",
		metric.WithDescription("Fine amount collected on overdue returns")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("circulation.rejected",
		metric.WithDescription("Operations refused or failed, by operation and error kind")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) reject(ctx context.Context, op string, err error) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("kind", apperr.KindOf(err).String()),
	))
}
