package fulfillment

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/marketplace-fulfillment/internal/domain"
)

const instrumentationName = "github.com/joao-fontenele/marketplace-fulfillment/internal/fulfillment"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

type engineMetrics struct {
	ordersCreated metric.Int64Counter
	rejected      metric.Int64Counter
	transitions   metric.Int64Counter
	restocked     metric.Int64Counter
	txDuration    metric.Float64Histogram
}

func newEngineMetrics() (*engineMetrics, error) {
	var (
		m   engineMetrics
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("fulfillment.orders.created",
		metric.WithDescription("Orders persisted")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("fulfillment.orders.rejected",
		metric.WithDescription("Failed fulfillment operations by error kind")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("fulfillment.status.transitions",
		metric.WithDescription("Committed order status changes")); err != nil {
		return nil, err
	}
	if m.restocked, err = meter.Int64Counter("fulfillment.stock.restocked",
		metric.WithDescription("Units returned to stock by cancellations"),
		metric.WithUnit("{unit}")); err != nil {
		return nil, err
	}
	if m.txDuration, err = meter.Float64Histogram("fulfillment.tx.duration",
		metric.WithDescription("Duration of fulfillment transactions"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *engineMetrics) observe(ctx context.Context, op string, start time.Time, err error) {
	m.txDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", op)))
	if err != nil {
		m.rejected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("kind", string(domain.AsError(err).Kind)),
		))
	}
}
