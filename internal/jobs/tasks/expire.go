package tasks

import (
	"context"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HandleExpireReservations returns the periodic handler that releases stock
// reservations past their deadline.
func HandleExpireReservations(stock *services.StockService) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()

		ctx, span := tracer.Start(ctx, "job.expire_reservations")
		defer span.End()
		span.SetAttributes(attribute.String("job.type", TypeExpireReservations))

		released, err := stock.ReleaseExpired(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordJobMetrics(ctx, TypeExpireReservations, false, time.Since(start))
			return err
		}

		span.SetStatus(codes.Ok, "expired reservations released")
		span.SetAttributes(attribute.Int64("reservations.released", released))

		logging.Debug(ctx).
			Int64("released", released).
			Msg("reservation expiry sweep complete")

		recordJobMetrics(ctx, TypeExpireReservations, true, time.Since(start))
		return nil
	}
}
