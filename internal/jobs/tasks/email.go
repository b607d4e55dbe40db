package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

const (
	TypeOrderEmail         = "email:order"
	TypeExpireReservations = "stock:expire_reservations"
)

var (
	tracer        = otel.Tracer("reboul-checkout-worker")
	meter         = otel.Meter("reboul-checkout-worker")
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	jobsDuration  metric.Float64Histogram
)

func init() {
	var err error

	jobsCompleted, err = meter.Int64Counter(
		"jobs.completed",
		metric.WithDescription("Total number of jobs completed successfully"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs completed counter")
	}

	jobsFailed, err = meter.Int64Counter(
		"jobs.failed",
		metric.WithDescription("Total number of jobs failed"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs failed counter")
	}

	jobsDuration, err = meter.Float64Histogram(
		"jobs.duration_ms",
		metric.WithDescription("Job processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs duration histogram")
	}
}

type OrderEmailPayload struct {
	OrderNumber  string             `json:"order_number"`
	Kind         services.EmailKind `json:"kind"`
	TraceContext map[string]string  `json:"trace_context"`
}

// HandleOrderEmail returns the handler that delivers order lifecycle emails
// through the notification service.
func HandleOrderEmail(notifications *services.NotificationService) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()

		var payload OrderEmailPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			recordJobMetrics(ctx, TypeOrderEmail, false, time.Since(start))
			return err
		}

		parentCtx := otel.GetTextMapPropagator().Extract(
			context.Background(),
			propagation.MapCarrier(payload.TraceContext),
		)

		ctx, span := tracer.Start(parentCtx, "job.order_email")
		defer span.End()

		span.SetAttributes(
			attribute.String("order.number", payload.OrderNumber),
			attribute.String("email.kind", string(payload.Kind)),
			attribute.String("job.type", TypeOrderEmail),
		)

		receipt, err := notifications.SendOrderEmail(ctx, payload.OrderNumber, payload.Kind)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordJobMetrics(ctx, TypeOrderEmail, false, time.Since(start))
			return err
		}

		span.SetStatus(codes.Ok, "email sent")
		span.SetAttributes(attribute.String("email.message_id", receipt.MessageID))

		logging.Info(ctx).
			Str("order_number", payload.OrderNumber).
			Str("message_id", receipt.MessageID).
			Msg("order email delivered")

		recordJobMetrics(ctx, TypeOrderEmail, true, time.Since(start))
		return nil
	}
}

func recordJobMetrics(ctx context.Context, jobType string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("job.type", jobType),
	}

	if success {
		if jobsCompleted != nil {
			jobsCompleted.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	} else {
		if jobsFailed != nil {
			jobsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}

	if jobsDuration != nil {
		jobsDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	}
}
