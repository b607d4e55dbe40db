package jobs

import (
	"context"
	"encoding/json"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/services"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

const (
	TypeOrderEmail         = "email:order"
	TypeExpireReservations = "stock:expire_reservations"
	DefaultQueue           = "default"
)

var (
	tracer       = otel.Tracer("reboul-checkout")
	meter        = otel.Meter("reboul-checkout")
	jobsEnqueued metric.Int64Counter
)

type OrderEmailPayload struct {
	OrderNumber  string             `json:"order_number"`
	Kind         services.EmailKind `json:"kind"`
	TraceContext map[string]string  `json:"trace_context"`
}

// Client enqueues background jobs. It satisfies services.Notifier so the
// webhook path can queue emails without knowing about asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr string) (*Client, error) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})

	var err error
	jobsEnqueued, err = meter.Int64Counter(
		"jobs.enqueued",
		metric.WithDescription("Total number of jobs enqueued"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create jobs enqueued counter")
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// NotifyOrderEmail queues an order lifecycle email for delivery by the
// worker. The caller's trace context rides along in the payload.
func (c *Client) NotifyOrderEmail(ctx context.Context, orderNumber string, kind services.EmailKind) error {
	ctx, span := tracer.Start(ctx, "job.enqueue.order_email")
	defer span.End()

	span.SetAttributes(
		attribute.String("order.number", orderNumber),
		attribute.String("email.kind", string(kind)),
		attribute.String("job.type", TypeOrderEmail),
	)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	payload := OrderEmailPayload{
		OrderNumber:  orderNumber,
		Kind:         kind,
		TraceContext: carrier,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeOrderEmail, payloadBytes)
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if jobsEnqueued != nil {
		jobsEnqueued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("job.type", TypeOrderEmail),
		))
	}

	span.SetAttributes(
		attribute.String("job.id", info.ID),
		attribute.String("job.queue", info.Queue),
	)

	logging.Info(ctx).
		Str("job_id", info.ID).
		Str("job_type", TypeOrderEmail).
		Str("order_number", orderNumber).
		Msg("job enqueued")

	return nil
}
