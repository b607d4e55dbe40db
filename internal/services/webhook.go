package services

import (
	"context"
	"errors"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookService applies verified provider events to local order state.
// The event id record and the order updates commit in one transaction: a
// processing failure rolls the event record back, so the provider's
// redelivery is not mistaken for a duplicate.
type WebhookService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewWebhookService(db *gorm.DB, notifier Notifier) *WebhookService {
	return &WebhookService{db: db, notifier: notifier}
}

// ProcessEvent handles one verified webhook event. Returns true when the
// event was processed and false when it was a duplicate.
func (s *WebhookService) ProcessEvent(ctx context.Context, event *payments.WebhookEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "webhook.process_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	)

	record := models.ProviderEvent{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   string(event.Payload),
	}

	var (
		duplicate bool
		order     *models.Order
		emailKind EmailKind
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			duplicate = true
			return nil
		}

		var err error
		switch event.Type {
		case "checkout.session.completed":
			order, err = s.applySessionCompleted(ctx, tx, event)
			emailKind = EmailOrderPending
		case "payment_intent.succeeded":
			order, err = s.applyPaymentSucceeded(ctx, tx, event)
			emailKind = EmailOrderConfirmed
		case "payment_intent.payment_failed":
			order, err = s.applyPaymentFailed(ctx, tx, event)
		default:
			logging.Debug(ctx).
				Str("event_type", event.Type).
				Msg("unhandled webhook event type")
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if duplicate {
		logging.Info(ctx).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("duplicate webhook event, skipping")
		return false, nil
	}

	// Emails enqueue after the commit so a rolled-back event never mails.
	if order != nil && emailKind != "" && s.notifier != nil {
		if err := s.notifier.NotifyOrderEmail(ctx, order.OrderNumber, emailKind); err != nil {
			logging.Error(ctx).Err(err).
				Str("order_number", order.OrderNumber).
				Msg("failed to enqueue order email")
		}
	}
	return true, nil
}

func (s *WebhookService) applySessionCompleted(ctx context.Context, tx *gorm.DB, event *payments.WebhookEvent) (*models.Order, error) {
	updates := map[string]interface{}{
		"status": models.OrderProcessing,
	}
	if event.PaymentIntentID != "" {
		updates["payment_intent_id"] = event.PaymentIntentID
	}
	if event.CustomerEmail != "" {
		updates["customer_email"] = event.CustomerEmail
	}

	order, err := s.updateOrder(ctx, tx, event, updates)
	if err != nil || order == nil {
		return nil, err
	}

	logging.Info(ctx).
		Str("order_number", order.OrderNumber).
		Str("session_id", event.SessionID).
		Msg("checkout session completed")
	return order, nil
}

func (s *WebhookService) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, event *payments.WebhookEvent) (*models.Order, error) {
	order, err := s.updateOrder(ctx, tx, event, map[string]interface{}{
		"payment_status": models.PaymentPaid,
	})
	if err != nil || order == nil {
		return nil, err
	}

	logging.Info(ctx).
		Str("order_number", order.OrderNumber).
		Int64("amount_cents", event.AmountCents).
		Msg("payment succeeded")
	return order, nil
}

func (s *WebhookService) applyPaymentFailed(ctx context.Context, tx *gorm.DB, event *payments.WebhookEvent) (*models.Order, error) {
	order, err := s.updateOrder(ctx, tx, event, map[string]interface{}{
		"payment_status": models.PaymentFailed,
	})
	if err != nil || order == nil {
		return nil, err
	}

	logging.Warn(ctx).
		Str("order_number", order.OrderNumber).
		Str("failure", event.FailureMessage).
		Msg("payment failed")
	return nil, nil
}

// updateOrder locates the event's order by order number or payment intent and
// applies the updates. An event for an order we do not know is logged and
// dropped, not an error: the provider may redeliver events from before a
// migration. Any other lookup failure propagates so the transaction rolls
// back and the event can be redelivered.
func (s *WebhookService) updateOrder(ctx context.Context, tx *gorm.DB, event *payments.WebhookEvent, updates map[string]interface{}) (*models.Order, error) {
	query := tx.Model(&models.Order{})
	switch {
	case event.OrderNumber != "":
		query = query.Where("order_number = ?", event.OrderNumber)
	case event.PaymentIntentID != "":
		query = query.Where("payment_intent_id = ?", event.PaymentIntentID)
	case event.SessionID != "":
		query = query.Where("provider_session_id = ?", event.SessionID)
	default:
		logging.Warn(ctx).
			Str("event_id", event.ID).
			Msg("webhook event carries no order reference")
		return nil, nil
	}

	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Warn(ctx).
				Str("event_id", event.ID).
				Str("order_number", event.OrderNumber).
				Msg("webhook event for unknown order")
			return nil, nil
		}
		return nil, err
	}

	if err := tx.Model(&order).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
