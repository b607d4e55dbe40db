package services

import (
	"context"
	"fmt"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

// Notifier enqueues customer notifications for asynchronous delivery. The
// jobs client implements it; services depend on this interface so the
// webhook path never blocks on SMTP.
type Notifier interface {
	NotifyOrderEmail(ctx context.Context, orderNumber string, kind EmailKind) error
}

type EmailKind string

const (
	EmailOrderPending   EmailKind = "order_pending"
	EmailOrderConfirmed EmailKind = "order_confirmed"
	EmailOrderCancelled EmailKind = "order_cancelled"
)

// NotificationService renders and sends customer emails over SMTP.
type NotificationService struct {
	db       *gorm.DB
	dialer   *gomail.Dialer
	from     string
	sendFunc func(m *gomail.Message) error
}

func NewNotificationService(db *gorm.DB, host string, port int, username, password, from string) *NotificationService {
	dialer := gomail.NewDialer(host, port, username, password)
	svc := &NotificationService{
		db:     db,
		dialer: dialer,
		from:   from,
	}
	svc.sendFunc = func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	return svc
}

// EmailReceipt confirms one delivered email.
type EmailReceipt struct {
	MessageID string    `json:"messageId"`
	Recipient string    `json:"recipient"`
	Kind      EmailKind `json:"type"`
}

// SendOrderEmail sends the email for an order in the given lifecycle state.
// The receipt's message id correlates the delivery in logs.
func (s *NotificationService) SendOrderEmail(ctx context.Context, orderNumber string, kind EmailKind) (*EmailReceipt, error) {
	ctx, span := tracer.Start(ctx, "notification.send_order_email")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.number", orderNumber),
		attribute.String("email.kind", string(kind)),
	)

	var order models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error; err != nil {
		return nil, ErrOrderNotFound
	}
	if order.CustomerEmail == "" {
		return nil, fmt.Errorf("order %s has no customer email", orderNumber)
	}

	subject, body := renderOrderEmail(&order, kind)
	messageID := uuid.NewString()

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", order.CustomerEmail)
	m.SetHeader("Subject", subject)
	m.SetHeader("X-Entity-Ref-ID", messageID)
	m.SetBody("text/html", body)

	if err := s.sendFunc(m); err != nil {
		return nil, fmt.Errorf("send email for %s: %w", orderNumber, err)
	}

	logging.Info(ctx).
		Str("order_number", orderNumber).
		Str("message_id", messageID).
		Str("kind", string(kind)).
		Msg("order email sent")
	return &EmailReceipt{
		MessageID: messageID,
		Recipient: order.CustomerEmail,
		Kind:      kind,
	}, nil
}

func renderOrderEmail(order *models.Order, kind EmailKind) (subject, body string) {
	info := order.Store.DisplayInfo()

	var itemRows string
	for _, item := range order.Items {
		itemRows += fmt.Sprintf(
			"<tr><td>%s (%s, %s)</td><td>%d</td><td>%.2f €</td></tr>",
			item.Name, item.Color, item.Size, item.Quantity, item.UnitPrice*float64(item.Quantity))
	}

	switch kind {
	case EmailOrderConfirmed:
		subject = fmt.Sprintf("Votre commande %s est confirmée", order.OrderNumber)
		body = fmt.Sprintf(`<h1>Merci pour votre commande !</h1>
<p>Votre commande <strong>%s</strong> chez %s a bien été confirmée.</p>
<table><tr><th>Article</th><th>Quantité</th><th>Total</th></tr>%s</table>
<p>Total : <strong>%.2f €</strong></p>
<p>Vous recevrez un email dès l'expédition de votre colis.</p>`,
			order.OrderNumber, info.DisplayName, itemRows, order.TotalAmount)
	case EmailOrderCancelled:
		subject = fmt.Sprintf("Votre commande %s a été annulée", order.OrderNumber)
		body = fmt.Sprintf(`<h1>Commande annulée</h1>
<p>Votre commande <strong>%s</strong> chez %s a été annulée.</p>
<p>Aucun montant n'a été débité. Si vous avez des questions, répondez simplement à cet email.</p>`,
			order.OrderNumber, info.DisplayName)
	default:
		subject = fmt.Sprintf("Nous avons bien reçu votre commande %s", order.OrderNumber)
		body = fmt.Sprintf(`<h1>Commande reçue</h1>
<p>Votre commande <strong>%s</strong> chez %s est en cours de traitement.</p>
<table><tr><th>Article</th><th>Quantité</th><th>Total</th></tr>%s</table>
<p>Total : <strong>%.2f €</strong></p>
<p>Nous vous confirmerons la disponibilité de vos articles très prochainement.</p>`,
			order.OrderNumber, info.DisplayName, itemRows, order.TotalAmount)
	}
	return subject, body
}
