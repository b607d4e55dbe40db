package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

// cornerLineMarker tags The Corner's line items inside a session description
// so settlement can attribute amounts per store from provider data alone.
const cornerLineMarker = "The Corner"

var sessionsCreatedCounter metric.Int64Counter

type CheckoutService struct {
	db            *gorm.DB
	provider      payments.Provider
	classifier    *StoreClassifier
	appURL        string
	currency      string
	cornerAccount string
}

func NewCheckoutService(db *gorm.DB, provider payments.Provider, classifier *StoreClassifier, appURL, currency, cornerAccount string) *CheckoutService {
	var err error
	sessionsCreatedCounter, err = meter.Int64Counter(
		"checkout.sessions.created",
		metric.WithDescription("Total number of checkout sessions created"),
	)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("failed to create sessions counter")
	}

	return &CheckoutService{
		db:            db,
		provider:      provider,
		classifier:    classifier,
		appURL:        appURL,
		currency:      currency,
		cornerAccount: cornerAccount,
	}
}

type CheckoutInput struct {
	Items          []models.LineItem
	CartID         string
	ShippingMethod string
	DiscountCode   string
	CustomerEmail  string
}

// SessionDescriptor is the caller-facing record of one created session.
type SessionDescriptor struct {
	Store       models.Store       `json:"store"`
	SessionID   string             `json:"session_id"`
	URL         string             `json:"url"`
	OrderNumber string             `json:"order_number"`
	StoreInfo   models.DisplayInfo `json:"store_info"`
	ItemCount   int                `json:"item_count"`
}

type CheckoutResult struct {
	Sessions     []SessionDescriptor
	OrderNumbers []string
}

// Primary is the session the storefront redirects to first.
func (r *CheckoutResult) Primary() SessionDescriptor {
	return r.Sessions[0]
}

// Partition groups the cart's line items by owning store, preserving input
// order within each bucket. Every item lands in exactly one bucket; a cart
// that yields zero non-empty buckets is rejected.
func (s *CheckoutService) Partition(ctx context.Context, items []models.LineItem) (models.PartitionedCart, error) {
	ctx, span := tracer.Start(ctx, "checkout.partition")
	defer span.End()

	cart := models.PartitionedCart{
		models.StoreAdult:    {},
		models.StoreSneakers: {},
		models.StoreKids:     {},
		models.StoreCorner:   {},
	}

	for _, item := range items {
		store := s.classifier.Classify(ctx, item)
		item.Store = store
		cart[store] = append(cart[store], item)
	}

	if cart.IsEmpty() {
		return nil, ErrNoValidItems
	}

	span.SetAttributes(
		attribute.Int("cart.adult", len(cart[models.StoreAdult])),
		attribute.Int("cart.sneakers", len(cart[models.StoreSneakers])),
		attribute.Int("cart.kids", len(cart[models.StoreKids])),
		attribute.Int("cart.the_corner", len(cart[models.StoreCorner])),
	)
	return cart, nil
}

// CreateSessions partitions the cart and creates one checkout session per
// non-empty bucket, in fixed bucket order. The whole operation is a saga: if
// any bucket's session creation fails, sessions already created are expired
// and their orders cancelled before the error is returned.
func (s *CheckoutService) CreateSessions(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.create_sessions")
	defer span.End()

	cart, err := s.Partition(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{}
	createdAt := time.Now().UTC()

	for _, store := range models.BucketOrder {
		items := cart[store]
		if len(items) == 0 {
			continue
		}

		orderNumber := GenerateOrderNumber(store)
		sess, err := s.createBucketSession(ctx, store, orderNumber, items, input, createdAt)
		if err != nil {
			s.compensate(ctx, result.Sessions)
			return nil, fmt.Errorf("create session for %s: %w", store, err)
		}

		result.Sessions = append(result.Sessions, SessionDescriptor{
			Store:       store,
			SessionID:   sess.ID,
			URL:         sess.URL,
			OrderNumber: orderNumber,
			StoreInfo:   store.DisplayInfo(),
			ItemCount:   len(items),
		})
		result.OrderNumbers = append(result.OrderNumbers, orderNumber)

		if sessionsCreatedCounter != nil {
			sessionsCreatedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("store", string(store)),
			))
		}
	}

	logging.Info(ctx).
		Int("session_count", len(result.Sessions)).
		Strs("order_numbers", result.OrderNumbers).
		Msg("checkout sessions created")

	return result, nil
}

func (s *CheckoutService) createBucketSession(ctx context.Context, store models.Store, orderNumber string, items []models.LineItem, input CheckoutInput, createdAt time.Time) (*payments.Session, error) {
	totalCents := int64(0)
	totalEuros := 0.0
	lineItems := make([]payments.SessionLineItem, 0, len(items))
	metaItems := make([]payments.MetadataItem, 0, len(items))

	for _, item := range items {
		description := fmt.Sprintf("%s - %s", item.Variant.Color, item.Variant.Size)
		if store == models.StoreCorner {
			description = fmt.Sprintf("%s · %s", description, cornerLineMarker)
		}
		lineItems = append(lineItems, payments.SessionLineItem{
			Name:            item.Name,
			Description:     description,
			UnitAmountCents: item.UnitAmountCents(),
			Quantity:        int64(item.Quantity),
			ImageURL:        s.validateImageURL(item.Image),
		})
		metaItems = append(metaItems, payments.MetadataItem{
			Name:     item.Name,
			Store:    store,
			Quantity: item.Quantity,
		})
		totalCents += item.TotalCents()
		totalEuros += item.Price * float64(item.Quantity)
	}

	req := payments.SessionRequest{
		OrderNumber:   orderNumber,
		Store:         store,
		CustomerEmail: input.CustomerEmail,
		SuccessURL:    s.appURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.appURL + "/checkout/cancel",
		LineItems:     lineItems,
		Currency:      s.currency,
		TransferGroup: "order_" + orderNumber,
		Metadata: payments.Metadata{
			OrderNumber:      orderNumber,
			Store:            store,
			CartID:           input.CartID,
			ItemCount:        len(items),
			TotalAmountCents: totalCents,
			ShippingMethod:   input.ShippingMethod,
			DiscountCode:     input.DiscountCode,
			CustomerEmail:    input.CustomerEmail,
			CreatedAt:        createdAt,
			Items:            metaItems,
		},
	}
	if store == models.StoreCorner {
		req.TransferDestination = s.cornerAccount
	}

	order, err := s.persistOrder(ctx, store, orderNumber, items, input, totalEuros)
	if err != nil {
		return nil, err
	}

	sess, err := s.provider.CreateSession(ctx, req)
	if err != nil {
		if dbErr := s.db.WithContext(ctx).Model(order).Updates(map[string]interface{}{
			"status":         models.OrderCancelled,
			"payment_status": models.PaymentFailed,
		}).Error; dbErr != nil {
			logging.Error(ctx).Err(dbErr).
				Str("order_number", orderNumber).
				Msg("failed to cancel order after provider rejection")
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(order).Updates(map[string]interface{}{
		"provider_session_id": sess.ID,
		"payment_intent_id":   sess.PaymentIntentID,
	}).Error; err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *CheckoutService) persistOrder(ctx context.Context, store models.Store, orderNumber string, items []models.LineItem, input CheckoutInput, total float64) (*models.Order, error) {
	order := &models.Order{
		OrderNumber:   orderNumber,
		Store:         store,
		CustomerEmail: input.CustomerEmail,
		TotalAmount:   total,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		for _, item := range items {
			productID := numericProductID(ctx, item.ProductID)
			orderItem := models.OrderItem{
				OrderID:   order.ID,
				ProductID: productID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.Price,
				Size:      item.Variant.Size,
				Color:     item.Variant.Color,
			}
			if err := tx.Create(&orderItem).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// compensate expires already-created sessions after a later bucket failed,
// so no customer can pay into a half-built multi-store checkout.
func (s *CheckoutService) compensate(ctx context.Context, created []SessionDescriptor) {
	for _, desc := range created {
		if err := s.provider.ExpireSession(ctx, desc.SessionID); err != nil {
			logging.Error(ctx).
				Err(err).
				Str("session_id", desc.SessionID).
				Str("order_number", desc.OrderNumber).
				Msg("failed to expire session during compensation")
			continue
		}
		if err := s.db.WithContext(ctx).
			Model(&models.Order{}).
			Where("order_number = ?", desc.OrderNumber).
			Updates(map[string]interface{}{
				"status":         models.OrderCancelled,
				"payment_status": models.PaymentFailed,
			}).Error; err != nil {
			logging.Error(ctx).Err(err).
				Str("order_number", desc.OrderNumber).
				Msg("failed to cancel order during compensation")
		}
		logging.Warn(ctx).
			Str("session_id", desc.SessionID).
			Str("order_number", desc.OrderNumber).
			Msg("expired session during compensation")
	}
}

// SessionStatus returns the provider session state together with the local
// order it belongs to.
type SessionStatus struct {
	Session *payments.Session `json:"session"`
	Order   *models.Order     `json:"order"`
}

func (s *CheckoutService) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	ctx, span := tracer.Start(ctx, "checkout.session_status")
	defer span.End()

	var order models.Order
	if err := s.db.WithContext(ctx).
		Where("provider_session_id = ?", sessionID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	sess, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionStatus{Session: sess, Order: &order}, nil
}

// validateImageURL returns an absolute image URL or empty when the input
// cannot be made absolute.
func (s *CheckoutService) validateImageURL(imageURL string) string {
	if imageURL == "" {
		return ""
	}
	if strings.HasPrefix(imageURL, "http://") || strings.HasPrefix(imageURL, "https://") {
		return imageURL
	}
	if strings.HasPrefix(imageURL, "/") {
		return s.appURL + imageURL
	}
	return ""
}

// GenerateOrderNumber builds a store-prefixed order number, e.g.
// "TCR-1714064523123".
func GenerateOrderNumber(store models.Store) string {
	return fmt.Sprintf("%s-%d", store.OrderPrefix(), time.Now().UnixMilli())
}

func numericProductID(ctx context.Context, id string) uint {
	numeric := strings.SplitN(id, "-", 2)[0]
	var n uint
	if _, err := fmt.Sscanf(numeric, "%d", &n); err != nil {
		logging.Warn(ctx).
			Str("product_id", id).
			Msg("non-numeric product id, order item keeps product_id 0")
		return 0
	}
	return n
}
