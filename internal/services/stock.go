package services

import (
	"context"
	"time"

	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockService keeps the reservation ledger. Availability is always derived:
// on-hand stock minus the sum of active, unexpired reservations for the same
// variant. Stock itself only moves on commit.
type StockService struct {
	db             *gorm.DB
	reservationTTL time.Duration
}

func NewStockService(db *gorm.DB, reservationTTL time.Duration) *StockService {
	return &StockService{db: db, reservationTTL: reservationTTL}
}

type StockItemInput struct {
	ProductID uint   `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

// ItemResult reports the outcome for one item of a batch. Failed items carry
// an Error string instead of failing the whole batch.
type ItemResult struct {
	ProductID     uint   `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	ReservationID uint   `json:"reservation_id,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	Available     int    `json:"available,omitempty"`
	NewStock      int    `json:"new_stock,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type ReservationResult struct {
	OrderID   string       `json:"order_id"`
	ExpiresAt time.Time    `json:"expires_at"`
	Items     []ItemResult `json:"items"`
}

// Reserve places reservations for a batch of items inside one transaction.
// Items fail individually (unknown product, unknown variant, insufficient
// availability); the transaction only rolls back when no item at all could
// be reserved. A non-positive ttl uses the service default.
func (s *StockService) Reserve(ctx context.Context, orderID string, items []StockItemInput, ttl time.Duration) (*ReservationResult, error) {
	ctx, span := tracer.Start(ctx, "stock.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items.count", len(items)),
	)

	if ttl <= 0 {
		ttl = s.reservationTTL
	}
	expiresAt := time.Now().Add(ttl)
	result := &ReservationResult{OrderID: orderID, ExpiresAt: expiresAt}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		succeeded := 0
		for _, item := range items {
			res := s.reserveOne(ctx, tx, orderID, item, expiresAt)
			if res.Success {
				succeeded++
			}
			result.Items = append(result.Items, res)
		}
		if succeeded == 0 {
			return ErrNoReservations
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx).
		Str("order_id", orderID).
		Int("items", len(result.Items)).
		Time("expires_at", expiresAt).
		Msg("stock reserved")
	return result, nil
}

func (s *StockService) reserveOne(ctx context.Context, tx *gorm.DB, orderID string, item StockItemInput, expiresAt time.Time) ItemResult {
	out := ItemResult{ProductID: item.ProductID, Quantity: item.Quantity}

	if item.Quantity <= 0 {
		out.Error = "quantity must be positive"
		return out
	}

	var product models.Product
	if err := tx.First(&product, item.ProductID).Error; err != nil {
		out.Error = "product not found"
		return out
	}

	idx := product.FindVariant(item.Size, item.Color)
	if idx < 0 {
		out.Error = "variant not found"
		return out
	}
	variant := product.Variants[idx]
	variantID := models.VariantKey(item.ProductID, variant.Size, variant.Color)
	out.VariantID = variantID

	reserved, err := activeReservedQuantity(tx, variantID)
	if err != nil {
		out.Error = "failed to read reservations"
		return out
	}

	available := variant.Stock - reserved
	out.Available = available
	if available < item.Quantity {
		out.Error = "insufficient stock"
		logging.Warn(ctx).
			Str("variant_id", variantID).
			Int("requested", item.Quantity).
			Int("available", available).
			Msg("reservation refused")
		return out
	}

	reservation := models.StockReservation{
		OrderID:   orderID,
		VariantID: variantID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		ExpiresAt: expiresAt,
		Status:    models.ReservationActive,
	}
	if err := tx.Create(&reservation).Error; err != nil {
		out.Error = "failed to create reservation"
		return out
	}

	out.ReservationID = reservation.ID
	out.Success = true
	return out
}

// Release marks an order's active reservations as released. Releasing an
// order with no active reservations is a no-op, not an error.
func (s *StockService) Release(ctx context.Context, orderID string) ([]models.StockReservation, error) {
	ctx, span := tracer.Start(ctx, "stock.release")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	var reservations []models.StockReservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("order_id = ? AND status = ?", orderID, models.ReservationActive).
			Find(&reservations).Error; err != nil {
			return err
		}
		if len(reservations) == 0 {
			return nil
		}
		if err := tx.Model(&models.StockReservation{}).
			Where("order_id = ? AND status = ?", orderID, models.ReservationActive).
			Update("status", models.ReservationReleased).Error; err != nil {
			return err
		}
		for i := range reservations {
			reservations[i].Status = models.ReservationReleased
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx).
		Str("order_id", orderID).
		Int("released", len(reservations)).
		Msg("reservations released")
	return reservations, nil
}

// Commit decrements on-hand stock after a confirmed payment and marks the
// order's reservations committed. Product rows are locked for the duration
// of the transaction so concurrent commits cannot oversell.
func (s *StockService) Commit(ctx context.Context, orderID string, items []StockItemInput) ([]ItemResult, error) {
	ctx, span := tracer.Start(ctx, "stock.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("items.count", len(items)),
	)

	var results []ItemResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var committedVariants []string
		for _, item := range items {
			res := s.commitOne(ctx, tx, item)
			if res.Success {
				committedVariants = append(committedVariants, res.VariantID)
			}
			results = append(results, res)
		}
		if len(committedVariants) == 0 {
			return ErrNoStockUpdates
		}

		// Only the variants whose stock actually moved lose their holds; a
		// failed item's reservation stays active so availability still
		// accounts for it.
		if orderID != "" {
			if err := tx.Model(&models.StockReservation{}).
				Where("order_id = ? AND status = ? AND variant_id IN ?",
					orderID, models.ReservationActive, committedVariants).
				Update("status", models.ReservationCommitted).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return results, err
	}

	logging.Info(ctx).
		Str("order_id", orderID).
		Int("items", len(results)).
		Msg("stock committed")
	return results, nil
}

func (s *StockService) commitOne(ctx context.Context, tx *gorm.DB, item StockItemInput) ItemResult {
	out := ItemResult{ProductID: item.ProductID, Quantity: item.Quantity}

	var product models.Product
	if err := lockForUpdate(tx).First(&product, item.ProductID).Error; err != nil {
		out.Error = "product not found"
		return out
	}

	idx := product.FindVariant(item.Size, item.Color)
	if idx < 0 {
		out.Error = "variant not found"
		return out
	}

	newStock := product.Variants[idx].Stock - item.Quantity
	if newStock < 0 {
		out.Error = "insufficient stock"
		logging.Error(ctx).
			Uint("product_id", item.ProductID).
			Str("size", item.Size).
			Str("color", item.Color).
			Int("on_hand", product.Variants[idx].Stock).
			Int("requested", item.Quantity).
			Msg("stock commit would go negative")
		return out
	}

	product.Variants[idx].Stock = newStock
	if err := tx.Model(&product).Update("variants", product.Variants).Error; err != nil {
		out.Error = "failed to update stock"
		return out
	}

	out.VariantID = models.VariantKey(item.ProductID, item.Size, product.Variants[idx].Color)
	out.NewStock = newStock
	out.Success = true
	return out
}

// ReleaseExpired flips active reservations past their deadline to released,
// returning stock to availability. Run periodically by the worker.
func (s *StockService) ReleaseExpired(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "stock.release_expired")
	defer span.End()

	res := s.db.WithContext(ctx).
		Model(&models.StockReservation{}).
		Where("status = ? AND expires_at < ?", models.ReservationActive, time.Now()).
		Update("status", models.ReservationReleased)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		logging.Info(ctx).
			Int64("count", res.RowsAffected).
			Msg("expired reservations released")
	}
	return res.RowsAffected, nil
}

// lockForUpdate takes a row lock on dialects that support it. sqlite has no
// row locks and rejects the clause; its single writer serializes commits.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func activeReservedQuantity(tx *gorm.DB, variantID string) (int, error) {
	var reserved int64
	err := tx.Model(&models.StockReservation{}).
		Where("variant_id = ? AND status = ? AND expires_at > ?",
			variantID, models.ReservationActive, time.Now()).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&reserved).Error
	return int(reserved), err
}
