package models

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

// StockReservation is a temporary hold against a product variant. Available
// stock for a variant is its on-hand stock minus the sum of active,
// unexpired reservations.
type StockReservation struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	OrderID   string            `gorm:"not null;index" json:"order_id"`
	VariantID string            `gorm:"not null;index" json:"variant_id"`
	ProductID uint              `gorm:"not null" json:"product_id"`
	Quantity  int               `gorm:"not null" json:"quantity"`
	ExpiresAt time.Time         `gorm:"not null" json:"expires_at"`
	Status    ReservationStatus `gorm:"not null;default:'active';index" json:"status"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// VariantKey builds the synthetic variant identifier used by the reservation
// ledger, "<productID>-<size>-<color>".
func VariantKey(productID uint, size, color string) string {
	return fmt.Sprintf("%d-%s-%s", productID, size, color)
}
