package database

import (
	"github.com/zoranhorsy/reboul-checkout/internal/models"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.StockReservation{},
		&models.Transfer{},
		&models.ProviderEvent{},
	)
}
