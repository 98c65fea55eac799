package repository

import (
	"phantom-mask/internal/model"

	"gorm.io/gorm"
)

// Migrate creates or updates the schema. Order matters for foreign keys.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Pharmacy{},
		&model.OpeningHour{},
		&model.Mask{},
		&model.User{},
		&model.PurchaseTransaction{},
	)
}
