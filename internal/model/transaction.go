package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionOrigin string

const (
	OriginPurchase TransactionOrigin = "purchase"
	OriginImport   TransactionOrigin = "import"
)

// PurchaseTransaction is the immutable audit row of one sale.
// Mask name and unit price are copied at purchase time.
type PurchaseTransaction struct {
	ID         uuid.UUID `gorm:"size:36;primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	User       *User     `json:"user,omitempty"`
	PharmacyID uint      `gorm:"not null;index" json:"pharmacy_id"`
	Pharmacy   *Pharmacy `json:"pharmacy,omitempty"`
	MaskID     uint      `gorm:"not null;index" json:"mask_id"`
	Mask       *Mask     `json:"mask,omitempty"`

	MaskName  string          `gorm:"type:varchar(255);not null" json:"mask_name"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null;check:amount >= 0" json:"amount"`

	Origin         TransactionOrigin `gorm:"type:varchar(16);not null;index" json:"origin"`
	IdempotencyKey *string           `gorm:"type:varchar(100);uniqueIndex" json:"-"`
	PurchasedAt    time.Time         `gorm:"not null;index" json:"purchased_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (t *PurchaseTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}
