package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Mask struct {
	BaseModel
	PharmacyID uint            `gorm:"not null;index" json:"pharmacy_id"`
	Pharmacy   *Pharmacy       `gorm:"constraint:OnDelete:CASCADE" json:"pharmacy,omitempty"`
	Name       string          `gorm:"type:varchar(255);not null;index" json:"name"`
	Color      string          `gorm:"type:varchar(50)" json:"color"`
	PackSize   int             `gorm:"not null;default:1" json:"pack_size"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null;check:price >= 0" json:"price"`
	Stock      int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`

	// InitialStock is the stock the row was created with; the purchase log is replayed against it
	InitialStock int `gorm:"not null;default:0" json:"initial_stock"`
	Version      int `gorm:"not null;default:0" json:"-"`
}

// DisplayName renders the mask the way the import files spell it,
// e.g. "True Barrier (green) (3 per pack)"
func (m *Mask) DisplayName() string {
	name := m.Name
	if m.Color != "" {
		name += " (" + m.Color + ")"
	}
	return fmt.Sprintf("%s (%d per pack)", name, m.PackSize)
}
