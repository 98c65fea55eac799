package model

import "github.com/shopspring/decimal"

// User is a buyer with a cash balance
type User struct {
	BaseModel
	Name        string          `gorm:"type:varchar(255);not null;index" json:"name"`
	CashBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0;check:cash_balance >= 0" json:"cash_balance"`
	Version     int             `gorm:"not null;default:0" json:"-"`

	// OpeningBalance is the balance the row was created with; the purchase log is replayed against it
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"opening_balance"`
}
