// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"testing"
	"time"

	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"
	"phantom-mask/pkg/database"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database private to the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Hours builds one opening interval from "HH:MM" strings
func Hours(day time.Weekday, open, close string) model.OpeningHour {
	o, err := model.ParseClock(open)
	if err != nil {
		panic(err)
	}
	c, err := model.ParseClock(close)
	if err != nil {
		panic(err)
	}
	return model.OpeningHour{Weekday: int(day), OpenMinute: o, CloseMinute: c}
}

func CreatePharmacy(t *testing.T, db *gorm.DB, name, balance string, hours ...model.OpeningHour) *model.Pharmacy {
	t.Helper()
	p := &model.Pharmacy{
		Name:           name,
		CashBalance:    Money(balance),
		OpeningBalance: Money(balance),
		OpeningHours:   hours,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create pharmacy %q: %v", name, err)
	}
	return p
}

func CreateMask(t *testing.T, db *gorm.DB, pharmacyID uint, name, price string, stock int) *model.Mask {
	t.Helper()
	m := &model.Mask{
		PharmacyID:   pharmacyID,
		Name:         name,
		Color:        "black",
		PackSize:     1,
		Price:        Money(price),
		Stock:        stock,
		InitialStock: stock,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create mask %q: %v", name, err)
	}
	return m
}

func CreateUser(t *testing.T, db *gorm.DB, name, balance string) *model.User {
	t.Helper()
	u := &model.User{Name: name, CashBalance: Money(balance), OpeningBalance: Money(balance)}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return u
}

// CreateHistory inserts an imported purchase row without touching balances or stock
func CreateHistory(t *testing.T, db *gorm.DB, userID, pharmacyID, maskID uint, amount string, at time.Time) *model.PurchaseTransaction {
	t.Helper()
	row := &model.PurchaseTransaction{
		UserID:      userID,
		PharmacyID:  pharmacyID,
		MaskID:      maskID,
		MaskName:    "history",
		UnitPrice:   Money(amount),
		Quantity:    1,
		Amount:      Money(amount),
		Origin:      model.OriginImport,
		PurchasedAt: at.UTC(),
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("create history row: %v", err)
	}
	return row
}

func Reload[T any](t *testing.T, db *gorm.DB, id uint) *T {
	t.Helper()
	var out T
	if err := db.First(&out, id).Error; err != nil {
		t.Fatalf("reload %T %d: %v", out, id, err)
	}
	return &out
}
