package repository

import (
	"time"

	"phantom-mask/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository interface {
	Create(tx *gorm.DB, t *model.PurchaseTransaction) error
	FindByID(tx *gorm.DB, id uuid.UUID) (*model.PurchaseTransaction, error)
	FindByIdempotencyKey(tx *gorm.DB, key string) (*model.PurchaseTransaction, error)
	FindByUser(tx *gorm.DB, userID uint, from, to time.Time) ([]model.PurchaseTransaction, error)
	TopSpenders(tx *gorm.DB, from, to time.Time, limit int) ([]SpenderTotal, error)
	Volume(tx *gorm.DB, from, to time.Time) (*VolumeSummary, error)
	MaskLedger(tx *gorm.DB, maskID uint, origin model.TransactionOrigin) (*LedgerTotals, error)
	PharmacyLedger(tx *gorm.DB, pharmacyID uint, origin model.TransactionOrigin) (*LedgerTotals, error)
	UserLedger(tx *gorm.DB, userID uint, origin model.TransactionOrigin) (*LedgerTotals, error)
	FindInWindow(tx *gorm.DB, from, to time.Time) ([]model.PurchaseTransaction, error)
	DashboardStats(tx *gorm.DB, lowStock int) (*DashboardStats, error)
}

type SpenderTotal struct {
	UserID       uint            `json:"user_id"`
	Name         string          `json:"name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Transactions int64           `json:"transactions"`
}

type VolumeSummary struct {
	Transactions int64           `json:"transactions"`
	MaskUnits    int64           `json:"mask_units"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

type LedgerTotals struct {
	Transactions int64           `json:"transactions"`
	Quantity     int64           `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`
}

// DashboardStats is the marketplace overview
type DashboardStats struct {
	Pharmacies     int64           `json:"pharmacies"`
	Masks          int64           `json:"masks"`
	Users          int64           `json:"users"`
	Transactions   int64           `json:"transactions"`
	LowStockMasks  int64           `json:"low_stock_masks"`
	StockValuation decimal.Decimal `json:"stock_valuation"`
}

type transactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db}
}

func (r *transactionRepo) Create(tx *gorm.DB, t *model.PurchaseTransaction) error {
	return tx.Create(t).Error
}

func (r *transactionRepo) FindByID(tx *gorm.DB, id uuid.UUID) (*model.PurchaseTransaction, error) {
	var t model.PurchaseTransaction
	if err := tx.Preload("User").Preload("Pharmacy").First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepo) FindByIdempotencyKey(tx *gorm.DB, key string) (*model.PurchaseTransaction, error) {
	var t model.PurchaseTransaction
	if err := tx.Where("idempotency_key = ?", key).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepo) FindByUser(tx *gorm.DB, userID uint, from, to time.Time) ([]model.PurchaseTransaction, error) {
	transactions := []model.PurchaseTransaction{}
	err := tx.Preload("Pharmacy").
		Where("user_id = ? AND purchased_at BETWEEN ? AND ?", userID, from, to).
		Order("purchased_at DESC, id ASC").
		Find(&transactions).Error
	return transactions, err
}

// TopSpenders ranks users with at least one transaction inside [from, to] by summed
// amount; equal totals fall back to user id.
// Money sums are rounded to cents: SQLite adds decimal columns as floats.
func (r *transactionRepo) TopSpenders(tx *gorm.DB, from, to time.Time, limit int) ([]SpenderTotal, error) {
	results := []SpenderTotal{}
	err := tx.Model(&model.PurchaseTransaction{}).
		Select(`purchase_transactions.user_id AS user_id,
			users.name AS name,
			ROUND(SUM(purchase_transactions.amount), 2) AS total_amount,
			COUNT(purchase_transactions.id) AS transactions`).
		Joins("JOIN users ON users.id = purchase_transactions.user_id").
		Where("purchase_transactions.purchased_at BETWEEN ? AND ?", from, to).
		Group("purchase_transactions.user_id, users.name").
		Order("total_amount DESC, user_id ASC").
		Limit(limit).
		Scan(&results).Error
	return results, err
}

func (r *transactionRepo) Volume(tx *gorm.DB, from, to time.Time) (*VolumeSummary, error) {
	var summary VolumeSummary
	err := tx.Model(&model.PurchaseTransaction{}).
		Select(`COUNT(*) AS transactions,
			COALESCE(SUM(quantity), 0) AS mask_units,
			COALESCE(ROUND(SUM(amount), 2), 0) AS total_value`).
		Where("purchased_at BETWEEN ? AND ?", from, to).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *transactionRepo) MaskLedger(tx *gorm.DB, maskID uint, origin model.TransactionOrigin) (*LedgerTotals, error) {
	return r.ledger(tx, "mask_id", maskID, origin)
}

func (r *transactionRepo) PharmacyLedger(tx *gorm.DB, pharmacyID uint, origin model.TransactionOrigin) (*LedgerTotals, error) {
	return r.ledger(tx, "pharmacy_id", pharmacyID, origin)
}

func (r *transactionRepo) UserLedger(tx *gorm.DB, userID uint, origin model.TransactionOrigin) (*LedgerTotals, error) {
	return r.ledger(tx, "user_id", userID, origin)
}

func (r *transactionRepo) ledger(tx *gorm.DB, column string, id uint, origin model.TransactionOrigin) (*LedgerTotals, error) {
	var totals LedgerTotals
	err := tx.Model(&model.PurchaseTransaction{}).
		Select(`COUNT(*) AS transactions,
			COALESCE(SUM(quantity), 0) AS quantity,
			COALESCE(ROUND(SUM(amount), 2), 0) AS amount`).
		Where(column+" = ? AND origin = ?", id, origin).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (r *transactionRepo) FindInWindow(tx *gorm.DB, from, to time.Time) ([]model.PurchaseTransaction, error) {
	transactions := []model.PurchaseTransaction{}
	err := tx.Where("purchased_at BETWEEN ? AND ?", from, to).
		Order("purchased_at ASC, id ASC").
		Find(&transactions).Error
	return transactions, err
}

func (r *transactionRepo) DashboardStats(tx *gorm.DB, lowStock int) (*DashboardStats, error) {
	var stats DashboardStats

	if err := tx.Model(&model.Pharmacy{}).Count(&stats.Pharmacies).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.Mask{}).Count(&stats.Masks).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.User{}).Count(&stats.Users).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.PurchaseTransaction{}).Count(&stats.Transactions).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&model.Mask{}).Where("stock <= ?", lowStock).Count(&stats.LowStockMasks).Error; err != nil {
		return nil, err
	}
	// stock * price summed over every listing
	if err := tx.Model(&model.Mask{}).Select("COALESCE(ROUND(SUM(stock * price), 2), 0)").Scan(&stats.StockValuation).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
