package repository

import (
	"time"

	"phantom-mask/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PharmacyRepository interface {
	Create(tx *gorm.DB, pharmacy *model.Pharmacy) error
	FindByID(tx *gorm.DB, id uint) (*model.Pharmacy, error)
	Exists(tx *gorm.DB, id uint) (bool, error)
	FindByName(tx *gorm.DB, name string) (*model.Pharmacy, error)
	FindByIDs(tx *gorm.DB, ids []uint) ([]model.Pharmacy, error)
	FindOpenAt(tx *gorm.DB, weekday time.Weekday, minute int) ([]model.Pharmacy, error)
	CountMasksInPriceRange(tx *gorm.DB, low, high decimal.Decimal, filter MaskCountFilter) ([]PharmacyMaskCount, error)
	SearchByName(tx *gorm.DB, term string) ([]model.Pharmacy, error)
	Credit(tx *gorm.DB, id uint, amount decimal.Decimal) error
}

// MaskCountFilter keeps pharmacies whose qualifying mask count is strictly
// greater (Greater = true) or strictly less than Threshold
type MaskCountFilter struct {
	Greater   bool
	Threshold int
}

type PharmacyMaskCount struct {
	PharmacyID uint   `json:"pharmacy_id"`
	Name       string `json:"name"`
	MaskCount  int64  `json:"mask_count"`
}

type pharmacyRepo struct {
	db *gorm.DB
}

func NewPharmacyRepo(db *gorm.DB) PharmacyRepository {
	return &pharmacyRepo{db}
}

func (r *pharmacyRepo) Create(tx *gorm.DB, pharmacy *model.Pharmacy) error {
	return tx.Create(pharmacy).Error
}

func (r *pharmacyRepo) FindByID(tx *gorm.DB, id uint) (*model.Pharmacy, error) {
	var pharmacy model.Pharmacy
	if err := tx.Preload("OpeningHours", orderOpeningHours).First(&pharmacy, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

func (r *pharmacyRepo) Exists(tx *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := tx.Model(&model.Pharmacy{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *pharmacyRepo) FindByName(tx *gorm.DB, name string) (*model.Pharmacy, error) {
	var pharmacy model.Pharmacy
	if err := tx.Where("name = ?", name).Order("id ASC").First(&pharmacy).Error; err != nil {
		return nil, err
	}
	return &pharmacy, nil
}

func (r *pharmacyRepo) FindByIDs(tx *gorm.DB, ids []uint) ([]model.Pharmacy, error) {
	pharmacies := []model.Pharmacy{}
	if len(ids) == 0 {
		return pharmacies, nil
	}
	err := tx.Preload("OpeningHours", orderOpeningHours).
		Where("id IN ?", ids).
		Order("name ASC, id ASC").
		Find(&pharmacies).Error
	return pharmacies, err
}

// FindOpenAt matches [open, close) intervals. An overnight interval is checked twice:
// its evening part on its own weekday and its early-morning tail on the following day.
// Zero-width intervals (open == close) never match.
func (r *pharmacyRepo) FindOpenAt(tx *gorm.DB, weekday time.Weekday, minute int) ([]model.Pharmacy, error) {
	day := int(weekday)
	previous := (day + 6) % 7

	var ids []uint
	err := tx.Model(&model.OpeningHour{}).
		Distinct("pharmacy_id").
		Where(`(weekday = ? AND open_minute < close_minute AND open_minute <= ? AND close_minute > ?)
			OR (weekday = ? AND open_minute > close_minute AND open_minute <= ?)
			OR (weekday = ? AND open_minute > close_minute AND close_minute > ?)`,
			day, minute, minute,
			day, minute,
			previous, minute,
		).
		Pluck("pharmacy_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return r.FindByIDs(tx, ids)
}

func (r *pharmacyRepo) CountMasksInPriceRange(tx *gorm.DB, low, high decimal.Decimal, filter MaskCountFilter) ([]PharmacyMaskCount, error) {
	results := []PharmacyMaskCount{}

	having := "COUNT(masks.id) < ?"
	if filter.Greater {
		having = "COUNT(masks.id) > ?"
	}

	err := tx.Table("pharmacies").
		Select("pharmacies.id AS pharmacy_id, pharmacies.name AS name, COUNT(masks.id) AS mask_count").
		Joins("LEFT JOIN masks ON masks.pharmacy_id = pharmacies.id AND masks.price >= ? AND masks.price <= ?", low, high).
		Group("pharmacies.id, pharmacies.name").
		Having(having, filter.Threshold).
		Order("pharmacies.name ASC, pharmacies.id ASC").
		Scan(&results).Error
	return results, err
}

// SearchByName returns every pharmacy whose name contains term, case-insensitively.
// Ranking is left to the caller.
func (r *pharmacyRepo) SearchByName(tx *gorm.DB, term string) ([]model.Pharmacy, error) {
	pharmacies := []model.Pharmacy{}
	ids, err := matchingIDs(tx.Model(&model.Pharmacy{}), term)
	if err != nil || len(ids) == 0 {
		return pharmacies, err
	}
	err = tx.Where("id IN ?", ids).
		Order("id ASC").
		Find(&pharmacies).Error
	return pharmacies, err
}

// Credit adds amount atomically; concurrent credits commute so no version check is needed
func (r *pharmacyRepo) Credit(tx *gorm.DB, id uint, amount decimal.Decimal) error {
	result := tx.Model(&model.Pharmacy{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cash_balance": gorm.Expr("ROUND(cash_balance + ?, 2)", amount),
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func orderOpeningHours(db *gorm.DB) *gorm.DB {
	return db.Order("weekday ASC, open_minute ASC")
}
