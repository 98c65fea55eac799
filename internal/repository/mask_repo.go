package repository

import (
	"strings"

	"phantom-mask/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MaskRepository interface {
	Create(tx *gorm.DB, mask *model.Mask) error
	FindByID(tx *gorm.DB, id uint) (*model.Mask, error)
	FindByIDForUpdate(tx *gorm.DB, id uint) (*model.Mask, error)
	FindInPharmacy(tx *gorm.DB, pharmacyID uint, name, color string, packSize int) (*model.Mask, error)
	ListByPharmacy(tx *gorm.DB, pharmacyID uint, sortColumn string, desc bool) ([]model.Mask, error)
	SearchByName(tx *gorm.DB, term string) ([]model.Mask, error)
	DecrementStock(tx *gorm.DB, id uint, version, quantity int) error
}

type maskRepo struct {
	db *gorm.DB
}

func NewMaskRepo(db *gorm.DB) MaskRepository {
	return &maskRepo{db}
}

func (r *maskRepo) Create(tx *gorm.DB, mask *model.Mask) error {
	return tx.Create(mask).Error
}

func (r *maskRepo) FindByID(tx *gorm.DB, id uint) (*model.Mask, error) {
	var mask model.Mask
	if err := tx.First(&mask, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &mask, nil
}

// FindByIDForUpdate row-locks the mask until the surrounding transaction ends
func (r *maskRepo) FindByIDForUpdate(tx *gorm.DB, id uint) (*model.Mask, error) {
	var mask model.Mask
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&mask, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &mask, nil
}

func (r *maskRepo) FindInPharmacy(tx *gorm.DB, pharmacyID uint, name, color string, packSize int) (*model.Mask, error) {
	var mask model.Mask
	err := tx.Where("pharmacy_id = ? AND name = ? AND color = ? AND pack_size = ?", pharmacyID, name, color, packSize).
		Order("id ASC").
		First(&mask).Error
	if err != nil {
		return nil, err
	}
	return &mask, nil
}

// ListByPharmacy orders by sortColumn and then by id so equal keys keep a stable order
func (r *maskRepo) ListByPharmacy(tx *gorm.DB, pharmacyID uint, sortColumn string, desc bool) ([]model.Mask, error) {
	masks := []model.Mask{}
	err := tx.Where("pharmacy_id = ?", pharmacyID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: sortColumn}, Desc: desc}).
		Order("id ASC").
		Find(&masks).Error
	return masks, err
}

func (r *maskRepo) SearchByName(tx *gorm.DB, term string) ([]model.Mask, error) {
	masks := []model.Mask{}
	ids, err := matchingIDs(tx.Model(&model.Mask{}), term)
	if err != nil || len(ids) == 0 {
		return masks, err
	}
	err = tx.Preload("Pharmacy").
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&masks).Error
	return masks, err
}

// DecrementStock applies only if nobody changed the row since it was read at version
// and enough stock is left; otherwise ErrConflict.
func (r *maskRepo) DecrementStock(tx *gorm.DB, id uint, version, quantity int) error {
	result := tx.Model(&model.Mask{}).
		Where("id = ? AND version = ? AND stock >= ?", id, version, quantity).
		Updates(map[string]interface{}{
			"stock":   gorm.Expr("stock - ?", quantity),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

type idName struct {
	ID   uint
	Name string
}

// matchingIDs returns the ids of rows in scope whose name contains term, folded with
// strings.ToLower. The match runs in Go because SQL LOWER folds only ASCII on SQLite
// and depends on the collation elsewhere.
func matchingIDs(scope *gorm.DB, term string) ([]uint, error) {
	var rows []idName
	if err := scope.Select("id, name").Order("id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	folded := strings.ToLower(term)
	ids := []uint{}
	for _, row := range rows {
		if strings.Contains(strings.ToLower(row.Name), folded) {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}
