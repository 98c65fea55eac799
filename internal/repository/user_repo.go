package repository

import (
	"phantom-mask/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	Create(tx *gorm.DB, user *model.User) error
	FindByID(tx *gorm.DB, id uint) (*model.User, error)
	FindByIDForUpdate(tx *gorm.DB, id uint) (*model.User, error)
	FindByName(tx *gorm.DB, name string) (*model.User, error)
	Debit(tx *gorm.DB, id uint, version int, newBalance decimal.Decimal) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db}
}

func (r *userRepo) Create(tx *gorm.DB, user *model.User) error {
	return tx.Create(user).Error
}

func (r *userRepo) FindByID(tx *gorm.DB, id uint) (*model.User, error) {
	var user model.User
	if err := tx.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByIDForUpdate(tx *gorm.DB, id uint) (*model.User, error) {
	var user model.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByName(tx *gorm.DB, name string) (*model.User, error) {
	var user model.User
	if err := tx.Where("name = ?", name).Order("id ASC").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Debit writes the balance computed by the caller from the row read at version
func (r *userRepo) Debit(tx *gorm.DB, id uint, version int, newBalance decimal.Decimal) error {
	if newBalance.IsNegative() {
		return ErrConflict
	}
	result := tx.Model(&model.User{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"cash_balance": newBalance,
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
