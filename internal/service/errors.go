package service

import (
	"errors"
	"fmt"

	"phantom-mask/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRange      = errors.New("invalid range")
	ErrInvalidTime       = errors.New("invalid time of day")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrOutOfStock        = errors.New("mask is out of stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = repository.ErrConflict
)

// IsRetryable reports whether the failed operation left no trace and may simply be repeated
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// notFound converts gorm's missing-row error into ErrNotFound and passes everything else through
func notFound(err error, entity string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
	}
	return err
}
