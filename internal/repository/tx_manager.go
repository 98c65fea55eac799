package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConflict means a concurrent write invalidated the unit of work. Nothing was applied.
var ErrConflict = errors.New("concurrent modification")

// TxManager scopes repository calls to one database transaction.
// Snapshot is read-only and sees a single consistent state; WithTransaction commits
// all writes made through tx together or none of them.
type TxManager interface {
	Snapshot(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type txManager struct {
	db       *gorm.DB
	readOpts *sql.TxOptions
}

func NewTxManager(db *gorm.DB) TxManager {
	m := &txManager{db: db}
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		m.readOpts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	// sqlite: every transaction already sees a stable database file
	return m
}

func (m *txManager) Snapshot(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if m.readOpts != nil {
		opts = append(opts, m.readOpts)
	}
	return translateError(m.db.WithContext(ctx).Transaction(fn, opts...))
}

func (m *txManager) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return translateError(m.db.WithContext(ctx).Transaction(fn))
}

// translateError folds driver level serialization failures into ErrConflict
func translateError(err error) error {
	if err == nil || errors.Is(err, ErrConflict) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505": // serialization, deadlock, lock_not_available, unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213, 1205, 1062: // deadlock, lock wait timeout, duplicate entry
			return fmt.Errorf("%w: %s", ErrConflict, myErr.Message)
		}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
