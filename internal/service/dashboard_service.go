package service

import (
	"context"
	"fmt"
	"time"

	"phantom-mask/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dayLayout = "2006-01-02"

// DailySales is one calendar day of purchase activity in the service time zone
type DailySales struct {
	Date         string          `json:"date"`
	Transactions int             `json:"transactions"`
	MaskUnits    int             `json:"mask_units"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

type DashboardService interface {
	DailySales(ctx context.Context, days int) ([]DailySales, error)
	Stats(ctx context.Context, lowStock int) (*repository.DashboardStats, error)
}

type dashboardService struct {
	tx       repository.TxManager
	txRepo   repository.TransactionRepository
	location *time.Location
	now      func() time.Time
}

func NewDashboardService(txm repository.TxManager, txRepo repository.TransactionRepository, loc *time.Location) DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &dashboardService{tx: txm, txRepo: txRepo, location: loc, now: time.Now}
}

// DailySales covers the last `days` days including today. Days without purchases are
// reported with zero totals so the series has no gaps.
func (s *dashboardService) DailySales(ctx context.Context, days int) ([]DailySales, error) {
	if days <= 0 || days > 366 {
		return nil, fmt.Errorf("%w: days must be between 1 and 366", ErrInvalidArgument)
	}

	today := s.now().In(s.location)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, -(days - 1))
	end := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 999999999, s.location)

	series := make([]DailySales, days)
	index := make(map[string]int, days)
	for i := range series {
		date := start.AddDate(0, 0, i).Format(dayLayout)
		series[i] = DailySales{Date: date, TotalValue: decimal.Zero}
		index[date] = i
	}

	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		rows, err := s.txRepo.FindInWindow(tx, start.UTC(), end.UTC())
		if err != nil {
			return err
		}
		for _, row := range rows {
			i, ok := index[row.PurchasedAt.In(s.location).Format(dayLayout)]
			if !ok {
				continue
			}
			series[i].Transactions++
			series[i].MaskUnits += row.Quantity
			series[i].TotalValue = series[i].TotalValue.Add(row.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (s *dashboardService) Stats(ctx context.Context, lowStock int) (*repository.DashboardStats, error) {
	if lowStock < 0 {
		return nil, fmt.Errorf("%w: low stock threshold is negative", ErrInvalidArgument)
	}
	var stats *repository.DashboardStats
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		stats, err = s.txRepo.DashboardStats(tx, lowStock)
		return err
	})
	return stats, err
}
