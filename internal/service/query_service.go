package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SortKey string

const (
	SortByName  SortKey = "name"
	SortByPrice SortKey = "price"
)

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

type Comparator string

const (
	MoreThan Comparator = "gt"
	LessThan Comparator = "lt"
)

// MaskCountQuery selects pharmacies by how many of their masks are priced within [PriceLow, PriceHigh]
type MaskCountQuery struct {
	Comparator Comparator
	Threshold  int
	PriceLow   decimal.Decimal
	PriceHigh  decimal.Decimal
}

// QueryService never writes. Every call reads one consistent snapshot.
type QueryService interface {
	OpenAt(ctx context.Context, timeOfDay string, weekday *time.Weekday) ([]model.Pharmacy, error)
	ListMasks(ctx context.Context, pharmacyID uint, sortKey SortKey, dir SortDirection) ([]model.Mask, error)
	PharmaciesByMaskCount(ctx context.Context, q MaskCountQuery) ([]repository.PharmacyMaskCount, error)
	TopSpenders(ctx context.Context, window DateRange, limit int) ([]repository.SpenderTotal, error)
	AggregateVolume(ctx context.Context, window DateRange) (*repository.VolumeSummary, error)
	Search(ctx context.Context, term string, kind SearchKind) ([]SearchResult, error)
	UserPurchases(ctx context.Context, userID uint, window DateRange) ([]model.PurchaseTransaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.PurchaseTransaction, error)
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

type queryService struct {
	tx           repository.TxManager
	pharmacyRepo repository.PharmacyRepository
	maskRepo     repository.MaskRepository
	userRepo     repository.UserRepository
	txRepo       repository.TransactionRepository
	location     *time.Location
	now          func() time.Time
}

func NewQueryService(
	txm repository.TxManager,
	pRepo repository.PharmacyRepository,
	mRepo repository.MaskRepository,
	uRepo repository.UserRepository,
	tRepo repository.TransactionRepository,
	location *time.Location,
) QueryService {
	if location == nil {
		location = time.UTC
	}
	return &queryService{
		tx:           txm,
		pharmacyRepo: pRepo,
		maskRepo:     mRepo,
		userRepo:     uRepo,
		txRepo:       tRepo,
		location:     location,
		now:          time.Now,
	}
}

func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(s)) {
	case "", SortByName:
		return SortByName, nil
	case SortByPrice:
		return SortByPrice, nil
	}
	return "", fmt.Errorf("%w: sort must be name or price, got %q", ErrInvalidArgument, s)
}

func ParseSortDirection(s string) (SortDirection, error) {
	switch SortDirection(strings.ToLower(s)) {
	case "", Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	}
	return "", fmt.Errorf("%w: order must be asc or desc, got %q", ErrInvalidArgument, s)
}

func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(s) {
	case "gt", ">", "more":
		return MoreThan, nil
	case "lt", "<", "less":
		return LessThan, nil
	}
	return "", fmt.Errorf("%w: comparator must be gt or lt, got %q", ErrInvalidArgument, s)
}

// ParseWeekday accepts English day names or their abbreviations (Mon, Tue, Wed, Thu/Thur, ...)
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if key == full || key == full[:3] {
			return d, nil
		}
	}
	switch key {
	case "thur", "thurs":
		return time.Thursday, nil
	case "tues":
		return time.Tuesday, nil
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidArgument, s)
}

func (s *queryService) OpenAt(ctx context.Context, timeOfDay string, weekday *time.Weekday) ([]model.Pharmacy, error) {
	minute, err := model.ParseClock(strings.TrimSpace(timeOfDay))
	if err != nil {
		return nil, fmt.Errorf("%w: %q, use HH:MM", ErrInvalidTime, timeOfDay)
	}

	day := s.now().In(s.location).Weekday()
	if weekday != nil {
		if *weekday < time.Sunday || *weekday > time.Saturday {
			return nil, fmt.Errorf("%w: weekday %d", ErrInvalidArgument, int(*weekday))
		}
		day = *weekday
	}

	var pharmacies []model.Pharmacy
	err = s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		pharmacies, err = s.pharmacyRepo.FindOpenAt(tx, day, minute)
		return err
	})
	return pharmacies, err
}

func (s *queryService) ListMasks(ctx context.Context, pharmacyID uint, sortKey SortKey, dir SortDirection) ([]model.Mask, error) {
	if sortKey != SortByName && sortKey != SortByPrice {
		return nil, fmt.Errorf("%w: sort key %q", ErrInvalidArgument, sortKey)
	}
	if dir != Ascending && dir != Descending {
		return nil, fmt.Errorf("%w: sort direction %q", ErrInvalidArgument, dir)
	}

	var masks []model.Mask
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		exists, err := s.pharmacyRepo.Exists(tx, pharmacyID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: pharmacy %d", ErrNotFound, pharmacyID)
		}
		masks, err = s.maskRepo.ListByPharmacy(tx, pharmacyID, string(sortKey), dir == Descending)
		return err
	})
	return masks, err
}

func (s *queryService) PharmaciesByMaskCount(ctx context.Context, q MaskCountQuery) ([]repository.PharmacyMaskCount, error) {
	if q.Comparator != MoreThan && q.Comparator != LessThan {
		return nil, fmt.Errorf("%w: comparator %q", ErrInvalidArgument, q.Comparator)
	}
	if q.PriceLow.IsNegative() || q.PriceHigh.IsNegative() {
		return nil, fmt.Errorf("%w: prices must not be negative", ErrInvalidArgument)
	}
	if q.PriceLow.GreaterThan(q.PriceHigh) {
		return nil, fmt.Errorf("%w: price %s is above %s", ErrInvalidRange, q.PriceLow, q.PriceHigh)
	}

	var results []repository.PharmacyMaskCount
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		results, err = s.pharmacyRepo.CountMasksInPriceRange(tx, q.PriceLow, q.PriceHigh, repository.MaskCountFilter{
			Greater:   q.Comparator == MoreThan,
			Threshold: q.Threshold,
		})
		return err
	})
	return results, err
}

func (s *queryService) TopSpenders(ctx context.Context, window DateRange, limit int) ([]repository.SpenderTotal, error) {
	if window.From.After(window.To) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}

	var results []repository.SpenderTotal
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		results, err = s.txRepo.TopSpenders(tx, window.From, window.To, limit)
		return err
	})
	return results, err
}

// AggregateVolume returns zero totals for an empty window; that is not an error
func (s *queryService) AggregateVolume(ctx context.Context, window DateRange) (*repository.VolumeSummary, error) {
	if window.From.After(window.To) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}

	var summary *repository.VolumeSummary
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		summary, err = s.txRepo.Volume(tx, window.From, window.To)
		return err
	})
	return summary, err
}

func (s *queryService) Search(ctx context.Context, term string, kind SearchKind) ([]SearchResult, error) {
	if kind != SearchPharmacy && kind != SearchMask {
		return nil, fmt.Errorf("%w: search kind %q", ErrInvalidArgument, kind)
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return []SearchResult{}, nil
	}

	var results []SearchResult
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		if kind == SearchPharmacy {
			pharmacies, err := s.pharmacyRepo.SearchByName(tx, term)
			if err != nil {
				return err
			}
			results = rankPharmacies(pharmacies, term)
			return nil
		}
		masks, err := s.maskRepo.SearchByName(tx, term)
		if err != nil {
			return err
		}
		results = rankMasks(masks, term)
		return nil
	})
	return results, err
}

func (s *queryService) UserPurchases(ctx context.Context, userID uint, window DateRange) ([]model.PurchaseTransaction, error) {
	if window.From.After(window.To) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidRange)
	}

	var transactions []model.PurchaseTransaction
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		if _, err := s.userRepo.FindByID(tx, userID); err != nil {
			return notFound(err, "user", userID)
		}
		var err error
		transactions, err = s.txRepo.FindByUser(tx, userID, window.From, window.To)
		return err
	})
	return transactions, err
}

func (s *queryService) GetTransaction(ctx context.Context, id uuid.UUID) (*model.PurchaseTransaction, error) {
	var t *model.PurchaseTransaction
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		t, err = s.txRepo.FindByID(tx, id)
		return notFound(err, "transaction", id)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, err
}

func (s *queryService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user *model.User
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = s.userRepo.FindByID(tx, id)
		return notFound(err, "user", id)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
