package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"phantom-mask/internal/cache"
	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"
	"phantom-mask/pkg/validator"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// one mask per purchase call
const purchaseQuantity = 1

type PurchaseRequest struct {
	UserID         uint   `json:"-" validate:"required"`
	PharmacyID     uint   `json:"pharmacy_id" validate:"required"`
	MaskID         uint   `json:"mask_id" validate:"required"`
	IdempotencyKey string `json:"-" validate:"omitempty,max=64,printascii"`
}

type PurchaseResult struct {
	Transaction *model.PurchaseTransaction `json:"transaction"`
	StockLeft   int                        `json:"stock_left"`
	// Replayed is true when the idempotency key matched an earlier committed purchase
	Replayed bool `json:"replayed"`
}

// PurchaseNotifier is told about purchases after they commit
type PurchaseNotifier interface {
	PurchaseCompleted(t *model.PurchaseTransaction, stockLeft int, buyerName string)
}

type PurchaseOptions struct {
	MaxRetries int
	Cache      cache.IdempotencyCache
	Notifier   PurchaseNotifier
	Logger     *log.Logger
	Clock      func() time.Time
}

type PurchaseService interface {
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
}

type purchaseService struct {
	tx           repository.TxManager
	pharmacyRepo repository.PharmacyRepository
	maskRepo     repository.MaskRepository
	userRepo     repository.UserRepository
	txRepo       repository.TransactionRepository

	maxRetries int
	cache      cache.IdempotencyCache
	notifier   PurchaseNotifier
	logger     *log.Logger
	clock      func() time.Time
}

func NewPurchaseService(
	txm repository.TxManager,
	pRepo repository.PharmacyRepository,
	mRepo repository.MaskRepository,
	uRepo repository.UserRepository,
	tRepo repository.TransactionRepository,
	opts PurchaseOptions,
) PurchaseService {
	s := &purchaseService{
		tx:           txm,
		pharmacyRepo: pRepo,
		maskRepo:     mRepo,
		userRepo:     uRepo,
		txRepo:       tRepo,
		maxRetries:   opts.MaxRetries,
		cache:        opts.Cache,
		notifier:     opts.Notifier,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[purchase] ", log.LstdFlags)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Purchase moves one mask from pharmacy to user. Stock decrement, user debit, pharmacy
// credit and the audit row commit together or not at all. ErrConflict is retried
// internally and only surfaces once the retry budget is spent.
func (s *purchaseService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := validator.FirstError(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	scopedKey := ""
	if req.IdempotencyKey != "" {
		scopedKey = fmt.Sprintf("%d:%s", req.UserID, req.IdempotencyKey)
		if result, err := s.replayFromCache(ctx, req, scopedKey); result != nil || err != nil {
			return result, err
		}
	}

	for attempt := 1; ; attempt++ {
		result, buyer, err := s.attempt(ctx, req, scopedKey)
		if err == nil {
			s.afterCommit(ctx, result, buyer, scopedKey)
			return result, nil
		}
		if !IsRetryable(err) || attempt > s.maxRetries {
			return nil, err
		}

		s.logger.Printf("conflict on user %d mask %d (attempt %d/%d): %v",
			req.UserID, req.MaskID, attempt, s.maxRetries+1, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
}

func (s *purchaseService) attempt(ctx context.Context, req PurchaseRequest, scopedKey string) (*PurchaseResult, string, error) {
	var (
		result *PurchaseResult
		buyer  string
	)

	err := s.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		if scopedKey != "" {
			existing, err := s.txRepo.FindByIdempotencyKey(tx, scopedKey)
			if err == nil {
				result, err = s.replay(tx, existing, req)
				return err
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		exists, err := s.pharmacyRepo.Exists(tx, req.PharmacyID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: pharmacy %d", ErrNotFound, req.PharmacyID)
		}

		// lock order is always mask, then user, then pharmacy
		mask, err := s.maskRepo.FindByIDForUpdate(tx, req.MaskID)
		if err != nil {
			return notFound(err, "mask", req.MaskID)
		}
		if mask.PharmacyID != req.PharmacyID {
			return fmt.Errorf("%w: mask %d is not sold by pharmacy %d", ErrNotFound, req.MaskID, req.PharmacyID)
		}

		user, err := s.userRepo.FindByIDForUpdate(tx, req.UserID)
		if err != nil {
			return notFound(err, "user", req.UserID)
		}

		if mask.Stock < purchaseQuantity {
			return fmt.Errorf("%w: mask %d", ErrOutOfStock, mask.ID)
		}
		amount := mask.Price.Mul(decimal.NewFromInt(purchaseQuantity))
		if user.CashBalance.LessThan(amount) {
			return fmt.Errorf("%w: balance %s, price %s", ErrInsufficientFunds, user.CashBalance.StringFixed(2), amount.StringFixed(2))
		}

		if err := s.maskRepo.DecrementStock(tx, mask.ID, mask.Version, purchaseQuantity); err != nil {
			return err
		}
		if err := s.userRepo.Debit(tx, user.ID, user.Version, user.CashBalance.Sub(amount)); err != nil {
			return err
		}
		if err := s.pharmacyRepo.Credit(tx, req.PharmacyID, amount); err != nil {
			return err
		}

		record := &model.PurchaseTransaction{
			UserID:      user.ID,
			PharmacyID:  req.PharmacyID,
			MaskID:      mask.ID,
			MaskName:    mask.DisplayName(),
			UnitPrice:   mask.Price,
			Quantity:    purchaseQuantity,
			Amount:      amount,
			Origin:      model.OriginPurchase,
			PurchasedAt: s.clock().UTC().Truncate(time.Millisecond),
		}
		if scopedKey != "" {
			key := scopedKey
			record.IdempotencyKey = &key
		}
		if err := s.txRepo.Create(tx, record); err != nil {
			return err
		}

		result = &PurchaseResult{Transaction: record, StockLeft: mask.Stock - purchaseQuantity}
		buyer = user.Name
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return result, buyer, nil
}

// replay answers a repeated request with the transaction its key already produced.
// Reusing a key for a different purchase is rejected.
func (s *purchaseService) replay(tx *gorm.DB, existing *model.PurchaseTransaction, req PurchaseRequest) (*PurchaseResult, error) {
	if existing.UserID != req.UserID || existing.PharmacyID != req.PharmacyID || existing.MaskID != req.MaskID {
		return nil, fmt.Errorf("%w: idempotency key %q was used for another purchase", ErrInvalidArgument, req.IdempotencyKey)
	}
	mask, err := s.maskRepo.FindByID(tx, existing.MaskID)
	if err != nil {
		return nil, err
	}
	return &PurchaseResult{Transaction: existing, StockLeft: mask.Stock, Replayed: true}, nil
}

func (s *purchaseService) replayFromCache(ctx context.Context, req PurchaseRequest, scopedKey string) (*PurchaseResult, error) {
	if s.cache == nil {
		return nil, nil
	}
	id, ok, err := s.cache.Get(ctx, scopedKey)
	if err != nil {
		s.logger.Printf("idempotency cache unavailable, falling back to database: %v", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	var result *PurchaseResult
	err = s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		existing, err := s.txRepo.FindByID(tx, id)
		if err != nil {
			return err
		}
		result, err = s.replay(tx, existing, req)
		return err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// stale entry, the database decides
		return nil, nil
	}
	return result, err
}

func (s *purchaseService) afterCommit(ctx context.Context, result *PurchaseResult, buyer, scopedKey string) {
	if result.Replayed {
		return
	}
	if s.cache != nil && scopedKey != "" {
		if err := s.cache.Put(ctx, scopedKey, result.Transaction.ID); err != nil {
			s.logger.Printf("cache idempotency key for %s: %v", result.Transaction.ID, err)
		}
	}
	if s.notifier != nil {
		s.notifier.PurchaseCompleted(result.Transaction, result.StockLeft, buyer)
	}
	s.logger.Printf("user %d bought mask %d from pharmacy %d for %s (tx %s)",
		result.Transaction.UserID, result.Transaction.MaskID, result.Transaction.PharmacyID,
		result.Transaction.Amount.StringFixed(2), result.Transaction.ID)
}
