package service

import (
	"context"

	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockReconciliation compares a mask's live stock with its purchase log replayed from InitialStock
type StockReconciliation struct {
	MaskID        uint            `json:"mask_id"`
	InitialStock  int             `json:"initial_stock"`
	UnitsSold     int64           `json:"units_sold"`
	ExpectedStock int64           `json:"expected_stock"`
	ActualStock   int             `json:"actual_stock"`
	Revenue       decimal.Decimal `json:"revenue"`
	Consistent    bool            `json:"consistent"`
}

// BalanceReconciliation compares a live cash balance with the opening balance plus or minus purchases
type BalanceReconciliation struct {
	ID              uint            `json:"id"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	Purchases       int64           `json:"purchases"`
	PurchaseAmount  decimal.Decimal `json:"purchase_amount"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	ActualBalance   decimal.Decimal `json:"actual_balance"`
	Consistent      bool            `json:"consistent"`
}

// AuditService replays the purchase log against live rows. Imported history is not
// replayed because it predates the opening figures.
type AuditService interface {
	ReconcileMask(ctx context.Context, maskID uint) (*StockReconciliation, error)
	ReconcileUser(ctx context.Context, userID uint) (*BalanceReconciliation, error)
	ReconcilePharmacy(ctx context.Context, pharmacyID uint) (*BalanceReconciliation, error)
}

type auditService struct {
	tx           repository.TxManager
	pharmacyRepo repository.PharmacyRepository
	maskRepo     repository.MaskRepository
	userRepo     repository.UserRepository
	txRepo       repository.TransactionRepository
}

func NewAuditService(
	txm repository.TxManager,
	pRepo repository.PharmacyRepository,
	mRepo repository.MaskRepository,
	uRepo repository.UserRepository,
	tRepo repository.TransactionRepository,
) AuditService {
	return &auditService{tx: txm, pharmacyRepo: pRepo, maskRepo: mRepo, userRepo: uRepo, txRepo: tRepo}
}

func (s *auditService) ReconcileMask(ctx context.Context, maskID uint) (*StockReconciliation, error) {
	var out *StockReconciliation
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		mask, err := s.maskRepo.FindByID(tx, maskID)
		if err != nil {
			return notFound(err, "mask", maskID)
		}
		ledger, err := s.txRepo.MaskLedger(tx, maskID, model.OriginPurchase)
		if err != nil {
			return err
		}
		expected := int64(mask.InitialStock) - ledger.Quantity
		out = &StockReconciliation{
			MaskID:        mask.ID,
			InitialStock:  mask.InitialStock,
			UnitsSold:     ledger.Quantity,
			ExpectedStock: expected,
			ActualStock:   mask.Stock,
			Revenue:       ledger.Amount,
			Consistent:    expected == int64(mask.Stock),
		}
		return nil
	})
	return out, err
}

func (s *auditService) ReconcileUser(ctx context.Context, userID uint) (*BalanceReconciliation, error) {
	var out *BalanceReconciliation
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		user, err := s.userRepo.FindByID(tx, userID)
		if err != nil {
			return notFound(err, "user", userID)
		}
		ledger, err := s.txRepo.UserLedger(tx, userID, model.OriginPurchase)
		if err != nil {
			return err
		}
		out = balanceReport(user.ID, user.OpeningBalance, user.CashBalance, ledger, false)
		return nil
	})
	return out, err
}

func (s *auditService) ReconcilePharmacy(ctx context.Context, pharmacyID uint) (*BalanceReconciliation, error) {
	var out *BalanceReconciliation
	err := s.tx.Snapshot(ctx, func(tx *gorm.DB) error {
		pharmacy, err := s.pharmacyRepo.FindByID(tx, pharmacyID)
		if err != nil {
			return notFound(err, "pharmacy", pharmacyID)
		}
		ledger, err := s.txRepo.PharmacyLedger(tx, pharmacyID, model.OriginPurchase)
		if err != nil {
			return err
		}
		out = balanceReport(pharmacy.ID, pharmacy.OpeningBalance, pharmacy.CashBalance, ledger, true)
		return nil
	})
	return out, err
}

// balanceReport: sellers gain what buyers spend
func balanceReport(id uint, opening, actual decimal.Decimal, ledger *repository.LedgerTotals, credit bool) *BalanceReconciliation {
	expected := opening.Sub(ledger.Amount)
	if credit {
		expected = opening.Add(ledger.Amount)
	}
	return &BalanceReconciliation{
		ID:              id,
		OpeningBalance:  opening,
		Purchases:       ledger.Transactions,
		PurchaseAmount:  ledger.Amount,
		ExpectedBalance: expected,
		ActualBalance:   actual,
		Consistent:      expected.Equal(actual),
	}
}
