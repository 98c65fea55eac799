package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"
	"phantom-mask/pkg/validator"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const historyDateLayout = "2006-01-02 15:04:05"

// records as they appear in pharmacies.json and users.json

type pharmacyRecord struct {
	Name         string          `json:"name" validate:"required,max=255"`
	CashBalance  decimal.Decimal `json:"cashBalance" validate:"gte=0"`
	OpeningHours string          `json:"openingHours" validate:"required"`
	Masks        []maskRecord    `json:"masks" validate:"dive"`
}

type maskRecord struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
	Stock *int            `json:"stock" validate:"omitempty,gte=0"`
}

type userRecord struct {
	Name              string          `json:"name" validate:"required,max=255"`
	CashBalance       decimal.Decimal `json:"cashBalance" validate:"gte=0"`
	PurchaseHistories []historyRecord `json:"purchaseHistories" validate:"dive"`
}

type historyRecord struct {
	PharmacyName      string          `json:"pharmacyName" validate:"required"`
	MaskName          string          `json:"maskName" validate:"required"`
	TransactionAmount decimal.Decimal `json:"transactionAmount" validate:"gte=0"`
	TransactionDate   string          `json:"transactionDate" validate:"required"`
}

type Summary struct {
	Pharmacies   int `json:"pharmacies"`
	OpeningHours int `json:"opening_hours"`
	Masks        int `json:"masks"`
	Users        int `json:"users"`
	History      int `json:"history"`
}

type Options struct {
	// DefaultStock is used for masks whose record carries no stock
	DefaultStock int
	// Location reads the zone-less history timestamps
	Location *time.Location
	Logger   *log.Logger
}

// Importer loads the bulk data files in a single transaction: either every row
// lands or none does.
type Importer struct {
	tx           repository.TxManager
	pharmacyRepo repository.PharmacyRepository
	maskRepo     repository.MaskRepository
	userRepo     repository.UserRepository
	txRepo       repository.TransactionRepository
	opts         Options
}

func NewImporter(
	txm repository.TxManager,
	pRepo repository.PharmacyRepository,
	mRepo repository.MaskRepository,
	uRepo repository.UserRepository,
	tRepo repository.TransactionRepository,
	opts Options,
) *Importer {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[import] ", log.LstdFlags)
	}
	return &Importer{
		tx:           txm,
		pharmacyRepo: pRepo,
		maskRepo:     mRepo,
		userRepo:     uRepo,
		txRepo:       tRepo,
		opts:         opts,
	}
}

// Import reads pharmacies first so that user history can reference them.
// users may be nil.
func (im *Importer) Import(ctx context.Context, pharmacies, users io.Reader) (*Summary, error) {
	var pharmacyRecords []pharmacyRecord
	if pharmacies != nil {
		if err := json.NewDecoder(pharmacies).Decode(&pharmacyRecords); err != nil {
			return nil, fmt.Errorf("decode pharmacies: %w", err)
		}
	}
	var userRecords []userRecord
	if users != nil {
		if err := json.NewDecoder(users).Decode(&userRecords); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
	}

	for i := range pharmacyRecords {
		if err := validator.FirstError(pharmacyRecords[i]); err != nil {
			return nil, fmt.Errorf("pharmacy #%d: %w", i+1, err)
		}
	}
	for i := range userRecords {
		if err := validator.FirstError(userRecords[i]); err != nil {
			return nil, fmt.Errorf("user #%d: %w", i+1, err)
		}
	}

	summary := &Summary{}
	err := im.tx.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, rec := range pharmacyRecords {
			if err := im.importPharmacy(tx, rec, summary); err != nil {
				return err
			}
		}
		for _, rec := range userRecords {
			if err := im.importUser(tx, rec, summary); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	im.opts.Logger.Printf("imported %d pharmacies, %d opening intervals, %d masks, %d users, %d history rows",
		summary.Pharmacies, summary.OpeningHours, summary.Masks, summary.Users, summary.History)
	return summary, nil
}

func (im *Importer) importPharmacy(tx *gorm.DB, rec pharmacyRecord, summary *Summary) error {
	name := strings.TrimSpace(rec.Name)
	if _, err := im.pharmacyRepo.FindByName(tx, name); err == nil {
		return fmt.Errorf("pharmacy %q already exists", name)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hours, err := ParseOpeningHours(rec.OpeningHours)
	if err != nil {
		return fmt.Errorf("pharmacy %q: %w", name, err)
	}

	pharmacy := &model.Pharmacy{
		Name:           name,
		CashBalance:    rec.CashBalance,
		OpeningBalance: rec.CashBalance,
		OpeningHours:   hours,
	}
	if err := im.pharmacyRepo.Create(tx, pharmacy); err != nil {
		return fmt.Errorf("create pharmacy %q: %w", name, err)
	}
	summary.Pharmacies++
	summary.OpeningHours += len(hours)

	for _, m := range rec.Masks {
		parsed, err := ParseMaskName(m.Name)
		if err != nil {
			return fmt.Errorf("pharmacy %q: %w", name, err)
		}
		if _, err := im.maskRepo.FindInPharmacy(tx, pharmacy.ID, parsed.Name, parsed.Color, parsed.PackSize); err == nil {
			return fmt.Errorf("pharmacy %q lists %q twice", name, m.Name)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		stock := im.opts.DefaultStock
		if m.Stock != nil {
			stock = *m.Stock
		}
		mask := &model.Mask{
			PharmacyID:   pharmacy.ID,
			Name:         parsed.Name,
			Color:        parsed.Color,
			PackSize:     parsed.PackSize,
			Price:        m.Price,
			Stock:        stock,
			InitialStock: stock,
		}
		if err := im.maskRepo.Create(tx, mask); err != nil {
			return fmt.Errorf("create mask %q: %w", m.Name, err)
		}
		summary.Masks++
	}
	return nil
}

func (im *Importer) importUser(tx *gorm.DB, rec userRecord, summary *Summary) error {
	user := &model.User{
		Name:           strings.TrimSpace(rec.Name),
		CashBalance:    rec.CashBalance,
		OpeningBalance: rec.CashBalance,
	}
	if err := im.userRepo.Create(tx, user); err != nil {
		return fmt.Errorf("create user %q: %w", rec.Name, err)
	}
	summary.Users++

	for _, h := range rec.PurchaseHistories {
		pharmacy, err := im.pharmacyRepo.FindByName(tx, strings.TrimSpace(h.PharmacyName))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %q history: unknown pharmacy %q", rec.Name, h.PharmacyName)
			}
			return err
		}
		parsed, err := ParseMaskName(h.MaskName)
		if err != nil {
			return fmt.Errorf("user %q history: %w", rec.Name, err)
		}
		// masks are matched inside the named pharmacy only
		mask, err := im.maskRepo.FindInPharmacy(tx, pharmacy.ID, parsed.Name, parsed.Color, parsed.PackSize)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %q history: %q is not sold by %q", rec.Name, h.MaskName, h.PharmacyName)
			}
			return err
		}
		at, err := time.ParseInLocation(historyDateLayout, strings.TrimSpace(h.TransactionDate), im.opts.Location)
		if err != nil {
			return fmt.Errorf("user %q history: bad date %q: %w", rec.Name, h.TransactionDate, err)
		}

		row := &model.PurchaseTransaction{
			UserID:      user.ID,
			PharmacyID:  pharmacy.ID,
			MaskID:      mask.ID,
			MaskName:    mask.DisplayName(),
			UnitPrice:   h.TransactionAmount,
			Quantity:    1,
			Amount:      h.TransactionAmount,
			Origin:      model.OriginImport,
			PurchasedAt: at.UTC(),
		}
		if err := im.txRepo.Create(tx, row); err != nil {
			return fmt.Errorf("create history row for %q: %w", rec.Name, err)
		}
		summary.History++
	}
	return nil
}
