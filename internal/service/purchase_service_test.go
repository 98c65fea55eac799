package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"
	"phantom-mask/internal/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.PurchaseTransaction
	stock  []int
}

func (n *recordingNotifier) PurchaseCompleted(t *model.PurchaseTransaction, stockLeft int, buyerName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, t)
	n.stock = append(n.stock, stockLeft)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]uuid.UUID
	gets    int
}

func (c *mapCache) Get(ctx context.Context, key string) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	id, ok := c.entries[key]
	return id, ok, nil
}

func (c *mapCache) Put(ctx context.Context, key string, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]uuid.UUID{}
	}
	c.entries[key] = id
	return nil
}

func TestPurchaseMovesMoneyAndStock(t *testing.T) {
	notifier := &recordingNotifier{}
	fixed := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	f := setup(t, PurchaseOptions{Notifier: notifier, Clock: func() time.Time { return fixed }})

	p := testutil.CreatePharmacy(t, f.db, "P", "100.5")
	m := testutil.CreateMask(t, f.db, p.ID, "AniMask", "12.25", 3)
	u := testutil.CreateUser(t, f.db, "Buyer", "50")

	res, err := f.purchase.Purchase(context.Background(), PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	tx := res.Transaction
	if tx.ID == uuid.Nil || tx.Quantity != 1 || !tx.Amount.Equal(testutil.Money("12.25")) {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx.MaskName != "AniMask (black) (1 per pack)" || tx.Origin != model.OriginPurchase {
		t.Fatalf("unexpected audit fields %q %q", tx.MaskName, tx.Origin)
	}
	if !tx.PurchasedAt.Equal(fixed) || res.StockLeft != 2 || res.Replayed {
		t.Fatalf("unexpected result %+v", res)
	}

	user := testutil.Reload[model.User](t, f.db, u.ID)
	pharmacy := testutil.Reload[model.Pharmacy](t, f.db, p.ID)
	mask := testutil.Reload[model.Mask](t, f.db, m.ID)

	spent := u.CashBalance.Sub(user.CashBalance)
	earned := pharmacy.CashBalance.Sub(p.CashBalance)
	if !spent.Equal(tx.Amount) || !earned.Equal(tx.Amount) {
		t.Fatalf("balance deltas differ from amount: spent %s earned %s amount %s", spent, earned, tx.Amount)
	}
	if mask.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", mask.Stock)
	}
	if len(notifier.events) != 1 || notifier.stock[0] != 2 {
		t.Fatalf("expected one notification with stock 2, got %d", len(notifier.events))
	}
}

func TestPurchaseFailuresLeaveNoTrace(t *testing.T) {
	f := setup(t, PurchaseOptions{})
	ctx := context.Background()

	p := testutil.CreatePharmacy(t, f.db, "P", "10")
	other := testutil.CreatePharmacy(t, f.db, "Other", "10")
	cheap := testutil.CreateMask(t, f.db, p.ID, "Cheap", "5", 1)
	empty := testutil.CreateMask(t, f.db, p.ID, "Empty", "5", 0)
	dear := testutil.CreateMask(t, f.db, p.ID, "Dear", "80", 5)
	foreign := testutil.CreateMask(t, f.db, other.ID, "Foreign", "1", 5)
	u := testutil.CreateUser(t, f.db, "Buyer", "20")

	cases := []struct {
		name string
		req  PurchaseRequest
		want error
	}{
		{"mask of another pharmacy", PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: foreign.ID}, ErrNotFound},
		{"unknown pharmacy", PurchaseRequest{UserID: u.ID, PharmacyID: 999, MaskID: cheap.ID}, ErrNotFound},
		{"unknown mask", PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: 999}, ErrNotFound},
		{"unknown user", PurchaseRequest{UserID: 999, PharmacyID: p.ID, MaskID: cheap.ID}, ErrNotFound},
		{"out of stock", PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: empty.ID}, ErrOutOfStock},
		{"insufficient funds", PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: dear.ID}, ErrInsufficientFunds},
		{"missing ids", PurchaseRequest{UserID: u.ID}, ErrInvalidArgument},
	}
	for _, tc := range cases {
		if _, err := f.purchase.Purchase(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	user := testutil.Reload[model.User](t, f.db, u.ID)
	if !user.CashBalance.Equal(u.CashBalance) {
		t.Fatalf("user balance changed to %s", user.CashBalance)
	}
	for _, ph := range []*model.Pharmacy{p, other} {
		got := testutil.Reload[model.Pharmacy](t, f.db, ph.ID)
		if !got.CashBalance.Equal(ph.CashBalance) {
			t.Fatalf("pharmacy %s balance changed to %s", ph.Name, got.CashBalance)
		}
	}
	for _, m := range []*model.Mask{cheap, dear, foreign} {
		got := testutil.Reload[model.Mask](t, f.db, m.ID)
		if got.Stock != m.Stock {
			t.Fatalf("mask %s stock changed to %d", m.Name, got.Stock)
		}
	}
	var count int64
	f.db.Model(&model.PurchaseTransaction{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no audit rows, got %d", count)
	}
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	f := setup(t, PurchaseOptions{MaxRetries: 3})
	const (
		stock   = 5
		buyers  = 12
		balance = "100"
	)
	p := testutil.CreatePharmacy(t, f.db, "P", "0")
	m := testutil.CreateMask(t, f.db, p.ID, "Hot", "7.5", stock)

	users := make([]*model.User, buyers)
	for i := range users {
		users[i] = testutil.CreateUser(t, f.db, "buyer", balance)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		ok         int
		outOfStock int
		other      []error
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.purchase.Purchase(context.Background(), PurchaseRequest{UserID: userID, PharmacyID: p.ID, MaskID: m.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrOutOfStock):
				outOfStock++
			default:
				other = append(other, err)
			}
		}(u.ID)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != stock || outOfStock != buyers-stock {
		t.Fatalf("expected %d successes and %d out of stock, got %d and %d", stock, buyers-stock, ok, outOfStock)
	}

	mask := testutil.Reload[model.Mask](t, f.db, m.ID)
	if mask.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", mask.Stock)
	}
	pharmacy := testutil.Reload[model.Pharmacy](t, f.db, p.ID)
	if !pharmacy.CashBalance.Equal(testutil.Money("37.5")) {
		t.Fatalf("expected pharmacy balance 37.5, got %s", pharmacy.CashBalance)
	}

	vol, err := f.query.AggregateVolume(context.Background(), DateRange{From: time.Unix(0, 0).UTC(), To: time.Now().UTC().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if vol.Transactions != stock || !vol.TotalValue.Equal(testutil.Money("37.5")) {
		t.Fatalf("expected %d transactions worth 37.5, got %+v", stock, vol)
	}

	recon, err := f.audit.ReconcileMask(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !recon.Consistent || recon.UnitsSold != stock {
		t.Fatalf("replayed log disagrees with stock: %+v", recon)
	}
	pr, err := f.audit.ReconcilePharmacy(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pr.Consistent {
		t.Fatalf("pharmacy ledger disagrees: %+v", pr)
	}
}

func TestPurchaseIdempotencyKey(t *testing.T) {
	c := &mapCache{}
	notifier := &recordingNotifier{}
	f := setup(t, PurchaseOptions{Cache: c, Notifier: notifier})
	ctx := context.Background()

	p := testutil.CreatePharmacy(t, f.db, "P", "0")
	m := testutil.CreateMask(t, f.db, p.ID, "M", "2.5", 10)
	other := testutil.CreateMask(t, f.db, p.ID, "Other", "1", 10)
	u := testutil.CreateUser(t, f.db, "U", "10")

	req := PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID, IdempotencyKey: "order-1"}
	first, err := f.purchase.Purchase(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.purchase.Purchase(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Replayed || again.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Transaction.ID, again)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("replay must not notify again, got %d events", len(notifier.events))
	}

	// cold cache: the database unique key answers
	c.entries = nil
	third, err := f.purchase.Purchase(ctx, req)
	if err != nil || !third.Replayed || third.Transaction.ID != first.Transaction.ID {
		t.Fatalf("expected database replay, got %+v, %v", third, err)
	}

	user := testutil.Reload[model.User](t, f.db, u.ID)
	if !user.CashBalance.Equal(testutil.Money("7.5")) {
		t.Fatalf("expected one debit, balance is %s", user.CashBalance)
	}

	reused := req
	reused.MaskID = other.ID
	if _, err := f.purchase.Purchase(ctx, reused); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for a reused key, got %v", err)
	}

	// keys are scoped per buyer
	u2 := testutil.CreateUser(t, f.db, "U2", "10")
	req2 := req
	req2.UserID = u2.ID
	res2, err := f.purchase.Purchase(ctx, req2)
	if err != nil || res2.Replayed {
		t.Fatalf("another buyer's key must start a new purchase, got %+v, %v", res2, err)
	}
}

func TestPurchaseHonoursCancelledContext(t *testing.T) {
	f := setup(t, PurchaseOptions{})
	p := testutil.CreatePharmacy(t, f.db, "P", "0")
	m := testutil.CreateMask(t, f.db, p.ID, "M", "1", 1)
	u := testutil.CreateUser(t, f.db, "U", "10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.purchase.Purchase(ctx, PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID}); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if got := testutil.Reload[model.Mask](t, f.db, m.ID); got.Stock != 1 {
		t.Fatalf("cancelled purchase changed stock to %d", got.Stock)
	}
}

func TestUserPurchasesAndReconcile(t *testing.T) {
	f := setup(t, PurchaseOptions{})
	ctx := context.Background()
	p := testutil.CreatePharmacy(t, f.db, "P", "0")
	m := testutil.CreateMask(t, f.db, p.ID, "M", "4", 5)
	u := testutil.CreateUser(t, f.db, "U", "20")

	// imported history is outside the replay
	testutil.CreateHistory(t, f.db, u.ID, p.ID, m.ID, "99", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 2; i++ {
		if _, err := f.purchase.Purchase(ctx, PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.query.UserPurchases(ctx, u.ID, DateRange{From: time.Unix(0, 0).UTC(), To: time.Now().UTC().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	got, err := f.query.GetTransaction(ctx, all[0].ID)
	if err != nil || got.ID != all[0].ID {
		t.Fatalf("GetTransaction: %v", err)
	}
	if _, err := f.query.GetTransaction(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.query.UserPurchases(ctx, u.ID+10, DateRange{From: time.Unix(0, 0), To: time.Now()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	ur, err := f.audit.ReconcileUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ur.Consistent || ur.Purchases != 2 || !ur.ActualBalance.Equal(testutil.Money("12")) {
		t.Fatalf("unexpected user reconciliation %+v", ur)
	}

	// a write behind the engine's back is detected
	f.db.Model(&model.Mask{}).Where("id = ?", m.ID).Update("stock", 100)
	mr, err := f.audit.ReconcileMask(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if mr.Consistent || mr.ExpectedStock != 3 {
		t.Fatalf("expected an inconsistency, got %+v", mr)
	}
}

// conflictingTx runs the unit of work for real, then fails the first `remaining`
// commits with ErrConflict so the writes are rolled back.
type conflictingTx struct {
	repository.TxManager
	mu        sync.Mutex
	remaining int
	attempts  int
}

func (c *conflictingTx) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	c.mu.Lock()
	c.attempts++
	inject := c.remaining > 0
	if inject {
		c.remaining--
	}
	c.mu.Unlock()

	if !inject {
		return c.TxManager.WithTransaction(ctx, fn)
	}
	return c.TxManager.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return fmt.Errorf("%w: serialization failure", repository.ErrConflict)
	})
}

func conflictFixture(t *testing.T, conflicts, maxRetries int, notifier PurchaseNotifier) (*gorm.DB, *conflictingTx, PurchaseService) {
	t.Helper()
	db := testutil.NewDB(t)
	txm := &conflictingTx{TxManager: repository.NewTxManager(db), remaining: conflicts}
	svc := NewPurchaseService(txm,
		repository.NewPharmacyRepo(db),
		repository.NewMaskRepo(db),
		repository.NewUserRepo(db),
		repository.NewTransactionRepo(db),
		PurchaseOptions{MaxRetries: maxRetries, Notifier: notifier, Logger: log.New(io.Discard, "", 0)},
	)
	return db, txm, svc
}

func TestPurchaseRetriesAfterConflict(t *testing.T) {
	notifier := &recordingNotifier{}
	db, txm, svc := conflictFixture(t, 2, 3, notifier)

	p := testutil.CreatePharmacy(t, db, "P", "1")
	m := testutil.CreateMask(t, db, p.ID, "M", "2.5", 4)
	u := testutil.CreateUser(t, db, "U", "10")

	res, err := svc.Purchase(context.Background(), PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if txm.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", txm.attempts)
	}
	if res.StockLeft != 3 {
		t.Fatalf("expected stock 3, got %d", res.StockLeft)
	}

	// rolled back attempts must not have applied anything
	if got := testutil.Reload[model.Mask](t, db, m.ID); got.Stock != 3 {
		t.Fatalf("stock %d, want 3", got.Stock)
	}
	if got := testutil.Reload[model.User](t, db, u.ID); !got.CashBalance.Equal(testutil.Money("7.5")) {
		t.Fatalf("user balance %s, want 7.5", got.CashBalance)
	}
	if got := testutil.Reload[model.Pharmacy](t, db, p.ID); !got.CashBalance.Equal(testutil.Money("3.5")) {
		t.Fatalf("pharmacy balance %s, want 3.5", got.CashBalance)
	}
	var count int64
	db.Model(&model.PurchaseTransaction{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one audit row, got %d", count)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.events))
	}
}

func TestPurchaseSurfacesConflictWhenRetriesAreSpent(t *testing.T) {
	notifier := &recordingNotifier{}
	db, txm, svc := conflictFixture(t, 100, 2, notifier)

	p := testutil.CreatePharmacy(t, db, "P", "1")
	m := testutil.CreateMask(t, db, p.ID, "M", "2.5", 4)
	u := testutil.CreateUser(t, db, "U", "10")

	_, err := svc.Purchase(context.Background(), PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID})
	if !errors.Is(err, ErrConflict) || !IsRetryable(err) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if txm.attempts != 3 {
		t.Fatalf("expected 1 attempt plus 2 retries, got %d", txm.attempts)
	}

	if got := testutil.Reload[model.Mask](t, db, m.ID); got.Stock != 4 || got.Version != m.Version {
		t.Fatalf("mask changed: %+v", got)
	}
	if got := testutil.Reload[model.User](t, db, u.ID); !got.CashBalance.Equal(u.CashBalance) || got.Version != u.Version {
		t.Fatalf("user changed: %+v", got)
	}
	if got := testutil.Reload[model.Pharmacy](t, db, p.ID); !got.CashBalance.Equal(p.CashBalance) {
		t.Fatalf("pharmacy balance changed to %s", got.CashBalance)
	}
	var count int64
	db.Model(&model.PurchaseTransaction{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no audit rows, got %d", count)
	}
	if len(notifier.events) != 0 {
		t.Fatalf("expected no notifications, got %d", len(notifier.events))
	}
}

func TestCentAmountsReconcileExactly(t *testing.T) {
	f := setup(t, PurchaseOptions{})
	ctx := context.Background()
	p := testutil.CreatePharmacy(t, f.db, "P", "0.10")
	dime := testutil.CreateMask(t, f.db, p.ID, "Dime", "0.10", 5)
	pair := testutil.CreateMask(t, f.db, p.ID, "Pair", "0.20", 5)
	u := testutil.CreateUser(t, f.db, "U", "1")

	for _, m := range []*model.Mask{dime, pair} {
		if _, err := f.purchase.Purchase(ctx, PurchaseRequest{UserID: u.ID, PharmacyID: p.ID, MaskID: m.ID}); err != nil {
			t.Fatal(err)
		}
	}

	window := DateRange{From: time.Unix(0, 0).UTC(), To: time.Now().UTC().Add(time.Hour)}
	vol, err := f.query.AggregateVolume(ctx, window)
	if err != nil {
		t.Fatal(err)
	}
	if !vol.TotalValue.Equal(testutil.Money("0.30")) {
		t.Fatalf("volume total %s, want 0.30", vol.TotalValue)
	}
	top, err := f.query.TopSpenders(ctx, window, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || !top[0].TotalAmount.Equal(testutil.Money("0.30")) {
		t.Fatalf("unexpected top spenders %+v", top)
	}

	pr, err := f.audit.ReconcilePharmacy(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pr.Consistent || !pr.ActualBalance.Equal(testutil.Money("0.40")) {
		t.Fatalf("unexpected pharmacy reconciliation %+v", pr)
	}
	ur, err := f.audit.ReconcileUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ur.Consistent || !ur.ActualBalance.Equal(testutil.Money("0.70")) {
		t.Fatalf("unexpected user reconciliation %+v", ur)
	}
}
