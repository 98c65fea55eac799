package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"phantom-mask/internal/middleware"
	"phantom-mask/internal/model"
	"phantom-mask/internal/repository"
	"phantom-mask/internal/service"
	"phantom-mask/internal/testutil"
	"phantom-mask/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	txm := repository.NewTxManager(db)
	pRepo := repository.NewPharmacyRepo(db)
	mRepo := repository.NewMaskRepo(db)
	uRepo := repository.NewUserRepo(db)
	tRepo := repository.NewTransactionRepo(db)

	query := service.NewQueryService(txm, pRepo, mRepo, uRepo, tRepo, time.UTC)
	audit := service.NewAuditService(txm, pRepo, mRepo, uRepo, tRepo)
	purchase := service.NewPurchaseService(txm, pRepo, mRepo, uRepo, tRepo, service.PurchaseOptions{
		Logger: log.New(io.Discard, "", 0),
	})

	app := fiber.New()
	RegisterRoutes(app.Group("/api/v1"), Handlers{
		Pharmacy:  NewPharmacyHandler(query),
		Report:    NewReportHandler(query, audit, time.UTC),
		Purchase:  NewPurchaseHandler(purchase, query, time.UTC),
		Dashboard: NewDashboardHandler(service.NewDashboardService(txm, tRepo, time.UTC)),
		User:      NewUserHandler(query),
	}, middleware.RequireAuth(txm, uRepo))

	jwt.SetSecret("handler-test")
	t.Cleanup(func() { jwt.SetSecret("") })
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func bearer(t *testing.T, u *model.User) map[string]string {
	t.Helper()
	token, err := jwt.GenerateToken(u.ID, u.Name, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestQueryRoutes(t *testing.T) {
	app, db := setupApp(t)
	p := testutil.CreatePharmacy(t, db, "DFW Wellness", "10", testutil.Hours(time.Monday, "08:00", "12:00"))
	testutil.CreateMask(t, db, p.ID, "True Barrier", "13.7", 5)
	testutil.CreateMask(t, db, p.ID, "Cotton Kiss", "3.5", 5)

	code, body := doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/open?time=09:30&weekday=Mon", nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("open: %d %v", code, body)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/open?time=9am", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad time, got %d %v", code, body)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/1/masks?sort=price&order=desc", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("masks: %d %v", code, body)
	}
	masks := body["data"].([]any)
	if len(masks) != 2 || masks[0].(map[string]any)["name"] != "True Barrier" {
		t.Fatalf("unexpected masks %v", masks)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/42/masks", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown pharmacy, got %d", code)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/filter?comparator=gt&count=1&price_min=1&price_max=20", nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("filter: %d %v", code, body)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/pharmacies/filter?comparator=gt&count=1&price_min=30&price_max=20", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted price range, got %d", code)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/search?q=dfw&kind=pharmacy", nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("search: %d %v", code, body)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/reports/volume?from=2021-02-01&to=2021-01-01", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted date range, got %d", code)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/reports/volume?from=2021-01-01&to=2021-01-31", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("volume: %d %v", code, body)
	}
	if body["data"].(map[string]any)["transactions"].(float64) != 0 {
		t.Fatalf("expected empty volume, got %v", body)
	}
}

func TestPurchaseRoute(t *testing.T) {
	app, db := setupApp(t)
	p := testutil.CreatePharmacy(t, db, "P", "0")
	m := testutil.CreateMask(t, db, p.ID, "M", "4", 1)
	u := testutil.CreateUser(t, db, "Buyer", "10")

	req := map[string]any{"pharmacy_id": p.ID, "mask_id": m.ID}

	code, _ := doJSON(t, app, http.MethodPost, "/api/v1/purchases", req, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}

	headers := bearer(t, u)
	headers["Idempotency-Key"] = "abc-1"

	code, body := doJSON(t, app, http.MethodPost, "/api/v1/purchases", req, headers)
	if code != http.StatusCreated {
		t.Fatalf("purchase: %d %v", code, body)
	}
	data := body["data"].(map[string]any)
	txID := data["transaction"].(map[string]any)["id"].(string)

	code, body = doJSON(t, app, http.MethodPost, "/api/v1/purchases", req, headers)
	if code != http.StatusOK || body["data"].(map[string]any)["replayed"] != true {
		t.Fatalf("expected replay, got %d %v", code, body)
	}

	delete(headers, "Idempotency-Key")
	code, body = doJSON(t, app, http.MethodPost, "/api/v1/purchases", req, headers)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when out of stock, got %d %v", code, body)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/transactions/"+txID, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("transaction: %d %v", code, body)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/users/1/purchases", nil, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("user purchases: %d %v", code, body)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/dashboard/stats?low_stock=0", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("stats: %d %v", code, body)
	}
	stats := body["data"].(map[string]any)
	if stats["transactions"].(float64) != 1 || stats["low_stock_masks"].(float64) != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/dashboard/daily?days=3", nil, nil)
	if code != http.StatusOK || len(body["data"].([]any)) != 3 {
		t.Fatalf("daily: %d %v", code, body)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/dashboard/daily?days=0", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for days=0, got %d", code)
	}

	code, body = doJSON(t, app, http.MethodGet, "/api/v1/masks/1/reconcile", nil, nil)
	if code != http.StatusOK || body["data"].(map[string]any)["consistent"] != true {
		t.Fatalf("reconcile: %d %v", code, body)
	}
}

func TestGetUserRoute(t *testing.T) {
	app, db := setupApp(t)
	u := testutil.CreateUser(t, db, "Yvonne Guerrero", "191.83")

	code, body := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", u.ID), nil, nil)
	if code != http.StatusOK {
		t.Fatalf("get user: %d %v", code, body)
	}
	data := body["data"].(map[string]any)
	if data["name"] != "Yvonne Guerrero" || data["id"].(float64) != float64(u.ID) {
		t.Fatalf("unexpected user %v", data)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/users/999", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", code)
	}

	code, _ = doJSON(t, app, http.MethodGet, "/api/v1/users/abc", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}
}
