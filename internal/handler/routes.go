package handler

import (
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Pharmacy  *PharmacyHandler
	Report    *ReportHandler
	Purchase  *PurchaseHandler
	Dashboard *DashboardHandler
	User      *UserHandler
}

// RegisterRoutes mounts the API under router; auth guards the write path only
func RegisterRoutes(router fiber.Router, h Handlers, auth fiber.Handler) {
	router.Get("/pharmacies/open", h.Pharmacy.OpenAt)
	router.Get("/pharmacies/filter", h.Pharmacy.FilterByMaskCount)
	router.Get("/pharmacies/:id/masks", h.Pharmacy.ListMasks)
	router.Get("/pharmacies/:id/reconcile", h.Report.ReconcilePharmacy)
	router.Get("/search", h.Pharmacy.Search)

	router.Get("/reports/top-spenders", h.Report.TopSpenders)
	router.Get("/reports/volume", h.Report.Volume)
	router.Get("/dashboard/daily", h.Dashboard.DailySales)
	router.Get("/dashboard/stats", h.Dashboard.Stats)

	router.Get("/masks/:id/reconcile", h.Report.ReconcileMask)
	router.Get("/users/:id", h.User.GetUser)
	router.Get("/users/:id/reconcile", h.Report.ReconcileUser)
	router.Get("/users/:id/purchases", h.Purchase.UserPurchases)
	router.Get("/transactions/:id", h.Purchase.GetTransaction)

	router.Post("/purchases", auth, h.Purchase.Purchase)
}
