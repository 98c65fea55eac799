package handler

import (
	"time"

	"phantom-mask/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PurchaseHandler struct {
	purchase service.PurchaseService
	query    service.QueryService
	location *time.Location
}

func NewPurchaseHandler(p service.PurchaseService, q service.QueryService, loc *time.Location) *PurchaseHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PurchaseHandler{purchase: p, query: q, location: loc}
}

// getUserID reads the buyer set by RequireAuth
func getUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("user_id").(uint)
	return id
}

// POST /purchases  {"pharmacy_id": 1, "mask_id": 2}
func (h *PurchaseHandler) Purchase(c *fiber.Ctx) error {
	var req service.PurchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON")
	}
	req.UserID = getUserID(c)
	if req.UserID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing buyer"})
	}
	req.IdempotencyKey = c.Get("Idempotency-Key")

	result, err := h.purchase.Purchase(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"message": "Purchase completed", "data": result})
}

// GET /transactions/:id
func (h *PurchaseHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid transaction id")
	}
	t, err := h.query.GetTransaction(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": t})
}

// GET /users/:id/purchases?from=&to=  (window defaults to everything)
func (h *PurchaseHandler) UserPurchases(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid user id")
	}

	window := service.DateRange{From: time.Unix(0, 0).UTC(), To: time.Now().UTC().AddDate(100, 0, 0)}
	if c.Query("from") != "" || c.Query("to") != "" {
		window, err = service.ParseDateRange(c.Query("from"), c.Query("to"), h.location)
		if err != nil {
			return respondError(c, err)
		}
	}

	transactions, err := h.query.UserPurchases(c.UserContext(), uint(id), window)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": transactions, "count": len(transactions)})
}
