package handler

import (
	"strconv"
	"time"

	"phantom-mask/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PharmacyHandler struct {
	query service.QueryService
}

func NewPharmacyHandler(q service.QueryService) *PharmacyHandler {
	return &PharmacyHandler{query: q}
}

// GET /pharmacies/open?time=HH:MM&weekday=Mon
func (h *PharmacyHandler) OpenAt(c *fiber.Ctx) error {
	var weekday *time.Weekday
	if raw := c.Query("weekday"); raw != "" {
		d, err := service.ParseWeekday(raw)
		if err != nil {
			return respondError(c, err)
		}
		weekday = &d
	}

	pharmacies, err := h.query.OpenAt(c.UserContext(), c.Query("time"), weekday)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": pharmacies, "count": len(pharmacies)})
}

// GET /pharmacies/:id/masks?sort=name|price&order=asc|desc
func (h *PharmacyHandler) ListMasks(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid pharmacy id")
	}
	sortKey, err := service.ParseSortKey(c.Query("sort"))
	if err != nil {
		return respondError(c, err)
	}
	dir, err := service.ParseSortDirection(c.Query("order"))
	if err != nil {
		return respondError(c, err)
	}

	masks, err := h.query.ListMasks(c.UserContext(), uint(id), sortKey, dir)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": masks, "count": len(masks)})
}

// GET /pharmacies/filter?comparator=gt&count=2&price_min=10&price_max=50
func (h *PharmacyHandler) FilterByMaskCount(c *fiber.Ctx) error {
	cmp, err := service.ParseComparator(c.Query("comparator"))
	if err != nil {
		return respondError(c, err)
	}
	count, err := strconv.Atoi(c.Query("count"))
	if err != nil {
		return badRequest(c, "count must be an integer")
	}
	low, err := decimal.NewFromString(c.Query("price_min", "0"))
	if err != nil {
		return badRequest(c, "price_min must be a number")
	}
	high, err := decimal.NewFromString(c.Query("price_max"))
	if err != nil {
		return badRequest(c, "price_max must be a number")
	}

	results, err := h.query.PharmaciesByMaskCount(c.UserContext(), service.MaskCountQuery{
		Comparator: cmp,
		Threshold:  count,
		PriceLow:   low,
		PriceHigh:  high,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": results, "count": len(results)})
}

// GET /search?q=term&kind=pharmacy|mask
func (h *PharmacyHandler) Search(c *fiber.Ctx) error {
	kind, err := service.ParseSearchKind(c.Query("kind"))
	if err != nil {
		return respondError(c, err)
	}
	results, err := h.query.Search(c.UserContext(), c.Query("q"), kind)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": results, "count": len(results)})
}
