package handler

import (
	"phantom-mask/internal/service"

	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct {
	service service.DashboardService
}

func NewDashboardHandler(s service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: s}
}

// DailySales returns the purchase series for charts
// Query params: days (default 7)
func (h *DashboardHandler) DailySales(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	data, err := h.service.DailySales(c.UserContext(), days)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"period": days,
		"data":   data,
	})
}

// Stats returns the overview counters
// Query params: low_stock (default 10)
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), c.QueryInt("low_stock", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": stats})
}
