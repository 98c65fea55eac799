package handler

import (
	"time"

	"phantom-mask/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ReportHandler struct {
	query    service.QueryService
	audit    service.AuditService
	location *time.Location
}

func NewReportHandler(q service.QueryService, a service.AuditService, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportHandler{query: q, audit: a, location: loc}
}

// GET /reports/top-spenders?from=2021-01-01&to=2021-01-31&limit=5
func (h *ReportHandler) TopSpenders(c *fiber.Ctx) error {
	window, err := service.ParseDateRange(c.Query("from"), c.Query("to"), h.location)
	if err != nil {
		return respondError(c, err)
	}
	limit := c.QueryInt("limit", 10)

	spenders, err := h.query.TopSpenders(c.UserContext(), window, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": spenders, "count": len(spenders)})
}

// GET /reports/volume?from=&to=
func (h *ReportHandler) Volume(c *fiber.Ctx) error {
	window, err := service.ParseDateRange(c.Query("from"), c.Query("to"), h.location)
	if err != nil {
		return respondError(c, err)
	}
	summary, err := h.query.AggregateVolume(c.UserContext(), window)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"data": summary,
		"from": window.From,
		"to":   window.To,
	})
}

func (h *ReportHandler) ReconcileMask(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid mask id")
	}
	report, err := h.audit.ReconcileMask(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": report})
}

func (h *ReportHandler) ReconcileUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid user id")
	}
	report, err := h.audit.ReconcileUser(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": report})
}

func (h *ReportHandler) ReconcilePharmacy(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "Invalid pharmacy id")
	}
	report, err := h.audit.ReconcilePharmacy(c.UserContext(), uint(id))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": report})
}
