package tracking

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"backend-runcheer/internal/groups"
)

func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	r.Post("/groups/:code/start", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		status, err := m.Start(c.Context(), c.Params("code"), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(status)
	})

	r.Post("/groups/:code/stop", authMiddleware, func(c *fiber.Ctx) error {
		status, err := m.Stop(c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(status)
	})

	r.Post("/groups/:code/reset", authMiddleware, func(c *fiber.Ctx) error {
		if err := m.Reset(c.Params("code")); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"message": "tracking reset"})
	})

	r.Post("/groups/:code/refresh", authMiddleware, func(c *fiber.Ctx) error {
		started, err := m.Refresh(c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"started": started})
	})

	r.Get("/groups/:code", func(c *fiber.Ctx) error {
		status, err := m.Status(c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(status)
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNoBibs):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyTracking), errors.Is(err, ErrNotTracking):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, groups.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
