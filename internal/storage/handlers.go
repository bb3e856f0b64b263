package storage

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/upload", authMiddleware, func(c *fiber.Ctx) error {
		var req UploadRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Upload(c.Context(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"success": true, "id": res.ID, "url": res.URL})
	})
}

func toHTTPError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, ErrInvalidImage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to upload image")
	}
}
