package users

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/:kakaoId", func(c *fiber.Ctx) error {
		user, err := svc.Get(c.Context(), c.Params("kakaoId"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(user)
	})

	r.Post("/:kakaoId", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Name         string `json:"name"`
			ProfileImage string `json:"profileImage"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		user, err := svc.Create(c.Context(), User{KakaoID: c.Params("kakaoId"), Name: body.Name, ProfileImage: body.ProfileImage})
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	r.Patch("/:kakaoId", authMiddleware, func(c *fiber.Ctx) error {
		var patch Patch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		user, err := svc.Update(c.Context(), c.Params("kakaoId"), patch)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(user)
	})

	r.Delete("/:kakaoId", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("kakaoId")); err != nil {
			return toHTTPError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
