package groups

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		group, member, err := svc.Create(c.Context(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"group": group, "member": member})
	})

	r.Post("/join", authMiddleware, func(c *fiber.Ctx) error {
		var req JoinInput
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		member, err := svc.Join(c.Context(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(member)
	})

	r.Post("/leave", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Code    string `json:"code"`
			KakaoID string `json:"kakaoId"`
		}
		if err := c.BodyParser(&body); err != nil || body.KakaoID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "kakaoId is required")
		}
		if err := svc.Leave(c.Context(), body.Code, body.KakaoID); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"message": "left group"})
	})

	r.Post("/update-photo", authMiddleware, func(c *fiber.Ctx) error {
		var req PhotoUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.UpdatePhoto(c.Context(), req); err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"success": true, "url": req.PhotoURL})
	})

	r.Get("/:code", func(c *fiber.Ctx) error {
		group, err := svc.Get(c.Context(), c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(group)
	})

	r.Delete("/:code", authMiddleware, func(c *fiber.Ctx) error {
		group, err := svc.Delete(c.Context(), c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(fiber.Map{"message": "group deleted", "group": group})
	})

	r.Get("/:code/runners", func(c *fiber.Ctx) error {
		runners, err := svc.Runners(c.Context(), c.Params("code"))
		if err != nil {
			return toHTTPError(err)
		}
		if runners == nil {
			runners = []Runner{}
		}
		return c.JSON(runners)
	})
}

// RegisterUserRoutes mounts the membership lookup under /users.
func RegisterUserRoutes(r fiber.Router, svc *Service) {
	r.Get("/:kakaoId/group", func(c *fiber.Ctx) error {
		group, err := svc.ForUser(c.Context(), c.Params("kakaoId"))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(group)
	})
}

func toHTTPError(err error) error {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return fiber.NewError(fiber.StatusBadRequest, verrs.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMemberNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyMember), errors.Is(err, ErrBibTaken):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
		return fiber.NewError(fiber.StatusConflict, ErrDuplicate.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
