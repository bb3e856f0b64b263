package course

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, reg *Registry) {
	r.Get("/", func(c *fiber.Ctx) error {
		var out []*Course
		for _, id := range reg.EventIDs() {
			cr, _ := reg.Load(id)
			out = append(out, cr)
		}
		return c.JSON(out)
	})

	r.Get("/:eventID", func(c *fiber.Ctx) error {
		eventID, err := c.ParamsInt("eventID")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "eventID must be an integer")
		}
		cr, err := reg.Load(eventID)
		if errors.Is(err, ErrCourseNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"course":  cr,
			"overlay": cr.Overlay(),
		})
	})
}
