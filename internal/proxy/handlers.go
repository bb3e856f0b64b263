package proxy

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const cacheControl = "s-maxage=60, stale-while-revalidate"

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/proxy", func(c *fiber.Ctx) error {
		path := c.Query("path")
		if path == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing 'path' query (e.g., ?path=event/110/player/3725)")
		}
		return forward(c, svc, path+c.Query("q"))
	})

	r.Get("/event/*", func(c *fiber.Ctx) error {
		return forward(c, svc, "event/"+c.Params("*"))
	})

	r.Get("/proxy-batch", func(c *fiber.Ctx) error {
		bibs := SplitBibs(c.Query("bibs"))
		eventID := strings.TrimSpace(c.Query("eventId"))
		if len(bibs) == 0 || eventID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing 'bibs' or 'eventId' query (e.g., ?bibs=2634,2912&eventId=132)")
		}
		c.Set(fiber.HeaderCacheControl, cacheControl)
		return c.JSON(svc.Batch(c.Context(), eventID, bibs))
	})
}

func forward(c *fiber.Ctx, svc *Service, path string) error {
	e, outcome, err := svc.Get(c.Context(), path)
	if errors.Is(err, ErrBadPath) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	c.Set(fiber.HeaderContentType, e.ContentType)
	c.Set(fiber.HeaderCacheControl, cacheControl)
	c.Set("X-Cache", strings.ToUpper(outcome))
	return c.Status(e.Status).Send(e.Body)
}
