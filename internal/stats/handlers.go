package stats

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, agg *Aggregator, authMiddleware fiber.Handler) {
	r.Post("/sessions/:id/aggregate", authMiddleware, func(c *fiber.Ctx) error {
		childStats, parentStats, err := agg.AggregateSession(c.Context(), c.Params("id"))
		if errors.Is(err, ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if errors.Is(err, ErrSessionNotFinished) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"children": childStats, "parents": parentStats})
	})

	r.Get("/children/:id", func(c *fiber.Ctx) error {
		stat, err := agg.ChildStat(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stat)
	})

	r.Get("/parents/:id", func(c *fiber.Ctx) error {
		stat, err := agg.ParentStat(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stat)
	})
}
