package badge

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, engine *Engine, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		badges, err := engine.Catalogue(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(badges)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Badge
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" || req.Criteria == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name and criteria required")
		}
		created, err := engine.CreateBadge(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	// Invoked by the periodic leaderboard-winner job.
	r.Post("/leaderboard-award", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		}
		if err := c.BodyParser(&body); err != nil || body.Start.IsZero() || body.End.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "start and end required")
		}
		award, err := engine.AwardLeaderboardBadge(c.Context(), body.Start, body.End)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if award == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Status(fiber.StatusCreated).JSON(award)
	})
}
