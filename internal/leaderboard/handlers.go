package leaderboard

import (
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/", func(c *fiber.Ctx) error {
		typ := Type(c.Query("type", string(TypeChildren)))
		tf := Timeframe(c.Query("timeframe", string(TimeframeAllTime)))
		back, _ := strconv.Atoi(c.Query("back", "0"))

		start, end, err := svc.Timeframes(tf, back)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		entries, err := svc.GetStats(c.Context(), typ, start, end)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Points > entries[j].Points
		})
		return c.JSON(entries)
	})
}
