package transfer

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, resolver *Resolver, authMiddleware fiber.Handler) {
	r.Post("/validate", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			SessionID        string `json:"session_id"`
			PickupStationID  string `json:"pickup_station_id"`
			DropoffStationID string `json:"dropoff_station_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.SessionID == "" || body.PickupStationID == "" || body.DropoffStationID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "session_id, pickup_station_id and dropoff_station_id required")
		}
		check, err := resolver.ValidateRouteTransfer(c.Context(), body.SessionID, body.PickupStationID, body.DropoffStationID)
		if errors.Is(err, ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(check)
	})

	r.Get("/linked", func(c *fiber.Ctx) error {
		routeID := c.Query("route_id")
		scheduledAt, err := time.Parse(time.RFC3339, c.Query("scheduled_at"))
		if routeID == "" || err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "route_id and RFC3339 scheduled_at required")
		}
		linked, err := resolver.FindLinkedActivities(c.Context(), routeID, scheduledAt)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(linked)
	})
}
