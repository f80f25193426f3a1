package activity

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler, onFinished func(sessionID string)) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			RouteID     string    `json:"route_id"`
			ScheduledAt time.Time `json:"scheduled_at"`
			Weather     string    `json:"weather"`
		}
		if err := c.BodyParser(&body); err != nil || body.RouteID == "" || body.ScheduledAt.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "route_id and scheduled_at required")
		}
		session, err := svc.CreateSession(c.Context(), body.RouteID, body.ScheduledAt, body.Weather)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/children", authMiddleware, func(c *fiber.Ctx) error {
		var req Child
		if err := c.BodyParser(&req); err != nil || req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		child, err := svc.CreateChild(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(child)
	})

	r.Post("/parents", authMiddleware, func(c *fiber.Ctx) error {
		var req Parent
		if err := c.BodyParser(&req); err != nil || req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		parent, err := svc.CreateParent(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(parent)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		session, err := svc.GetSession(c.Context(), c.Params("id"))
		if errors.Is(err, ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(session)
	})

	r.Post("/:id/start", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.StartSession(c.Context(), c.Params("id")); err != nil {
			if errors.Is(err, ErrAlreadyStarted) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Finishing a session triggers aggregation and badge evaluation
	// best-effort; a failure there never fails the close itself.
	r.Post("/:id/finish", authMiddleware, func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := svc.FinishSession(c.Context(), id); err != nil {
			if errors.Is(err, ErrNotInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if onFinished != nil {
			onFinished(id)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/:id/register", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			ChildID         string `json:"child_id"`
			PickUpStationID string `json:"pick_up_station_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ChildID == "" || body.PickUpStationID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "child_id and pick_up_station_id required")
		}
		err := svc.RegisterChild(c.Context(), Registration{
			SessionID:       c.Params("id"),
			ChildID:         body.ChildID,
			PickUpStationID: body.PickUpStationID,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Post("/:id/stations/:stationID/arrive", authMiddleware, func(c *fiber.Ctx) error {
		err := svc.RecordArrival(c.Context(), c.Params("id"), c.Params("stationID"))
		if errors.Is(err, ErrNotCurrentStation) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/progress", func(c *fiber.Ctx) error {
		sessionID := c.Params("id")
		current, err := svc.CurrentStation(c.Context(), sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		remaining, err := svc.RemainingStationsInOrder(c.Context(), sessionID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		pending, err := svc.ChildrenPendingPickup(c.Context(), sessionID, remaining)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		toDrop, err := svc.ChildrenYetToDropOff(c.Context(), sessionID, remaining)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"current_station":    current,
			"remaining_stations": remaining,
			"pending_pickup":     pending,
			"yet_to_drop_off":    toDrop,
		})
	})

	r.Get("/:id/stations/:stationID/children", func(c *fiber.Ctx) error {
		sessionID := c.Params("id")
		stationID := c.Params("stationID")

		boarding, err := svc.ChildrenAtStation(c.Context(), sessionID, stationID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		waiting, err := svc.PickupStatus(c.Context(), sessionID, stationID, boarding, false)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		pickedUp, err := svc.PickupStatus(c.Context(), sessionID, stationID, boarding, true)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		onBoard, err := svc.childrenOnSession(c.Context(), sessionID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		alighting, err := svc.DropoffStatus(c.Context(), sessionID, stationID, onBoard, false)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		dropped, err := svc.ChildrenAlreadyDroppedOff(c.Context(), sessionID, stationID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"waiting":     waiting,
			"picked_up":   pickedUp,
			"alighting":   alighting,
			"dropped_off": dropped,
		})
	})

	r.Post("/:id/stations/:stationID/children/:childID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.CheckInChild(c.Context(), c.Params("id"), c.Params("stationID"), c.Params("childID")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Post("/:id/stations/:stationID/parents/:parentID", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.CheckInParent(c.Context(), c.Params("id"), c.Params("stationID"), c.Params("parentID")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusCreated)
	})
}
