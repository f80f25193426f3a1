package route

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/stations", authMiddleware, func(c *fiber.Ctx) error {
		var req Station
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		station, err := svc.CreateStation(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(station)
	})

	r.Get("/stations/:id", func(c *fiber.Ctx) error {
		station, err := svc.GetStation(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "station not found")
		}
		return c.JSON(station)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Route
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		created, err := svc.CreateRoute(c.Context(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Get("/", func(c *fiber.Ctx) error {
		ids, err := svc.AllRouteIDs(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"route_ids": ids})
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		loaded, err := svc.GetRoute(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "route not found")
		}
		return c.JSON(loaded)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.DeleteRoute(c.Context(), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Put("/:id/stations", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Stations []RouteStation `json:"stations"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.SetStations(c.Context(), c.Params("id"), body.Stations); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id/stations", func(c *fiber.Ctx) error {
		stops, err := svc.StationsInOrder(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(stops)
	})

	r.Get("/:id/connections", func(c *fiber.Ctx) error {
		out, err := svc.OutgoingConnection(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		in, err := svc.IncomingConnection(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"outgoing": out, "incoming": in})
	})

	r.Post("/:id/connections", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			ToRouteID string `json:"to_route_id"`
			StationID string `json:"station_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ToRouteID == "" || body.StationID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "to_route_id and station_id required")
		}
		conn, err := svc.Connect(c.Context(), c.Params("id"), body.ToRouteID, body.StationID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(conn)
	})
}
