package route

import "time"

type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type Route struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// RouteStation is one ordered stop on a route. Stop numbers are unique and
// strictly increasing per route; minutes from start are non-decreasing.
// Distances between consecutive stations are configured, not computed.
type RouteStation struct {
	RouteID           string  `json:"route_id"`
	StationID         string  `json:"station_id"`
	StopNumber        int     `json:"stop_number"`
	MinutesFromStart  int     `json:"minutes_from_start"`
	DistanceFromPrevM float64 `json:"distance_from_prev_m"`
}

// Connection declares that two routes may be chained at a shared station.
type Connection struct {
	ID          string `json:"id"`
	FromRouteID string `json:"from_route_id"`
	ToRouteID   string `json:"to_route_id"`
	StationID   string `json:"station_id"`
}
