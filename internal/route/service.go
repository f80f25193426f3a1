package route

import (
	"context"
	"errors"
	"fmt"

	"backend-cmbraga/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreateStation(ctx context.Context, input Station) (Station, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO stations (id, name, address)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, input.ID, input.Name, input.Address)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Station{}, err
	}
	return input, nil
}

func (s *Service) GetStation(ctx context.Context, id string) (Station, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, address, created_at
		FROM stations WHERE id=$1
	`, id)
	var st Station
	if err := row.Scan(&st.ID, &st.Name, &st.Address, &st.CreatedAt); err != nil {
		return Station{}, err
	}
	return st, nil
}

func (s *Service) CreateRoute(ctx context.Context, input Route) (Route, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO routes (id, name, color)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, input.ID, input.Name, input.Color)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Route{}, err
	}
	return input, nil
}

func (s *Service) GetRoute(ctx context.Context, id string) (Route, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, color, created_at
		FROM routes WHERE id=$1
	`, id)
	var r Route
	if err := row.Scan(&r.ID, &r.Name, &r.Color, &r.CreatedAt); err != nil {
		return Route{}, err
	}
	return r, nil
}

func (s *Service) DeleteRoute(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM routes WHERE id=$1`, id)
	return err
}

// SetStations replaces the ordered stop list of a route.
func (s *Service) SetStations(ctx context.Context, routeID string, stops []RouteStation) error {
	if err := validateStops(stops); err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM route_stations WHERE route_id=$1`, routeID); err != nil {
		return err
	}
	for _, stop := range stops {
		_, err := s.db.Exec(ctx, `
			INSERT INTO route_stations (route_id, station_id, stop_number, minutes_from_start, distance_from_prev_m)
			VALUES ($1,$2,$3,$4,$5)
		`, routeID, stop.StationID, stop.StopNumber, stop.MinutesFromStart, stop.DistanceFromPrevM)
		if err != nil {
			return err
		}
	}
	return nil
}

func validateStops(stops []RouteStation) error {
	if len(stops) == 0 {
		return errors.New("route needs at least one station")
	}
	for i := 1; i < len(stops); i++ {
		if stops[i].StopNumber <= stops[i-1].StopNumber {
			return fmt.Errorf("stop numbers must be strictly increasing, got %d after %d",
				stops[i].StopNumber, stops[i-1].StopNumber)
		}
		if stops[i].MinutesFromStart < stops[i-1].MinutesFromStart {
			return fmt.Errorf("minutes from start must be non-decreasing, got %d after %d",
				stops[i].MinutesFromStart, stops[i-1].MinutesFromStart)
		}
	}
	return nil
}

func (s *Service) StationsInOrder(ctx context.Context, routeID string) ([]RouteStation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT route_id, station_id, stop_number, minutes_from_start, distance_from_prev_m
		FROM route_stations WHERE route_id=$1
		ORDER BY stop_number
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []RouteStation
	for rows.Next() {
		var stop RouteStation
		if err := rows.Scan(&stop.RouteID, &stop.StationID, &stop.StopNumber, &stop.MinutesFromStart, &stop.DistanceFromPrevM); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func (s *Service) AllRouteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM routes ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) Connect(ctx context.Context, fromRouteID, toRouteID, stationID string) (Connection, error) {
	conn := Connection{
		ID:          uuid.NewString(),
		FromRouteID: fromRouteID,
		ToRouteID:   toRouteID,
		StationID:   stationID,
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO route_connections (id, from_route_id, to_route_id, station_id)
		VALUES ($1,$2,$3,$4)
	`, conn.ID, conn.FromRouteID, conn.ToRouteID, conn.StationID)
	if err != nil {
		return Connection{}, err
	}
	return conn, nil
}

// OutgoingConnection returns the first configured connection leaving the
// route, or nil when the route has none.
func (s *Service) OutgoingConnection(ctx context.Context, routeID string) (*Connection, error) {
	return s.firstConnection(ctx, `
		SELECT id, from_route_id, to_route_id, station_id
		FROM route_connections WHERE from_route_id=$1
		ORDER BY id LIMIT 1
	`, routeID)
}

// IncomingConnection returns the first configured connection arriving at the
// route, or nil when the route has none.
func (s *Service) IncomingConnection(ctx context.Context, routeID string) (*Connection, error) {
	return s.firstConnection(ctx, `
		SELECT id, from_route_id, to_route_id, station_id
		FROM route_connections WHERE to_route_id=$1
		ORDER BY id LIMIT 1
	`, routeID)
}

func (s *Service) firstConnection(ctx context.Context, sql, routeID string) (*Connection, error) {
	var conn Connection
	err := s.db.QueryRow(ctx, sql, routeID).Scan(&conn.ID, &conn.FromRouteID, &conn.ToRouteID, &conn.StationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}
