// Package transfer resolves itineraries spanning two connected routes: the
// shared station a child must change at, and the linked session on the other
// route that departs within the accepted window.
package transfer

import (
	"context"
	"errors"
	"time"

	"backend-cmbraga/internal/db"

	"github.com/jackc/pgx/v5"
)

// LinkWindow is how far apart the shared station's times on two sessions may
// be for them to count as chained. Inclusive at both ends.
const LinkWindow = 20 * time.Minute

var ErrSessionNotFound = errors.New("activity session not found")

// TransferCheck is the structured outcome of a transfer validation. Invalid
// transfers are results, not errors.
type TransferCheck struct {
	IsValid           bool   `json:"is_valid"`
	RequiresTransfer  bool   `json:"requires_transfer"`
	TransferStationID string `json:"transfer_station_id,omitempty"`
	Message           string `json:"message,omitempty"`
}

// LinkedActivities holds at most one chained session per direction.
type LinkedActivities struct {
	PreviousActivityID string `json:"previous_activity_id,omitempty"`
	NextActivityID     string `json:"next_activity_id,omitempty"`
}

// Resolver carries the location whose calendar days bound linked-session
// candidates; day windows derive from the queried session's scheduled time.
type Resolver struct {
	db  db.Querier
	loc *time.Location
}

func NewResolver(db db.Querier, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{db: db, loc: loc}
}

// FindTransferStation returns the first station shared by both routes, in
// the pickup route's stop-number order, or "" when the routes do not meet.
// When several stations are shared only the earliest by pickup order is
// used; this is the configured interchange policy, not a nearest-by-time
// search.
func (r *Resolver) FindTransferStation(ctx context.Context, pickupRouteID, dropoffRouteID string) (string, error) {
	pickupStops, err := r.stationsInOrder(ctx, pickupRouteID)
	if err != nil {
		return "", err
	}
	dropoffStations, err := r.stationSet(ctx, dropoffRouteID)
	if err != nil {
		return "", err
	}

	for _, stationID := range pickupStops {
		if dropoffStations[stationID] {
			return stationID, nil
		}
	}
	return "", nil
}

// ValidateRouteTransfer decides whether a pickup/drop-off pair fits on the
// session's route alone or needs a transfer, and whether one is possible.
func (r *Resolver) ValidateRouteTransfer(ctx context.Context, sessionID, pickupStationID, dropoffStationID string) (TransferCheck, error) {
	var routeID string
	err := r.db.QueryRow(ctx, `
		SELECT route_id FROM activity_sessions WHERE id=$1
	`, sessionID).Scan(&routeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferCheck{}, ErrSessionNotFound
	}
	if err != nil {
		return TransferCheck{}, err
	}

	onRoute, err := r.stationSet(ctx, routeID)
	if err != nil {
		return TransferCheck{}, err
	}
	if !onRoute[pickupStationID] {
		return TransferCheck{Message: "pickup station is not on the session route"}, nil
	}
	if onRoute[dropoffStationID] {
		return TransferCheck{IsValid: true}, nil
	}

	var dropoffRouteID string
	err = r.db.QueryRow(ctx, `
		SELECT route_id FROM route_stations WHERE station_id=$1 LIMIT 1
	`, dropoffStationID).Scan(&dropoffRouteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return TransferCheck{RequiresTransfer: true, Message: "drop-off station is not on any route"}, nil
	}
	if err != nil {
		return TransferCheck{}, err
	}

	transferStation, err := r.FindTransferStation(ctx, routeID, dropoffRouteID)
	if err != nil {
		return TransferCheck{}, err
	}
	if transferStation == "" {
		return TransferCheck{RequiresTransfer: true, Message: "no transfer station connects the two routes"}, nil
	}
	return TransferCheck{IsValid: true, RequiresTransfer: true, TransferStationID: transferStation}, nil
}

// FindLinkedActivities looks for sessions on connected routes that the bus
// chains into: the next session departs the shared station between 0 and 20
// minutes after this one reaches it, the previous the mirror image. Only the
// first connection per direction is consulted, only same-day not-yet-started
// sessions are candidates, and the first acceptable candidate in scheduled
// order wins.
func (r *Resolver) FindLinkedActivities(ctx context.Context, routeID string, scheduledAt time.Time) (LinkedActivities, error) {
	ownMinutes, err := r.minutesByStation(ctx, routeID)
	if err != nil {
		return LinkedActivities{}, err
	}

	var linked LinkedActivities

	outgoing, err := r.firstConnection(ctx, `
		SELECT to_route_id, station_id FROM route_connections
		WHERE from_route_id=$1 ORDER BY id LIMIT 1
	`, routeID)
	if err != nil {
		return LinkedActivities{}, err
	}
	if outgoing != nil {
		if minutes, ok := ownMinutes[outgoing.stationID]; ok {
			ownLink := scheduledAt.Add(time.Duration(minutes) * time.Minute)
			linked.NextActivityID, err = r.matchLinkedSession(ctx, outgoing.routeID, outgoing.stationID, scheduledAt, func(candidateLink time.Time) bool {
				delta := candidateLink.Sub(ownLink)
				return delta >= 0 && delta <= LinkWindow
			})
			if err != nil {
				return LinkedActivities{}, err
			}
		}
	}

	incoming, err := r.firstConnection(ctx, `
		SELECT from_route_id, station_id FROM route_connections
		WHERE to_route_id=$1 ORDER BY id LIMIT 1
	`, routeID)
	if err != nil {
		return LinkedActivities{}, err
	}
	if incoming != nil {
		if minutes, ok := ownMinutes[incoming.stationID]; ok {
			ownLink := scheduledAt.Add(time.Duration(minutes) * time.Minute)
			linked.PreviousActivityID, err = r.matchLinkedSession(ctx, incoming.routeID, incoming.stationID, scheduledAt, func(candidateLink time.Time) bool {
				delta := ownLink.Sub(candidateLink)
				return delta >= 0 && delta <= LinkWindow
			})
			if err != nil {
				return LinkedActivities{}, err
			}
		}
	}

	return linked, nil
}

type connectionEdge struct {
	routeID   string
	stationID string
}

func (r *Resolver) firstConnection(ctx context.Context, sql, routeID string) (*connectionEdge, error) {
	var edge connectionEdge
	err := r.db.QueryRow(ctx, sql, routeID).Scan(&edge.routeID, &edge.stationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// matchLinkedSession scans same-local-day, not-yet-started sessions on the
// linked route in scheduled order and accepts the first whose linkage time
// passes the window check.
func (r *Resolver) matchLinkedSession(ctx context.Context, linkedRouteID, stationID string, scheduledAt time.Time, accept func(time.Time) bool) (string, error) {
	var linkedMinutes int
	err := r.db.QueryRow(ctx, `
		SELECT minutes_from_start FROM route_stations
		WHERE route_id=$1 AND station_id=$2
	`, linkedRouteID, stationID).Scan(&linkedMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	dayStart, dayEnd := localDayBounds(scheduledAt, r.loc)
	rows, err := r.db.Query(ctx, `
		SELECT id, scheduled_at FROM activity_sessions
		WHERE route_id=$1 AND started_at IS NULL
		  AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at
	`, linkedRouteID, dayStart, dayEnd)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var candidateScheduledAt time.Time
		if err := rows.Scan(&id, &candidateScheduledAt); err != nil {
			return "", err
		}
		candidateLink := candidateScheduledAt.Add(time.Duration(linkedMinutes) * time.Minute)
		if accept(candidateLink) {
			return id, nil
		}
	}
	return "", nil
}

func localDayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func (r *Resolver) stationsInOrder(ctx context.Context, routeID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT station_id FROM route_stations
		WHERE route_id=$1 ORDER BY stop_number
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		stations = append(stations, id)
	}
	return stations, nil
}

func (r *Resolver) stationSet(ctx context.Context, routeID string) (map[string]bool, error) {
	stations, err := r.stationsInOrder(ctx, routeID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(stations))
	for _, id := range stations {
		set[id] = true
	}
	return set, nil
}

func (r *Resolver) minutesByStation(ctx context.Context, routeID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT station_id, minutes_from_start FROM route_stations
		WHERE route_id=$1 ORDER BY stop_number
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	minutes := map[string]int{}
	for rows.Next() {
		var id string
		var m int
		if err := rows.Scan(&id, &m); err != nil {
			return nil, err
		}
		minutes[id] = m
	}
	return minutes, nil
}
