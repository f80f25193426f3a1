package activity

import (
	"context"
	"errors"
	"sort"
	"time"

	"backend-cmbraga/internal/db"
	"backend-cmbraga/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrSessionNotFound = errors.New("activity session not found")
	// ErrNotCurrentStation is returned when an arrival is recorded out of
	// order; progress through the stop list never skips a station.
	ErrNotCurrentStation = errors.New("station is not the current station")
	ErrAlreadyStarted    = errors.New("session already started or finished")
	ErrNotInProgress     = errors.New("session is not in progress")
)

type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(db db.Querier, hub *stream.Hub) *Service {
	return &Service{db: db, hub: hub}
}

func (s *Service) CreateChild(ctx context.Context, input Child) (Child, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO children (id, name, school_id, grade, drop_off_station_id, parent_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, input.ID, input.Name, input.SchoolID, input.Grade, input.DropOffStationID, input.ParentID)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Child{}, err
	}
	return input, nil
}

func (s *Service) CreateParent(ctx context.Context, input Parent) (Parent, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO parents (id, name)
		VALUES ($1,$2)
		RETURNING created_at
	`, input.ID, input.Name)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Parent{}, err
	}
	return input, nil
}

// CreateSession schedules a run of a route and materialises one stop record
// per route station, each with its own scheduled time.
func (s *Service) CreateSession(ctx context.Context, routeID string, scheduledAt time.Time, weather string) (Session, error) {
	session := Session{
		ID:          uuid.NewString(),
		RouteID:     routeID,
		ScheduledAt: scheduledAt,
		Weather:     weather,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO activity_sessions (id, route_id, scheduled_at, weather)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, session.ID, session.RouteID, session.ScheduledAt, session.Weather)
	if err := row.Scan(&session.CreatedAt); err != nil {
		return Session{}, err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO station_activity_sessions (session_id, station_id, stop_number, scheduled_at)
		SELECT $1, station_id, stop_number, $2::timestamptz + minutes_from_start * interval '1 minute'
		FROM route_stations WHERE route_id=$3
	`, session.ID, session.ScheduledAt, session.RouteID)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, route_id, scheduled_at, started_at, finished_at, weather, created_at
		FROM activity_sessions WHERE id=$1
	`, id)
	var session Session
	err := row.Scan(&session.ID, &session.RouteID, &session.ScheduledAt, &session.StartedAt, &session.FinishedAt, &session.Weather, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *Service) StartSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE activity_sessions SET started_at=NOW()
		WHERE id=$1 AND started_at IS NULL AND finished_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyStarted
	}
	return nil
}

func (s *Service) FinishSession(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE activity_sessions SET finished_at=NOW()
		WHERE id=$1 AND started_at IS NOT NULL AND finished_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInProgress
	}
	return nil
}

// CloseOverdueSessions finishes every in-progress session scheduled before
// the cutoff and returns their ids so the caller can run the same
// post-finish processing a manual finish gets.
func (s *Service) CloseOverdueSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE activity_sessions SET finished_at=NOW()
		WHERE finished_at IS NULL AND started_at IS NOT NULL AND scheduled_at < $1
		RETURNING id
	`, cutoff)
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

// RegisterChild books a child onto a session. Re-registering moves the
// pickup station rather than failing.
func (s *Service) RegisterChild(ctx context.Context, reg Registration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO child_activity_sessions (session_id, child_id, pick_up_station_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (session_id, child_id) DO UPDATE SET pick_up_station_id=EXCLUDED.pick_up_station_id
	`, reg.SessionID, reg.ChildID, reg.PickUpStationID)
	return err
}

// RecordArrival marks the bus as arrived at a station. Only the current
// station (lowest unarrived stop number) can be arrived at; the previous
// stop is closed with left_at at the same moment.
func (s *Service) RecordArrival(ctx context.Context, sessionID, stationID string) error {
	now := time.Now()

	if _, err := s.db.Exec(ctx, `
		UPDATE station_activity_sessions SET left_at=$2
		WHERE session_id=$1 AND arrived_at IS NOT NULL AND left_at IS NULL
	`, sessionID, now); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE station_activity_sessions SET arrived_at=$3
		WHERE session_id=$1 AND station_id=$2 AND arrived_at IS NULL
		  AND stop_number = (
			SELECT MIN(stop_number) FROM station_activity_sessions
			WHERE session_id=$1 AND arrived_at IS NULL
		  )
	`, sessionID, stationID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotCurrentStation
	}

	if s.hub != nil {
		s.hub.Publish(stream.Event{
			Type:      stream.EventStationArrival,
			SessionID: sessionID,
			StationID: stationID,
			At:        now,
		})
	}
	return nil
}

// CurrentStation returns the station the session is heading to or standing
// at, or "" once every station has been arrived at.
func (s *Service) CurrentStation(ctx context.Context, sessionID string) (string, error) {
	var stationID string
	err := s.db.QueryRow(ctx, `
		SELECT station_id FROM station_activity_sessions
		WHERE session_id=$1 AND arrived_at IS NULL
		ORDER BY stop_number LIMIT 1
	`, sessionID).Scan(&stationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", s.requireSession(ctx, sessionID)
	}
	if err != nil {
		return "", err
	}
	return stationID, nil
}

// RemainingStationsInOrder lists the not-yet-departed stops, ascending by
// stop number. The result is always a suffix of the route's stop list.
func (s *Service) RemainingStationsInOrder(ctx context.Context, sessionID string) ([]StationStop, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, station_id, stop_number, scheduled_at, arrived_at, left_at
		FROM station_activity_sessions
		WHERE session_id=$1 AND arrived_at IS NULL
		ORDER BY stop_number
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []StationStop
	for rows.Next() {
		var stop StationStop
		if err := rows.Scan(&stop.SessionID, &stop.StationID, &stop.StopNumber, &stop.ScheduledAt, &stop.ArrivedAt, &stop.LeftAt); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

// ChildrenAtStation lists children registered to board at the station.
func (s *Service) ChildrenAtStation(ctx context.Context, sessionID, stationID string) ([]Child, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.school_id, c.grade, c.drop_off_station_id, c.parent_id, c.created_at
		FROM child_activity_sessions cas
		JOIN children c ON c.id = cas.child_id
		WHERE cas.session_id=$1 AND cas.pick_up_station_id=$2
		ORDER BY c.name
	`, sessionID, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

// ChildrenPendingPickup partitions children whose pickup station is still in
// the remaining stop list. Upcoming children follow the remaining-station
// order, not registration order.
func (s *Service) ChildrenPendingPickup(ctx context.Context, sessionID string, remaining []StationStop) (PendingPickups, error) {
	if len(remaining) == 0 {
		return PendingPickups{}, nil
	}
	stationIDs := stationIDsOf(remaining)

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.school_id, c.grade, c.drop_off_station_id, c.parent_id, c.created_at,
		       cas.pick_up_station_id
		FROM child_activity_sessions cas
		JOIN children c ON c.id = cas.child_id
		WHERE cas.session_id=$1 AND cas.pick_up_station_id = ANY($2)
	`, sessionID, stationIDs)
	if err != nil {
		return PendingPickups{}, err
	}
	defer rows.Close()

	byStation := map[string][]Child{}
	for rows.Next() {
		var child Child
		var pickup string
		if err := rows.Scan(&child.ID, &child.Name, &child.SchoolID, &child.Grade, &child.DropOffStationID, &child.ParentID, &child.CreatedAt, &pickup); err != nil {
			return PendingPickups{}, err
		}
		byStation[pickup] = append(byStation[pickup], child)
	}

	result := PendingPickups{AtCurrentStation: byStation[remaining[0].StationID]}
	for _, stop := range remaining[1:] {
		result.AtUpcomingStations = append(result.AtUpcomingStations, byStation[stop.StationID]...)
	}
	return result, nil
}

// PickupStatus filters candidates by whether a check-in row exists for them
// at the station.
func (s *Service) PickupStatus(ctx context.Context, sessionID, stationID string, candidates []Child, wantPickedUp bool) ([]Child, error) {
	rows, err := s.db.Query(ctx, `
		SELECT child_id FROM child_stations
		WHERE session_id=$1 AND station_id=$2
	`, sessionID, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checkedIn := map[string]bool{}
	for rows.Next() {
		var childID string
		if err := rows.Scan(&childID); err != nil {
			return nil, err
		}
		checkedIn[childID] = true
	}

	var filtered []Child
	for _, child := range candidates {
		if checkedIn[child.ID] == wantPickedUp {
			filtered = append(filtered, child)
		}
	}
	return filtered, nil
}

// DropoffStatus mirrors PickupStatus but keys off each candidate's fixed
// drop-off station and the derived phase.
func (s *Service) DropoffStatus(ctx context.Context, sessionID, stationID string, candidates []Child, wantDroppedOff bool) ([]Child, error) {
	phases, err := s.childPhases(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var filtered []Child
	for _, child := range candidates {
		if child.DropOffStationID != stationID {
			continue
		}
		dropped := phases[child.ID] == PhaseDroppedOff
		if dropped == wantDroppedOff {
			filtered = append(filtered, child)
		}
	}
	return filtered, nil
}

// ChildrenYetToDropOff lists picked-up children whose drop-off station is
// still ahead, ordered by the drop-off station's position in the remaining
// stop list.
func (s *Service) ChildrenYetToDropOff(ctx context.Context, sessionID string, remaining []StationStop) ([]Child, error) {
	if len(remaining) == 0 {
		return nil, nil
	}
	phases, err := s.childPhases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, nil
	}

	onBoard, err := s.childrenOnSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	position := map[string]int{}
	for i, stop := range remaining {
		position[stop.StationID] = i
	}

	var pending []Child
	for _, child := range onBoard {
		if phases[child.ID] != PhasePickedUp {
			continue
		}
		if _, ok := position[child.DropOffStationID]; !ok {
			continue
		}
		pending = append(pending, child)
	}
	sortChildrenByStation(pending, position)
	return pending, nil
}

// ChildrenAlreadyDroppedOff lists children already dropped at the station.
func (s *Service) ChildrenAlreadyDroppedOff(ctx context.Context, sessionID, stationID string) ([]Child, error) {
	phases, err := s.childPhases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, nil
	}

	onBoard, err := s.childrenOnSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var dropped []Child
	for _, child := range onBoard {
		if child.DropOffStationID != stationID {
			continue
		}
		if phases[child.ID] == PhaseDroppedOff {
			dropped = append(dropped, child)
		}
	}
	return dropped, nil
}

// CheckInChild records that a child was processed at a station. The insert
// is idempotent on the natural (child, station, session) key so a retried
// request cannot corrupt phase derivation.
func (s *Service) CheckInChild(ctx context.Context, sessionID, stationID, childID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO child_stations (child_id, station_id, session_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (child_id, station_id, session_id) DO NOTHING
	`, childID, stationID, sessionID)
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(stream.Event{
			Type:      stream.EventChildCheckIn,
			SessionID: sessionID,
			StationID: stationID,
			ClientID:  childID,
			At:        time.Now(),
		})
	}
	return nil
}

// CheckInParent records an accompanying parent at a station.
func (s *Service) CheckInParent(ctx context.Context, sessionID, stationID, parentID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO parent_stations (parent_id, station_id, session_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (parent_id, station_id, session_id) DO NOTHING
	`, parentID, stationID, sessionID)
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(stream.Event{
			Type:      stream.EventParentCheckIn,
			SessionID: sessionID,
			StationID: stationID,
			ClientID:  parentID,
			At:        time.Now(),
		})
	}
	return nil
}

// childPhases derives each child's tagged phase from their check-in row
// count: none pending, one picked up, two dropped off.
func (s *Service) childPhases(ctx context.Context, sessionID string) (map[string]Phase, error) {
	rows, err := s.db.Query(ctx, `
		SELECT child_id, COUNT(*) FROM child_stations
		WHERE session_id=$1
		GROUP BY child_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phases := map[string]Phase{}
	for rows.Next() {
		var childID string
		var count int
		if err := rows.Scan(&childID, &count); err != nil {
			return nil, err
		}
		phases[childID] = phaseFromCount(count)
	}
	return phases, nil
}

func phaseFromCount(count int) Phase {
	switch {
	case count <= 0:
		return PhasePending
	case count == 1:
		return PhasePickedUp
	default:
		// A third row cannot be inserted past the natural key; clamping is
		// a read-side guard only.
		return PhaseDroppedOff
	}
}

func (s *Service) childrenOnSession(ctx context.Context, sessionID string) ([]Child, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.name, c.school_id, c.grade, c.drop_off_station_id, c.parent_id, c.created_at
		FROM child_activity_sessions cas
		JOIN children c ON c.id = cas.child_id
		WHERE cas.session_id=$1
		ORDER BY c.name
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChildren(rows)
}

func (s *Service) requireSession(ctx context.Context, sessionID string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM activity_sessions WHERE id=$1)
	`, sessionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrSessionNotFound
	}
	return nil
}

func scanChildren(rows pgx.Rows) ([]Child, error) {
	var children []Child
	for rows.Next() {
		var child Child
		if err := rows.Scan(&child.ID, &child.Name, &child.SchoolID, &child.Grade, &child.DropOffStationID, &child.ParentID, &child.CreatedAt); err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func stationIDsOf(stops []StationStop) []string {
	ids := make([]string, 0, len(stops))
	for _, stop := range stops {
		ids = append(ids, stop.StationID)
	}
	return ids
}

func sortChildrenByStation(children []Child, position map[string]int) {
	sort.SliceStable(children, func(i, j int) bool {
		return position[children[i].DropOffStationID] < position[children[j].DropOffStationID]
	})
}
