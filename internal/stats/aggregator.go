package stats

import (
	"context"
	"errors"

	"backend-cmbraga/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Walking figures per metre. Distances come precomputed from the route
// configuration; calories and points are derived from them.
const (
	caloriesPerMeter = 0.055
	metersPerPoint   = 100.0
	basePoints       = 10
)

var (
	ErrSessionNotFound    = errors.New("activity session not found")
	ErrSessionNotFinished = errors.New("session is not finished")
)

// Aggregator turns finished sessions into stat rows and running totals.
// Runs are idempotent: a participant already holding a stat row for the
// session is skipped, so re-triggering never double-counts.
type Aggregator struct {
	db db.Querier
}

func NewAggregator(db db.Querier) *Aggregator {
	return &Aggregator{db: db}
}

// AggregateSession writes one stat row per involved child and parent and
// returns the recomputed totals for everyone touched.
func (a *Aggregator) AggregateSession(ctx context.Context, sessionID string) ([]ClientStat, []ClientStat, error) {
	var routeID string
	var finished bool
	err := a.db.QueryRow(ctx, `
		SELECT route_id, finished_at IS NOT NULL FROM activity_sessions WHERE id=$1
	`, sessionID).Scan(&routeID, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !finished {
		return nil, nil, ErrSessionNotFinished
	}

	childIDs, err := a.involvedClients(ctx, `
		SELECT DISTINCT child_id FROM child_stations WHERE session_id=$1
	`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	parentIDs, err := a.involvedClients(ctx, `
		SELECT DISTINCT parent_id FROM parent_stations WHERE session_id=$1
	`, sessionID)
	if err != nil {
		return nil, nil, err
	}

	for _, childID := range childIDs {
		if err := a.writeChildStat(ctx, sessionID, routeID, childID); err != nil {
			return nil, nil, err
		}
	}
	for _, parentID := range parentIDs {
		if err := a.writeParentStat(ctx, sessionID, parentID); err != nil {
			return nil, nil, err
		}
	}

	childStats := make([]ClientStat, 0, len(childIDs))
	for _, childID := range childIDs {
		stat, err := a.ChildStat(ctx, childID)
		if err != nil {
			return nil, nil, err
		}
		childStats = append(childStats, stat)
	}
	parentStats := make([]ClientStat, 0, len(parentIDs))
	for _, parentID := range parentIDs {
		stat, err := a.ParentStat(ctx, parentID)
		if err != nil {
			return nil, nil, err
		}
		parentStats = append(parentStats, stat)
	}
	return childStats, parentStats, nil
}

func (a *Aggregator) writeChildStat(ctx context.Context, sessionID, routeID, childID string) error {
	var exists bool
	err := a.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM child_stats WHERE child_id=$1 AND session_id=$2)
	`, childID, sessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	distance, err := a.sessionDistanceForChild(ctx, sessionID, routeID, childID)
	if err != nil {
		return err
	}
	calories := distance * caloriesPerMeter
	points := basePoints + int(distance/metersPerPoint)

	_, err = a.db.Exec(ctx, `
		INSERT INTO child_stats (id, child_id, session_id, distance_m, calories, points)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, uuid.NewString(), childID, sessionID, distance, calories, points)
	return err
}

// sessionDistanceForChild sums the configured inter-station distances over
// the child's pickup-to-drop-off span. When either end cannot be placed on
// the route the whole route length is used.
func (a *Aggregator) sessionDistanceForChild(ctx context.Context, sessionID, routeID, childID string) (float64, error) {
	pickupStop, pickupOK, err := a.stopNumber(ctx, `
		SELECT rs.stop_number
		FROM child_activity_sessions cas
		JOIN route_stations rs ON rs.route_id=$2 AND rs.station_id=cas.pick_up_station_id
		WHERE cas.session_id=$1 AND cas.child_id=$3
	`, sessionID, routeID, childID)
	if err != nil {
		return 0, err
	}
	dropStop, dropOK, err := a.stopNumber(ctx, `
		SELECT rs.stop_number
		FROM children c
		JOIN route_stations rs ON rs.route_id=$1 AND rs.station_id=c.drop_off_station_id
		WHERE c.id=$2
	`, routeID, childID)
	if err != nil {
		return 0, err
	}

	if !pickupOK || !dropOK || dropStop <= pickupStop {
		var total float64
		err := a.db.QueryRow(ctx, `
			SELECT COALESCE(SUM(distance_from_prev_m),0) FROM route_stations WHERE route_id=$1
		`, routeID).Scan(&total)
		return total, err
	}

	var distance float64
	err = a.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(distance_from_prev_m),0) FROM route_stations
		WHERE route_id=$1 AND stop_number > $2 AND stop_number <= $3
	`, routeID, pickupStop, dropStop).Scan(&distance)
	return distance, err
}

func (a *Aggregator) stopNumber(ctx context.Context, sql string, args ...any) (int, bool, error) {
	var stop int
	err := a.db.QueryRow(ctx, sql, args...).Scan(&stop)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stop, true, nil
}

func (a *Aggregator) writeParentStat(ctx context.Context, sessionID, parentID string) error {
	var exists bool
	err := a.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM parent_stats WHERE parent_id=$1 AND session_id=$2)
	`, parentID, sessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	// Best-performing child among those the parent accompanied.
	var best ChildStat
	err = a.db.QueryRow(ctx, `
		SELECT cs.id, cs.distance_m, cs.calories, cs.points
		FROM child_stats cs
		JOIN children c ON c.id = cs.child_id
		WHERE cs.session_id=$1 AND c.parent_id=$2
		ORDER BY cs.points DESC LIMIT 1
	`, sessionID, parentID).Scan(&best.ID, &best.DistanceM, &best.Calories, &best.Points)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = a.db.Exec(ctx, `
		INSERT INTO parent_stats (id, parent_id, session_id, child_stat_id, distance_m, calories, points)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), parentID, sessionID, best.ID, best.DistanceM, best.Calories, best.Points)
	return err
}

// ChildStat computes a child's running totals over their whole history.
func (a *Aggregator) ChildStat(ctx context.Context, childID string) (ClientStat, error) {
	stat := ClientStat{ClientID: childID}
	err := a.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(distance_m),0), COALESCE(SUM(calories),0), COALESCE(SUM(points),0), COUNT(*)
		FROM child_stats WHERE child_id=$1
	`, childID).Scan(&stat.DistanceM, &stat.Calories, &stat.Points, &stat.Participations)
	if err != nil {
		return ClientStat{}, err
	}

	err = a.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT a.weather)
		FROM child_stats cs
		JOIN activity_sessions a ON a.id = cs.session_id
		WHERE cs.child_id=$1
	`, childID).Scan(&stat.WeatherVariety)
	if err != nil {
		return ClientStat{}, err
	}

	stat.Streak, err = a.StreakForChild(ctx, childID)
	if err != nil {
		return ClientStat{}, err
	}
	return stat, nil
}

// ParentStat computes a parent's totals. Each historical row is resolved
// through its linked child stat; rows with a missing link are skipped, and
// within a session only the highest-points resolution counts.
func (a *Aggregator) ParentStat(ctx context.Context, parentID string) (ClientStat, error) {
	rows, err := a.db.Query(ctx, `
		SELECT ps.session_id, cs.distance_m, cs.calories, cs.points
		FROM parent_stats ps
		LEFT JOIN child_stats cs ON cs.id = ps.child_stat_id
		WHERE ps.parent_id=$1
	`, parentID)
	if err != nil {
		return ClientStat{}, err
	}
	defer rows.Close()

	type figures struct {
		distance float64
		calories float64
		points   int
	}
	bestPerSession := map[string]figures{}
	for rows.Next() {
		var sessionID string
		var distance, calories *float64
		var points *int
		if err := rows.Scan(&sessionID, &distance, &calories, &points); err != nil {
			return ClientStat{}, err
		}
		if distance == nil || calories == nil || points == nil {
			// Linked child stat is gone; tolerate and move on.
			continue
		}
		current, ok := bestPerSession[sessionID]
		if !ok || *points > current.points {
			bestPerSession[sessionID] = figures{distance: *distance, calories: *calories, points: *points}
		}
	}

	stat := ClientStat{ClientID: parentID, Participations: len(bestPerSession)}
	for _, f := range bestPerSession {
		stat.DistanceM += f.distance
		stat.Calories += f.calories
		stat.Points += f.points
	}

	err = a.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT a.weather)
		FROM parent_stats ps
		JOIN activity_sessions a ON a.id = ps.session_id
		WHERE ps.parent_id=$1
	`, parentID).Scan(&stat.WeatherVariety)
	if err != nil {
		return ClientStat{}, err
	}

	stat.Streak, err = a.StreakForParent(ctx, parentID)
	if err != nil {
		return ClientStat{}, err
	}
	return stat, nil
}

func (a *Aggregator) involvedClients(ctx context.Context, sql, sessionID string) ([]string, error) {
	rows, err := a.db.Query(ctx, sql, sessionID)
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
