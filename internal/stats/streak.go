package stats

import "context"

// Streaks walk every configured route's finished-session history in
// lock-step, most recent first. Round i holds the i-th most recent session
// of each route; the streak is the number of consecutive rounds, newest
// first, in which the client took part. Children and parents share the same
// zero-based seed: three attended rounds is a streak of three for either.

// StreakForChild computes a child's current consecutive-participation streak.
func (a *Aggregator) StreakForChild(ctx context.Context, childID string) (int, error) {
	rounds, sessionIDs, err := a.recencyRounds(ctx)
	if err != nil || len(rounds) == 0 {
		return 0, err
	}
	attended, err := a.attendedSet(ctx, `
		SELECT DISTINCT session_id FROM child_stations
		WHERE child_id=$1 AND session_id = ANY($2)
	`, childID, sessionIDs)
	if err != nil {
		return 0, err
	}
	return streakFromRounds(rounds, attended), nil
}

// StreakForParent computes a parent's streak with the identical algorithm
// over parent check-ins.
func (a *Aggregator) StreakForParent(ctx context.Context, parentID string) (int, error) {
	rounds, sessionIDs, err := a.recencyRounds(ctx)
	if err != nil || len(rounds) == 0 {
		return 0, err
	}
	attended, err := a.attendedSet(ctx, `
		SELECT DISTINCT session_id FROM parent_stations
		WHERE parent_id=$1 AND session_id = ANY($2)
	`, parentID, sessionIDs)
	if err != nil {
		return 0, err
	}
	return streakFromRounds(rounds, attended), nil
}

// recencyRounds loads each route's finished sessions most-recent-first and
// zips them into rounds truncated to the shortest history.
func (a *Aggregator) recencyRounds(ctx context.Context) ([][]string, []string, error) {
	routeIDs, err := a.routeIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(routeIDs) == 0 {
		return nil, nil, nil
	}

	histories := make([][]string, 0, len(routeIDs))
	depth := -1
	for _, routeID := range routeIDs {
		history, err := a.finishedSessionsDesc(ctx, routeID)
		if err != nil {
			return nil, nil, err
		}
		histories = append(histories, history)
		if depth < 0 || len(history) < depth {
			depth = len(history)
		}
	}
	if depth <= 0 {
		return nil, nil, nil
	}

	rounds := make([][]string, depth)
	var all []string
	for i := 0; i < depth; i++ {
		round := make([]string, 0, len(histories))
		for _, history := range histories {
			round = append(round, history[i])
		}
		rounds[i] = round
		all = append(all, round...)
	}
	return rounds, all, nil
}

func streakFromRounds(rounds [][]string, attended map[string]bool) int {
	streak := 0
	for _, round := range rounds {
		participated := false
		for _, sessionID := range round {
			if attended[sessionID] {
				participated = true
				break
			}
		}
		if !participated {
			break
		}
		streak++
	}
	return streak
}

func (a *Aggregator) routeIDs(ctx context.Context) ([]string, error) {
	rows, err := a.db.Query(ctx, `SELECT id FROM routes ORDER BY created_at`)
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

func (a *Aggregator) finishedSessionsDesc(ctx context.Context, routeID string) ([]string, error) {
	rows, err := a.db.Query(ctx, `
		SELECT id FROM activity_sessions
		WHERE route_id=$1 AND finished_at IS NOT NULL
		ORDER BY scheduled_at DESC
	`, routeID)
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

func (a *Aggregator) attendedSet(ctx context.Context, sql, clientID string, sessionIDs []string) (map[string]bool, error) {
	rows, err := a.db.Query(ctx, sql, clientID, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attended := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		attended[id] = true
	}
	return attended, nil
}
