package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func expectStreakQueries(mock pgxmock.PgxPoolIface, table, clientID, sessionID string) {
	mock.ExpectQuery(`SELECT id FROM routes`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("route-1"))
	mock.ExpectQuery(`WHERE route_id=\$1 AND finished_at IS NOT NULL`).
		WithArgs("route-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(sessionID))
	mock.ExpectQuery(`SELECT DISTINCT session_id FROM ` + table).
		WithArgs(clientID, []string{sessionID}).
		WillReturnRows(pgxmock.NewRows([]string{"session_id"}).AddRow(sessionID))
}

func TestAggregateSessionWritesStats(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	mock.ExpectQuery(`SELECT route_id, finished_at IS NOT NULL FROM activity_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"route_id", "finished"}).AddRow("route-1", true))

	mock.ExpectQuery(`SELECT DISTINCT child_id FROM child_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"child_id"}).AddRow("child-1"))
	mock.ExpectQuery(`SELECT DISTINCT parent_id FROM parent_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"parent_id"}).AddRow("parent-1"))

	// Child stat: pickup at stop 1, drop-off at stop 3, 700 m in between.
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM child_stats`).
		WithArgs("child-1", "sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`FROM child_activity_sessions cas`).
		WithArgs("sess-1", "route-1", "child-1").
		WillReturnRows(pgxmock.NewRows([]string{"stop_number"}).AddRow(1))
	mock.ExpectQuery(`FROM children c`).
		WithArgs("route-1", "child-1").
		WillReturnRows(pgxmock.NewRows([]string{"stop_number"}).AddRow(3))
	mock.ExpectQuery(`stop_number > \$2 AND stop_number <= \$3`).
		WithArgs("route-1", 1, 3).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(700.0))
	mock.ExpectExec(`INSERT INTO child_stats`).
		WithArgs(pgxmock.AnyArg(), "child-1", "sess-1", 700.0, pgxmock.AnyArg(), 17).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Parent stat copies the best accompanied child's figures.
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM parent_stats`).
		WithArgs("parent-1", "sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`ORDER BY cs.points DESC LIMIT 1`).
		WithArgs("sess-1", "parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "distance_m", "calories", "points"}).
			AddRow("cstat-1", 700.0, 38.5, 17))
	mock.ExpectExec(`INSERT INTO parent_stats`).
		WithArgs(pgxmock.AnyArg(), "parent-1", "sess-1", "cstat-1", 700.0, 38.5, 17).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Recomputed child totals.
	mock.ExpectQuery(`FROM child_stats WHERE child_id`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"distance", "calories", "points", "count"}).
			AddRow(700.0, 38.5, 17, 1))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT a.weather\)`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	expectStreakQueries(mock, "child_stations", "child-1", "sess-1")

	// Recomputed parent totals.
	pd, pc, pp := 700.0, 38.5, 17
	mock.ExpectQuery(`LEFT JOIN child_stats cs`).
		WithArgs("parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "distance_m", "calories", "points"}).
			AddRow("sess-1", &pd, &pc, &pp))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT a.weather\)`).
		WithArgs("parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	expectStreakQueries(mock, "parent_stations", "parent-1", "sess-1")

	childStats, parentStats, err := agg.AggregateSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(childStats) != 1 || childStats[0].Points != 17 || childStats[0].Streak != 1 {
		t.Fatalf("unexpected child stats %+v", childStats)
	}
	if len(parentStats) != 1 || parentStats[0].Points != 17 || parentStats[0].Participations != 1 {
		t.Fatalf("unexpected parent stats %+v", parentStats)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateSessionIdempotentSkip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	mock.ExpectQuery(`SELECT route_id, finished_at IS NOT NULL FROM activity_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"route_id", "finished"}).AddRow("route-1", true))
	mock.ExpectQuery(`SELECT DISTINCT child_id FROM child_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"child_id"}).AddRow("child-1"))
	mock.ExpectQuery(`SELECT DISTINCT parent_id FROM parent_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"parent_id"}))

	// The stat row already exists; no insert happens on a re-run.
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM child_stats`).
		WithArgs("child-1", "sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(`FROM child_stats WHERE child_id`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"distance", "calories", "points", "count"}).
			AddRow(700.0, 38.5, 17, 1))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT a.weather\)`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	expectStreakQueries(mock, "child_stations", "child-1", "sess-1")

	childStats, parentStats, err := agg.AggregateSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(childStats) != 1 || len(parentStats) != 0 {
		t.Fatalf("unexpected stats %+v %+v", childStats, parentStats)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAggregateSessionNotFinished(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	mock.ExpectQuery(`SELECT route_id, finished_at IS NOT NULL FROM activity_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"route_id", "finished"}).AddRow("route-1", false))

	if _, _, err := agg.AggregateSession(context.Background(), "sess-1"); !errors.Is(err, ErrSessionNotFinished) {
		t.Fatalf("expected ErrSessionNotFinished, got %v", err)
	}
}

func TestSessionDistanceFallsBackToWholeRoute(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	// The drop-off station is not on the route, so the whole length counts.
	mock.ExpectQuery(`FROM child_activity_sessions cas`).
		WithArgs("sess-1", "route-1", "child-1").
		WillReturnRows(pgxmock.NewRows([]string{"stop_number"}).AddRow(2))
	mock.ExpectQuery(`FROM children c`).
		WithArgs("route-1", "child-1").
		WillReturnRows(pgxmock.NewRows([]string{"stop_number"}))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(distance_from_prev_m\),0\) FROM route_stations WHERE route_id=\$1`).
		WithArgs("route-1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(1500.0))

	distance, err := agg.sessionDistanceForChild(context.Background(), "sess-1", "route-1", "child-1")
	if err != nil || distance != 1500.0 {
		t.Fatalf("distance = %v %v, want 1500", distance, err)
	}
}

func TestWriteParentStatSkipsWithoutChildStat(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM parent_stats`).
		WithArgs("parent-1", "sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`ORDER BY cs.points DESC LIMIT 1`).
		WithArgs("sess-1", "parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "distance_m", "calories", "points"}))

	if err := agg.writeParentStat(context.Background(), "sess-1", "parent-1"); err != nil {
		t.Fatalf("write parent stat: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestParentStatBestOfPerSession(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	agg := NewAggregator(mock)

	d1, c1, p1 := 500.0, 27.5, 15
	d2, c2, p2 := 900.0, 49.5, 19

	// Two rows for the same session; only the higher-points one counts. The
	// row with a broken child-stat link is skipped entirely.
	mock.ExpectQuery(`LEFT JOIN child_stats cs`).
		WithArgs("parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "distance_m", "calories", "points"}).
			AddRow("sess-1", &d1, &c1, &p1).
			AddRow("sess-1", &d2, &c2, &p2).
			AddRow("sess-2", nil, nil, nil))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT a.weather\)`).
		WithArgs("parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	expectStreakQueries(mock, "parent_stations", "parent-1", "sess-1")

	stat, err := agg.ParentStat(context.Background(), "parent-1")
	if err != nil {
		t.Fatalf("parent stat: %v", err)
	}
	if stat.Points != 19 || stat.DistanceM != 900.0 || stat.Participations != 1 {
		t.Fatalf("unexpected parent stat %+v", stat)
	}
	if stat.WeatherVariety != 2 {
		t.Fatalf("unexpected weather variety %d", stat.WeatherVariety)
	}
}
