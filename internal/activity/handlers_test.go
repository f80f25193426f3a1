package activity

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func TestSessionHandlers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	var finishedID string
	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), NewService(mock, nil), passthrough, func(id string) { finishedID = id })

	scheduledAt := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO activity_sessions`).
		WithArgs(pgxmock.AnyArg(), "route-1", pgxmock.AnyArg(), "rainy").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`INSERT INTO station_activity_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "route-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	body, _ := json.Marshal(fiber.Map{"route_id": "route-1", "scheduled_at": scheduledAt, "weather": "rainy"})
	req := httptest.NewRequest(http.MethodPost, "/activities/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status: %v", err)
	}

	var created Session
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &created); err != nil || created.ID == "" {
		t.Fatalf("decode created session: %v", err)
	}

	mock.ExpectExec(`UPDATE activity_sessions SET started_at`).
		WithArgs(created.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	req = httptest.NewRequest(http.MethodPost, "/activities/"+created.ID+"/start", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("start session status: %v", err)
	}

	mock.ExpectExec(`UPDATE activity_sessions SET finished_at`).
		WithArgs(created.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	req = httptest.NewRequest(http.MethodPost, "/activities/"+created.ID+"/finish", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("finish session status: %v", err)
	}
	if finishedID != created.ID {
		t.Fatalf("finish callback not invoked, got %q", finishedID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestArriveConflict(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), NewService(mock, nil), passthrough, nil)

	mock.ExpectExec(`UPDATE station_activity_sessions SET left_at`).
		WithArgs("sess-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE station_activity_sessions SET arrived_at`).
		WithArgs("sess-1", "st-9", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	req := httptest.NewRequest(http.MethodPost, "/activities/sess-1/stations/st-9/arrive", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for out-of-order arrival")
	}
}

func TestProgressHandler(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), NewService(mock, nil), passthrough, nil)

	mock.ExpectQuery(`SELECT station_id FROM station_activity_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"station_id"}).AddRow("st-2"))
	mock.ExpectQuery(`SELECT session_id, station_id, stop_number, scheduled_at, arrived_at, left_at`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "station_id", "stop_number", "scheduled_at", "arrived_at", "left_at"}).
			AddRow("sess-1", "st-2", 2, time.Now(), nil, nil))
	mock.ExpectQuery(`FROM child_activity_sessions cas`).
		WithArgs("sess-1", []string{"st-2"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "school_id", "grade", "drop_off_station_id", "parent_id", "created_at", "pick_up_station_id"}))
	mock.ExpectQuery(`SELECT child_id, COUNT\(\*\) FROM child_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"child_id", "count"}))

	req := httptest.NewRequest(http.MethodGet, "/activities/sess-1/progress", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status: %v", err)
	}

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"current_station":"st-2"`) {
		t.Fatalf("unexpected progress body: %s", raw)
	}
}

func TestCreateChildAndParentHandlers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), NewService(mock, nil), passthrough, nil)

	mock.ExpectQuery(`INSERT INTO children`).
		WithArgs(pgxmock.AnyArg(), "Ana", "school-1", "3A", "st-4", "parent-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	body, _ := json.Marshal(Child{Name: "Ana", SchoolID: "school-1", Grade: "3A", DropOffStationID: "st-4", ParentID: "parent-1"})
	req := httptest.NewRequest(http.MethodPost, "/activities/children", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create child status: %v", err)
	}

	mock.ExpectQuery(`INSERT INTO parents`).
		WithArgs(pgxmock.AnyArg(), "Rui").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	body, _ = json.Marshal(Parent{Name: "Rui"})
	req = httptest.NewRequest(http.MethodPost, "/activities/parents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create parent status: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/activities/children", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for unnamed child")
	}
}

func TestStationRosterHandler(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), NewService(mock, nil), passthrough, nil)

	now := time.Now()
	childCols := []string{"id", "name", "school_id", "grade", "drop_off_station_id", "parent_id", "created_at"}

	// boarding at st-2
	mock.ExpectQuery(`WHERE cas.session_id=\$1 AND cas.pick_up_station_id=\$2`).
		WithArgs("sess-1", "st-2").
		WillReturnRows(pgxmock.NewRows(childCols).
			AddRow("child-a", "Ana", "school-1", "3A", "st-5", "parent-1", now))
	// no check-in rows yet, so child-a is waiting
	mock.ExpectQuery(`SELECT child_id FROM child_stations\s+WHERE session_id=\$1 AND station_id=\$2`).
		WithArgs("sess-1", "st-2").
		WillReturnRows(pgxmock.NewRows([]string{"child_id"}))
	mock.ExpectQuery(`SELECT child_id FROM child_stations\s+WHERE session_id=\$1 AND station_id=\$2`).
		WithArgs("sess-1", "st-2").
		WillReturnRows(pgxmock.NewRows([]string{"child_id"}))
	// child-b is on board and drops off here
	mock.ExpectQuery(`WHERE cas.session_id=\$1\s+ORDER BY c.name`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows(childCols).
			AddRow("child-b", "Bruno", "school-1", "3A", "st-2", "parent-2", now))
	mock.ExpectQuery(`SELECT child_id, COUNT\(\*\) FROM child_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"child_id", "count"}).
			AddRow("child-b", 1))
	mock.ExpectQuery(`SELECT child_id, COUNT\(\*\) FROM child_stations`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"child_id", "count"}).
			AddRow("child-b", 1))
	mock.ExpectQuery(`WHERE cas.session_id=\$1\s+ORDER BY c.name`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows(childCols).
			AddRow("child-b", "Bruno", "school-1", "3A", "st-2", "parent-2", now))

	req := httptest.NewRequest(http.MethodGet, "/activities/sess-1/stations/st-2/children", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("roster status: %v", err)
	}

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"child-a"`) || !strings.Contains(string(raw), `"child-b"`) {
		t.Fatalf("unexpected roster body: %s", raw)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
