package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func TestChildStatHandler(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/stats"), NewAggregator(mock), passthrough)

	mock.ExpectQuery(`FROM child_stats WHERE child_id`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"distance", "calories", "points", "count"}).
			AddRow(1200.0, 66.0, 32, 2))
	mock.ExpectQuery(`SELECT COUNT\(DISTINCT a.weather\)`).
		WithArgs("child-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	expectStreakQueries(mock, "child_stations", "child-1", "sess-1")

	req := httptest.NewRequest(http.MethodGet, "/stats/children/child-1", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("child stat status: %v", err)
	}

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"points":32`) || !strings.Contains(string(raw), `"streak":1`) {
		t.Fatalf("unexpected child stat body: %s", raw)
	}
}

func TestAggregateHandlerConflict(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/stats"), NewAggregator(mock), passthrough)

	mock.ExpectQuery(`SELECT route_id, finished_at IS NOT NULL FROM activity_sessions`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"route_id", "finished"}).AddRow("route-1", false))

	req := httptest.NewRequest(http.MethodPost, "/stats/sessions/sess-1/aggregate", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for unfinished session")
	}
}
