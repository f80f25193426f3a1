package stats

import "time"

// ChildStat is the append-only record of one child's completed session.
type ChildStat struct {
	ID        string    `json:"id"`
	ChildID   string    `json:"child_id"`
	SessionID string    `json:"session_id"`
	DistanceM float64   `json:"distance_m"`
	Calories  float64   `json:"calories"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// ParentStat mirrors ChildStat for an accompanying parent. It references the
// child stat it inherits its figures from: a parent accompanying several
// children on one session is credited with the best result, not the sum.
type ParentStat struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id"`
	SessionID   string    `json:"session_id"`
	ChildStatID string    `json:"child_stat_id"`
	DistanceM   float64   `json:"distance_m"`
	Calories    float64   `json:"calories"`
	Points      int       `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClientStat bundles a participant's running totals, consumed by the badge
// engine after every aggregation run.
type ClientStat struct {
	ClientID       string  `json:"client_id"`
	DistanceM      float64 `json:"distance_m"`
	Calories       float64 `json:"calories"`
	Points         int     `json:"points"`
	Participations int     `json:"participations"`
	WeatherVariety int     `json:"weather_variety"`
	Streak         int     `json:"streak"`
}
