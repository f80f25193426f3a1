package activity

import "time"

// Session is one scheduled run of a route. Transitions are one-way:
// pending (neither timestamp) -> in progress (started) -> finished.
type Session struct {
	ID          string     `json:"id"`
	RouteID     string     `json:"route_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Weather     string     `json:"weather"`
	CreatedAt   time.Time  `json:"created_at"`
}

// StationStop is the per-session state of one route station. ArrivedAt is
// null for the current station and everything after it; progress never skips
// a stop.
type StationStop struct {
	SessionID   string     `json:"session_id"`
	StationID   string     `json:"station_id"`
	StopNumber  int        `json:"stop_number"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

type Child struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SchoolID         string    `json:"school_id"`
	Grade            string    `json:"grade"`
	DropOffStationID string    `json:"drop_off_station_id"`
	ParentID         string    `json:"parent_id"`
	CreatedAt        time.Time `json:"created_at"`
}

type Parent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration books a child onto a session at a pickup station; the
// drop-off is the child's persistent drop-off station.
type Registration struct {
	SessionID       string `json:"session_id"`
	ChildID         string `json:"child_id"`
	PickUpStationID string `json:"pick_up_station_id"`
}

// Phase is the explicit per-child state within a session, derived from the
// child's check-in rows in exactly one place (phaseFromCount).
type Phase int

const (
	PhasePending Phase = iota
	PhasePickedUp
	PhaseDroppedOff
)

// PendingPickups partitions children still waiting for pickup by whether
// their station is the current one or further along the route.
type PendingPickups struct {
	AtCurrentStation   []Child `json:"at_current_station"`
	AtUpcomingStations []Child `json:"at_upcoming_stations"`
}
