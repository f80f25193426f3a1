package badge

import "time"

// Criteria kinds a badge threshold applies to. Special and leaderboard
// badges are never auto-awarded by the threshold check; leaderboard badges
// go to period winners through AwardLeaderboardBadge, special ones are
// granted by hand.
const (
	CriteriaStreak        = "streak"
	CriteriaDistance      = "distance"
	CriteriaCalories      = "calories"
	CriteriaWeather       = "weather"
	CriteriaPoints        = "points"
	CriteriaParticipation = "participation"
	CriteriaSpecial       = "special"
	CriteriaLeaderboard   = "leaderboard"
)

// Badge is a rule: crossing ValueNeeded on the criteria metric earns it.
// Distance badges state the threshold in kilometres.
type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Criteria    string    `json:"criteria"`
	ValueNeeded float64   `json:"value_needed"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClientBadge is an award record, unique per (badge, client); absence means
// not yet earned. Exactly one of ChildID/ParentID is set.
type ClientBadge struct {
	ID       string    `json:"id"`
	BadgeID  string    `json:"badge_id"`
	ChildID  string    `json:"child_id,omitempty"`
	ParentID string    `json:"parent_id,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}
