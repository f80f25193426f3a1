package badge

import (
	"context"
	"errors"
	"time"

	"backend-cmbraga/internal/db"
	"backend-cmbraga/internal/stats"
	"backend-cmbraga/internal/stream"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Engine decides which badges a participant has newly earned. Awarding is
// idempotent: the unique (badge, client) key backstops the check-then-insert
// so concurrent completions cannot produce duplicates, and a lost race is
// swallowed, never surfaced.
type Engine struct {
	db  db.Querier
	hub *stream.Hub
}

func NewEngine(db db.Querier, hub *stream.Hub) *Engine {
	return &Engine{db: db, hub: hub}
}

// HasEnoughForBadge is the pure threshold check. Distance thresholds are
// configured in kilometres against totals kept in metres.
func HasEnoughForBadge(stat stats.ClientStat, b Badge) bool {
	switch b.Criteria {
	case CriteriaStreak:
		return float64(stat.Streak) >= b.ValueNeeded
	case CriteriaDistance:
		return stat.DistanceM >= b.ValueNeeded*1000
	case CriteriaCalories:
		return stat.Calories >= b.ValueNeeded
	case CriteriaWeather:
		return float64(stat.WeatherVariety) >= b.ValueNeeded
	case CriteriaPoints:
		return float64(stat.Points) >= b.ValueNeeded
	case CriteriaParticipation:
		return float64(stat.Participations) >= b.ValueNeeded
	default:
		return false
	}
}

func (e *Engine) CreateBadge(ctx context.Context, input Badge) (Badge, error) {
	input.ID = uuid.NewString()
	row := e.db.QueryRow(ctx, `
		INSERT INTO badges (id, name, description, criteria, value_needed)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, input.ID, input.Name, input.Description, input.Criteria, input.ValueNeeded)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Badge{}, err
	}
	return input, nil
}

func (e *Engine) Catalogue(ctx context.Context) ([]Badge, error) {
	rows, err := e.db.Query(ctx, `
		SELECT id, name, description, criteria, value_needed, created_at
		FROM badges
		ORDER BY value_needed
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Criteria, &b.ValueNeeded, &b.CreatedAt); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, nil
}

// EvaluateAndAwardBadges awards every badge each stat bundle qualifies for
// and returns the newly created awards. Re-running over the same stats is a
// no-op.
func (e *Engine) EvaluateAndAwardBadges(ctx context.Context, badges []Badge, childStats, parentStats []stats.ClientStat) ([]ClientBadge, error) {
	var awarded []ClientBadge
	for _, b := range badges {
		for _, stat := range childStats {
			if !HasEnoughForBadge(stat, b) {
				continue
			}
			award, err := e.awardChild(ctx, b.ID, stat.ClientID)
			if err != nil {
				return awarded, err
			}
			if award != nil {
				awarded = append(awarded, *award)
			}
		}
		for _, stat := range parentStats {
			if !HasEnoughForBadge(stat, b) {
				continue
			}
			award, err := e.awardParent(ctx, b.ID, stat.ClientID)
			if err != nil {
				return awarded, err
			}
			if award != nil {
				awarded = append(awarded, *award)
			}
		}
	}
	return awarded, nil
}

// AwardLeaderboardBadge gives the period's top child the lowest-threshold
// leaderboard badge they do not hold yet. Called by the periodic job.
func (e *Engine) AwardLeaderboardBadge(ctx context.Context, start, end time.Time) (*ClientBadge, error) {
	var winnerID string
	err := e.db.QueryRow(ctx, `
		SELECT child_id FROM child_stats
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY child_id
		ORDER BY SUM(points) DESC
		LIMIT 1
	`, start, end).Scan(&winnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var badgeID string
	err = e.db.QueryRow(ctx, `
		SELECT id FROM badges
		WHERE criteria=$1
		  AND id NOT IN (SELECT badge_id FROM client_badges WHERE child_id=$2)
		ORDER BY value_needed
		LIMIT 1
	`, CriteriaLeaderboard, winnerID).Scan(&badgeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return e.awardChild(ctx, badgeID, winnerID)
}

func (e *Engine) awardChild(ctx context.Context, badgeID, childID string) (*ClientBadge, error) {
	var exists bool
	err := e.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM client_badges WHERE badge_id=$1 AND child_id=$2)
	`, badgeID, childID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	award := ClientBadge{ID: uuid.NewString(), BadgeID: badgeID, ChildID: childID, EarnedAt: time.Now()}
	tag, err := e.db.Exec(ctx, `
		INSERT INTO client_badges (id, badge_id, child_id, earned_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (badge_id, child_id) DO NOTHING
	`, award.ID, award.BadgeID, award.ChildID, award.EarnedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the race to a concurrent run; the badge is already held.
		return nil, nil
	}

	e.notify(award)
	return &award, nil
}

func (e *Engine) awardParent(ctx context.Context, badgeID, parentID string) (*ClientBadge, error) {
	var exists bool
	err := e.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM client_badges WHERE badge_id=$1 AND parent_id=$2)
	`, badgeID, parentID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	award := ClientBadge{ID: uuid.NewString(), BadgeID: badgeID, ParentID: parentID, EarnedAt: time.Now()}
	tag, err := e.db.Exec(ctx, `
		INSERT INTO client_badges (id, badge_id, parent_id, earned_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (badge_id, parent_id) DO NOTHING
	`, award.ID, award.BadgeID, award.ParentID, award.EarnedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	e.notify(award)
	return &award, nil
}

// notify is the fire-and-forget dispatch sink for fresh awards.
func (e *Engine) notify(award ClientBadge) {
	if e.hub == nil {
		return
	}
	clientID := award.ChildID
	if clientID == "" {
		clientID = award.ParentID
	}
	e.hub.Publish(stream.Event{
		Type:      stream.EventBadgeAwarded,
		SessionID: clientID,
		ClientID:  clientID,
		BadgeID:   award.BadgeID,
		At:        award.EarnedAt,
	})
}
