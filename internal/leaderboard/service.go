// Package leaderboard produces ranked distance/points/participation totals
// over a timeframe, grouped by parent, child, school or school class.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"backend-cmbraga/internal/db"
)

type Type string

const (
	TypeParents       Type = "PARENTS"
	TypeChildren      Type = "CHILDREN"
	TypeSchools       Type = "SCHOOLS"
	TypeSchoolClasses Type = "SCHOOL_CLASSES"
)

type Timeframe string

const (
	TimeframeMonthly  Timeframe = "monthly"
	TimeframeAnnually Timeframe = "annually"
	TimeframeAllTime  Timeframe = "all-time"
)

// Entry is one aggregated row. Collections come back unordered; callers
// sort and paginate.
type Entry struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Grade     string  `json:"grade,omitempty"`
	DistanceM float64 `json:"distance_m"`
	Points    int     `json:"points"`
	Sessions  int     `json:"sessions"`
}

type Service struct {
	db  db.Querier
	now func() time.Time
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, now: time.Now}
}

// Timeframes maps a timeframe and a number of periods back onto a concrete
// [start, end) range. All-time returns zero bounds, meaning unbounded.
func (s *Service) Timeframes(tf Timeframe, back int) (time.Time, time.Time, error) {
	now := s.now()
	switch tf {
	case TimeframeMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -back, 0)
		return start, start.AddDate(0, 1, 0), nil
	case TimeframeAnnually:
		start := time.Date(now.Year()-back, time.January, 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(1, 0, 0), nil
	case TimeframeAllTime:
		return time.Time{}, time.Time{}, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown timeframe %q", tf)
	}
}

// GetStats aggregates stat rows whose creation date falls in [start, end).
// Zero bounds drop the range predicate.
func (s *Service) GetStats(ctx context.Context, typ Type, start, end time.Time) ([]Entry, error) {
	switch typ {
	case TypeParents:
		return s.clientEntries(ctx, `
			SELECT p.id, p.name, COALESCE(SUM(ps.distance_m),0), COALESCE(SUM(ps.points),0), COUNT(ps.id)
			FROM parent_stats ps
			JOIN parents p ON p.id = ps.parent_id
			WHERE ($1::timestamptz IS NULL OR (ps.created_at >= $1 AND ps.created_at < $2))
			GROUP BY p.id, p.name
		`, start, end)
	case TypeChildren:
		return s.clientEntries(ctx, `
			SELECT c.id, c.name, COALESCE(SUM(cs.distance_m),0), COALESCE(SUM(cs.points),0), COUNT(cs.id)
			FROM child_stats cs
			JOIN children c ON c.id = cs.child_id
			WHERE ($1::timestamptz IS NULL OR (cs.created_at >= $1 AND cs.created_at < $2))
			GROUP BY c.id, c.name
		`, start, end)
	case TypeSchools:
		return s.clientEntries(ctx, `
			SELECT c.school_id, c.school_id, COALESCE(SUM(cs.distance_m),0), COALESCE(SUM(cs.points),0), COUNT(cs.id)
			FROM child_stats cs
			JOIN children c ON c.id = cs.child_id
			WHERE ($1::timestamptz IS NULL OR (cs.created_at >= $1 AND cs.created_at < $2))
			GROUP BY c.school_id
		`, start, end)
	case TypeSchoolClasses:
		return s.classEntries(ctx, start, end)
	default:
		return nil, fmt.Errorf("unknown leaderboard type %q", typ)
	}
}

func (s *Service) clientEntries(ctx context.Context, sql string, start, end time.Time) ([]Entry, error) {
	rows, err := s.db.Query(ctx, sql, nullableTime(start), nullableTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.DistanceM, &e.Points, &e.Sessions); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Service) classEntries(ctx context.Context, start, end time.Time) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.school_id, c.grade, COALESCE(SUM(cs.distance_m),0), COALESCE(SUM(cs.points),0), COUNT(cs.id)
		FROM child_stats cs
		JOIN children c ON c.id = cs.child_id
		WHERE ($1::timestamptz IS NULL OR (cs.created_at >= $1 AND cs.created_at < $2))
		GROUP BY c.school_id, c.grade
	`, nullableTime(start), nullableTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Grade, &e.DistanceM, &e.Points, &e.Sessions); err != nil {
			return nil, err
		}
		// Schools carry no display-name row; children only store a school
		// id, so the id doubles as the label.
		e.Name = e.ID + " " + e.Grade
		entries = append(entries, e)
	}
	return entries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
