package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type HourlyCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type TypeCount struct {
	EventType string `json:"eventType"`
	Count     int    `json:"count"`
}

// Summary is the aggregate view served to tenant admins.
type Summary struct {
	TenantID           string        `json:"tenantId"`
	From               time.Time     `json:"from"`
	To                 time.Time     `json:"to"`
	TotalEvents        int           `json:"totalEvents"`
	UniqueSessions     int           `json:"uniqueSessions"`
	PlanComparisons    int           `json:"planComparisons"`
	CostCalculations   int           `json:"costCalculations"`
	DailyActivity      []DailyCount  `json:"dailyActivity"`
	HourlyDistribution []HourlyCount `json:"hourlyDistribution"`
	TopEventTypes      []TypeCount   `json:"topEventTypes"`
}

const defaultWindowDays = 30

type Query struct {
	db *sql.DB
}

func NewQuery(db *sql.DB) *Query {
	return &Query{db: db}
}

// Aggregate builds the tenant summary for [from, to). A zero to defaults to
// now; a zero from defaults to the trailing 30 days before to.
func (q *Query) Aggregate(ctx context.Context, tenantID string, from, to time.Time) (Summary, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultWindowDays)
	}

	summary := Summary{TenantID: tenantID, From: from, To: to}

	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(DISTINCT session_id),
		        COUNT(*) FILTER (WHERE event_type = 'plan_compared'),
		        COUNT(*) FILTER (WHERE event_type = 'cost_calculated')
		 FROM analytics_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`,
		tenantID, from, to,
	).Scan(&summary.TotalEvents, &summary.UniqueSessions, &summary.PlanComparisons, &summary.CostCalculations)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregate totals: %w", err)
	}

	if summary.DailyActivity, err = q.dailyActivity(ctx, tenantID, from, to); err != nil {
		return Summary{}, err
	}
	if summary.HourlyDistribution, err = q.hourlyDistribution(ctx, tenantID, from, to); err != nil {
		return Summary{}, err
	}
	if summary.TopEventTypes, err = q.topEventTypes(ctx, tenantID, from, to); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (q *Query) dailyActivity(ctx context.Context, tenantID string, from, to time.Time) ([]DailyCount, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT TO_CHAR(created_at, 'YYYY-MM-DD') AS day, COUNT(*)
		 FROM analytics_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY day ORDER BY day ASC`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("daily activity: %w", err)
	}
	defer rows.Close()

	var out []DailyCount
	for rows.Next() {
		var d DailyCount
		if err := rows.Scan(&d.Day, &d.Count); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *Query) hourlyDistribution(ctx context.Context, tenantID string, from, to time.Time) ([]HourlyCount, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT EXTRACT(HOUR FROM created_at)::int AS hour, COUNT(*)
		 FROM analytics_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY hour ORDER BY hour ASC`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("hourly distribution: %w", err)
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var h HourlyCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("scan hourly distribution: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (q *Query) topEventTypes(ctx context.Context, tenantID string, from, to time.Time) ([]TypeCount, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT event_type, COUNT(*)
		 FROM analytics_events WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY event_type ORDER BY COUNT(*) DESC LIMIT 10`,
		tenantID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("top event types: %w", err)
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var t TypeCount
		if err := rows.Scan(&t.EventType, &t.Count); err != nil {
			return nil, fmt.Errorf("scan event types: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
