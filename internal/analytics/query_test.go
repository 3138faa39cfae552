package analytics

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// timeWithin matches a time argument inside [lo, hi].
type timeWithin struct {
	lo, hi time.Time
}

func (m timeWithin) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && !t.Before(m.lo) && !t.After(m.hi)
}

func expectAggregateQueries(mock sqlmock.Sqlmock, args ...driver.Value) {
	mock.ExpectQuery(`COUNT\(DISTINCT session_id\)`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sessions", "comparisons", "calculations"}).
			AddRow(42, 7, 3, 2))
	mock.ExpectQuery(`TO_CHAR`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).AddRow("2026-08-01", 10))
	mock.ExpectQuery(`EXTRACT\(HOUR`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"hour", "count"}).AddRow(14, 5))
	mock.ExpectQuery(`GROUP BY event_type`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).AddRow("message_sent", 30))
}

func TestAggregateUsesExplicitWindow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	expectAggregateQueries(mock, "t-1", from, to)

	summary, err := NewQuery(db).Aggregate(context.Background(), "t-1", from, to)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !summary.From.Equal(from) || !summary.To.Equal(to) {
		t.Fatalf("summary window: got [%v, %v)", summary.From, summary.To)
	}
	if summary.TotalEvents != 42 || summary.UniqueSessions != 7 {
		t.Fatalf("totals: got %d events, %d sessions", summary.TotalEvents, summary.UniqueSessions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAggregateDefaultsToTrailingThirtyDays(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	before := time.Now().UTC()
	expectAggregateQueries(mock, "t-1",
		timeWithin{lo: before.AddDate(0, 0, -30), hi: before.AddDate(0, 0, -30).Add(time.Minute)},
		timeWithin{lo: before, hi: before.Add(time.Minute)})

	summary, err := NewQuery(db).Aggregate(context.Background(), "t-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got := summary.To.Sub(summary.From); got != 30*24*time.Hour {
		t.Fatalf("default window: got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
