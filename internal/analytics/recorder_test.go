package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
)

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) ProduceSync(_ context.Context, records ...*kgo.Record) kgo.ProduceResults {
	p.calls++
	return kgo.ProduceResults{{Record: records[0], Err: errors.New("broker unavailable")}}
}

func TestRecordSurvivesPublishFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO analytics_events`).
		WithArgs(sqlmock.AnyArg(), "t-1", "s-1", EventCostCalculated, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	publisher := &failingPublisher{}
	r := NewRecorder(RecorderConfig{
		DB:        db,
		Publisher: publisher,
		Logger:    logging.NewLogger(),
	})

	err = r.Record(context.Background(), "t-1", "s-1", EventCostCalculated, map[string]any{"planType": "PPO"})
	if err != nil {
		t.Fatalf("record should not fail when publish fails: %v", err)
	}
	// One attempt plus one retry.
	if publisher.calls != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", publisher.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordFailsWhenInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO analytics_events`).WillReturnError(boom)

	r := NewRecorder(RecorderConfig{DB: db, Logger: logging.NewLogger()})
	err = r.Record(context.Background(), "t-1", "s-1", EventPlanCompared, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped insert error, got %v", err)
	}
}

func TestRecordWithoutPublisherSkipsKafka(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO analytics_events`).WillReturnResult(sqlmock.NewResult(1, 1))

	r := NewRecorder(RecorderConfig{DB: db, Logger: logging.NewLogger()})
	if err := r.Record(context.Background(), "t-1", "s-1", EventConversationStart, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
