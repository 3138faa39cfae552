package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
)

// Publisher mirrors the subset of the Kafka client the recorder needs.
type Publisher interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// NewKafkaClient builds a producer-only client for the analytics topic.
func NewKafkaClient(brokers []string) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("concierge"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return client, nil
}

type RecorderConfig struct {
	DB        *sql.DB
	Publisher Publisher
	Topic     string
	ClusterID string
	Logger    logging.Logger
}

// Recorder writes events to Postgres and forwards a copy to Kafka for the
// wider analytics pipeline. The Kafka leg retries once and then gives up.
type Recorder struct {
	db        *sql.DB
	publisher Publisher
	topic     string
	clusterID string
	logger    logging.Logger
	retry     retrypolicy.RetryPolicy[any]
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	topic := cfg.Topic
	if topic == "" {
		topic = "analytics_events"
	}
	return &Recorder{
		db:        cfg.DB,
		publisher: cfg.Publisher,
		topic:     topic,
		clusterID: cfg.ClusterID,
		logger:    cfg.Logger,
		retry: retrypolicy.NewBuilder[any]().
			WithBackoff(100*time.Millisecond, 1*time.Second).
			WithMaxRetries(1).
			Build(),
	}
}

// Record persists the event. The returned error reflects the Postgres write
// only; callers on the chat path are expected to log and continue.
func (r *Recorder) Record(ctx context.Context, tenantID, sessionID, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	event := Event{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		SessionID: sessionID,
		EventType: eventType,
		EventData: payload,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO analytics_events (id, tenant_id, session_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.TenantID, event.SessionID, event.EventType, []byte(event.EventData), event.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}

	r.publish(event)
	return nil
}

func (r *Recorder) publish(event Event) {
	if r.publisher == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to encode analytics event for Kafka")
		return
	}
	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(event.TenantID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "cluster_id", Value: []byte(r.clusterID)},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	err = failsafe.With(r.retry).Run(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.publisher.ProduceSync(ctx, record).FirstErr()
	})
	if err != nil {
		r.logger.WithError(err).WithFields(logging.Fields{
			"event_type": event.EventType,
			"tenant_id":  event.TenantID,
		}).Warn("Failed to publish analytics event")
	}
}
