package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
)

// RedisBuffer keeps each stream in a Redis list and announces appends on a
// pub/sub channel so live tails never poll.
type RedisBuffer struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger
}

func NewRedisBuffer(client *redis.Client, ttl time.Duration, logger logging.Logger) *RedisBuffer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisBuffer{client: client, ttl: ttl, logger: logger}
}

func listKey(streamID string) string {
	return "stream:" + streamID + ":events"
}

func channelKey(streamID string) string {
	return "stream:" + streamID + ":live"
}

func (b *RedisBuffer) Append(ctx context.Context, streamID string, payload []byte) (int64, error) {
	length, err := b.client.RPush(ctx, listKey(streamID), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("append stream event: %w", err)
	}
	offset := length - 1
	if err := b.client.Expire(ctx, listKey(streamID), b.ttl).Err(); err != nil {
		b.logger.WithError(err).WithField("stream_id", streamID).Warn("Failed to refresh stream TTL")
	}

	envelope, err := json.Marshal(Envelope{Offset: offset, Data: payload})
	if err != nil {
		return offset, fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, channelKey(streamID), envelope).Err(); err != nil {
		b.logger.WithError(err).WithField("stream_id", streamID).Warn("Failed to publish stream event")
	}
	return offset, nil
}

func (b *RedisBuffer) Replay(ctx context.Context, streamID string, from int64) (<-chan Envelope, error) {
	if from < 0 {
		from = 0
	}

	// Subscribe before reading the backlog so nothing falls between.
	sub := b.client.Subscribe(ctx, channelKey(streamID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe stream: %w", err)
	}

	backlog, err := b.client.LRange(ctx, listKey(streamID), from, -1).Result()
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("read stream backlog: %w", err)
	}

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		next := from
		for i, raw := range backlog {
			env := Envelope{Offset: from + int64(i), Data: json.RawMessage(raw)}
			select {
			case out <- env:
				next = env.Offset + 1
			case <-ctx.Done():
				return
			}
		}

		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.WithError(err).WithField("stream_id", streamID).Warn("Dropped undecodable stream event")
					continue
				}
				// Offsets already replayed from the backlog are skipped.
				if env.Offset < next {
					continue
				}
				select {
				case out <- env:
					next = env.Offset + 1
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
