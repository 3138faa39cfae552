package resume

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBuffer is a process-local Buffer for tests and single-node setups.
type MemoryBuffer struct {
	mu          sync.Mutex
	streams     map[string][][]byte
	subscribers map[string][]chan Envelope
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{
		streams:     make(map[string][][]byte),
		subscribers: make(map[string][]chan Envelope),
	}
}

func (b *MemoryBuffer) Append(_ context.Context, streamID string, payload []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	copied := append([]byte{}, payload...)
	b.streams[streamID] = append(b.streams[streamID], copied)
	offset := int64(len(b.streams[streamID]) - 1)

	env := Envelope{Offset: offset, Data: copied}
	for _, sub := range b.subscribers[streamID] {
		select {
		case sub <- env:
		default:
		}
	}
	return offset, nil
}

func (b *MemoryBuffer) Replay(ctx context.Context, streamID string, from int64) (<-chan Envelope, error) {
	if from < 0 {
		from = 0
	}

	b.mu.Lock()
	live := make(chan Envelope, 64)
	b.subscribers[streamID] = append(b.subscribers[streamID], live)
	var backlog []Envelope
	events := b.streams[streamID]
	for i := from; i < int64(len(events)); i++ {
		backlog = append(backlog, Envelope{Offset: i, Data: json.RawMessage(events[i])})
	}
	b.mu.Unlock()

	out := make(chan Envelope, 16)
	go func() {
		defer close(out)
		defer b.unsubscribe(streamID, live)

		next := from
		for _, env := range backlog {
			select {
			case out <- env:
				next = env.Offset + 1
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case env := <-live:
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

func (b *MemoryBuffer) unsubscribe(streamID string, ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[streamID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[streamID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
