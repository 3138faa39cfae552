// Package resume buffers generation events per stream so a reconnecting
// client can replay from its last seen offset and join the live tail.
package resume

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is one buffered event. Offset is the event's position in the
// stream, assigned at append time, starting at 0.
type Envelope struct {
	Offset int64           `json:"offset"`
	Data   json.RawMessage `json:"data"`
}

// Buffer stores and replays stream events.
type Buffer interface {
	// Append stores the payload and returns its offset.
	Append(ctx context.Context, streamID string, payload []byte) (int64, error)
	// Replay emits buffered events from the given offset, then live events
	// as they arrive, without duplicates or gaps. The channel closes when
	// ctx is done.
	Replay(ctx context.Context, streamID string, from int64) (<-chan Envelope, error)
}

var (
	mu      sync.Mutex
	current Buffer
	set     bool
)

// Setup installs the process-wide buffer. Only the first call wins; later
// calls are ignored so a request path can never re-initialize delivery.
func Setup(b Buffer) {
	mu.Lock()
	defer mu.Unlock()
	if set {
		return
	}
	current = b
	set = true
}

// Current returns the installed buffer, or nil when delivery is running in
// passthrough mode.
func Current() Buffer {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// reset is for tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
	set = false
}
