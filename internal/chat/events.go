package chat

import (
	"encoding/json"
	"sync"
)

type EventType string

const (
	EventToken      EventType = "token"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventFinish     EventType = "finish"
	EventError      EventType = "error"
)

// Event is one frame of a generation stream. Seq increases by exactly one
// per event within a stream, starting at 0, and doubles as the replay offset.
type Event struct {
	Seq      int64           `json:"seq"`
	Type     EventType       `json:"type"`
	Content  string          `json:"content,omitempty"`
	ToolName string          `json:"toolName,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// EventSink receives every event of a stream in order.
type EventSink func(Event) error

// emitter assigns sequence numbers and serializes writes to the sink. Tool
// goroutines emit concurrently, so ordering is enforced here.
type emitter struct {
	mu   sync.Mutex
	seq  int64
	sink EventSink
}

func newEmitter(sink EventSink) *emitter {
	return &emitter{sink: sink}
}

func (e *emitter) emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	event.Seq = e.seq
	e.seq++
	return e.sink(event)
}

func (e *emitter) token(content string) error {
	return e.emit(Event{Type: EventToken, Content: content})
}

func (e *emitter) toolStart(name string) error {
	return e.emit(Event{Type: EventToolStart, ToolName: name})
}

func (e *emitter) toolResult(name string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(`{"error":"unencodable tool result"}`)
	}
	return e.emit(Event{Type: EventToolResult, ToolName: name, Payload: encoded})
}

func (e *emitter) finish(payload any) error {
	encoded, _ := json.Marshal(payload)
	return e.emit(Event{Type: EventFinish, Payload: encoded})
}

func (e *emitter) error(message string) error {
	encoded, _ := json.Marshal(map[string]string{"message": message})
	return e.emit(Event{Type: EventError, Payload: encoded})
}
