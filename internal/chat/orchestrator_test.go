package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prettygood-work/benefits-chat-demo/internal/access"
	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
	"github.com/prettygood-work/benefits-chat-demo/internal/tools"
)

type scriptedStream struct {
	chunks []llm.Chunk
	pos    int
}

func (s *scriptedStream) Recv() (llm.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return llm.Chunk{}, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedProvider struct {
	rounds [][]llm.Chunk
	calls  int
}

func (p *scriptedProvider) Complete(_ context.Context, _ []llm.Message, _ []llm.Tool) (llm.Stream, error) {
	if p.calls >= len(p.rounds) {
		return &scriptedStream{chunks: []llm.Chunk{{Content: "done"}}}, nil
	}
	chunks := p.rounds[p.calls]
	p.calls++
	return &scriptedStream{chunks: chunks}, nil
}

type memoryChats struct {
	chats    map[string]store.Chat
	messages map[string][]store.Message
	handles  map[string]string
	tenants  map[string]string
}

func newMemoryChats() *memoryChats {
	return &memoryChats{
		chats:    map[string]store.Chat{},
		messages: map[string][]store.Message{},
		handles:  map[string]string{},
		tenants:  map[string]string{},
	}
}

func (m *memoryChats) GetChat(_ context.Context, chatID string) (store.Chat, error) {
	chat, ok := m.chats[chatID]
	if !ok {
		return store.Chat{}, store.ErrChatNotFound
	}
	return chat, nil
}

func (m *memoryChats) SaveChat(_ context.Context, chatID, userID, title, visibility string) error {
	m.chats[chatID] = store.Chat{ID: chatID, UserID: userID, Title: title, Visibility: visibility}
	return nil
}

func (m *memoryChats) ListMessages(_ context.Context, chatID string) ([]store.Message, error) {
	return m.messages[chatID], nil
}

func (m *memoryChats) AppendMessages(_ context.Context, chatID string, messages []store.Message) error {
	m.messages[chatID] = append(m.messages[chatID], messages...)
	return nil
}

func (m *memoryChats) CreateStreamHandle(_ context.Context, streamID, chatID string) error {
	m.handles[streamID] = chatID
	return nil
}

func (m *memoryChats) AssociateChatWithTenant(_ context.Context, chatID, tenantID string) error {
	m.tenants[chatID] = tenantID
	return nil
}

type allowAllQuotas struct{ err error }

func (q allowAllQuotas) CheckQuota(context.Context, string, string) error {
	return q.err
}

func (q allowAllQuotas) EntitlementsFor(string) access.Entitlements {
	return access.Entitlements{MaxMessagesPerDay: 100}
}

func collectSink() (EventSink, *[]Event) {
	var events []Event
	return func(ev Event) error {
		events = append(events, ev)
		return nil
	}, &events
}

func testStep() Step {
	return Step{
		ChatID:   "chat-1",
		StreamID: "stream-1",
		TenantID: "t-1",
		UserID:   "u-1",
		UserType: "regular",
		Message:  "how much does the PPO cost?",
	}
}

func TestRunStreamsTokensWithMonotonicSeq(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{{Content: "The PPO "}, {Content: "costs $650 monthly."}},
	}}
	chats := newMemoryChats()
	o := NewOrchestrator(OrchestratorConfig{
		Provider: provider,
		Registry: tools.NewRegistry(),
		Chats:    chats,
		Quotas:   allowAllQuotas{},
		Logger:   logging.NewLogger(),
	})

	sink, events := collectSink()
	result, err := o.Run(context.Background(), testStep(), sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Content != "The PPO costs $650 monthly." {
		t.Fatalf("unexpected content %q", result.Content)
	}

	for i, ev := range *events {
		if ev.Seq != int64(i) {
			t.Fatalf("event %d has seq %d, want %d", i, ev.Seq, i)
		}
	}
	last := (*events)[len(*events)-1]
	if last.Type != EventFinish {
		t.Fatalf("last event should be finish, got %s", last.Type)
	}

	// User and assistant messages are both committed.
	msgs := chats.messages["chat-1"]
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected transcript %+v", msgs)
	}
	if chats.tenants["chat-1"] != "t-1" {
		t.Fatal("chat not associated with tenant")
	}
	if chats.handles["stream-1"] != "chat-1" {
		t.Fatal("stream handle not created")
	}
}

func TestRunToolErrorBecomesPayloadNotAbort(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "broken_tool", Arguments: `{}`}}}},
		{{Content: "I could not look that up."}},
	}}
	registry := tools.NewRegistry(tools.Tool{
		Name:       "broken_tool",
		Parameters: map[string]any{"type": "object"},
		Execute: func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("upstream exploded")
		},
	})
	o := NewOrchestrator(OrchestratorConfig{
		Provider: provider,
		Registry: registry,
		Chats:    newMemoryChats(),
		Quotas:   allowAllQuotas{},
		Logger:   logging.NewLogger(),
	})

	sink, events := collectSink()
	result, err := o.Run(context.Background(), testStep(), sink)
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}
	if !strings.Contains(result.Content, "could not look that up") {
		t.Fatalf("unexpected content %q", result.Content)
	}

	var sawStart, sawResult bool
	for _, ev := range *events {
		switch ev.Type {
		case EventToolStart:
			sawStart = true
		case EventToolResult:
			sawResult = true
			if !strings.Contains(string(ev.Payload), "error") {
				t.Fatalf("tool_result should carry the error payload: %s", ev.Payload)
			}
		}
	}
	if !sawStart || !sawResult {
		t.Fatalf("expected tool_start and tool_result events, got %+v", *events)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Error == "" {
		t.Fatalf("tool call record should note the error: %+v", result.ToolCalls)
	}
}

func TestRunQuotaExceededFailsFast(t *testing.T) {
	provider := &scriptedProvider{}
	o := NewOrchestrator(OrchestratorConfig{
		Provider: provider,
		Registry: tools.NewRegistry(),
		Chats:    newMemoryChats(),
		Quotas:   allowAllQuotas{err: api.E(api.KindRateLimit, "daily message limit reached")},
		Logger:   logging.NewLogger(),
	})

	sink, events := collectSink()
	_, err := o.Run(context.Background(), testStep(), sink)
	if api.KindOf(err) != api.KindRateLimit {
		t.Fatalf("expected rate_limit, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("model must not be called when quota is exceeded")
	}
	last := (*events)[len(*events)-1]
	if last.Type != EventError {
		t.Fatalf("expected terminal error event, got %s", last.Type)
	}
}

func TestRunBoundsToolRounds(t *testing.T) {
	// Every round asks for another tool call; the loop must stop at the cap.
	toolRound := []llm.Chunk{{ToolCalls: []llm.ToolCall{{ID: "c", Name: "echo", Arguments: `{}`}}}}
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		toolRound, toolRound, toolRound, toolRound, toolRound, toolRound, toolRound,
	}}
	registry := tools.NewRegistry(tools.Tool{
		Name:       "echo",
		Parameters: map[string]any{"type": "object"},
		Execute: func(context.Context, json.RawMessage) (any, error) {
			return "ok", nil
		},
	})
	o := NewOrchestrator(OrchestratorConfig{
		Provider:  provider,
		Registry:  registry,
		Chats:     newMemoryChats(),
		Quotas:    allowAllQuotas{},
		Logger:    logging.NewLogger(),
		MaxRounds: 5,
	})

	sink, _ := collectSink()
	if _, err := o.Run(context.Background(), testStep(), sink); err != nil {
		t.Fatalf("run: %v", err)
	}
	if provider.calls != 5 {
		t.Fatalf("expected 5 model rounds, got %d", provider.calls)
	}
}

func TestRunRejectsForeignChat(t *testing.T) {
	chats := newMemoryChats()
	chats.chats["chat-1"] = store.Chat{ID: "chat-1", UserID: "someone-else"}

	o := NewOrchestrator(OrchestratorConfig{
		Provider: &scriptedProvider{},
		Registry: tools.NewRegistry(),
		Chats:    chats,
		Quotas:   allowAllQuotas{},
		Logger:   logging.NewLogger(),
	})

	sink, _ := collectSink()
	_, err := o.Run(context.Background(), testStep(), sink)
	if api.KindOf(err) != api.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestMergeToolCallsAppendsFragments(t *testing.T) {
	merged := mergeToolCalls(nil, []llm.ToolCall{{Index: 0, ID: "call_1", Name: "calculate_plan_costs", Arguments: `{"plan`}})
	merged = mergeToolCalls(merged, []llm.ToolCall{{Index: 0, Arguments: `Type":"PPO"}`}})
	if len(merged) != 1 {
		t.Fatalf("expected 1 call, got %d", len(merged))
	}
	if merged[0].Arguments != `{"planType":"PPO"}` {
		t.Fatalf("fragments not appended: %q", merged[0].Arguments)
	}

	merged = mergeToolCalls(merged, []llm.ToolCall{{Index: 1, ID: "call_2", Name: "compare_plans"}})
	if len(merged) != 2 {
		t.Fatalf("new call not appended: %+v", merged)
	}
}
