package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prettygood-work/benefits-chat-demo/internal/access"
	"github.com/prettygood-work/benefits-chat-demo/internal/analytics"
	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/llm"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/search"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
	"github.com/prettygood-work/benefits-chat-demo/internal/tenants"
	"github.com/prettygood-work/benefits-chat-demo/internal/tools"
)

const (
	defaultMaxToolRounds      = 5
	defaultMaxHistoryMessages = 20
	defaultSearchLimit        = 3
	maxParallelTools          = 3
)

// ChatPersister is the slice of the chat store the orchestrator writes to.
type ChatPersister interface {
	GetChat(ctx context.Context, chatID string) (store.Chat, error)
	SaveChat(ctx context.Context, chatID, userID, title, visibility string) error
	ListMessages(ctx context.Context, chatID string) ([]store.Message, error)
	AppendMessages(ctx context.Context, chatID string, messages []store.Message) error
	CreateStreamHandle(ctx context.Context, streamID, chatID string) error
	AssociateChatWithTenant(ctx context.Context, chatID, tenantID string) error
}

// QuotaChecker is satisfied by access.Authorizer.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, userID, userType string) error
	EntitlementsFor(userType string) access.Entitlements
}

type OrchestratorConfig struct {
	Provider    llm.Provider
	Registry    *tools.Registry
	Chats       ChatPersister
	Tenants     TenantNamer
	Quotas      QuotaChecker
	Search      search.Provider
	Recorder    tools.EventRecorder
	Logger      logging.Logger
	Metrics     *Metrics
	MaxRounds   int
	MaxHistory  int
	SearchLimit int
}

// TenantNamer resolves a tenant id to its display name for the system prompt.
type TenantNamer interface {
	GetByID(ctx context.Context, id string) (tenants.Tenant, error)
}

// Metrics holds the orchestrator's domain counters.
type Metrics struct {
	Generations *prometheus.CounterVec
	ToolCalls   *prometheus.CounterVec
}

// Step is one generation request: a user message against a chat, on behalf
// of an authenticated session.
type Step struct {
	ChatID     string
	StreamID   string
	TenantID   string
	UserID     string
	UserType   string
	Message    string
	Visibility string
}

type ToolCallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type Result struct {
	ChatID    string
	StreamID  string
	Content   string
	ToolCalls []ToolCallRecord
}

type Orchestrator struct {
	provider    llm.Provider
	registry    *tools.Registry
	chats       ChatPersister
	tenants     TenantNamer
	quotas      QuotaChecker
	search      search.Provider
	recorder    tools.EventRecorder
	logger      logging.Logger
	metrics     *Metrics
	maxRounds   int
	maxHistory  int
	searchLimit int
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistoryMessages
	}
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}
	return &Orchestrator{
		provider:    cfg.Provider,
		registry:    cfg.Registry,
		chats:       cfg.Chats,
		tenants:     cfg.Tenants,
		quotas:      cfg.Quotas,
		search:      cfg.Search,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxRounds:   maxRounds,
		maxHistory:  maxHistory,
		searchLimit: searchLimit,
	}
}

// Run drives one generation step: persist the user message, stream model
// output and tool activity as ordered events, then commit the transcript.
// Events already delivered are never retracted; a late failure surfaces as a
// terminal error event.
func (o *Orchestrator) Run(ctx context.Context, step Step, sink EventSink) (Result, error) {
	if o.provider == nil {
		return Result{}, api.E(api.KindUpstreamUnavailable, "no model configured")
	}
	em := newEmitter(sink)

	result, err := o.run(ctx, step, em)
	if err != nil {
		_ = em.error(api.MessageOf(err))
		return Result{}, err
	}
	_ = em.finish(map[string]string{"chatId": step.ChatID, "streamId": step.StreamID})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, step Step, em *emitter) (Result, error) {
	// Tools read tenant and chat identity from the context.
	ctx = session.WithTenantID(ctx, step.TenantID)
	ctx = session.WithChatID(ctx, step.ChatID)
	ctx = session.WithUserID(ctx, step.UserID)

	if err := o.quotas.CheckQuota(ctx, step.UserID, step.UserType); err != nil {
		return Result{}, err
	}

	isNewChat, err := o.ensureChat(ctx, step)
	if err != nil {
		return Result{}, err
	}

	history, err := o.chats.ListMessages(ctx, step.ChatID)
	if err != nil {
		return Result{}, api.Wrap(api.KindInternal, "failed to load chat history", err)
	}

	userMessage := store.Message{
		ID:      uuid.New().String(),
		ChatID:  step.ChatID,
		Role:    "user",
		Content: step.Message,
	}
	if err := o.chats.AppendMessages(ctx, step.ChatID, []store.Message{userMessage}); err != nil {
		return Result{}, api.Wrap(api.KindInternal, "failed to persist message", err)
	}
	if err := o.chats.CreateStreamHandle(ctx, step.StreamID, step.ChatID); err != nil {
		return Result{}, api.Wrap(api.KindInternal, "failed to create stream handle", err)
	}
	if err := o.chats.AssociateChatWithTenant(ctx, step.ChatID, step.TenantID); err != nil {
		return Result{}, api.Wrap(api.KindInternal, "failed to associate chat", err)
	}

	if isNewChat && o.recorder != nil {
		if err := o.recorder.Record(ctx, step.TenantID, step.ChatID, analytics.EventConversationStart, map[string]string{
			"userType": step.UserType,
		}); err != nil {
			o.logger.WithError(err).Warn("Failed to record conversation start")
		}
	}

	messages := o.buildMessages(ctx, step, history)
	allowed := o.quotas.EntitlementsFor(step.UserType).AllowedTools
	defs := o.registry.Definitions(allowed)

	if o.metrics != nil && o.metrics.Generations != nil {
		o.metrics.Generations.WithLabelValues(step.TenantID).Inc()
	}

	content, records, err := o.generate(ctx, messages, defs, em)
	if err != nil {
		return Result{}, err
	}

	if err := o.commit(ctx, step, content, records); err != nil {
		return Result{}, err
	}
	return Result{
		ChatID:    step.ChatID,
		StreamID:  step.StreamID,
		Content:   content,
		ToolCalls: records,
	}, nil
}

// ensureChat creates the chat on first use and enforces ownership on reuse.
// New chats are titled from the first user message.
func (o *Orchestrator) ensureChat(ctx context.Context, step Step) (bool, error) {
	chat, err := o.chats.GetChat(ctx, step.ChatID)
	if errors.Is(err, store.ErrChatNotFound) {
		if err := o.chats.SaveChat(ctx, step.ChatID, step.UserID, truncateTitle(step.Message, 60), step.Visibility); err != nil {
			return false, api.Wrap(api.KindInternal, "failed to create chat", err)
		}
		return true, nil
	}
	if err != nil {
		return false, api.Wrap(api.KindInternal, "failed to load chat", err)
	}
	if chat.UserID != step.UserID {
		return false, api.E(api.KindForbidden, "chat belongs to another user")
	}
	return false, nil
}

func (o *Orchestrator) buildMessages(ctx context.Context, step Step, history []store.Message) []llm.Message {
	tenantName := ""
	if o.tenants != nil {
		if t, err := o.tenants.GetByID(ctx, step.TenantID); err == nil {
			tenantName = t.Name
		}
	}

	var docs []search.Document
	if o.search != nil {
		found, err := o.search.Search(ctx, step.Message, step.TenantID, o.searchLimit)
		if err != nil {
			o.logger.WithError(err).Warn("Knowledge search failed, answering without context")
		} else {
			docs = found
		}
	}

	system := buildSystemPrompt(tenantName, docs, step.UserType)
	return buildPromptMessages(system, history, step.Message, o.maxHistory)
}

// generate runs the bounded model/tool loop, emitting events as it goes.
func (o *Orchestrator) generate(ctx context.Context, messages []llm.Message, defs []llm.Tool, em *emitter) (string, []ToolCallRecord, error) {
	var response strings.Builder
	var records []ToolCallRecord

	for round := 0; round < o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		stream, err := o.provider.Complete(ctx, messages, defs)
		if err != nil {
			return "", nil, api.Wrap(api.KindUpstreamUnavailable, "model unavailable", err)
		}

		var pendingToolCalls []llm.ToolCall
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				_ = stream.Close()
				return "", nil, api.Wrap(api.KindUpstreamUnavailable, "model stream failed", err)
			}
			if chunk.Content != "" {
				response.WriteString(chunk.Content)
				if err := em.token(chunk.Content); err != nil {
					_ = stream.Close()
					return "", nil, err
				}
			}
			if len(chunk.ToolCalls) > 0 {
				pendingToolCalls = mergeToolCalls(pendingToolCalls, chunk.ToolCalls)
			}
		}
		_ = stream.Close()

		if len(pendingToolCalls) == 0 {
			break
		}

		// Replay the assistant turn with its tool calls so the next round
		// sees the call/result pairing it expects.
		messages = append(messages, assistantToolMessage(pendingToolCalls))

		toolMessages, roundRecords := o.executeToolCalls(ctx, pendingToolCalls, em)
		messages = append(messages, toolMessages...)
		records = append(records, roundRecords...)

		if round == o.maxRounds-1 {
			response.WriteString("\n\nI could not finish answering within the allowed number of tool steps.")
		}
	}
	return response.String(), records, nil
}

// executeToolCalls runs one round's tool calls with bounded parallelism.
// Results are collected and emitted in call order.
func (o *Orchestrator) executeToolCalls(ctx context.Context, calls []llm.ToolCall, em *emitter) ([]llm.Message, []ToolCallRecord) {
	type toolResult struct {
		record  ToolCallRecord
		payload any
	}
	results := make([]toolResult, len(calls))

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxParallelTools)
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c llm.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_ = em.toolStart(c.Name)
			if o.metrics != nil && o.metrics.ToolCalls != nil {
				o.metrics.ToolCalls.WithLabelValues(c.Name).Inc()
			}

			record := ToolCallRecord{Name: c.Name}
			if c.Arguments != "" {
				record.Arguments = json.RawMessage(c.Arguments)
			}
			payload, err := o.registry.Execute(ctx, c.Name, json.RawMessage(c.Arguments))
			if err != nil {
				o.logger.WithError(err).WithField("tool", c.Name).Warn("Tool execution failed")
				record.Error = err.Error()
				payload = map[string]string{"error": api.MessageOf(err)}
			}
			results[idx] = toolResult{record: record, payload: payload}
		}(i, call)
	}
	wg.Wait()

	toolMessages := make([]llm.Message, 0, len(calls))
	records := make([]ToolCallRecord, 0, len(calls))
	for i, call := range calls {
		res := results[i]
		_ = em.toolResult(call.Name, res.payload)
		records = append(records, res.record)

		content, err := json.Marshal(res.payload)
		if err != nil {
			content = []byte(`{"error":"unencodable tool result"}`)
		}
		toolMessages = append(toolMessages, llm.Message{
			Role:       "tool",
			Content:    string(content),
			Name:       call.Name,
			ToolCallID: call.ID,
		})
	}
	return toolMessages, records
}

// commit appends the assistant message and its tool transcript in one
// logical append.
func (o *Orchestrator) commit(ctx context.Context, step Step, content string, records []ToolCallRecord) error {
	var toolCalls json.RawMessage
	if len(records) > 0 {
		encoded, err := json.Marshal(records)
		if err == nil {
			toolCalls = encoded
		}
	}

	assistant := store.Message{
		ID:        uuid.New().String(),
		ChatID:    step.ChatID,
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	}
	if err := o.chats.AppendMessages(ctx, step.ChatID, []store.Message{assistant}); err != nil {
		return api.Wrap(api.KindInternal, "failed to commit transcript", err)
	}
	return nil
}

func assistantToolMessage(calls []llm.ToolCall) llm.Message {
	msg := llm.Message{Role: "assistant"}
	for _, c := range calls {
		msg.ToolCalls = append(msg.ToolCalls, llm.MessageToolCall{
			ID:   c.ID,
			Type: "function",
			Function: llm.MessageFunction{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	return msg
}

// mergeToolCalls accumulates tool calls across streaming chunks. Argument
// fragments for a call already seen are appended; new calls are added.
// Fragments match by ID when present, otherwise by stream index.
func mergeToolCalls(existing, incoming []llm.ToolCall) []llm.ToolCall {
	for _, inc := range incoming {
		found := false
		for i, ex := range existing {
			if (inc.ID != "" && ex.ID == inc.ID) || (inc.ID == "" && ex.Index == inc.Index) {
				existing[i].Arguments += inc.Arguments
				if inc.Name != "" {
					existing[i].Name = inc.Name
				}
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, inc)
		}
	}
	return existing
}
