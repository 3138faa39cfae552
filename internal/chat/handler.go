package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prettygood-work/benefits-chat-demo/internal/api"
	"github.com/prettygood-work/benefits-chat-demo/internal/logging"
	"github.com/prettygood-work/benefits-chat-demo/internal/resume"
	"github.com/prettygood-work/benefits-chat-demo/internal/session"
	"github.com/prettygood-work/benefits-chat-demo/internal/store"
)

const maxMessageRunes = 10000

type Handler struct {
	Orchestrator *Orchestrator
	Chats        *store.ChatStore
	Quotas       QuotaChecker
	Logger       logging.Logger

	// chatLocks serializes concurrent generations against the same chat.
	// For horizontal scaling, replace with pg_advisory_xact_lock.
	chatLocks sync.Map
}

func NewHandler(orchestrator *Orchestrator, chats *store.ChatStore, quotas QuotaChecker, logger logging.Logger) *Handler {
	return &Handler{
		Orchestrator: orchestrator,
		Chats:        chats,
		Quotas:       quotas,
		Logger:       logger,
	}
}

func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/chat", h.HandleChat)
	group.DELETE("/chat", h.HandleDeleteChat)
	group.GET("/chat/:id/stream", h.HandleResumeStream)
	group.GET("/history", h.HandleHistory)
}

type ChatRequest struct {
	ID         string `json:"id,omitempty"`
	Message    string `json:"message"`
	ModelID    string `json:"modelId,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// HandleChat runs a generation step and streams its events over SSE. The
// generation itself is detached from the request context: a dropped client
// does not cancel it, and the resumable buffer keeps collecting events.
func (h *Handler) HandleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(c, api.E(api.KindBadRequest, "invalid request payload"))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "message is required"))
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		api.AbortWithError(c, api.E(api.KindBadRequest, "message too long"))
		return
	}
	if req.Visibility != "" && req.Visibility != "private" && req.Visibility != "public" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "visibility must be private or public"))
		return
	}

	ctx := c.Request.Context()
	tenantID := session.GetTenantID(ctx)
	userID := session.GetUserID(ctx)
	if tenantID == "" || userID == "" {
		api.AbortWithError(c, api.E(api.KindUnauthorized, "authentication required"))
		return
	}

	// Fail fast with a proper status before committing to SSE.
	if err := h.Quotas.CheckQuota(ctx, userID, session.GetUserType(ctx)); err != nil {
		api.AbortWithError(c, err)
		return
	}

	chatID := strings.TrimSpace(req.ID)
	if chatID == "" {
		chatID = uuid.New().String()
	}
	streamID := uuid.New().String()

	lockVal, _ := h.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	chatMu, ok := lockVal.(*sync.Mutex)
	if !ok {
		api.AbortWithError(c, api.E(api.KindInternal, "internal lock error"))
		return
	}
	chatMu.Lock()
	defer func() {
		chatMu.Unlock()
		if chatMu.TryLock() {
			h.chatLocks.Delete(chatID)
			chatMu.Unlock()
		}
	}()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		api.AbortWithError(c, api.E(api.KindInternal, "streaming unavailable"))
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Chat-ID", chatID)
	c.Header("X-Stream-ID", streamID)
	c.Status(http.StatusOK)

	buffer := resume.Current()
	events := make(chan Event, 64)
	clientGone := ctx.Done()

	sink := func(ev Event) error {
		if buffer != nil {
			encoded, err := json.Marshal(ev)
			if err == nil {
				if _, err := buffer.Append(context.WithoutCancel(ctx), streamID, encoded); err != nil {
					h.Logger.WithError(err).WithField("stream_id", streamID).Warn("Failed to buffer stream event")
				}
			}
		}
		select {
		case events <- ev:
		case <-clientGone:
			// Client left; generation continues for the buffer alone.
		}
		return nil
	}

	step := Step{
		ChatID:     chatID,
		StreamID:   streamID,
		TenantID:   tenantID,
		UserID:     userID,
		UserType:   session.GetUserType(ctx),
		Message:    req.Message,
		Visibility: req.Visibility,
	}

	go func() {
		defer close(events)
		if _, err := h.Orchestrator.Run(context.WithoutCancel(ctx), step, sink); err != nil {
			h.Logger.WithError(err).WithFields(logging.Fields{
				"chat_id":   chatID,
				"tenant_id": tenantID,
			}).Warn("Generation failed")
		}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSEEvent(c, ev)
			flusher.Flush()
			if ev.Type == EventFinish || ev.Type == EventError {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (h *Handler) HandleDeleteChat(c *gin.Context) {
	chatID := strings.TrimSpace(c.Query("id"))
	if chatID == "" {
		api.AbortWithError(c, api.E(api.KindBadRequest, "chat id is required"))
		return
	}

	ctx := c.Request.Context()
	chat, err := h.Chats.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		api.AbortWithError(c, api.E(api.KindNotFound, "chat not found"))
		return
	}
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to load chat", err))
		return
	}
	if chat.UserID != session.GetUserID(ctx) {
		api.AbortWithError(c, api.E(api.KindForbidden, "chat belongs to another user"))
		return
	}

	if err := h.Chats.DeleteChat(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			api.AbortWithError(c, api.E(api.KindNotFound, "chat not found"))
			return
		}
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to delete chat", err))
		return
	}
	c.JSON(http.StatusOK, chat)
}

// HandleResumeStream replays a chat's most recent stream from the offset in
// Last-Event-ID and joins the live tail. Without a buffer (passthrough mode)
// there is nothing to replay.
func (h *Handler) HandleResumeStream(c *gin.Context) {
	chatID := c.Param("id")
	ctx := c.Request.Context()

	chat, err := h.Chats.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrChatNotFound) {
		api.AbortWithError(c, api.E(api.KindNotFound, "chat not found"))
		return
	}
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to load chat", err))
		return
	}
	if chat.UserID != session.GetUserID(ctx) && chat.Visibility != "public" {
		api.AbortWithError(c, api.E(api.KindForbidden, "chat belongs to another user"))
		return
	}

	buffer := resume.Current()
	if buffer == nil {
		c.Status(http.StatusNoContent)
		return
	}

	streamID, err := h.Chats.LatestStreamID(ctx, chatID)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to look up stream", err))
		return
	}
	if streamID == "" {
		api.AbortWithError(c, api.E(api.KindNotFound, "no stream to resume"))
		return
	}

	from := int64(0)
	if raw := c.GetHeader("Last-Event-ID"); raw != "" {
		last, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || last < 0 {
			api.AbortWithError(c, api.E(api.KindBadRequest, "invalid Last-Event-ID"))
			return
		}
		from = last + 1
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		api.AbortWithError(c, api.E(api.KindInternal, "streaming unavailable"))
		return
	}

	envelopes, err := buffer.Replay(ctx, streamID, from)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to replay stream", err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("X-Stream-ID", streamID)
	c.Status(http.StatusOK)

	for env := range envelopes {
		var ev Event
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			h.Logger.WithError(err).WithField("stream_id", streamID).Warn("Dropped undecodable buffered event")
			continue
		}
		writeSSEEvent(c, ev)
		flusher.Flush()
		if ev.Type == EventFinish || ev.Type == EventError {
			return
		}
	}
}

func (h *Handler) HandleHistory(c *gin.Context) {
	ctx := c.Request.Context()
	userID := session.GetUserID(ctx)
	if userID == "" {
		api.AbortWithError(c, api.E(api.KindUnauthorized, "authentication required"))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	chats, err := h.Chats.ListChatsByUser(ctx, userID, limit)
	if err != nil {
		api.AbortWithError(c, api.Wrap(api.KindInternal, "failed to list chats", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func writeSSEEvent(c *gin.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "id: %d\ndata: %s\n\n", ev.Seq, payload)
}
