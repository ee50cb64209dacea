package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events"
	"github.com/agentpod/agentpod/internal/wsutil"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// ChatHandlers exposes the Event Fan-Out / Chat Sync component (C9) over
// HTTP and websockets.
type ChatHandlers struct {
	dispatcher *events.Dispatcher
	hub        *wsutil.Hub
	logger     *logger.Logger
	upgrader   websocket.Upgrader
}

// NewChatHandlers creates a ChatHandlers.
func NewChatHandlers(d *events.Dispatcher, hub *wsutil.Hub, log *logger.Logger) *ChatHandlers {
	return &ChatHandlers{
		dispatcher: d,
		hub:        hub,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start handles POST /sandboxes/:id/chat.
func (h *ChatHandlers) Start(c *gin.Context) {
	agentID := c.Query("agent_id")
	cs, err := h.dispatcher.StartSession(c.Request.Context(), c.Param("id"), agentID, "")
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

// PostMessage handles POST /chat/:session_id/messages.
func (h *ChatHandlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}

	parts := make([]v1.ContentPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, v1.ContentPart{Kind: p.Kind, Text: p.Text, URL: p.URL, Path: p.Path})
	}

	msg := &v1.ChatMessage{
		SessionID: c.Param("session_id"),
		Role:      v1.MessageRole(req.Role),
		Parts:     parts,
	}
	if err := h.dispatcher.AppendMessage(c.Request.Context(), msg); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// History handles GET /chat/:session_id/messages.
func (h *ChatHandlers) History(c *gin.Context) {
	since, _ := strconv.ParseInt(c.DefaultQuery("since_id", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	messages, err := h.dispatcher.History(c.Request.Context(), c.Param("session_id"), since, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Stream handles GET /chat/:session_id/stream, upgrading to a websocket
// fed by the chat session's Hub topic (§4.9).
func (h *ChatHandlers) Stream(c *gin.Context) {
	sessionID := c.Param("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("chat websocket upgrade failed")
		return
	}

	client := wsutil.NewClient(h.hub, conn, h.logger)
	client.Subscribe(sessionID)

	go client.WritePump()
	client.ReadPump()
}
