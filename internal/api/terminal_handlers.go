package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
	"github.com/agentpod/agentpod/internal/terminal"
	"github.com/agentpod/agentpod/internal/wsutil"
)

// TerminalHandlers exposes the Terminal Multiplexer (C8) over HTTP and
// websockets: opening/closing PTY sessions and streaming their output.
type TerminalHandlers struct {
	terminals *terminal.Manager
	sandboxes *orchestrator.Manager
	hub       *wsutil.Hub
	logger    *logger.Logger
	upgrader  websocket.Upgrader
}

// NewTerminalHandlers creates a TerminalHandlers.
func NewTerminalHandlers(t *terminal.Manager, sb *orchestrator.Manager, hub *wsutil.Hub, log *logger.Logger) *TerminalHandlers {
	return &TerminalHandlers{
		terminals: t,
		sandboxes: sb,
		hub:       hub,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Open handles POST /sandboxes/:id/terminals.
func (h *TerminalHandlers) Open(c *gin.Context) {
	sandboxID := c.Param("id")
	sb, err := h.sandboxes.Get(c.Request.Context(), sandboxID)
	if err != nil {
		c.Error(err)
		return
	}
	if sb.ContainerID == nil {
		c.Error(apperrors.Conflict("sandbox has no backing container"))
		return
	}

	var req OpenTerminalRequest
	_ = c.ShouldBindJSON(&req)

	sess, err := h.terminals.Open(c.Request.Context(), sandboxID, *sb.ContainerID, req.Shell)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sess.ToAPI())
}

// List handles GET /sandboxes/:id/terminals.
func (h *TerminalHandlers) List(c *gin.Context) {
	sessions := h.terminals.List(c.Param("id"))
	out := make([]interface{}, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ToAPI())
	}
	c.JSON(http.StatusOK, gin.H{"terminals": out})
}

// Close handles DELETE /terminals/:id.
func (h *TerminalHandlers) Close(c *gin.Context) {
	if err := h.terminals.Close(c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resize handles POST /terminals/:id/resize.
func (h *TerminalHandlers) Resize(c *gin.Context) {
	var req ResizeTerminalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	if err := h.terminals.Resize(c.Request.Context(), c.Param("id"), req.Cols, req.Rows); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stream handles GET /terminals/:id/stream, upgrading to a websocket that
// replays scrollback then relays live PTY output, and forwards any bytes
// the client sends back as keystrokes (§4.8).
func (h *TerminalHandlers) Stream(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.terminals.Get(sessionID); !ok {
		c.Error(apperrors.NotFound("terminal_session", sessionID))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("terminal websocket upgrade failed")
		return
	}

	client := wsutil.NewClient(h.hub, conn, h.logger)
	client.OnMessage = func(data []byte) {
		_ = h.terminals.Write(sessionID, data)
	}
	client.Subscribe(sessionID)

	if scrollback, err := h.terminals.Scrollback(sessionID); err == nil && len(scrollback) > 0 {
		client.WriteBinary(scrollback)
	}

	go client.WritePump()
	client.ReadPump()
}
