package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
	"github.com/agentpod/agentpod/internal/sandbox/registry"
)

// SandboxHandlers exposes the Sandbox Orchestrator's operations over HTTP.
type SandboxHandlers struct {
	manager  *orchestrator.Manager
	registry *registry.Registry
}

// NewSandboxHandlers creates a SandboxHandlers.
func NewSandboxHandlers(m *orchestrator.Manager, reg *registry.Registry) *SandboxHandlers {
	return &SandboxHandlers{manager: m, registry: reg}
}

func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// Create handles POST /sandboxes.
func (h *SandboxHandlers) Create(c *gin.Context) {
	var req CreateSandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}

	sb, err := h.manager.Create(c.Request.Context(), orchestrator.CreateRequest{
		UserID:      userID(c),
		DisplayName: req.DisplayName,
		Slug:        req.Slug,
		RepoURL:     req.RepoURL,
		RepoToken:   req.RepoToken,
		ConfigTOML:  []byte(req.ConfigTOML),
		Env:         req.Env,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sb)
}

// Get handles GET /sandboxes/:id.
func (h *SandboxHandlers) Get(c *gin.Context) {
	sb, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// List handles GET /sandboxes.
func (h *SandboxHandlers) List(c *gin.Context) {
	sandboxes, err := h.manager.List(c.Request.Context(), userID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sandboxes": sandboxes})
}

// Start handles POST /sandboxes/:id/start.
func (h *SandboxHandlers) Start(c *gin.Context) {
	sb, err := h.manager.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// Stop handles POST /sandboxes/:id/stop.
func (h *SandboxHandlers) Stop(c *gin.Context) {
	sb, err := h.manager.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// Restart handles POST /sandboxes/:id/restart.
func (h *SandboxHandlers) Restart(c *gin.Context) {
	sb, err := h.manager.Restart(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// Pause handles POST /sandboxes/:id/pause.
func (h *SandboxHandlers) Pause(c *gin.Context) {
	sb, err := h.manager.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// Unpause handles POST /sandboxes/:id/unpause.
func (h *SandboxHandlers) Unpause(c *gin.Context) {
	sb, err := h.manager.Unpause(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sb)
}

// Delete handles DELETE /sandboxes/:id.
func (h *SandboxHandlers) Delete(c *gin.Context) {
	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Logs handles GET /sandboxes/:id/logs.
func (h *SandboxHandlers) Logs(c *gin.Context) {
	tail, _ := strconv.Atoi(c.DefaultQuery("tail", "200"))
	logs, err := h.manager.Logs(c.Request.Context(), c.Param("id"), tail)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "text/plain", logs)
}

// Stats handles GET /sandboxes/:id/stats.
func (h *SandboxHandlers) Stats(c *gin.Context) {
	stats, err := h.manager.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Exec handles POST /sandboxes/:id/exec.
func (h *SandboxHandlers) Exec(c *gin.Context) {
	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	result, err := h.manager.Exec(c.Request.Context(), c.Param("id"), req.Argv)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListFlavors handles GET /flavors.
func (h *SandboxHandlers) ListFlavors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"flavors": h.registry.ListFlavors()})
}

// ListTiers handles GET /tiers.
func (h *SandboxHandlers) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.registry.ListTiers()})
}

// ListAddons handles GET /addons.
func (h *SandboxHandlers) ListAddons(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addons": h.registry.ListAddons()})
}
