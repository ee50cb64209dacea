package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
	"github.com/agentpod/agentpod/internal/sandbox/schema"
)

const configFileName = "agentpod.toml"

// ConfigHandlers exposes the Sandbox Config Schema (C4) as a file within
// the sandbox's own workspace, so `agentpod.toml` is both what the
// orchestrator parses at creation and what a running sandbox's tooling
// can read back.
type ConfigHandlers struct {
	sandboxes *orchestrator.Manager
}

// NewConfigHandlers creates a ConfigHandlers.
func NewConfigHandlers(sb *orchestrator.Manager) *ConfigHandlers {
	return &ConfigHandlers{sandboxes: sb}
}

// Get handles GET /sandboxes/:id/config.
func (h *ConfigHandlers) Get(c *gin.Context) {
	sandboxID := c.Param("id")
	if _, err := h.sandboxes.Get(c.Request.Context(), sandboxID); err != nil {
		c.Error(err)
		return
	}

	path := filepath.Join(h.sandboxes.WorkspaceDir(sandboxID), configFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		c.JSON(http.StatusOK, &schema.Config{})
		return
	}
	if err != nil {
		c.Error(apperrors.Runtime("failed to read sandbox config", err))
		return
	}

	cfg, err := schema.Parse(data)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Put handles PUT /sandboxes/:id/config.
func (h *ConfigHandlers) Put(c *gin.Context) {
	sandboxID := c.Param("id")
	if _, err := h.sandboxes.Get(c.Request.Context(), sandboxID); err != nil {
		c.Error(err)
		return
	}

	var cfg schema.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	if err := schema.ValidatePartial(&cfg); err != nil {
		c.Error(err)
		return
	}

	data, err := schema.Serialize(&cfg)
	if err != nil {
		c.Error(err)
		return
	}

	path := filepath.Join(h.sandboxes.WorkspaceDir(sandboxID), configFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.Error(apperrors.Runtime("failed to write sandbox config", err))
		return
	}
	c.JSON(http.StatusOK, &cfg)
}
