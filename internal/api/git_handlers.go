package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/gitrepo"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
)

// GitHandlers exposes the Git Repository Manager (C3) scoped to a
// sandbox's checked-out workspace.
type GitHandlers struct {
	git       *gitrepo.Manager
	sandboxes *orchestrator.Manager
}

// NewGitHandlers creates a GitHandlers.
func NewGitHandlers(g *gitrepo.Manager, sb *orchestrator.Manager) *GitHandlers {
	return &GitHandlers{git: g, sandboxes: sb}
}

func (h *GitHandlers) workspaceDir(c *gin.Context) (string, bool) {
	sandboxID := c.Param("id")
	if _, err := h.sandboxes.Get(c.Request.Context(), sandboxID); err != nil {
		c.Error(err)
		return "", false
	}
	return h.sandboxes.WorkspaceDir(sandboxID), true
}

// Clone handles POST /sandboxes/:id/git/clone.
func (h *GitHandlers) Clone(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	var req CloneRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	if err := h.git.Clone(c.Request.Context(), dir, req.RemoteURL, req.Token); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Branches handles GET /sandboxes/:id/git/branches.
func (h *GitHandlers) Branches(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	branches, err := h.git.Branches(dir)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

// Status handles GET /sandboxes/:id/git/status.
func (h *GitHandlers) Status(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	status, err := h.git.Status(dir)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Log handles GET /sandboxes/:id/git/log.
func (h *GitHandlers) Log(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("n", "20"))
	commits, err := h.git.Log(dir, n)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commits": commits})
}

// Commit handles POST /sandboxes/:id/git/commit.
func (h *GitHandlers) Commit(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	sha, err := h.git.Commit(dir, req.Message, req.AuthorName, req.AuthorEmail)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sha": sha})
}

// CheckoutBranch handles POST /sandboxes/:id/git/checkout.
func (h *GitHandlers) CheckoutBranch(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	var req CheckoutBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}
	if err := h.git.CheckoutBranch(dir, req.Branch, req.Create); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DiffSummary handles GET /sandboxes/:id/git/diff.
func (h *GitHandlers) DiffSummary(c *gin.Context) {
	dir, ok := h.workspaceDir(c)
	if !ok {
		return
	}
	summary, err := h.git.DiffSummary(dir)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
