package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/oauth"
)

// OAuthHandlers exposes the OAuth Client for External Resources (C10).
type OAuthHandlers struct {
	manager *oauth.Manager
}

// NewOAuthHandlers creates an OAuthHandlers.
func NewOAuthHandlers(m *oauth.Manager) *OAuthHandlers {
	return &OAuthHandlers{manager: m}
}

// Authorize handles POST /oauth/authorize, returning the URL the caller
// should redirect the user to.
func (h *OAuthHandlers) Authorize(c *gin.Context) {
	var req StartAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.Invalid("body", apperrors.ErrCodeInvalid, err.Error()))
		return
	}

	authURL, err := h.manager.StartAuthorization(c.Request.Context(), userID(c), req.ResourceURL)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization_url": authURL})
}

// Callback handles GET /oauth/callback?state=...&code=..., completing the
// PKCE exchange.
func (h *OAuthHandlers) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.Error(apperrors.Invalid("query", apperrors.ErrCodeInvalid, "state and code are required"))
		return
	}

	session, err := h.manager.HandleCallback(c.Request.Context(), state, code)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, session)
}
