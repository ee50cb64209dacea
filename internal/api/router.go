package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events"
	"github.com/agentpod/agentpod/internal/gitrepo"
	"github.com/agentpod/agentpod/internal/oauth"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
	"github.com/agentpod/agentpod/internal/sandbox/registry"
	"github.com/agentpod/agentpod/internal/terminal"
	"github.com/agentpod/agentpod/internal/wsutil"
)

// Deps bundles everything the HTTP surface needs to construct its handlers.
type Deps struct {
	Sandboxes  *orchestrator.Manager
	Registry   *registry.Registry
	Terminals  *terminal.Manager
	Git        *gitrepo.Manager
	Chat       *events.Dispatcher
	OAuth      *oauth.Manager
	Hub        *wsutil.Hub
	Logger     *logger.Logger
	RatePerSec int
}

// SetupRoutes mounts every sandbox orchestrator endpoint on engine.
func SetupRoutes(engine *gin.Engine, deps Deps) {
	engine.Use(Recovery(deps.Logger), RequestLogger(deps.Logger), CORS(), ErrorHandler(deps.Logger))
	if deps.RatePerSec > 0 {
		engine.Use(RateLimit(deps.RatePerSec))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	sandboxes := NewSandboxHandlers(deps.Sandboxes, deps.Registry)
	terminals := NewTerminalHandlers(deps.Terminals, deps.Sandboxes, deps.Hub, deps.Logger)
	git := NewGitHandlers(deps.Git, deps.Sandboxes)
	chat := NewChatHandlers(deps.Chat, deps.Hub, deps.Logger)
	cfg := NewConfigHandlers(deps.Sandboxes)
	oauthHandlers := NewOAuthHandlers(deps.OAuth)

	v1 := engine.Group("/v1")
	{
		v1.GET("/flavors", sandboxes.ListFlavors)
		v1.GET("/tiers", sandboxes.ListTiers)
		v1.GET("/addons", sandboxes.ListAddons)

		sb := v1.Group("/sandboxes")
		{
			sb.POST("", sandboxes.Create)
			sb.GET("", sandboxes.List)
			sb.GET("/:id", sandboxes.Get)
			sb.DELETE("/:id", sandboxes.Delete)
			sb.POST("/:id/start", sandboxes.Start)
			sb.POST("/:id/stop", sandboxes.Stop)
			sb.POST("/:id/restart", sandboxes.Restart)
			sb.POST("/:id/pause", sandboxes.Pause)
			sb.POST("/:id/unpause", sandboxes.Unpause)
			sb.GET("/:id/logs", sandboxes.Logs)
			sb.GET("/:id/stats", sandboxes.Stats)
			sb.POST("/:id/exec", sandboxes.Exec)

			sb.GET("/:id/config", cfg.Get)
			sb.PUT("/:id/config", cfg.Put)

			sb.POST("/:id/terminals", terminals.Open)
			sb.GET("/:id/terminals", terminals.List)

			sb.POST("/:id/git/clone", git.Clone)
			sb.GET("/:id/git/branches", git.Branches)
			sb.GET("/:id/git/status", git.Status)
			sb.GET("/:id/git/log", git.Log)
			sb.POST("/:id/git/commit", git.Commit)
			sb.POST("/:id/git/checkout", git.CheckoutBranch)
			sb.GET("/:id/git/diff", git.DiffSummary)

			sb.POST("/:id/chat", chat.Start)
		}

		v1.DELETE("/terminals/:id", terminals.Close)
		v1.POST("/terminals/:id/resize", terminals.Resize)
		v1.GET("/terminals/:id/stream", terminals.Stream)

		v1.POST("/chat/:session_id/messages", chat.PostMessage)
		v1.GET("/chat/:session_id/messages", chat.History)
		v1.GET("/chat/:session_id/stream", chat.Stream)

		v1.POST("/oauth/authorize", oauthHandlers.Authorize)
		v1.GET("/oauth/callback", oauthHandlers.Callback)
	}
}
