// Command sandboxd is the Sandbox Orchestrator's HTTP+websocket service: it
// provisions per-tenant sandbox containers, multiplexes their terminals,
// fans out chat activity, and brokers OAuth grants for external tool
// servers. Adapted from cmd/agent-manager/main.go's startup/shutdown
// sequence, generalized from wiring a single Lifecycle Manager to wiring
// the sandbox orchestrator, terminal multiplexer, chat dispatcher and
// OAuth manager side by side.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentpod/agentpod/internal/api"
	"github.com/agentpod/agentpod/internal/common/config"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events"
	"github.com/agentpod/agentpod/internal/events/bus"
	eventstore "github.com/agentpod/agentpod/internal/events/store"
	"github.com/agentpod/agentpod/internal/gitrepo"
	"github.com/agentpod/agentpod/internal/oauth"
	oauthstore "github.com/agentpod/agentpod/internal/oauth/store"
	"github.com/agentpod/agentpod/internal/runtime/docker"
	"github.com/agentpod/agentpod/internal/sandbox/orchestrator"
	"github.com/agentpod/agentpod/internal/sandbox/registry"
	sandboxstore "github.com/agentpod/agentpod/internal/sandbox/store"
	"github.com/agentpod/agentpod/internal/terminal"
	"github.com/agentpod/agentpod/internal/wsutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting sandbox orchestrator service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("connected to NATS event bus")
	} else {
		eventBus = bus.NewMemoryBus()
		log.Warn("NATS URL not configured, using in-process event bus")
	}
	defer eventBus.Close()

	dockerClient, err := docker.NewClient(cfg.Docker, log)
	if err != nil {
		log.Fatal("failed to initialize docker client", zap.Error(err))
	}
	defer dockerClient.Close()
	if err := dockerClient.Ping(ctx); err != nil {
		log.Fatal("failed to connect to docker daemon", zap.Error(err))
	}
	log.Info("connected to docker daemon")

	reg := registry.NewRegistry(log)
	reg.LoadDefaults()
	log.Info("loaded sandbox registry")

	gitMgr := gitrepo.NewManager(log)

	sbStore, err := newSandboxStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize sandbox store", zap.Error(err))
	}
	defer sbStore.Close()

	chatStore, err := newChatStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize chat store", zap.Error(err))
	}
	defer chatStore.Close()

	oauthStr, err := newOAuthStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize oauth store", zap.Error(err))
	}
	defer oauthStr.Close()

	sandboxMgr := orchestrator.NewManager(dockerClient, reg, sbStore, gitMgr, eventBus, log, orchestrator.Config{
		DataDir:         cfg.DataDir,
		BaseDomain:      cfg.BaseDomain,
		TraefikNetwork:  cfg.TraefikNetwork,
		TLSEnabled:      cfg.TLS.Enabled,
		CertResolver:    cfg.TLS.CertResolver,
		RegistryURL:     cfg.Registry.URL,
		RegistryOwner:   cfg.Registry.Owner,
		RegistryVersion: cfg.Registry.Version,
		ManagementURL:   cfg.ManagementURL,
		StopGrace:       time.Duration(cfg.StopGraceSec) * time.Second,
	})
	if err := sandboxMgr.Run(ctx); err != nil {
		log.Fatal("failed to start sandbox orchestrator", zap.Error(err))
	}
	log.Info("started sandbox orchestrator")

	hub := wsutil.NewHub(log)
	terminalMgr := terminal.NewManager(dockerClient, hub, log)
	chatDispatcher := events.NewDispatcher(chatStore, hub, eventBus, log)

	vault, err := oauth.NewVault(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize oauth vault", zap.Error(err))
	}
	oauthMgr := oauth.NewManager(oauthStr, vault, oauth.Config{
		RedirectURL: fmt.Sprintf("%s/v1/oauth/callback", cfg.BaseDomain),
		ClientName:  "agentpod",
	}, log)
	go oauthMgr.RunRefreshLoop(ctx, 30*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	api.SetupRoutes(router, api.Deps{
		Sandboxes: sandboxMgr,
		Registry:  reg,
		Terminals: terminalMgr,
		Git:       gitMgr,
		Chat:      chatDispatcher,
		OAuth:     oauthMgr,
		Hub:       hub,
		Logger:    log,
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8084
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down sandbox orchestrator service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := sandboxMgr.Shutdown(); err != nil {
		log.Error("sandbox orchestrator shutdown error", zap.Error(err))
	}

	log.Info("sandbox orchestrator service stopped")
}

func newSandboxStore(ctx context.Context, cfg *config.Config) (sandboxstore.Store, error) {
	if cfg.Postgres.DSN == "" {
		return sandboxstore.NewMemoryStore(), nil
	}
	return sandboxstore.NewPostgresStore(ctx, cfg.Postgres.DSN)
}

func newChatStore(ctx context.Context, cfg *config.Config) (eventstore.Store, error) {
	if cfg.Postgres.DSN == "" {
		return eventstore.NewMemoryStore(), nil
	}
	return eventstore.NewPostgresStore(ctx, cfg.Postgres.DSN)
}

func newOAuthStore(ctx context.Context, cfg *config.Config) (oauthstore.Store, error) {
	if cfg.Postgres.DSN == "" {
		return oauthstore.NewMemoryStore(), nil
	}
	return oauthstore.NewPostgresStore(ctx, cfg.Postgres.DSN)
}
