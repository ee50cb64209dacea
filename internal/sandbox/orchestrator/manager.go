// Package orchestrator implements the Sandbox Orchestrator (C7, §4.7): the
// state machine that creates, starts, stops, pauses and deletes sandbox
// containers, reconciling its bookkeeping against the Docker daemon's own
// view of the world. It is adapted from the teacher's agent lifecycle
// manager, generalized from per-task agent containers to per-user sandbox
// environments, and from the teacher's executor's bounded-concurrency
// semaphore for the launch path.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
	"github.com/agentpod/agentpod/internal/events/bus"
	"github.com/agentpod/agentpod/internal/gitrepo"
	"github.com/agentpod/agentpod/internal/runtime/docker"
	"github.com/agentpod/agentpod/internal/sandbox/detect"
	"github.com/agentpod/agentpod/internal/sandbox/registry"
	"github.com/agentpod/agentpod/internal/sandbox/schema"
	"github.com/agentpod/agentpod/internal/sandbox/specbuilder"
	"github.com/agentpod/agentpod/internal/sandbox/store"
	v1 "github.com/agentpod/agentpod/pkg/api/v1"
)

// Subjects used when publishing lifecycle events on the bus (§4.9).
const (
	SubjectSandboxCreated = "sandbox.created"
	SubjectSandboxStarted = "sandbox.started"
	SubjectSandboxStopped = "sandbox.stopped"
	SubjectSandboxPaused  = "sandbox.paused"
	SubjectSandboxDeleted = "sandbox.deleted"
	SubjectSandboxError   = "sandbox.error"
)

// CreateRequest carries everything needed to provision a new sandbox.
type CreateRequest struct {
	UserID       string
	DisplayName  string
	Slug         string // optional; generated from the sandbox id when empty
	RepoURL      string
	RepoToken    string
	ConfigTOML   []byte // raw agentpod.toml contents, optional
	Env          map[string]string
}

// Manager is the Sandbox Orchestrator's public contract.
type Manager struct {
	docker   *docker.Client
	registry *registry.Registry
	store    store.Store
	gitMgr   *gitrepo.Manager
	eventBus bus.EventBus
	logger   *logger.Logger

	dataDir        string
	baseDomain     string
	traefikNetwork string
	tlsEnabled     bool
	certResolver   string
	registryURL    string
	registryOwner  string
	registryVer    string
	managementURL  string
	stopGrace      time.Duration

	sem chan struct{} // bounds concurrent Create calls; Start does not take it

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-sandbox-id state-transition lock

	reconcileInterval time.Duration
	stopCh            chan struct{}
	wg                sync.WaitGroup
}

// Config bundles the Manager's deployment-specific settings.
type Config struct {
	DataDir            string
	BaseDomain         string
	TraefikNetwork     string
	TLSEnabled         bool
	CertResolver       string
	RegistryURL        string
	RegistryOwner      string
	RegistryVersion    string
	ManagementURL      string
	StopGrace          time.Duration
	MaxConcurrentStart int
	ReconcileInterval  time.Duration
}

// NewManager creates a Manager.
func NewManager(d *docker.Client, reg *registry.Registry, st store.Store, gm *gitrepo.Manager, eb bus.EventBus, log *logger.Logger, cfg Config) *Manager {
	if cfg.MaxConcurrentStart <= 0 {
		cfg.MaxConcurrentStart = 5
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 15 * time.Second
	}

	return &Manager{
		docker:            d,
		registry:          reg,
		store:             st,
		gitMgr:            gm,
		eventBus:          eb,
		logger:            log.WithFields(zap.String("component", "sandbox.orchestrator")),
		dataDir:           cfg.DataDir,
		baseDomain:        cfg.BaseDomain,
		traefikNetwork:    cfg.TraefikNetwork,
		tlsEnabled:        cfg.TLSEnabled,
		certResolver:      cfg.CertResolver,
		registryURL:       cfg.RegistryURL,
		registryOwner:     cfg.RegistryOwner,
		registryVer:       cfg.RegistryVersion,
		managementURL:     cfg.ManagementURL,
		stopGrace:         cfg.StopGrace,
		sem:               make(chan struct{}, cfg.MaxConcurrentStart),
		locks:             make(map[string]*sync.Mutex),
		reconcileInterval: cfg.ReconcileInterval,
		stopCh:            make(chan struct{}),
	}
}

// Run begins the background reconciliation loop.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("starting sandbox orchestrator")
	m.wg.Add(1)
	go m.reconcileLoop(ctx)
	return nil
}

// Shutdown halts the reconciliation loop and waits for it to exit.
func (m *Manager) Shutdown() error {
	m.logger.Info("stopping sandbox orchestrator")
	close(m.stopCh)
	m.wg.Wait()
	return nil
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Create provisions a new sandbox: it prepares the workspace directory,
// resolves the project's configuration and flavor, and launches the
// backing container (§4.7: created -> starting -> running).
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*v1.Sandbox, error) {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	default:
		return nil, apperrors.LimitReached("concurrent sandbox starts")
	}

	sandboxID := uuid.New().String()
	slug := req.Slug
	if slug == "" {
		slug = fmt.Sprintf("sb-%s", sandboxID[:8])
	}

	workspaceHost := filepath.Join(m.dataDir, "workspaces", sandboxID)
	if err := os.MkdirAll(workspaceHost, 0755); err != nil {
		return nil, apperrors.Runtime("failed to create workspace directory", err)
	}

	if req.RepoURL != "" {
		if err := m.gitMgr.Clone(ctx, workspaceHost, req.RepoURL, req.RepoToken); err != nil {
			return nil, err
		}
	} else {
		if err := m.gitMgr.Init(workspaceHost); err != nil {
			return nil, err
		}
	}

	var cfg *schema.Config
	if len(req.ConfigTOML) > 0 {
		parsed, err := schema.Parse(req.ConfigTOML)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	detected := detect.Detect(workspaceHost)

	out, err := specbuilder.Build(specbuilder.Input{
		SandboxID:      sandboxID,
		Slug:           slug,
		UserID:         req.UserID,
		UserEnv:        req.Env,
		WorkspaceHost:  workspaceHost,
		Config:         cfg,
		Detected:       detected,
		BaseDomain:     m.baseDomain,
		TraefikNetwork: m.traefikNetwork,
		TLSEnabled:     m.tlsEnabled,
		CertResolver:   m.certResolver,
		RegistryURL:    m.registryURL,
		RegistryOwner:  m.registryOwner,
		RegistryVer:    m.registryVer,
		ManagementURL:  m.managementURL,
	}, m.registry)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sb := &v1.Sandbox{
		ID:           sandboxID,
		Slug:         slug,
		DisplayName:  firstNonEmpty(req.DisplayName, slug),
		UserID:       req.UserID,
		Status:       v1.SandboxCreated,
		Image:        out.Spec.Image,
		Resources:    resourceLimitsFromSpec(out),
		Ports:        portMappingsFromRoutes(out),
		Mounts:       mountsFromSpec(out.Spec),
		Labels:       out.ProxyLabels,
		Network:      m.traefikNetwork,
		StartCommand: out.Spec.Cmd,
		Flavor:       out.Flavor,
		Tier:         out.Tier,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.Create(ctx, sb); err != nil {
		return nil, err
	}

	m.publish(ctx, SubjectSandboxCreated, sb)

	if err := m.launch(ctx, sb, out.Spec); err != nil {
		sb.Status = v1.SandboxError
		errMsg := err.Error()
		sb.LastError = &errMsg
		sb.UpdatedAt = time.Now()
		_ = m.store.Update(ctx, sb)
		m.publish(ctx, SubjectSandboxError, sb)
		return sb, err
	}

	return sb, nil
}

func (m *Manager) launch(ctx context.Context, sb *v1.Sandbox, spec docker.Spec) error {
	lock := m.lockFor(sb.ID)
	lock.Lock()
	defer lock.Unlock()

	sb.Status = v1.SandboxStarting
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return err
	}

	containerID, err := m.docker.Create(ctx, spec)
	if err != nil {
		return err
	}

	if err := m.docker.Start(ctx, containerID); err != nil {
		_ = m.docker.Remove(ctx, containerID, true)
		return err
	}

	sb.ContainerID = &containerID
	sb.Status = v1.SandboxRunning
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return err
	}

	m.publish(ctx, SubjectSandboxStarted, sb)
	m.logger.Info("sandbox started", zap.String("sandbox_id", sb.ID), zap.String("container_id", containerID))
	return nil
}

// Start (re)starts a stopped sandbox's container (§4.7).
func (m *Manager) Start(ctx context.Context, id string) (*v1.Sandbox, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.Status == v1.SandboxRunning {
		return sb, nil
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container to start")
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.docker.Start(ctx, *sb.ContainerID); err != nil {
		return nil, err
	}

	sb.Status = v1.SandboxRunning
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return nil, err
	}
	m.publish(ctx, SubjectSandboxStarted, sb)
	return sb, nil
}

// Stop gracefully stops the sandbox's container (§4.7).
func (m *Manager) Stop(ctx context.Context, id string) (*v1.Sandbox, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return sb, nil
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	sb.Status = v1.SandboxStopping
	sb.UpdatedAt = time.Now()
	_ = m.store.Update(ctx, sb)

	if err := m.docker.Stop(ctx, *sb.ContainerID, m.stopGrace); err != nil {
		return nil, err
	}

	sb.Status = v1.SandboxStopped
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return nil, err
	}
	m.publish(ctx, SubjectSandboxStopped, sb)
	return sb, nil
}

// Restart stops then starts the sandbox's container.
func (m *Manager) Restart(ctx context.Context, id string) (*v1.Sandbox, error) {
	if _, err := m.Stop(ctx, id); err != nil {
		return nil, err
	}
	return m.Start(ctx, id)
}

// Pause suspends the sandbox's container without stopping it (§4.7).
func (m *Manager) Pause(ctx context.Context, id string) (*v1.Sandbox, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container to pause")
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.docker.Pause(ctx, *sb.ContainerID); err != nil {
		return nil, err
	}

	sb.Status = v1.SandboxPaused
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return nil, err
	}
	m.publish(ctx, SubjectSandboxPaused, sb)
	return sb, nil
}

// Unpause resumes a paused sandbox's container.
func (m *Manager) Unpause(ctx context.Context, id string) (*v1.Sandbox, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container to unpause")
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.docker.Unpause(ctx, *sb.ContainerID); err != nil {
		return nil, err
	}

	sb.Status = v1.SandboxRunning
	sb.UpdatedAt = time.Now()
	if err := m.store.Update(ctx, sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// Delete stops and removes the sandbox's container and its record.
// Idempotent: deleting an already-gone sandbox is not an error (§4.7).
func (m *Manager) Delete(ctx context.Context, id string) error {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if sb.ContainerID != nil {
		if err := m.docker.Remove(ctx, *sb.ContainerID, true); err != nil {
			return err
		}
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	if m.dataDir != "" {
		_ = os.RemoveAll(filepath.Join(m.dataDir, "workspaces", id))
	}

	m.publish(ctx, SubjectSandboxDeleted, sb)
	return nil
}

// Get returns a sandbox by id.
func (m *Manager) Get(ctx context.Context, id string) (*v1.Sandbox, error) {
	return m.store.Get(ctx, id)
}

// List returns all sandboxes owned by userID, or all sandboxes when empty.
func (m *Manager) List(ctx context.Context, userID string) ([]*v1.Sandbox, error) {
	return m.store.List(ctx, userID)
}

// WorkspaceDir returns the host path a sandbox's repository is checked out
// to, for callers (the git API handlers) that need to run git operations
// directly against it.
func (m *Manager) WorkspaceDir(id string) string {
	return filepath.Join(m.dataDir, "workspaces", id)
}

// Logs returns the sandbox container's combined log stream.
func (m *Manager) Logs(ctx context.Context, id string, tailLines int) ([]byte, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container")
	}

	reader, err := m.docker.Logs(ctx, *sb.ContainerID, tailLines)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4096)
	for {
		n, rerr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	return buf, nil
}

// Stats returns the sandbox container's instantaneous resource usage.
func (m *Manager) Stats(ctx context.Context, id string) (*v1.Stats, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container")
	}

	snap, err := m.docker.Stats(ctx, *sb.ContainerID)
	if err != nil {
		return nil, err
	}
	return &v1.Stats{
		CPUPercent: snap.CPUPercent,
		MemRSS:     snap.MemRSS,
		MemLimit:   snap.MemLimit,
		NetRxBytes: snap.NetRxBytes,
		NetTxBytes: snap.NetTxBytes,
		BlkIOBytes: snap.BlkIOBytes,
	}, nil
}

// Exec runs a one-shot command inside the sandbox container (§4.7).
func (m *Manager) Exec(ctx context.Context, id string, argv []string) (*v1.ExecResult, error) {
	sb, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sb.ContainerID == nil {
		return nil, apperrors.Conflict("sandbox has no backing container")
	}

	exitCode, output, err := m.docker.ExecOnce(ctx, *sb.ContainerID, argv, "")
	if err != nil {
		return nil, err
	}
	return &v1.ExecResult{ExitCode: exitCode, Stdout: output}, nil
}

func (m *Manager) publish(ctx context.Context, subject string, sb *v1.Sandbox) {
	if m.eventBus == nil {
		return
	}
	event, err := bus.NewEvent(subject, sb)
	if err != nil {
		m.logger.Error("failed to encode sandbox event", zap.Error(err))
		return
	}
	if err := m.eventBus.Publish(ctx, event); err != nil {
		m.logger.Error("failed to publish sandbox event", zap.String("subject", subject), zap.Error(err))
	}
}

// reconcileLoop periodically reconciles tracked sandboxes against the
// daemon's actual container state, adapted from the teacher's cleanup
// loop (§4.7: a sandbox whose container has exited outside our control
// transitions to stopped/error without requiring an API call).
func (m *Manager) reconcileLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

func (m *Manager) reconcile(ctx context.Context) {
	sandboxes, err := m.store.List(ctx, "")
	if err != nil {
		m.logger.Error("reconcile: failed to list sandboxes", zap.Error(err))
		return
	}

	for _, sb := range sandboxes {
		if sb.ContainerID == nil || sb.Status == v1.SandboxStopped || sb.Status == v1.SandboxError {
			continue
		}

		info, err := m.docker.Inspect(ctx, *sb.ContainerID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				sb.Status = v1.SandboxError
				msg := "backing container no longer exists"
				sb.LastError = &msg
				sb.UpdatedAt = time.Now()
				_ = m.store.Update(ctx, sb)
			}
			continue
		}

		newStatus := statusFromDockerState(info.State, sb.Status)
		if newStatus != sb.Status {
			sb.Status = newStatus
			sb.UpdatedAt = time.Now()
			_ = m.store.Update(ctx, sb)
			m.logger.Info("reconcile: sandbox status changed",
				zap.String("sandbox_id", sb.ID), zap.String("status", string(newStatus)))
		}
	}
}

func statusFromDockerState(dockerState string, current v1.SandboxStatus) v1.SandboxStatus {
	switch dockerState {
	case "running":
		return v1.SandboxRunning
	case "paused":
		return v1.SandboxPaused
	case "exited", "dead":
		return v1.SandboxStopped
	default:
		return current
	}
}

func resourceLimitsFromSpec(out *specbuilder.Output) v1.ResourceLimits {
	return v1.ResourceLimits{
		CPUCores: float64(out.Spec.CPUQuota) / 100000,
		MemoryGB: float64(out.Spec.Memory) / (1024 * 1024 * 1024),
	}
}

func portMappingsFromRoutes(out *specbuilder.Output) []v1.PortMapping {
	mappings := make([]v1.PortMapping, 0, len(out.ResolvedPorts))
	for _, r := range out.ResolvedPorts {
		mappings = append(mappings, v1.PortMapping{Container: r.Port, Label: r.Label, Public: true, Protocol: r.Protocol})
	}
	return mappings
}

func mountsFromSpec(spec docker.Spec) []v1.Mount {
	mounts := make([]v1.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, v1.Mount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}
	return mounts
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
