// Package docker adapts the Docker Engine SDK to the Container Runtime
// Adapter contract (spec C1): create/start/stop/remove/inspect/exec/logs/
// stats/events, with typed errors and PTY-attached exec for the terminal
// multiplexer.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/agentpod/agentpod/internal/common/config"
	apperrors "github.com/agentpod/agentpod/internal/common/errors"
	"github.com/agentpod/agentpod/internal/common/logger"
)

// Spec holds the parameters needed to create a sandbox container. It is the
// runtime-facing counterpart of the Container Spec Builder's output (C6).
type Spec struct {
	Name        string
	Image       string
	Cmd         []string
	Env         []string
	WorkingDir  string
	Mounts      []MountSpec
	NetworkMode string
	Memory      int64 // bytes
	CPUQuota    int64
	Labels      map[string]string
}

// MountSpec is a host bind mount.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Info mirrors the subset of container.InspectResponse the orchestrator
// needs for reconciliation (§4.7).
type Info struct {
	ID         string
	Name       string
	Image      string
	State      string // created, running, paused, restarting, removing, exited, dead
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Health     string
}

// StatsSnapshot is the instantaneous resource snapshot from Stats() (§4.1).
type StatsSnapshot struct {
	CPUPercent float64
	MemRSS     int64
	MemLimit   int64
	NetRxBytes int64
	NetTxBytes int64
	BlkIOBytes int64
}

// ExecStream carries a PTY-attached or plain exec session's I/O.
type ExecStream struct {
	Conn   io.ReadWriteCloser
	Resize func(ctx context.Context, cols, rows uint) error
}

// Client wraps the Docker SDK client and is the only component in the
// module allowed to hold daemon handles (§4.1).
type Client struct {
	cli    *client.Client
	logger *logger.Logger
}

// NewClient creates a new Docker client from process configuration.
func NewClient(cfg config.DockerConfig, log *logger.Logger) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	log.Info("docker client created", zap.String("host", cfg.Host))
	return &Client{cli: cli, logger: log.WithFields(zap.String("component", "runtime.docker"))}, nil
}

// Close closes the Docker client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping checks daemon reachability.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return apperrors.Runtime("docker daemon unreachable", err)
	}
	return nil
}

// PullImage pulls an image, fully draining the pull stream.
func (c *Client) PullImage(ctx context.Context, imageName string) error {
	reader, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return apperrors.Runtime(fmt.Sprintf("failed to pull image %s", imageName), err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return apperrors.Runtime("error reading image pull output", err)
	}
	return nil
}

func toMounts(specs []MountSpec) []mount.Mount {
	mounts := make([]mount.Mount, 0, len(specs))
	for _, m := range specs {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return mounts
}

// Create creates a container from a spec and returns the runtime id (§4.1).
func (c *Client) Create(ctx context.Context, spec Spec) (string, error) {
	containerCfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkingDir,
		Labels:     spec.Labels,
	}

	hostCfg := &container.HostConfig{
		Mounts:      toMounts(spec.Mounts),
		NetworkMode: container.NetworkMode(spec.NetworkMode),
		AutoRemove:  false, // the orchestrator manages cleanup itself
		Resources: container.Resources{
			Memory:   spec.Memory,
			CPUQuota: spec.CPUQuota,
		},
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", apperrors.NotFound("image", spec.Image)
		}
		return "", apperrors.Runtime(fmt.Sprintf("failed to create container %s", spec.Name), err)
	}
	return resp.ID, nil
}

// Start starts a created container.
func (c *Client) Start(ctx context.Context, runtimeID string) error {
	if err := c.cli.ContainerStart(ctx, runtimeID, container.StartOptions{}); err != nil {
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Stop stops a container, issuing SIGTERM then SIGKILL after grace (§4.1).
func (c *Client) Stop(ctx context.Context, runtimeID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if err := c.cli.ContainerStop(ctx, runtimeID, container.StopOptions{Timeout: &seconds}); err != nil {
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Remove removes a container, optionally its anonymous volumes (§4.1).
func (c *Client) Remove(ctx context.Context, runtimeID string, removeVolumes bool) error {
	err := c.cli.ContainerRemove(ctx, runtimeID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: removeVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil // Delete is idempotent on NotFound (§4.7)
		}
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Pause pauses a running container.
func (c *Client) Pause(ctx context.Context, runtimeID string) error {
	if err := c.cli.ContainerPause(ctx, runtimeID); err != nil {
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Unpause resumes a paused container.
func (c *Client) Unpause(ctx context.Context, runtimeID string) error {
	if err := c.cli.ContainerUnpause(ctx, runtimeID); err != nil {
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Kill sends a signal directly to a container. Stop does not use it; the
// daemon's own stop timeout handles the SIGKILL escalation.
func (c *Client) Kill(ctx context.Context, runtimeID, signal string) error {
	if err := c.cli.ContainerKill(ctx, runtimeID, signal); err != nil {
		return classifyErr(err, "container", runtimeID)
	}
	return nil
}

// Inspect returns the current runtime state of a container (§4.1).
func (c *Client) Inspect(ctx context.Context, runtimeID string) (*Info, error) {
	inspect, err := c.cli.ContainerInspect(ctx, runtimeID)
	if err != nil {
		return nil, classifyErr(err, "container", runtimeID)
	}

	info := &Info{
		ID:    inspect.ID,
		Name:  inspect.Name,
		Image: inspect.Config.Image,
		State: inspect.State.Status,
	}
	if inspect.State != nil {
		info.ExitCode = inspect.State.ExitCode
		if inspect.State.StartedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
				info.StartedAt = t
			}
		}
		if inspect.State.FinishedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt); err == nil {
				info.FinishedAt = t
			}
		}
		if inspect.State.Health != nil {
			info.Health = inspect.State.Health.Status
		}
	}
	return info, nil
}

// Logs returns the last tailLines of combined stdout/stderr.
func (c *Client) Logs(ctx context.Context, runtimeID string, tailLines int) (io.ReadCloser, error) {
	tail := "all"
	if tailLines > 0 {
		tail = fmt.Sprintf("%d", tailLines)
	}
	reader, err := c.cli.ContainerLogs(ctx, runtimeID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		return nil, classifyErr(err, "container", runtimeID)
	}
	return reader, nil
}

// Stats returns an instantaneous resource snapshot (§4.1).
func (c *Client) Stats(ctx context.Context, runtimeID string) (*StatsSnapshot, error) {
	resp, err := c.cli.ContainerStatsOneShot(ctx, runtimeID)
	if err != nil {
		return nil, classifyErr(err, "container", runtimeID)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := decodeJSON(resp.Body, &raw); err != nil {
		return nil, apperrors.Runtime("failed to decode stats", err)
	}

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage - raw.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(raw.CPUStats.SystemUsage - raw.PreCPUStats.SystemUsage)
	cpuPercent := 0.0
	if sysDelta > 0 && cpuDelta > 0 {
		cpuPercent = (cpuDelta / sysDelta) * float64(len(raw.CPUStats.CPUUsage.PercpuUsage)) * 100.0
	}

	var rx, tx int64
	for _, n := range raw.Networks {
		rx += int64(n.RxBytes)
		tx += int64(n.TxBytes)
	}

	var blk int64
	for _, e := range raw.BlkioStats.IoServiceBytesRecursive {
		blk += int64(e.Value)
	}

	return &StatsSnapshot{
		CPUPercent: cpuPercent,
		MemRSS:     int64(raw.MemoryStats.Usage),
		MemLimit:   int64(raw.MemoryStats.Limit),
		NetRxBytes: rx,
		NetTxBytes: tx,
		BlkIOBytes: blk,
	}, nil
}

// Events subscribes to the daemon's lifecycle event stream, filtered to
// containers carrying the given labels (§4.1). The orchestrator's
// reconciliation loop does not use it; it polls Inspect instead.
func (c *Client) Events(ctx context.Context, labelFilter map[string]string) (<-chan events.Message, <-chan error) {
	f := filters.NewArgs()
	f.Add("type", "container")
	for k, v := range labelFilter {
		f.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	return c.cli.Events(ctx, events.ListOptions{Filters: f})
}

// List lists containers carrying the given labels (§4.7).
func (c *Client) List(ctx context.Context, labels map[string]string) ([]Info, error) {
	f := filters.NewArgs()
	for k, v := range labels {
		f.Add("label", fmt.Sprintf("%s=%s", k, v))
	}

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, apperrors.Runtime("failed to list containers", err)
	}

	infos := make([]Info, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = ctr.Names[0]
			if len(name) > 0 && name[0] == '/' {
				name = name[1:]
			}
		}
		infos = append(infos, Info{ID: ctr.ID, Name: name, Image: ctr.Image, State: ctr.State})
	}
	return infos, nil
}

// Exec runs argv inside runtimeID. When attachPty is true the exec is
// allocated a TTY so the returned stream carries raw terminal bytes,
// grounding the Terminal Multiplexer (C8) directly on Docker's own PTY
// support rather than a local pty device.
func (c *Client) Exec(ctx context.Context, runtimeID string, argv []string, env []string, workDir string, attachPty bool) (*ExecStream, error) {
	execCfg := container.ExecOptions{
		Cmd:          argv,
		Env:          env,
		WorkingDir:   workDir,
		Tty:          attachPty,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := c.cli.ContainerExecCreate(ctx, runtimeID, execCfg)
	if err != nil {
		return nil, classifyErr(err, "container", runtimeID)
	}

	attachResp, err := c.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: attachPty})
	if err != nil {
		return nil, apperrors.Runtime("failed to attach exec", err)
	}

	execID := created.ID
	return &ExecStream{
		Conn: attachResp.Conn,
		Resize: func(ctx context.Context, cols, rows uint) error {
			return c.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{Width: cols, Height: rows})
		},
	}, nil
}

// ExecOnce runs a one-shot command and waits for it to finish, returning its
// exit code and output (the Exec(id, argv) contract of §4.7).
func (c *Client) ExecOnce(ctx context.Context, runtimeID string, argv []string, workDir string) (int, []byte, error) {
	execCfg := container.ExecOptions{
		Cmd:          argv,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := c.cli.ContainerExecCreate(ctx, runtimeID, execCfg)
	if err != nil {
		return -1, nil, classifyErr(err, "container", runtimeID)
	}

	attachResp, err := c.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, nil, apperrors.Runtime("failed to attach exec", err)
	}
	defer attachResp.Close()

	output, err := io.ReadAll(attachResp.Reader)
	if err != nil {
		return -1, nil, apperrors.Runtime("failed to read exec output", err)
	}

	inspect, err := c.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, output, apperrors.Runtime("failed to inspect exec", err)
	}

	return inspect.ExitCode, output, nil
}

func classifyErr(err error, resource, id string) error {
	if client.IsErrNotFound(err) {
		return apperrors.NotFound(resource, id)
	}
	if client.IsErrConnectionFailed(err) {
		return apperrors.Runtime("docker daemon connection failed", err)
	}
	return apperrors.Runtime(fmt.Sprintf("%s operation failed", resource), err)
}
