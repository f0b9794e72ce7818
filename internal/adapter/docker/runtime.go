// Package docker implements lifecycle.ContainerRuntime on the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"ggpostgres/internal/lifecycle"
)

var _ lifecycle.ContainerRuntime = (*Runtime)(nil)

const defaultStopTimeout = 10 * time.Second

// Runtime implements lifecycle.ContainerRuntime using the Docker Engine API.
type Runtime struct {
	cli         *client.Client
	stopTimeout time.Duration
	log         *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithStopTimeout bounds how long the engine waits for postgres to exit
// before killing it.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.stopTimeout = d }
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// NewRuntime creates a Runtime with a new Docker client from the environment.
func NewRuntime(opts ...Option) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRuntimeFromClient(cli, opts...), nil
}

// NewRuntimeFromClient wraps an existing Docker client.
func NewRuntimeFromClient(cli *client.Client, opts ...Option) *Runtime {
	r := &Runtime{cli: cli, stopTimeout: defaultStopTimeout, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "docker")
	return r
}

func (r *Runtime) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, r.cli, r.log)
}

func (r *Runtime) ContainerInspect(ctx context.Context, name string) (lifecycle.ContainerInfo, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return lifecycle.ContainerInfo{Exists: false}, nil
		}
		return lifecycle.ContainerInfo{}, fmt.Errorf("inspect container %q: %w", name, err)
	}

	out := lifecycle.ContainerInfo{Exists: true, Name: name}
	if info.ContainerJSONBase != nil {
		out.ID = info.ID
		out.Name = strings.TrimPrefix(info.Name, "/")
		if info.State != nil {
			out.Status = info.State.Status
			out.Running = info.State.Running
		}
		if info.HostConfig != nil {
			out.Ports = fromPortMap(info.HostConfig.PortBindings)
		}
	}
	if info.Config != nil {
		out.Image = info.Config.Image
	}
	return out, nil
}

func (r *Runtime) ContainerStop(ctx context.Context, id string) error {
	timeout := int(r.stopTimeout.Seconds())
	return r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
}

func (r *Runtime) ContainerRemove(ctx context.Context, id string) error {
	return r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// ContainerRun creates and starts a detached container, pulling the image
// first if the engine does not have it.
func (r *Runtime) ContainerRun(ctx context.Context, cfg lifecycle.RunConfig) (string, error) {
	cc, hc := createConfigs(cfg)

	created, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	if errdefs.IsNotFound(err) {
		r.log.Info("Pulling image.", "image", cfg.Image)
		if pullErr := r.ImagePull(ctx, cfg.Image); pullErr != nil {
			return "", pullErr
		}
		created, err = r.cli.ContainerCreate(ctx, cc, hc, nil, nil, cfg.Name)
	}
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", cfg.Name, err)
	}
	for _, w := range created.Warnings {
		r.log.Warn("Docker create warning.", "name", cfg.Name, "warning", w)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Leave no half-created container behind to clash with the next run.
		if rmErr := r.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			r.log.Warn("Failed to remove container after start failure.", "id", created.ID, "err", rmErr)
		}
		return "", fmt.Errorf("start container %q: %w", cfg.Name, err)
	}
	return created.ID, nil
}

// ContainerLogs follows the combined stdout/stderr of the container from its
// first line.
func (r *Runtime) ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	rc, err := r.cli.ContainerLogs(ctx, id, logsOptions())
	if err != nil {
		return nil, fmt.Errorf("container logs %q: %w", id, err)
	}
	return demux(rc), nil
}

func (r *Runtime) ImagePull(ctx context.Context, img string) error {
	pull, err := r.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", img, err)
	}
	_, _ = io.Copy(io.Discard, pull)
	_ = pull.Close()
	return nil
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

// logsOptions streams from the container's first line, including output
// written before the follower attached.
func logsOptions() container.LogsOptions {
	return container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true}
}

func createConfigs(cfg lifecycle.RunConfig) (*container.Config, *container.HostConfig) {
	cc := &container.Config{
		Image:  cfg.Image,
		Cmd:    cfg.Cmd,
		Env:    cfg.Env,
		Labels: cfg.Labels,
	}
	hc := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	if len(cfg.Ports) > 0 {
		portBindings := make(nat.PortMap, len(cfg.Ports))
		exposedPorts := make(nat.PortSet, len(cfg.Ports))
		for _, p := range cfg.Ports {
			containerPort := nat.Port(p.ContainerPort)
			exposedPorts[containerPort] = struct{}{}
			portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{HostPort: p.HostPort})
		}
		cc.ExposedPorts = exposedPorts
		hc.PortBindings = portBindings
	}

	hc.Mounts = make([]mount.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return cc, hc
}

func fromPortMap(pm nat.PortMap) []lifecycle.PortBinding {
	var out []lifecycle.PortBinding
	for _, port := range slices.Sorted(maps.Keys(pm)) {
		for _, b := range pm[port] {
			out = append(out, lifecycle.PortBinding{HostPort: b.HostPort, ContainerPort: string(port)})
		}
	}
	return out
}
