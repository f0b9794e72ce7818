// Package lifecycle drives the container runtime through the
// locate/stop/remove/run transitions of the single managed container.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"

	"ggpostgres/internal/check"
	"ggpostgres/internal/desired"
	"ggpostgres/internal/logfollow"
)

// State is the controller's belief about the managed container.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Handle is the runtime identity of one container incarnation.
type Handle struct {
	ID   string
	Name string
}

// Result summarizes one reconciliation.
type Result struct {
	// Replaced is true when a previous container was stopped and removed.
	Replaced bool
	Handle   Handle
}

// Controller owns the managed container handle and its log follower. It is
// not safe for concurrent use; the reconciler serializes every call.
type Controller struct {
	rt            ContainerRuntime
	creds         CredentialWriter
	image         string
	strictSecrets bool
	followLogs    bool
	containerLog  *slog.Logger
	onLogLine     func(string)
	log           *slog.Logger

	handle   *Handle
	state    State
	follower *logfollow.Session
}

// Option configures a Controller.
type Option func(*Controller)

// WithImage overrides the database image.
func WithImage(img string) Option {
	return func(c *Controller) { c.image = img }
}

// WithStrictSecrets makes a credential provisioning failure abort the
// reconciliation before the container is started.
func WithStrictSecrets(strict bool) Option {
	return func(c *Controller) { c.strictSecrets = strict }
}

// WithLogFollowing toggles attaching a log follower after each run. Defaults to true.
func WithLogFollowing(enabled bool) Option {
	return func(c *Controller) { c.followLogs = enabled }
}

// WithContainerLogger sets where container output is forwarded.
func WithContainerLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.containerLog = l }
}

// WithLogLineHandler is called for every forwarded container log line.
func WithLogLineHandler(fn func(string)) Option {
	return func(c *Controller) { c.onLogLine = fn }
}

// WithLogger sets the controller's own logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates a Controller that provisions credentials through creds.
func NewController(rt ContainerRuntime, creds CredentialWriter, opts ...Option) *Controller {
	check.Assert(rt != nil, "NewController: runtime must not be nil")
	check.Assert(creds != nil, "NewController: credential writer must not be nil")
	c := &Controller{
		rt:           rt,
		creds:        creds,
		image:        DefaultImage,
		followLogs:   true,
		containerLog: slog.Default(),
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "lifecycle")
	return c
}

// Handle returns the tracked container, if any. Absence means "not tracked",
// not "does not exist in the runtime".
func (c *Controller) Handle() (Handle, bool) {
	if c.handle == nil {
		return Handle{}, false
	}
	return *c.handle, true
}

// State returns the controller's current belief about the container.
func (c *Controller) State() State { return c.state }

// Locate looks up a container by name. Absence and runtime failures both
// report false; failures are logged and the container is assumed absent.
func (c *Controller) Locate(ctx context.Context, name string) (Handle, bool) {
	info, err := c.rt.ContainerInspect(ctx, name)
	if err != nil {
		c.log.Error("Failed to look up container, assuming absent.", "name", name, "err", err)
		c.state = StateUnknown
		return Handle{}, false
	}
	if !info.Exists {
		c.log.Debug("Container not found.", "name", name)
		c.state = StateUnknown
		return Handle{}, false
	}

	h := Handle{ID: info.ID, Name: name}
	if h.ID == "" {
		h.ID = name
	}
	c.handle = &h
	c.state = StateStopped
	if info.Running {
		c.state = StateRunning
	}
	c.log.Debug("Located container.", "name", name, "id", h.ID, "state", c.state)
	return h, true
}

// Stop stops the container. A container that is already gone is not an error.
func (c *Controller) Stop(ctx context.Context, h Handle) error {
	if err := c.rt.ContainerStop(ctx, h.ID); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("stop container %s: %w", h.Name, err)
		}
		c.log.Debug("Container already gone on stop.", "name", h.Name)
	}
	c.state = StateStopped
	return nil
}

// Remove removes the container and forgets its handle. A container that is
// already gone is not an error.
func (c *Controller) Remove(ctx context.Context, h Handle) error {
	if err := c.rt.ContainerRemove(ctx, h.ID); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove container %s: %w", h.Name, err)
		}
		c.log.Debug("Container already gone on remove.", "name", h.Name)
	}
	c.stopFollower()
	c.handle = nil
	c.state = StateUnknown
	return nil
}

// Run creates and starts a container for s and attaches a log follower.
func (c *Controller) Run(ctx context.Context, s desired.Snapshot) (Handle, error) {
	cfg := BuildRunConfig(s, c.image, c.creds.Dir())
	id, err := c.rt.ContainerRun(ctx, cfg)
	if err != nil {
		return Handle{}, fmt.Errorf("run container %s: %w", cfg.Name, err)
	}

	h := Handle{ID: id, Name: cfg.Name}
	c.handle = &h
	c.state = StateRunning
	c.log.Info("PostgreSQL container started.", "name", h.Name, "id", h.ID, "image", cfg.Image, "host_port", s.HostPort())

	if c.followLogs {
		c.stopFollower()
		opts := []logfollow.Option{logfollow.WithLogger(c.containerLog)}
		if c.onLogLine != nil {
			opts = append(opts, logfollow.WithLineHandler(c.onLogLine))
		}
		// The follower outlives the reconcile call; Remove and Close end it.
		c.follower = logfollow.Attach(context.WithoutCancel(ctx), c.rt, h.ID, h.Name, opts...)
	}
	return h, nil
}

// Reconcile replaces the running container with one built from next. If no
// container is tracked it looks one up by name first. Every call performs a
// full stop/remove/run cycle; callers decide whether a change occurred.
//
// Stop and remove failures are logged and do not prevent the run attempt.
// Credential provisioning failures are logged unless strict secrets are enabled.
func (c *Controller) Reconcile(ctx context.Context, next desired.Snapshot) (Result, error) {
	var res Result

	h, ok := c.Handle()
	if !ok {
		h, ok = c.Locate(ctx, next.ContainerName())
	}
	if ok {
		if err := c.Stop(ctx, h); err != nil {
			c.log.Error("Failed to stop container.", "err", err)
		}
		if err := c.Remove(ctx, h); err != nil {
			c.log.Error("Failed to remove container.", "err", err)
		}
		res.Replaced = true
	}

	username, password := next.Credentials()
	if err := c.creds.Provision(username, password); err != nil {
		if c.strictSecrets {
			return res, fmt.Errorf("provision credentials: %w", err)
		}
		c.log.Error("Failed to provision credentials, container may start with stale secrets.", "err", err)
	}

	h, err := c.Run(ctx, next)
	if err != nil {
		return res, err
	}
	res.Handle = h
	return res, nil
}

// Cleanup stops and removes the named container, whether or not it is
// tracked. Used by the shutdown path.
func (c *Controller) Cleanup(ctx context.Context, name string) error {
	h, ok := c.Handle()
	if !ok || h.Name != name {
		h, ok = c.Locate(ctx, name)
	}
	if !ok {
		c.stopFollower()
		return nil
	}
	if err := c.Stop(ctx, h); err != nil {
		return err
	}
	return c.Remove(ctx, h)
}

// Close stops the log follower. The container itself keeps running.
func (c *Controller) Close() {
	c.stopFollower()
}

func (c *Controller) stopFollower() {
	if c.follower == nil {
		return
	}
	c.follower.Stop()
	c.follower = nil
}
