// Package daemon wires the reconciler to its collaborators and runs it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"

	"ggpostgres/internal/adapter/file"
	"ggpostgres/internal/config"
	"ggpostgres/internal/desired"
	"ggpostgres/internal/lifecycle"
	"ggpostgres/internal/metrics"
	"ggpostgres/internal/reconcile"
)

const eventBuffer = 16

// Daemon keeps the managed container converged until its context ends.
// Exiting leaves the container running.
type Daemon struct {
	settings config.Settings
	rt       lifecycle.ContainerRuntime
	secrets  desired.SecretSource
	metrics  *metrics.Collector
	notify   func(state string) error
	log      *slog.Logger
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithMetrics records reconciler events and log lines in c and, when the
// settings name a metrics address, serves them.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Daemon) { d.metrics = c }
}

// WithNotifier replaces the systemd readiness notifier.
func WithNotifier(fn func(state string) error) Option {
	return func(d *Daemon) { d.notify = fn }
}

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.log = l }
}

func New(s config.Settings, rt lifecycle.ContainerRuntime, src desired.SecretSource, opts ...Option) *Daemon {
	d := &Daemon{
		settings: s,
		rt:       rt,
		secrets:  src,
		notify:   sdNotify,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sdNotify(state string) error {
	_, err := systemd.SdNotify(false, state)
	return err
}

// Run performs the initial reconciliation, signals readiness, then follows
// change notifications. Only fatal configuration errors and infrastructure
// failures end it early.
func (d *Daemon) Run(ctx context.Context) error {
	s := d.settings
	log := d.log.With("component", "daemon")

	if err := d.prepareDirs(); err != nil {
		return err
	}

	ctrlOpts := []lifecycle.Option{lifecycle.WithLogger(d.log), lifecycle.WithContainerLogger(d.log)}
	var onEvent func(string, string)
	if d.metrics != nil {
		ctrlOpts = append(ctrlOpts, lifecycle.WithLogLineHandler(d.metrics.RecordLogLine))
		onEvent = d.metrics.RecordEvent
	}
	ctrl := NewController(s, d.rt, ctrlOpts...)
	defer ctrl.Close()

	rec := &reconcile.Reconciler{
		Loader:         NewLoader(s, d.secrets),
		Applier:        ctrl,
		ResyncInterval: s.ResyncInterval,
		Logger:         d.log,
		OnEvent:        onEvent,
	}

	log.Info("Starting initial reconciliation.", "desired_state", s.DesiredStatePath, "secret_backend", s.SecretBackend)
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("initial reconciliation: %w", err)
	}
	if err := d.notify(systemd.SdNotifyReady); err != nil {
		log.Error("Failed to notify systemd that the daemon is ready.", "err", err)
	}

	watchOpts := []file.WatchOption{file.WatchFile(s.DesiredStatePath), file.WithWatchLogger(d.log)}
	if s.SecretBackend == config.BackendFile {
		watchOpts = append(watchOpts, file.WatchDir(s.SecretFileDir))
	}
	watcher := file.NewWatcher(watchOpts...)
	events := make(chan desired.ChangeEvent, eventBuffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx, events) })
	g.Go(func() error { return rec.Run(gctx, events) })
	if d.metrics != nil && s.MetricsAddr != "" {
		g.Go(func() error { return d.metrics.Serve(gctx, s.MetricsAddr) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if notifyErr := d.notify(systemd.SdNotifyStopping); notifyErr != nil {
		log.Debug("Failed to notify systemd that the daemon is stopping.", "err", notifyErr)
	}
	if err != nil {
		return err
	}
	log.Info("Daemon stopped, managed container left running.")
	return nil
}

func (d *Daemon) prepareDirs() error {
	s := d.settings
	dirs := map[string]os.FileMode{
		s.WorkDir:                        0o755,
		filepath.Dir(s.DesiredStatePath): 0o755,
	}
	if s.SecretBackend == config.BackendFile {
		dirs[s.SecretFileDir] = 0o700
	}
	for dir, perm := range dirs {
		if err := os.MkdirAll(dir, perm); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
