// Package reconcile owns the currently applied desired state and drives the
// lifecycle controller only when a freshly loaded snapshot differs from it.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ggpostgres/internal/check"
	"ggpostgres/internal/desired"
	"ggpostgres/internal/telemetry"
)

// Event types passed to OnEvent.
const (
	EventApplied  = "reconcile.applied"
	EventReplaced = "reconcile.replaced"
	EventNoop     = "reconcile.noop"
	EventError    = "reconcile.error"
	EventFatal    = "reconcile.fatal"
	EventResync   = "reconcile.resync"
)

const (
	triggerStartup = "startup"
	triggerResync  = "resync"
)

type Reconciler struct {
	Loader  SnapshotLoader
	Applier Applier
	// ResyncInterval re-runs reconciliation without a notification so failed
	// runs are retried. Zero disables it.
	ResyncInterval time.Duration
	Tracer         trace.Tracer
	Logger         *slog.Logger
	OnEvent        func(eventType, message string)

	mu      sync.Mutex
	current *desired.Snapshot
}

// Current returns the applied snapshot, if any.
func (r *Reconciler) Current() (desired.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return desired.Snapshot{}, false
	}
	return *r.current, true
}

// Start performs the initial reconciliation. With no applied snapshot the
// loaded one always counts as a change, so the container is (re)created.
func (r *Reconciler) Start(ctx context.Context) error {
	return r.reconcile(ctx, triggerStartup)
}

// OnConfigurationChange re-fetches desired state and applies it if it differs
// from what is currently applied. Only fatal configuration errors are
// returned; everything else is logged and left for the next notification.
func (r *Reconciler) OnConfigurationChange(ctx context.Context, ev desired.ChangeEvent) error {
	trigger := ev.Source
	if trigger == "" {
		trigger = "notification"
	}
	if len(ev.KeyPath) > 0 {
		trigger += ":" + strings.Join(ev.KeyPath, ".")
	}
	return r.reconcile(ctx, trigger)
}

// Run processes notifications until ctx is done, events is closed, or a fatal
// configuration error occurs.
func (r *Reconciler) Run(ctx context.Context, events <-chan desired.ChangeEvent) error {
	check.Assert(r.Loader != nil, "Reconciler.Run: Loader must not be nil")
	check.Assert(r.Applier != nil, "Reconciler.Run: Applier must not be nil")

	var resync <-chan time.Time
	if r.ResyncInterval > 0 {
		ticker := time.NewTicker(r.ResyncInterval)
		defer ticker.Stop()
		resync = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.OnConfigurationChange(ctx, ev); err != nil {
				return err
			}
		case <-resync:
			r.emit(EventResync, "periodic resync")
			if err := r.reconcile(ctx, triggerResync); err != nil {
				return err
			}
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, trigger string) error {
	check.Assert(r.Loader != nil, "Reconciler: Loader must not be nil")
	check.Assert(r.Applier != nil, "Reconciler: Applier must not be nil")

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	log := r.logger().With("reconcile_id", id, "trigger", trigger)
	op := telemetry.Begin(ctx, r.Tracer, "reconcile",
		attribute.String(telemetry.ReconcileIDKey, id),
		attribute.String(telemetry.TriggerKey, trigger),
	)
	ctx = op.Context()

	var next desired.Snapshot
	err := op.Step(ctx, "load", func(ctx context.Context) error {
		var loadErr error
		next, loadErr = r.Loader.Load(ctx)
		return loadErr
	})
	if err != nil {
		op.End(err)
		if desired.IsFatal(err) {
			log.Error("Desired state is unusable.", "err", err)
			r.emit(EventFatal, err.Error())
			return err
		}
		log.Error("Failed to load desired state.", "err", err)
		r.emit(EventError, err.Error())
		return nil
	}

	if r.current != nil {
		changed := r.current.Diff(next)
		if len(changed) == 0 {
			log.Debug("Desired state unchanged.")
			op.Annotate(attribute.String(telemetry.OutcomeKey, "noop"))
			op.End(nil)
			r.emit(EventNoop, "desired state unchanged")
			return nil
		}
		log.Info("Desired state changed.", "changed", changed)
		op.Annotate(attribute.StringSlice(telemetry.ChangedKey, changed))
	}

	err = op.Step(ctx, "apply", func(ctx context.Context) error {
		res, applyErr := r.Applier.Reconcile(ctx, next)
		if applyErr == nil && res.Replaced {
			r.emit(EventReplaced, fmt.Sprintf("replaced container %s", next.ContainerName()))
		}
		return applyErr
	})
	if err != nil {
		// The applied snapshot is left as is so the next attempt sees a change.
		log.Error("Failed to apply desired state.", "err", err)
		op.End(err)
		r.emit(EventError, err.Error())
		return nil
	}

	r.current = &next
	log.Info("Applied desired state.", next.LogAttrs()...)
	op.Annotate(attribute.String(telemetry.OutcomeKey, "applied"))
	op.End(nil)
	r.emit(EventApplied, fmt.Sprintf("container %s on port %s", next.ContainerName(), next.HostPort()))
	return nil
}

func (r *Reconciler) emit(eventType, message string) {
	if r.OnEvent != nil {
		r.OnEvent(eventType, message)
	}
	r.logger().Debug("reconcile event", "event", eventType, "message", message)
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger.With("component", "reconcile")
	}
	return slog.Default().With("component", "reconcile")
}
