// Package telemetry wraps reconciliations in OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName     = "ggpostgres"
	ReconcileIDKey = "ggpostgres.reconcile.id"
	TriggerKey     = "ggpostgres.reconcile.trigger"
	OutcomeKey     = "ggpostgres.reconcile.outcome"
	ChangedKey     = "ggpostgres.reconcile.changed"
)

// Operation is one traced unit of work with child steps.
type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Begin starts an operation span. A nil tracer falls back to the global
// provider, which is a no-op unless one has been installed.
func Begin(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) *Operation {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "operation"
	}
	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// Step runs fn inside a child span named id.
func (o *Operation) Step(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	stepID := strings.TrimSpace(id)
	if stepID == "" {
		return fmt.Errorf("run telemetry step: step id is required")
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}
	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, stepID)
	defer span.End()

	if err := fn(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// Annotate attaches attributes to the operation span.
func (o *Operation) Annotate(attrs ...attribute.KeyValue) {
	if o == nil || o.span == nil {
		return
	}
	o.span.SetAttributes(attrs...)
}

// End closes the operation span, marking it failed when err is non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
