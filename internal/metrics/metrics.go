// Package metrics exposes reconciler and container counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ggpostgres/internal/reconcile"
)

const shutdownTimeout = 5 * time.Second

// Collector owns a private registry so independent instances never collide.
type Collector struct {
	reg *prometheus.Registry

	events      *prometheus.CounterVec
	logLines    prometheus.Counter
	lastApplied prometheus.Gauge
	now         func() time.Time
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ggpostgres_reconcile_events_total",
			Help: "Reconciliation outcomes by event type.",
		}, []string{"event"}),
		logLines: f.NewCounter(prometheus.CounterOpts{
			Name: "ggpostgres_container_log_lines_total",
			Help: "Container log lines forwarded to the operational log.",
		}),
		lastApplied: f.NewGauge(prometheus.GaugeOpts{
			Name: "ggpostgres_last_applied_timestamp_seconds",
			Help: "Unix time of the last successfully applied desired state.",
		}),
		now: time.Now,
	}
}

// RecordEvent counts a reconciler event. Its signature matches Reconciler.OnEvent.
func (c *Collector) RecordEvent(eventType, _ string) {
	c.events.WithLabelValues(eventType).Inc()
	if eventType == reconcile.EventApplied {
		c.lastApplied.Set(float64(c.now().Unix()))
	}
}

// RecordLogLine counts a forwarded container log line.
func (c *Collector) RecordLogLine(string) {
	c.logLines.Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("Serving metrics.", "component", "metrics", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
