// Package postgres checks that the managed server accepts connections.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

const (
	defaultMaxElapsed = 30 * time.Second
	probeInitial      = 200 * time.Millisecond
	probeMax          = 2 * time.Second
)

// Target is where and as whom to connect.
type Target struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// DSN returns a libpq connection URL for t with TLS disabled, matching the
// image's default local configuration.
func (t Target) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(t.Host, t.Port),
		Path:     "/" + t.Database,
		RawQuery: url.Values{"sslmode": {"disable"}, "connect_timeout": {"5"}}.Encode(),
	}
	if t.User != "" {
		u.User = url.UserPassword(t.User, t.Password)
	}
	return u.String()
}

// Result describes a successful probe.
type Result struct {
	ServerVersion string
	Attempts      int
	Elapsed       time.Duration
}

type probeConfig struct {
	maxElapsed time.Duration
}

// Option configures Probe.
type Option func(*probeConfig)

// WithMaxElapsed bounds how long Probe keeps retrying.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *probeConfig) { c.maxElapsed = d }
}

// Probe connects to t, retrying while the server starts up, and reports the
// server version. Authentication failures are not retried.
func Probe(ctx context.Context, t Target, opts ...Option) (Result, error) {
	cfg := probeConfig{maxElapsed: defaultMaxElapsed}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("postgres", t.DSN())
	if err != nil {
		return Result{}, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	start := time.Now()
	var res Result
	query := func() error {
		res.Attempts++
		err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&res.ServerVersion)
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(probeInitial),
		backoff.WithMaxInterval(probeMax),
		backoff.WithMaxElapsedTime(cfg.maxElapsed),
	)
	if err := backoff.Retry(query, backoff.WithContext(b, ctx)); err != nil {
		return Result{}, fmt.Errorf("probe postgres at %s:%s: %w", t.Host, t.Port, err)
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// isPermanent reports server-side rejections that retrying cannot fix.
func isPermanent(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "28": // invalid authorization specification
		return true
	case "3D": // invalid catalog name
		return true
	}
	return false
}
