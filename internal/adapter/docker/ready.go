package docker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/client"
)

const (
	readyInitialInterval = 250 * time.Millisecond
	readyMaxInterval     = 5 * time.Second
	readyMaxElapsed      = 2 * time.Minute
)

// WaitReady blocks until the Docker daemon answers pings. Connection failures
// are retried with backoff; any other ping error is returned immediately.
func WaitReady(ctx context.Context, cli *client.Client, log *slog.Logger) error {
	waiting := false
	ping := func() error {
		_, err := cli.Ping(ctx)
		if err == nil {
			if waiting {
				log.Info("Docker daemon reachable.")
			}
			return nil
		}
		if !client.IsErrConnectionFailed(err) {
			return backoff.Permanent(err)
		}
		if !waiting {
			waiting = true
			log.Info("Waiting for Docker daemon.")
		}
		return err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(readyInitialInterval),
		backoff.WithMaxInterval(readyMaxInterval),
		backoff.WithMaxElapsedTime(readyMaxElapsed),
	)
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("connect to docker daemon: %w", err)
	}
	return nil
}
