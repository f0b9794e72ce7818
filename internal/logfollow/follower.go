// Package logfollow streams a container's output into the operational log.
//
// One Session exists per container incarnation. It runs on its own goroutine
// so slow or voluminous output never blocks reconciliation, and it ends when
// the stream closes or the session is stopped.
package logfollow

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

// maxLineSize bounds a single forwarded line. Longer lines are forwarded in
// chunks of this size.
const maxLineSize = 1 << 20

// Source opens the combined stdout/stderr stream of a container.
// Production: adapter/docker.Runtime
// Testing: adapter/fake.ContainerRuntime
type Source interface {
	ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
}

// Session is a running follower bound to one container.
type Session struct {
	id     string
	name   string
	log    *slog.Logger
	onLine func(string)
	cancel context.CancelFunc
	done   chan struct{}
	lines  atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger container output is forwarded to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithLineHandler registers fn to be called for every forwarded line.
func WithLineHandler(fn func(line string)) Option {
	return func(s *Session) { s.onLine = fn }
}

// Attach starts following the logs of container id. It never blocks on the
// stream. A failure to open the stream is logged and ends the session.
func Attach(ctx context.Context, src Source, id, name string, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     id,
		name:   name,
		log:    slog.Default(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "logfollow", "container", name)

	go s.run(ctx, src)
	return s
}

func (s *Session) run(ctx context.Context, src Source) {
	defer close(s.done)
	defer s.cancel()

	rc, err := src.ContainerLogs(ctx, s.id)
	if err != nil {
		s.log.Warn("Failed to attach to container logs.", "id", s.id, "err", err)
		return
	}
	defer rc.Close()
	// Closing the stream is what unblocks a pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer stop()

	s.log.Debug("Following container logs.", "id", s.id)
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanChunkedLines)
	for scanner.Scan() {
		line := scanner.Text()
		s.lines.Add(1)
		s.log.Info(line, "stream", "container")
		if s.onLine != nil {
			s.onLine(line)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn("Container log stream failed.", "err", err)
		return
	}
	s.log.Debug("Container log stream closed.", "lines", s.lines.Load())
}

// scanChunkedLines is bufio.ScanLines, except that a full buffer without a
// newline is emitted as one chunk instead of failing with bufio.ErrTooLong.
func scanChunkedLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance > 0 || token != nil || err != nil {
		return advance, token, err
	}
	if len(data) >= maxLineSize {
		return maxLineSize, data[:maxLineSize], nil
	}
	return 0, nil, nil
}

// ID returns the followed container id.
func (s *Session) ID() string { return s.id }

// Done is closed once the follower has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Lines returns the number of lines forwarded so far.
func (s *Session) Lines() int64 { return s.lines.Load() }

// Stop ends the session and waits for its goroutine to exit.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}
