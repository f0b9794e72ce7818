package fake

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/containerd/errdefs"

	"ggpostgres/internal/lifecycle"
)

var _ lifecycle.ContainerRuntime = (*ContainerRuntime)(nil)

type containerState struct {
	ID      string
	Config  lifecycle.RunConfig
	Running bool
	logs    []*io.PipeWriter
}

// ContainerRuntime is an in-memory implementation of lifecycle.ContainerRuntime.
type ContainerRuntime struct {
	CallRecorder
	mu         sync.Mutex
	nextID     int
	containers map[string]*containerState // keyed by name

	ContainerInspectErr func(ctx context.Context, name string) error
	ContainerStopErr    func(ctx context.Context, id string) error
	ContainerRemoveErr  func(ctx context.Context, id string) error
	ContainerRunErr     func(ctx context.Context, cfg lifecycle.RunConfig) error
	ContainerLogsErr    func(ctx context.Context, id string) error
}

// NewContainerRuntime creates an empty ContainerRuntime.
func NewContainerRuntime() *ContainerRuntime {
	return &ContainerRuntime{containers: make(map[string]*containerState)}
}

// AddContainer seeds a container the controller did not create and returns its id.
func (r *ContainerRuntime) AddContainer(name string, running bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	r.containers[name] = &containerState{ID: id, Config: lifecycle.RunConfig{Name: name}, Running: running}
	return id
}

// Container returns the stored definition of the named container, whether it
// is running, and whether it exists.
func (r *ContainerRuntime) Container(name string) (lifecycle.RunConfig, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.containers[name]
	if !ok {
		return lifecycle.RunConfig{}, false, false
	}
	return cs.Config, cs.Running, true
}

// Names returns the sorted names of all containers.
func (r *ContainerRuntime) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.containers))
}

// EmitLog writes line to every open log stream of the named container.
func (r *ContainerRuntime) EmitLog(name, line string) error {
	r.mu.Lock()
	cs, ok := r.containers[name]
	var writers []*io.PipeWriter
	if ok {
		writers = append(writers, cs.logs...)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("container %q: %w", name, errdefs.ErrNotFound)
	}
	for _, w := range writers {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (r *ContainerRuntime) ContainerInspect(ctx context.Context, name string) (lifecycle.ContainerInfo, error) {
	r.record("ContainerInspect", name)
	if r.ContainerInspectErr != nil {
		if err := r.ContainerInspectErr(ctx, name); err != nil {
			return lifecycle.ContainerInfo{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.containers[name]
	if !ok {
		return lifecycle.ContainerInfo{Exists: false}, nil
	}
	status := "exited"
	if cs.Running {
		status = "running"
	}
	return lifecycle.ContainerInfo{
		ID:      cs.ID,
		Name:    name,
		Image:   cs.Config.Image,
		Status:  status,
		Exists:  true,
		Running: cs.Running,
		Ports:   cs.Config.Ports,
	}, nil
}

func (r *ContainerRuntime) ContainerStop(ctx context.Context, id string) error {
	r.record("ContainerStop", id)
	if r.ContainerStopErr != nil {
		if err := r.ContainerStopErr(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, cs, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("container %q: %w", id, errdefs.ErrNotFound)
	}
	cs.Running = false
	cs.closeLogs()
	return nil
}

func (r *ContainerRuntime) ContainerRemove(ctx context.Context, id string) error {
	r.record("ContainerRemove", id)
	if r.ContainerRemoveErr != nil {
		if err := r.ContainerRemoveErr(ctx, id); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name, cs, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("container %q: %w", id, errdefs.ErrNotFound)
	}
	cs.closeLogs()
	delete(r.containers, name)
	return nil
}

func (r *ContainerRuntime) ContainerRun(ctx context.Context, cfg lifecycle.RunConfig) (string, error) {
	r.record("ContainerRun", cfg)
	if r.ContainerRunErr != nil {
		if err := r.ContainerRunErr(ctx, cfg); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.containers[cfg.Name]; exists {
		return "", fmt.Errorf("container name %q already in use: %w", cfg.Name, errdefs.ErrConflict)
	}
	id := r.newID()
	r.containers[cfg.Name] = &containerState{ID: id, Config: cfg, Running: true}
	return id, nil
}

func (r *ContainerRuntime) ContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	r.record("ContainerLogs", id)
	if r.ContainerLogsErr != nil {
		if err := r.ContainerLogsErr(ctx, id); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, cs, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("container %q: %w", id, errdefs.ErrNotFound)
	}
	pr, pw := io.Pipe()
	if !cs.Running {
		_ = pw.Close()
		return pr, nil
	}
	cs.logs = append(cs.logs, pw)
	return pr, nil
}

// lookup finds a container by id or name. Callers hold r.mu.
func (r *ContainerRuntime) lookup(ref string) (string, *containerState, bool) {
	if cs, ok := r.containers[ref]; ok {
		return ref, cs, true
	}
	for name, cs := range r.containers {
		if cs.ID == ref {
			return name, cs, true
		}
	}
	return "", nil, false
}

func (r *ContainerRuntime) newID() string {
	r.nextID++
	return fmt.Sprintf("fake-%d", r.nextID)
}

func (cs *containerState) closeLogs() {
	for _, w := range cs.logs {
		_ = w.Close()
	}
	cs.logs = nil
}
