package lifecycle

import (
	"context"

	"ggpostgres/internal/logfollow"
)

// ContainerRuntime abstracts the container engine operations the controller needs.
// Production: adapter/docker.Runtime (wrapping Docker *client.Client)
// Testing: adapter/fake.ContainerRuntime
//
// Stop and remove return errors satisfying errdefs.IsNotFound when the
// container is already gone. Inspect reports absence as Exists=false.
type ContainerRuntime interface {
	ContainerInspect(ctx context.Context, name string) (ContainerInfo, error)
	ContainerStop(ctx context.Context, id string) error
	ContainerRemove(ctx context.Context, id string) error
	// ContainerRun creates and starts a detached container and returns its id.
	ContainerRun(ctx context.Context, cfg RunConfig) (string, error)
	logfollow.Source
}

// CredentialWriter provisions credential files before a container starts.
// Production: *secrets.Provisioner
type CredentialWriter interface {
	Provision(username, password string) error
	Dir() string
}

// ContainerInfo describes a container as seen by the runtime.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	Status  string
	Exists  bool
	Running bool
	Ports   []PortBinding
}

// RunConfig holds everything needed to create and start the managed container.
type RunConfig struct {
	Name   string
	Image  string
	Cmd    []string
	Env    []string
	Ports  []PortBinding
	Mounts []Mount
	Labels map[string]string
}

// PortBinding maps a host port to a container port such as "5432/tcp".
type PortBinding struct {
	HostPort      string
	ContainerPort string
}

// Mount describes a bind mount for a container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}
