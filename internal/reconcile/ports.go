package reconcile

import (
	"context"

	"ggpostgres/internal/desired"
	"ggpostgres/internal/lifecycle"
)

// SnapshotLoader fetches and resolves the current desired state.
// Production: desired.Loader over adapter/file and adapter/secretsmanager sources
// Testing: desired.Loader over adapter/fake sources
type SnapshotLoader interface {
	Load(ctx context.Context) (desired.Snapshot, error)
}

// Applier converges the container runtime onto a snapshot.
// Production: *lifecycle.Controller
// Testing: *lifecycle.Controller over adapter/fake.ContainerRuntime
type Applier interface {
	Reconcile(ctx context.Context, next desired.Snapshot) (lifecycle.Result, error)
}
