package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"ggpostgres/internal/adapter/file"
	"ggpostgres/internal/adapter/postgres"
	"ggpostgres/internal/config"
	"ggpostgres/internal/desired"
	"ggpostgres/internal/lifecycle"
	"ggpostgres/internal/secrets"
)

// Shutdown stops and removes the container named by the current desired-state
// document. An unreadable document falls back to the default name.
func Shutdown(ctx context.Context, s config.Settings, rt lifecycle.ContainerRuntime) error {
	log := slog.Default().With("component", "shutdown")
	raw, err := file.NewConfigSource(s.DesiredStatePath).Fetch(ctx)
	if err != nil {
		log.Warn("Failed to read desired state, using default container name.", "err", err)
		raw = desired.RawConfig{}
	}
	name := raw.ContainerName()

	ctrl := NewController(s, rt, lifecycle.WithLogFollowing(false))
	defer ctrl.Close()
	if err := ctrl.Cleanup(ctx, name); err != nil {
		return fmt.Errorf("shut down container %s: %w", name, err)
	}
	log.Info("PostgreSQL container stopped and removed.", "name", name)
	return nil
}

// Status describes the managed container next to the desired state.
type Status struct {
	Name      string
	Container lifecycle.ContainerInfo
	// Desired is the resolved desired state; DesiredErr is why it is missing.
	Desired    *desired.Snapshot
	DesiredErr error
	Probe      *postgres.Result
	ProbeErr   error
}

// CollectStatus inspects the container and resolves the desired state. With
// probe set and the container running, it also connects to the database
// using the provisioned credential files.
func CollectStatus(ctx context.Context, s config.Settings, rt lifecycle.ContainerRuntime, src desired.SecretSource, probe bool, probeOpts ...postgres.Option) (Status, error) {
	var st Status

	raw, err := file.NewConfigSource(s.DesiredStatePath).Fetch(ctx)
	if err != nil {
		st.DesiredErr = err
	}
	st.Name = raw.ContainerName()
	if st.DesiredErr == nil {
		if snap, err := NewLoader(s, src).Load(ctx); err != nil {
			st.DesiredErr = err
		} else {
			st.Desired = &snap
		}
	}

	info, err := rt.ContainerInspect(ctx, st.Name)
	if err != nil {
		return Status{}, fmt.Errorf("inspect container %s: %w", st.Name, err)
	}
	st.Container = info

	if probe && info.Running {
		res, err := probeContainer(ctx, s, st, probeOpts...)
		if err != nil {
			st.ProbeErr = err
		} else {
			st.Probe = &res
		}
	}
	return st, nil
}

func probeContainer(ctx context.Context, s config.Settings, st Status, opts ...postgres.Option) (postgres.Result, error) {
	user, password, err := secrets.NewProvisioner(s.SecretsDir).Read()
	if err != nil {
		return postgres.Result{}, err
	}
	if user == "" {
		// The image's superuser when POSTGRES_USER is unset.
		user = lifecycle.DefaultDatabase
	}
	port := ""
	for _, p := range st.Container.Ports {
		if p.ContainerPort == lifecycle.ContainerPort {
			port = p.HostPort
			break
		}
	}
	if port == "" && st.Desired != nil {
		port = st.Desired.HostPort()
	}
	if port == "" {
		port = desired.DefaultHostPort
	}
	return postgres.Probe(ctx, postgres.Target{
		Host:     "127.0.0.1",
		Port:     port,
		User:     user,
		Password: password,
		Database: lifecycle.DefaultDatabase,
	}, opts...)
}
