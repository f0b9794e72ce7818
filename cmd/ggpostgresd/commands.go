package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ggpostgres/cmd/ggpostgresd/ui"
	"ggpostgres/internal/adapter/docker"
	"ggpostgres/internal/adapter/postgres"
	"ggpostgres/internal/config"
	"ggpostgres/internal/daemon"
	"ggpostgres/internal/metrics"
)

func runCmd(s *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile the PostgreSQL container until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, *s)
			if err != nil {
				return err
			}
			defer rt.Close()

			src, err := daemon.NewSecretSource(ctx, *s)
			if err != nil {
				return fmt.Errorf("create secret source: %w", err)
			}

			var opts []daemon.Option
			if s.MetricsAddr != "" {
				opts = append(opts, daemon.WithMetrics(metrics.NewCollector()))
			}
			return daemon.New(*s, rt, src, opts...).Run(ctx)
		},
	}
}

func shutdownCmd(s *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop and remove the PostgreSQL container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context(), *s)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := daemon.Shutdown(cmd.Context(), *s, rt); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("PostgreSQL container removed"))
			return nil
		},
	}
}

func statusCmd(s *config.Settings) *cobra.Command {
	var probe bool
	var probeTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the container next to its desired state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, *s)
			if err != nil {
				return err
			}
			defer rt.Close()

			src, err := daemon.NewSecretSource(ctx, *s)
			if err != nil {
				return fmt.Errorf("create secret source: %w", err)
			}
			st, err := daemon.CollectStatus(ctx, *s, rt, src, probe, postgres.WithMaxElapsed(probeTimeout))
			if err != nil {
				return err
			}
			fmt.Print(renderStatus(st, probe))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Connect to the database with the provisioned credentials")
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 15*time.Second, "Give up probing after this long")
	return cmd
}

func renderStatus(st daemon.Status, probed bool) string {
	c := st.Container
	state := ui.Warn("absent")
	if c.Exists {
		state = ui.Success(c.Status)
		if !c.Running {
			state = ui.Error(c.Status)
		}
	}
	pairs := []ui.Pair{
		ui.KV("Container", st.Name),
		ui.KV("State", state),
	}
	if c.Exists {
		ports := make([]string, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, p.HostPort+"->"+p.ContainerPort)
		}
		pairs = append(pairs,
			ui.KV("ID", shortID(c.ID)),
			ui.KV("Image", c.Image),
			ui.KV("Ports", strings.Join(ports, ", ")),
		)
	}

	if st.Desired != nil {
		d := st.Desired
		user, _ := d.Credentials()
		pairs = append(pairs,
			ui.KV("Desired Port", d.HostPort()),
			ui.KV("Data Volume", d.HostVolume()),
			ui.KV("Credentials", credentialLabel(d.HasCredentials(), user)),
			ui.KV("Config Files", strings.Join(d.ConfigFileNames(), ", ")),
		)
	} else if st.DesiredErr != nil {
		pairs = append(pairs, ui.KV("Desired State", ui.Error(st.DesiredErr.Error())))
	}

	if probed {
		switch {
		case st.Probe != nil:
			pairs = append(pairs, ui.KV("Database", ui.Success("PostgreSQL "+st.Probe.ServerVersion)))
		case st.ProbeErr != nil:
			pairs = append(pairs, ui.KV("Database", ui.Error(st.ProbeErr.Error())))
		default:
			pairs = append(pairs, ui.KV("Database", ui.Muted("not probed, container is not running")))
		}
	}
	return ui.KeyValues("  ", pairs...)
}

func credentialLabel(ok bool, user string) string {
	if !ok {
		return ui.Muted("none")
	}
	if user == "" {
		return "password only"
	}
	return user
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func validateCmd(s *config.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Resolve the desired state without touching the container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := daemon.NewSecretSource(ctx, *s)
			if err != nil {
				return fmt.Errorf("create secret source: %w", err)
			}
			snap, err := daemon.NewLoader(*s, src).Load(ctx)
			if err != nil {
				fmt.Println(ui.ErrorMsg("Desired state %s is not usable", s.DesiredStatePath))
				return err
			}
			slog.Debug("Resolved desired state.", snap.LogAttrs()...)

			user, _ := snap.Credentials()
			fmt.Println(ui.SuccessMsg("Desired state %s is valid", s.DesiredStatePath))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("Container", snap.ContainerName()),
				ui.KV("Host Port", snap.HostPort()),
				ui.KV("Data Volume", snap.HostVolume()),
				ui.KV("Credentials", credentialLabel(snap.HasCredentials(), user)),
				ui.KV("Config Files", strings.Join(snap.ConfigFileNames(), ", ")),
			))
			return nil
		},
	}
}

// newRuntime connects to the Docker engine and waits for it to answer.
func newRuntime(ctx context.Context, s config.Settings) (*docker.Runtime, error) {
	rt, err := docker.NewRuntime(docker.WithStopTimeout(s.StopTimeout), docker.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if err := rt.WaitReady(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}
