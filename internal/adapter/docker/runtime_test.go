package docker

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"ggpostgres/internal/lifecycle"
)

func TestCreateConfigs(t *testing.T) {
	cfg := lifecycle.RunConfig{
		Name:   "greengrass_postgresql",
		Image:  "postgres:alpine3.16",
		Cmd:    []string{"postgres", "-c", "hba_file=/etc/postgresql/pg_hba.conf"},
		Env:    []string{"POSTGRES_DB=postgres"},
		Ports:  []lifecycle.PortBinding{{HostPort: "8000", ContainerPort: "5432/tcp"}},
		Mounts: []lifecycle.Mount{{Source: "/work/secrets", Target: "/run/secrets/postgresql", ReadOnly: true}},
		Labels: map[string]string{lifecycle.ManagedLabel: "true"},
	}

	cc, hc := createConfigs(cfg)

	if cc.Image != cfg.Image || !slices.Equal(cc.Cmd, cfg.Cmd) || !slices.Equal(cc.Env, cfg.Env) {
		t.Errorf("container config = %+v", cc)
	}
	if cc.Labels[lifecycle.ManagedLabel] != "true" {
		t.Errorf("labels = %v", cc.Labels)
	}
	port := nat.Port("5432/tcp")
	if _, ok := cc.ExposedPorts[port]; !ok {
		t.Errorf("exposed ports = %v", cc.ExposedPorts)
	}
	if b := hc.PortBindings[port]; len(b) != 1 || b[0].HostPort != "8000" {
		t.Errorf("port bindings = %v", hc.PortBindings)
	}
	want := mount.Mount{Type: mount.TypeBind, Source: "/work/secrets", Target: "/run/secrets/postgresql", ReadOnly: true}
	if len(hc.Mounts) != 1 || hc.Mounts[0] != want {
		t.Errorf("mounts = %+v", hc.Mounts)
	}
	if hc.RestartPolicy.Name != container.RestartPolicyUnlessStopped {
		t.Errorf("restart policy = %q", hc.RestartPolicy.Name)
	}
}

func TestLogsOptionsFollowFromFirstLine(t *testing.T) {
	opts := logsOptions()
	if !opts.Follow || !opts.ShowStdout || !opts.ShowStderr {
		t.Errorf("options = %+v", opts)
	}
	if opts.Since != "" || opts.Tail != "" {
		t.Errorf("stream must start at the first line, got since=%q tail=%q", opts.Since, opts.Tail)
	}
}

func TestFromPortMap(t *testing.T) {
	pm := nat.PortMap{
		"5432/tcp": {{HostPort: "5432"}},
		"8080/tcp": {{HostPort: "80"}},
	}
	got := fromPortMap(pm)
	want := []lifecycle.PortBinding{
		{HostPort: "5432", ContainerPort: "5432/tcp"},
		{HostPort: "80", ContainerPort: "8080/tcp"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("fromPortMap() = %v, want %v", got, want)
	}
}

func TestDemuxMergesStreams(t *testing.T) {
	var framed bytes.Buffer
	if _, err := stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte("listening on port 5432\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := stdcopy.NewStdWriter(&framed, stdcopy.Stderr).Write([]byte("database system is ready\n")); err != nil {
		t.Fatal(err)
	}

	rc := demux(io.NopCloser(&framed))
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	want := []string{"listening on port 5432", "database system is ready"}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestDemuxCloseUnblocksReader(t *testing.T) {
	src, w := io.Pipe()
	rc := demux(src)

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(rc)
		done <- err
	}()
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}
	<-done
	// Closing twice is harmless.
	_ = rc.Close()
	_ = w.Close()
}
