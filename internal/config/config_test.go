package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ggpostgres/internal/desired"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if s != Defaults() {
		t.Errorf("Load() = %+v, want defaults", s)
	}
}

func TestLoadYAML(t *testing.T) {
	p := write(t, "ggpostgresd.yaml", `
work_dir: /srv/pg
secret_backend: aws
aws_region: eu-west-1
strict_secrets: true
resync_interval: 30s
metrics_addr: 127.0.0.1:9187
`)
	s, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "/srv/pg" || s.SecretBackend != BackendAWS || s.AWSRegion != "eu-west-1" {
		t.Errorf("settings = %+v", s)
	}
	if !s.StrictSecrets || s.ResyncInterval != 30*time.Second || s.MetricsAddr != "127.0.0.1:9187" {
		t.Errorf("settings = %+v", s)
	}
	// Untouched keys keep their defaults.
	if s.Image != Defaults().Image || s.StopTimeout != 10*time.Second || !s.FollowLogs {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestLoadTOML(t *testing.T) {
	p := write(t, "ggpostgresd.toml", `
work_dir = "/srv/pg"
follow_logs = false
stop_timeout = "1m"
log_format = "json"
`)
	s, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "/srv/pg" || s.FollowLogs || s.StopTimeout != time.Minute || s.LogFormat != "json" {
		t.Errorf("settings = %+v", s)
	}
	if s.ResyncInterval != Defaults().ResyncInterval {
		t.Errorf("resync interval = %s, want default", s.ResyncInterval)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"bad.yaml": "work_dri: /srv\n",
		"bad.toml": "work_dri = \"/srv\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(write(t, name, content)); err == nil {
				t.Fatal("expected unknown key error")
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(write(t, "bad.yaml", "resync_interval: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "resync_interval") {
		t.Fatalf("error = %v, want resync_interval parse failure", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GGPOSTGRES_WORK_DIR":        "/data",
		"GGPOSTGRES_STRICT_SECRETS":  "true",
		"GGPOSTGRES_RESYNC_INTERVAL": "0s",
		"UNRELATED":                  "x",
	}
	s := Defaults()
	if err := s.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != "/data" || !s.StrictSecrets || s.ResyncInterval != 0 {
		t.Errorf("settings = %+v", s)
	}

	bad := func(k string) (string, bool) {
		if k == "GGPOSTGRES_FOLLOW_LOGS" {
			return "sometimes", true
		}
		return "", false
	}
	if err := s.ApplyEnv(bad); err == nil {
		t.Fatal("expected bool parse error")
	}
}

func TestResolveDerivesPaths(t *testing.T) {
	s := Defaults()
	s.WorkDir = "/srv/pg"
	s.SecretFileDir = "creds"
	if err := s.Resolve(); err != nil {
		t.Fatal(err)
	}
	if s.DesiredStatePath != "/srv/pg/desired.yaml" || s.SecretsDir != "/srv/pg/secrets" || s.SecretFileDir != "/srv/pg/creds" {
		t.Errorf("resolved = %+v", s)
	}
}

func TestRelativeWorkDirFollowsCurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	s := Defaults()
	if s.WorkDir != DefaultWorkDir {
		t.Fatalf("default WorkDir = %q", s.WorkDir)
	}
	s.WorkDir = "."
	if err := s.Resolve(); err != nil {
		t.Fatal(err)
	}
	if s.WorkDir != cwd {
		t.Errorf("WorkDir = %q, want %q", s.WorkDir, cwd)
	}
	if got, want := desired.DefaultHostVolume(s.WorkDir), filepath.Join(cwd, "postgresql"); got != want {
		t.Errorf("default host volume = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	s := Defaults()
	s.SecretBackend = "vault"
	s.LogFormat = "xml"
	err := s.Validate()
	if err == nil || !strings.Contains(err.Error(), "secret_backend") || !strings.Contains(err.Error(), "log_format") {
		t.Fatalf("Validate() = %v, want both problems reported", err)
	}
}
