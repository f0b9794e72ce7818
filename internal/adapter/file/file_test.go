package file

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"ggpostgres/internal/desired"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestConfigSourceMissingFileIsEmpty(t *testing.T) {
	src := NewConfigSource(filepath.Join(t.TempDir(), "desired.yaml"))
	raw, err := src.Fetch(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if raw.ContainerMapping != nil || raw.CredentialSecret != nil || raw.ConfigurationFiles != nil {
		t.Errorf("expected empty document, got %+v", raw)
	}
}

func TestConfigSourceYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desired.yaml")
	writeFile(t, path, `
ContainerMapping:
  HostPort: "8000"
  ContainerName: pg
DBCredentialSecret: db-creds
ConfigurationFiles:
  postgresql.conf: /etc/pg/postgresql.conf
`)
	raw, err := NewConfigSource(path).Fetch(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	m := raw.ContainerMapping
	if m == nil || *m.HostPort != "8000" || *m.ContainerName != "pg" || m.HostVolume != nil {
		t.Errorf("mapping = %+v", m)
	}
	if ref, ok := raw.SecretReference(); !ok || ref != "db-creds" {
		t.Errorf("secret reference = %q, %v", ref, ok)
	}
	if raw.ConfigurationFiles["postgresql.conf"] != "/etc/pg/postgresql.conf" {
		t.Errorf("config files = %v", raw.ConfigurationFiles)
	}
}

func TestConfigSourceJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desired.json")
	writeFile(t, path, `{"ContainerMapping": {"HostVolume": "/data/pg"}}`)
	raw, err := NewConfigSource(path).Fetch(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if raw.ContainerMapping == nil || *raw.ContainerMapping.HostVolume != "/data/pg" {
		t.Errorf("mapping = %+v", raw.ContainerMapping)
	}
}

func TestConfigSourceMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desired.yaml")
	writeFile(t, path, "ContainerMapping: [unterminated")
	if _, err := NewConfigSource(path).Fetch(t.Context()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSecretSourceResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db-creds.json"), `{"POSTGRES_USER":"admin","POSTGRES_PASSWORD":"Thi5-is-@-password"}`)
	writeFile(t, filepath.Join(dir, "plain"), `{"POSTGRES_USER":"other"}`)
	src := NewSecretSource(dir)

	s, err := src.Resolve(t.Context(), "db-creds")
	if err != nil {
		t.Fatal(err)
	}
	if *s.Username != "admin" || *s.Password != "Thi5-is-@-password" {
		t.Errorf("secret = %q/%q", *s.Username, *s.Password)
	}

	s, err = src.Resolve(t.Context(), "plain")
	if err != nil {
		t.Fatal(err)
	}
	if *s.Username != "other" || s.Password != nil {
		t.Errorf("secret = %+v", s)
	}
}

func TestSecretSourceErrors(t *testing.T) {
	src := NewSecretSource(t.TempDir())
	if _, err := src.Resolve(t.Context(), "missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing secret error = %v", err)
	}
	for _, ref := range []string{"", "..", "../etc/passwd", `a\b`} {
		if _, err := src.Resolve(t.Context(), ref); err == nil {
			t.Errorf("reference %q should be rejected", ref)
		}
	}
}

func TestWatcherNotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "desired.yaml")
	writeFile(t, path, "{}")
	other := filepath.Join(dir, "unrelated.txt")

	w := NewWatcher(WatchFile(path), WithDebounce(10*time.Millisecond))
	out := make(chan desired.ChangeEvent, 1)
	ctx := t.Context()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, out) }()

	// The watch is registered asynchronously; keep touching until it is seen.
	deadline := time.Now().Add(5 * time.Second)
	for {
		writeFile(t, other, "ignored")
		writeFile(t, path, `{"DBCredentialSecret": "x"}`)
		select {
		case ev := <-out:
			if ev.Source != "file" || len(ev.KeyPath) != 1 || ev.KeyPath[0] != path {
				t.Fatalf("event = %+v", ev)
			}
			return
		case err := <-done:
			t.Fatalf("watcher exited: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no change notification")
		}
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	w := NewWatcher(WatchFile("/etc/ggpostgres/desired.yaml"), WatchDir("/var/lib/ggpostgres/secrets"))
	cases := map[string]bool{
		"/etc/ggpostgres/desired.yaml":          true,
		"/etc/ggpostgres/other.yaml":            false,
		"/var/lib/ggpostgres/secrets/db.json":   true,
		"/var/lib/ggpostgres/secrets/nested/db": false,
	}
	for name, want := range cases {
		if got := w.relevant(fsnotifyEvent(name)); got != want {
			t.Errorf("relevant(%s) = %v, want %v", name, got, want)
		}
	}
}

func fsnotifyEvent(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}
