package desired

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("# test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuildDefaults(t *testing.T) {
	workDir := t.TempDir()
	s, err := Build(RawConfig{}, nil, workDir)
	if err != nil {
		t.Fatal(err)
	}
	if s.ContainerName() != "greengrass_postgresql" {
		t.Errorf("container name = %q", s.ContainerName())
	}
	if s.HostPort() != "5432" {
		t.Errorf("host port = %q", s.HostPort())
	}
	if want := filepath.Join(workDir, "postgresql"); s.HostVolume() != want {
		t.Errorf("host volume = %q, want %q", s.HostVolume(), want)
	}
	if u, p := s.Credentials(); u != "" || p != "" {
		t.Errorf("credentials = (%q, %q), want empty", u, p)
	}
	if len(s.ConfigFiles()) != 0 {
		t.Errorf("config files = %v, want empty", s.ConfigFiles())
	}
	if s.HasCredentials() {
		t.Error("expected no credentials")
	}
}

func TestBuildContainerMapping(t *testing.T) {
	raw := RawConfig{ContainerMapping: &ContainerMapping{
		HostPort:      String("8000"),
		HostVolume:    String("/some/volume/"),
		ContainerName: String("some-container-name"),
	}}
	s, err := Build(raw, nil, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.ContainerName() != "some-container-name" || s.HostPort() != "8000" || s.HostVolume() != "/some/volume" {
		t.Errorf("unexpected snapshot: %v", s.LogAttrs())
	}
}

func TestBuildRelativeVolumeResolvesAgainstWorkDir(t *testing.T) {
	workDir := t.TempDir()
	raw := RawConfig{ContainerMapping: &ContainerMapping{HostVolume: String("data")}}
	s, err := Build(raw, nil, workDir)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(workDir, "data"); s.HostVolume() != want {
		t.Errorf("host volume = %q, want %q", s.HostVolume(), want)
	}
}

func TestBuildInvalidMapping(t *testing.T) {
	tests := map[string]ContainerMapping{
		"non-numeric port": {HostPort: String("http")},
		"port zero":        {HostPort: String("0")},
		"port too large":   {HostPort: String("70000")},
		"empty name":       {ContainerName: String("  ")},
		"empty volume":     {HostVolume: String("")},
	}
	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Build(RawConfig{ContainerMapping: &m}, nil, t.TempDir())
			if !errors.Is(err, ErrInvalidMapping) {
				t.Fatalf("error = %v, want ErrInvalidMapping", err)
			}
			if !IsFatal(err) {
				t.Error("expected invalid mapping to be fatal")
			}
		})
	}
}

func TestBuildCredentials(t *testing.T) {
	secret := &RawSecret{Username: String("this-is-a-username"), Password: String("Thi5-is-@-password")}
	s, err := Build(RawConfig{}, secret, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if u, p := s.Credentials(); u != "this-is-a-username" || p != "Thi5-is-@-password" {
		t.Errorf("credentials = (%q, %q)", u, p)
	}
	if s.ContainerName() != DefaultContainerName || s.HostPort() != DefaultHostPort {
		t.Errorf("mapping should stay default: %v", s.LogAttrs())
	}
}

func TestBuildMissingCredentials(t *testing.T) {
	tests := map[string]string{
		"wrong username key": `{"POSTGRES_USERNAME": "this-is-a-username", "POSTGRES_PASSWORD": "Thi5-is-@-password"}`,
		"no password":        `{"POSTGRES_USER": "this-is-a-username"}`,
		"empty document":     `{}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			secret, err := ParseSecret([]byte(doc))
			if err != nil {
				t.Fatal(err)
			}
			_, err = Build(RawConfig{}, &secret, t.TempDir())
			if !errors.Is(err, ErrMissingCredentials) {
				t.Fatalf("error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestBuildWeakPasswordIsFatal(t *testing.T) {
	secret := &RawSecret{Username: String("u"), Password: String("No5specialCharacter")}
	_, err := Build(RawConfig{}, secret, t.TempDir())
	if !errors.Is(err, ErrWeakPassword) || !IsFatal(err) {
		t.Fatalf("error = %v, want fatal ErrWeakPassword", err)
	}
}

func TestBuildConfigFileAllowList(t *testing.T) {
	dir := t.TempDir()
	pgConf := writeFile(t, dir, "postgresql.conf")
	hbaConf := writeFile(t, dir, "pg_hba.conf")
	unsupported := writeFile(t, dir, "unsupported.conf")

	raw := RawConfig{ConfigurationFiles: map[string]string{
		"postgresql.conf":  pgConf,
		"unsupported.conf": unsupported,
		"pg_hba.conf":      hbaConf,
	}}
	s, err := Build(raw, nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.ConfigFileNames(), []string{"pg_hba.conf", "postgresql.conf"}; !slices.Equal(got, want) {
		t.Fatalf("retained = %v, want %v", got, want)
	}
	if s.ConfigFiles()["postgresql.conf"] != pgConf {
		t.Errorf("postgresql.conf path = %q", s.ConfigFiles()["postgresql.conf"])
	}
}

func TestBuildConfigFileMustBeRegularFile(t *testing.T) {
	dir := t.TempDir()
	raw := RawConfig{ConfigurationFiles: map[string]string{
		"postgresql.conf": filepath.Join(dir, "missing.conf"),
		"pg_hba.conf":     dir,
		"pg_ident.conf":   "ident.conf",
	}}
	writeFile(t, dir, "ident.conf")

	s, err := Build(raw, nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.ConfigFileNames(), []string{"pg_ident.conf"}; !slices.Equal(got, want) {
		t.Fatalf("retained = %v, want %v", got, want)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	dir := t.TempDir()
	raw := RawConfig{ConfigurationFiles: map[string]string{"postgresql.conf": writeFile(t, dir, "postgresql.conf")}}
	s, err := Build(raw, nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	files := s.ConfigFiles()
	files["pg_hba.conf"] = "/elsewhere"
	delete(files, "postgresql.conf")
	if len(s.ConfigFiles()) != 1 {
		t.Fatalf("snapshot mutated through ConfigFiles: %v", s.ConfigFiles())
	}
}

func TestSnapshotEqualAndDiff(t *testing.T) {
	dir := t.TempDir()
	base, _ := Build(RawConfig{}, nil, dir)
	same, _ := Build(RawConfig{ContainerMapping: &ContainerMapping{HostPort: String(" 5432 ")}}, nil, dir)
	if !base.Equal(same) {
		t.Fatalf("expected equal snapshots, diff %v", base.Diff(same))
	}

	port, _ := Build(RawConfig{ContainerMapping: &ContainerMapping{HostPort: String("5433")}}, nil, dir)
	if got := base.Diff(port); !slices.Equal(got, []string{"host_port"}) {
		t.Errorf("diff = %v, want [host_port]", got)
	}

	creds, _ := Build(RawConfig{}, &RawSecret{Username: String("u"), Password: String("Thi5-is-@-password")}, dir)
	if got := base.Diff(creds); !slices.Equal(got, []string{"credentials"}) {
		t.Errorf("diff = %v, want [credentials]", got)
	}
}

type stubConfig struct {
	raw RawConfig
	err error
}

func (s stubConfig) Fetch(context.Context) (RawConfig, error) { return s.raw, s.err }

type stubSecrets struct {
	secrets map[string]RawSecret
	calls   []string
}

func (s *stubSecrets) Resolve(_ context.Context, ref string) (RawSecret, error) {
	s.calls = append(s.calls, ref)
	sec, ok := s.secrets[ref]
	if !ok {
		return RawSecret{}, errors.New("secret not found")
	}
	return sec, nil
}

func TestLoaderResolvesReferencedSecret(t *testing.T) {
	secrets := &stubSecrets{secrets: map[string]RawSecret{
		"secret-arn": {Username: String("this-is-a-username"), Password: String("Thi5-is-@-password")},
	}}
	l := Loader{
		Config:  stubConfig{raw: RawConfig{CredentialSecret: String("secret-arn")}},
		Secrets: secrets,
		WorkDir: t.TempDir(),
	}
	s, err := l.Load(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if u, _ := s.Credentials(); u != "this-is-a-username" {
		t.Errorf("username = %q", u)
	}
	if !slices.Equal(secrets.calls, []string{"secret-arn"}) {
		t.Errorf("resolve calls = %v", secrets.calls)
	}
}

func TestLoaderWithoutReferenceSkipsSecrets(t *testing.T) {
	secrets := &stubSecrets{}
	l := Loader{Config: stubConfig{}, Secrets: secrets, WorkDir: t.TempDir()}
	if _, err := l.Load(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(secrets.calls) != 0 {
		t.Errorf("unexpected resolve calls: %v", secrets.calls)
	}
}

func TestLoaderSourceErrorsAreNotFatal(t *testing.T) {
	l := Loader{Config: stubConfig{err: errors.New("ipc unavailable")}, WorkDir: t.TempDir()}
	_, err := l.Load(t.Context())
	if err == nil || IsFatal(err) {
		t.Fatalf("error = %v, want non-fatal error", err)
	}

	l = Loader{Config: stubConfig{raw: RawConfig{CredentialSecret: String("arn")}}, Secrets: &stubSecrets{}, WorkDir: t.TempDir()}
	if _, err := l.Load(t.Context()); err == nil || IsFatal(err) {
		t.Fatalf("error = %v, want non-fatal error", err)
	}
}

func TestRawConfigContainerName(t *testing.T) {
	tests := []struct {
		name string
		raw  RawConfig
		want string
	}{
		{name: "absent mapping", raw: RawConfig{}, want: DefaultContainerName},
		{name: "blank name", raw: RawConfig{ContainerMapping: &ContainerMapping{ContainerName: String("  ")}}, want: DefaultContainerName},
		{name: "set", raw: RawConfig{ContainerMapping: &ContainerMapping{ContainerName: String(" pg ")}}, want: "pg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.raw.ContainerName(); got != tt.want {
				t.Errorf("ContainerName() = %q, want %q", got, tt.want)
			}
		})
	}
}
