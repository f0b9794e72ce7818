package lifecycle

import (
	"path"

	"ggpostgres/internal/desired"
	"ggpostgres/internal/secrets"
)

const (
	DefaultImage = "postgres:alpine3.16"

	ContainerPort    = "5432/tcp"
	ContainerDataDir = "/var/lib/postgresql/data"
	ContainerSecrets = "/run/secrets/postgresql"
	ContainerConfDir = "/etc/postgresql"
	DefaultDatabase  = "postgres"

	// ManagedLabel marks containers created by this controller.
	ManagedLabel = "io.ggpostgres.managed"
)

// BuildRunConfig translates a snapshot into a concrete container definition.
// Credentials are passed as file paths inside the secrets mount, never as values.
func BuildRunConfig(s desired.Snapshot, image, secretsDir string) RunConfig {
	cfg := RunConfig{
		Name:  s.ContainerName(),
		Image: image,
		Cmd:   []string{"postgres"},
		Env: []string{
			"POSTGRES_USER_FILE=" + path.Join(ContainerSecrets, secrets.UsernameFile),
			"POSTGRES_PASSWORD_FILE=" + path.Join(ContainerSecrets, secrets.PasswordFile),
			"POSTGRES_DB=" + DefaultDatabase,
		},
		Ports: []PortBinding{{HostPort: s.HostPort(), ContainerPort: ContainerPort}},
		Mounts: []Mount{
			{Source: s.HostVolume(), Target: ContainerDataDir},
			{Source: secretsDir, Target: ContainerSecrets, ReadOnly: true},
		},
		Labels: map[string]string{ManagedLabel: "true"},
	}

	files := s.ConfigFiles()
	for _, name := range s.ConfigFileNames() {
		target := path.Join(ContainerConfDir, name)
		cfg.Mounts = append(cfg.Mounts, Mount{Source: files[name], Target: target, ReadOnly: true})
		cfg.Cmd = append(cfg.Cmd, "-c", desired.SupportedConfigFiles[name]+"="+target)
	}
	return cfg
}
