// Package secrets writes database credentials as files that are mounted into
// the managed container, so they never appear in its process environment.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

const (
	UsernameFile = "postgres_user"
	PasswordFile = "postgres_password"

	// The postgres entrypoint reads these after dropping to the postgres
	// user, so the files must be readable by a non-root uid.
	dirMode  os.FileMode = 0o711
	fileMode os.FileMode = 0o644
)

// Provisioner owns one secrets directory on the host.
type Provisioner struct {
	dir string
	log *slog.Logger
}

// NewProvisioner returns a Provisioner writing into dir.
func NewProvisioner(dir string) *Provisioner {
	return &Provisioner{dir: dir, log: slog.With("component", "secrets", "dir", dir)}
}

// Dir returns the host secrets directory.
func (p *Provisioner) Dir() string { return p.dir }

// UsernamePath returns the host path of the username file.
func (p *Provisioner) UsernamePath() string { return filepath.Join(p.dir, UsernameFile) }

// PasswordPath returns the host path of the password file.
func (p *Provisioner) PasswordPath() string { return filepath.Join(p.dir, PasswordFile) }

// Provision creates the directory if needed and replaces both credential
// files. Each file is swapped in atomically, so a reader sees either the old
// or the new value, never a partial write.
func (p *Provisioner) Provision(username, password string) error {
	if err := os.MkdirAll(p.dir, dirMode); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}
	if err := atomicwriter.WriteFile(p.UsernamePath(), []byte(username), fileMode); err != nil {
		return fmt.Errorf("write username file: %w", err)
	}
	if err := atomicwriter.WriteFile(p.PasswordPath(), []byte(password), fileMode); err != nil {
		return fmt.Errorf("write password file: %w", err)
	}
	p.log.Debug("Provisioned credential files.")
	return nil
}

// Read returns the provisioned credentials.
func (p *Provisioner) Read() (username, password string, err error) {
	u, err := os.ReadFile(p.UsernamePath())
	if err != nil {
		return "", "", fmt.Errorf("read username file: %w", err)
	}
	pw, err := os.ReadFile(p.PasswordPath())
	if err != nil {
		return "", "", fmt.Errorf("read password file: %w", err)
	}
	return string(u), string(pw), nil
}
