package desired

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultHostVolume returns the data directory used when the document does not
// name one.
func DefaultHostVolume(workDir string) string {
	return filepath.Join(workDir, defaultVolumeDir)
}

// Build resolves a document and an optional credential secret into a Snapshot.
// A nil secret means no credential update and yields empty credentials.
//
// Resolution order is container mapping, then credentials, then the
// configuration file allow-list. Configuration file paths are checked on the
// local filesystem.
func Build(raw RawConfig, secret *RawSecret, workDir string) (Snapshot, error) {
	s := Snapshot{
		containerName: DefaultContainerName,
		hostPort:      DefaultHostPort,
		hostVolume:    DefaultHostVolume(workDir),
		configFiles:   map[string]string{},
	}

	if m := raw.ContainerMapping; m != nil {
		if err := s.applyMapping(*m, workDir); err != nil {
			return Snapshot{}, err
		}
	}

	if secret != nil {
		if secret.Username == nil || secret.Password == nil {
			return Snapshot{}, ErrMissingCredentials
		}
		if err := ValidatePassword(*secret.Password); err != nil {
			return Snapshot{}, err
		}
		s.username = *secret.Username
		s.password = *secret.Password
	}

	s.configFiles = resolveConfigFiles(raw.ConfigurationFiles, workDir)
	return s, nil
}

func (s *Snapshot) applyMapping(m ContainerMapping, workDir string) error {
	if m.ContainerName != nil {
		name := strings.TrimSpace(*m.ContainerName)
		if name == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidMapping, KeyContainerName)
		}
		s.containerName = name
	}
	if m.HostPort != nil {
		port := strings.TrimSpace(*m.HostPort)
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: %s %q is not a valid port", ErrInvalidMapping, KeyHostPort, *m.HostPort)
		}
		s.hostPort = strconv.Itoa(n)
	}
	if m.HostVolume != nil {
		vol := strings.TrimSpace(*m.HostVolume)
		if vol == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidMapping, KeyHostVolume)
		}
		s.hostVolume = absPath(vol, workDir)
	}
	return nil
}

func resolveConfigFiles(files map[string]string, workDir string) map[string]string {
	out := make(map[string]string, len(files))
	for name, path := range files {
		log := slog.With("component", "desired", "file", name, "path", path)
		if _, ok := SupportedConfigFiles[name]; !ok {
			log.Warn("Dropping unsupported configuration file.")
			continue
		}
		resolved := absPath(strings.TrimSpace(path), workDir)
		info, err := os.Stat(resolved)
		if err != nil {
			log.Warn("Dropping configuration file that cannot be read.", "err", err)
			continue
		}
		if !info.Mode().IsRegular() {
			log.Warn("Dropping configuration file that is not a regular file.")
			continue
		}
		out[name] = resolved
	}
	return out
}

func absPath(p, workDir string) string {
	if p == "" || filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}

// Loader fetches a fresh Snapshot from the external collaborators.
type Loader struct {
	Config  ConfigurationSource
	Secrets SecretSource // may be nil when no document references a secret
	WorkDir string
}

// Load fetches the document, resolves its credential secret if referenced, and
// builds a Snapshot. Source failures are returned wrapped; use IsFatal to tell
// them apart from unusable desired state.
func (l Loader) Load(ctx context.Context) (Snapshot, error) {
	raw, err := l.Config.Fetch(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch configuration: %w", err)
	}

	var secret *RawSecret
	if ref, ok := raw.SecretReference(); ok {
		if l.Secrets == nil {
			return Snapshot{}, errors.New("resolve credential secret: no secret source configured")
		}
		s, err := l.Secrets.Resolve(ctx, ref)
		if err != nil {
			return Snapshot{}, fmt.Errorf("resolve credential secret %q: %w", ref, err)
		}
		secret = &s
	}

	return Build(raw, secret, l.WorkDir)
}
