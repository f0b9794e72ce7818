// Package file serves desired state, credential secrets and change
// notifications from the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"ggpostgres/internal/desired"
)

var (
	_ desired.ConfigurationSource = (*ConfigSource)(nil)
	_ desired.SecretSource        = (*SecretSource)(nil)
)

// ConfigSource reads the desired-state document from a YAML or JSON file.
// A missing file is an empty document, which resolves to all defaults.
type ConfigSource struct {
	path string
}

func NewConfigSource(path string) *ConfigSource {
	return &ConfigSource{path: path}
}

func (s *ConfigSource) Path() string { return s.path }

func (s *ConfigSource) Fetch(ctx context.Context) (desired.RawConfig, error) {
	if err := ctx.Err(); err != nil {
		return desired.RawConfig{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return desired.RawConfig{}, nil
	}
	if err != nil {
		return desired.RawConfig{}, fmt.Errorf("read desired state %s: %w", s.path, err)
	}

	var raw desired.RawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return desired.RawConfig{}, fmt.Errorf("decode desired state %s: %w", s.path, err)
	}
	return raw, nil
}
