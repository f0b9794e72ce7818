package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"ggpostgres/internal/desired"
)

// SecretSource resolves a secret reference to <dir>/<reference>.json, falling
// back to <dir>/<reference>. The file holds a JSON credential document.
type SecretSource struct {
	dir string
}

func NewSecretSource(dir string) *SecretSource {
	return &SecretSource{dir: dir}
}

func (s *SecretSource) Dir() string { return s.dir }

func (s *SecretSource) Resolve(ctx context.Context, reference string) (desired.RawSecret, error) {
	if err := ctx.Err(); err != nil {
		return desired.RawSecret{}, err
	}
	if reference == "" || reference == "." || reference == ".." || strings.ContainsAny(reference, `/\`) {
		return desired.RawSecret{}, fmt.Errorf("invalid secret reference %q", reference)
	}

	for _, name := range []string{reference + ".json", reference} {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return desired.RawSecret{}, fmt.Errorf("read secret %q: %w", reference, err)
		}
		return desired.ParseSecret(data)
	}
	return desired.RawSecret{}, fmt.Errorf("secret %q: %w", reference, fs.ErrNotExist)
}
