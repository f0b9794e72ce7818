package fake

import (
	"context"
	"fmt"
	"sync"

	"ggpostgres/internal/desired"
)

var (
	_ desired.ConfigurationSource = (*ConfigSource)(nil)
	_ desired.SecretSource        = (*SecretSource)(nil)
)

// ConfigSource is an in-memory desired.ConfigurationSource whose document can
// be swapped between fetches.
type ConfigSource struct {
	CallRecorder
	mu  sync.Mutex
	raw desired.RawConfig

	FetchErr func(ctx context.Context) error
}

// NewConfigSource creates a ConfigSource serving raw.
func NewConfigSource(raw desired.RawConfig) *ConfigSource {
	return &ConfigSource{raw: raw}
}

// Set replaces the served document.
func (s *ConfigSource) Set(raw desired.RawConfig) {
	s.mu.Lock()
	s.raw = raw
	s.mu.Unlock()
}

func (s *ConfigSource) Fetch(ctx context.Context) (desired.RawConfig, error) {
	s.record("Fetch")
	if s.FetchErr != nil {
		if err := s.FetchErr(ctx); err != nil {
			return desired.RawConfig{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, nil
}

// SecretSource is an in-memory desired.SecretSource keyed by reference.
type SecretSource struct {
	CallRecorder
	mu      sync.Mutex
	secrets map[string]desired.RawSecret

	ResolveErr func(ctx context.Context, reference string) error
}

// NewSecretSource creates an empty SecretSource.
func NewSecretSource() *SecretSource {
	return &SecretSource{secrets: make(map[string]desired.RawSecret)}
}

// Put stores a username/password secret under reference.
func (s *SecretSource) Put(reference, username, password string) {
	s.PutRaw(reference, desired.RawSecret{Username: desired.String(username), Password: desired.String(password)})
}

// PutRaw stores an arbitrary secret document under reference.
func (s *SecretSource) PutRaw(reference string, secret desired.RawSecret) {
	s.mu.Lock()
	s.secrets[reference] = secret
	s.mu.Unlock()
}

func (s *SecretSource) Resolve(ctx context.Context, reference string) (desired.RawSecret, error) {
	s.record("Resolve", reference)
	if s.ResolveErr != nil {
		if err := s.ResolveErr(ctx, reference); err != nil {
			return desired.RawSecret{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[reference]
	if !ok {
		return desired.RawSecret{}, fmt.Errorf("secret %q not found", reference)
	}
	return secret, nil
}
