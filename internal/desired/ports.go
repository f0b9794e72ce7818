package desired

import "context"

// ConfigurationSource returns the latest desired-state document.
// Production: adapter/file.ConfigSource
// Testing: adapter/fake.ConfigSource
type ConfigurationSource interface {
	Fetch(ctx context.Context) (RawConfig, error)
}

// SecretSource resolves a credential secret reference.
// Production: adapter/file.SecretSource, adapter/secretsmanager.Source
// Testing: adapter/fake.SecretSource
type SecretSource interface {
	Resolve(ctx context.Context, reference string) (RawSecret, error)
}

// ChangeEvent is an opaque "something changed, re-fetch" notification.
// Payload fields are informational only.
type ChangeEvent struct {
	Source  string
	KeyPath []string
}
