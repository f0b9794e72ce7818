package daemon

import (
	"context"

	"ggpostgres/internal/adapter/file"
	"ggpostgres/internal/adapter/secretsmanager"
	"ggpostgres/internal/config"
	"ggpostgres/internal/desired"
	"ggpostgres/internal/lifecycle"
	"ggpostgres/internal/secrets"
)

// NewSecretSource builds the credential secret backend selected in s.
func NewSecretSource(ctx context.Context, s config.Settings) (desired.SecretSource, error) {
	if s.SecretBackend == config.BackendAWS {
		return secretsmanager.New(ctx, secretsmanager.Options{Region: s.AWSRegion, Endpoint: s.AWSEndpoint})
	}
	return file.NewSecretSource(s.SecretFileDir), nil
}

// NewLoader reads the desired-state document named in s.
func NewLoader(s config.Settings, src desired.SecretSource) desired.Loader {
	return desired.Loader{
		Config:  file.NewConfigSource(s.DesiredStatePath),
		Secrets: src,
		WorkDir: s.WorkDir,
	}
}

// NewController builds a lifecycle controller provisioning into s.SecretsDir.
// opts are applied after the settings-derived options.
func NewController(s config.Settings, rt lifecycle.ContainerRuntime, opts ...lifecycle.Option) *lifecycle.Controller {
	base := []lifecycle.Option{
		lifecycle.WithImage(s.Image),
		lifecycle.WithStrictSecrets(s.StrictSecrets),
		lifecycle.WithLogFollowing(s.FollowLogs),
	}
	return lifecycle.NewController(rt, secrets.NewProvisioner(s.SecretsDir), append(base, opts...)...)
}
