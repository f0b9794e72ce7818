// Package secretsmanager resolves credential secrets stored in AWS Secrets Manager.
package secretsmanager

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"ggpostgres/internal/desired"
)

var _ desired.SecretSource = (*Source)(nil)

// API is the subset of the Secrets Manager client the Source needs.
// Production: *secretsmanager.Client
// Testing: stub returning canned secret values
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Source treats a secret reference as a secret ARN or name and decodes its
// current value as a JSON credential document.
type Source struct {
	api API
}

// Options selects the AWS region and an optional endpoint override.
type Options struct {
	Region   string
	Endpoint string
}

// New loads the default AWS configuration chain and creates a Source.
func New(ctx context.Context, opts Options) (*Source, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewFromAPI(client), nil
}

// NewFromAPI wraps an existing client.
func NewFromAPI(api API) *Source {
	return &Source{api: api}
}

func (s *Source) Resolve(ctx context.Context, reference string) (desired.RawSecret, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(reference),
	})
	if err != nil {
		return desired.RawSecret{}, fmt.Errorf("get secret value %q: %w", reference, err)
	}

	switch {
	case out.SecretString != nil:
		return desired.ParseSecret([]byte(aws.ToString(out.SecretString)))
	case len(out.SecretBinary) > 0:
		return desired.ParseSecret(out.SecretBinary)
	default:
		return desired.RawSecret{}, fmt.Errorf("secret %q has no value", reference)
	}
}
