// Package config holds daemon settings.
//
// Settings are layered: built-in defaults, then a YAML or TOML settings file
// (chosen by extension), then GGPOSTGRES_* environment variables, then CLI
// flags. Paths left empty are derived from the work directory; relative paths
// are resolved against it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"ggpostgres/internal/lifecycle"
)

const (
	DefaultPath    = "/etc/ggpostgres/ggpostgresd.yaml"
	DefaultWorkDir = "/var/lib/ggpostgres"

	BackendFile = "file"
	BackendAWS  = "aws"

	EnvPrefix = "GGPOSTGRES_"
)

// Settings configures the daemon and its subcommands.
type Settings struct {
	WorkDir          string
	DesiredStatePath string
	// SecretsDir receives the provisioned credential files mounted into the container.
	SecretsDir string
	// SecretBackend resolves DBCredentialSecret references: "file" or "aws".
	SecretBackend string
	// SecretFileDir holds <reference>.json documents for the file backend.
	SecretFileDir  string
	AWSRegion      string
	AWSEndpoint    string
	Image          string
	LogLevel       string
	LogFormat      string
	StrictSecrets  bool
	FollowLogs     bool
	ResyncInterval time.Duration
	StopTimeout    time.Duration
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		WorkDir:        DefaultWorkDir,
		SecretBackend:  BackendFile,
		Image:          lifecycle.DefaultImage,
		LogLevel:       "info",
		LogFormat:      "text",
		FollowLogs:     true,
		ResyncInterval: 5 * time.Minute,
		StopTimeout:    10 * time.Second,
	}
}

// fileSettings is the on-disk shape. Nil fields were absent and keep their
// current value.
type fileSettings struct {
	WorkDir          *string `yaml:"work_dir" toml:"work_dir"`
	DesiredStatePath *string `yaml:"desired_state" toml:"desired_state"`
	SecretsDir       *string `yaml:"secrets_dir" toml:"secrets_dir"`
	SecretBackend    *string `yaml:"secret_backend" toml:"secret_backend"`
	SecretFileDir    *string `yaml:"secret_file_dir" toml:"secret_file_dir"`
	AWSRegion        *string `yaml:"aws_region" toml:"aws_region"`
	AWSEndpoint      *string `yaml:"aws_endpoint" toml:"aws_endpoint"`
	Image            *string `yaml:"image" toml:"image"`
	LogLevel         *string `yaml:"log_level" toml:"log_level"`
	LogFormat        *string `yaml:"log_format" toml:"log_format"`
	StrictSecrets    *bool   `yaml:"strict_secrets" toml:"strict_secrets"`
	FollowLogs       *bool   `yaml:"follow_logs" toml:"follow_logs"`
	ResyncInterval   *string `yaml:"resync_interval" toml:"resync_interval"`
	StopTimeout      *string `yaml:"stop_timeout" toml:"stop_timeout"`
	MetricsAddr      *string `yaml:"metrics_addr" toml:"metrics_addr"`
}

// Load reads settings from path on top of the defaults. A missing file yields
// the defaults. Unknown keys are rejected.
func Load(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var raw fileSettings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Settings{}, fmt.Errorf("parse settings %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}

	if err := s.overlay(raw); err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) overlay(raw fileSettings) error {
	setString(&s.WorkDir, raw.WorkDir)
	setString(&s.DesiredStatePath, raw.DesiredStatePath)
	setString(&s.SecretsDir, raw.SecretsDir)
	setString(&s.SecretBackend, raw.SecretBackend)
	setString(&s.SecretFileDir, raw.SecretFileDir)
	setString(&s.AWSRegion, raw.AWSRegion)
	setString(&s.AWSEndpoint, raw.AWSEndpoint)
	setString(&s.Image, raw.Image)
	setString(&s.LogLevel, raw.LogLevel)
	setString(&s.LogFormat, raw.LogFormat)
	setString(&s.MetricsAddr, raw.MetricsAddr)
	if raw.StrictSecrets != nil {
		s.StrictSecrets = *raw.StrictSecrets
	}
	if raw.FollowLogs != nil {
		s.FollowLogs = *raw.FollowLogs
	}
	if raw.ResyncInterval != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*raw.ResyncInterval))
		if err != nil {
			return fmt.Errorf("parse resync_interval: %w", err)
		}
		s.ResyncInterval = d
	}
	if raw.StopTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*raw.StopTimeout))
		if err != nil {
			return fmt.Errorf("parse stop_timeout: %w", err)
		}
		s.StopTimeout = d
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// ApplyEnv overrides settings from GGPOSTGRES_* variables found by lookup,
// typically os.LookupEnv.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"WORK_DIR":        &s.WorkDir,
		"DESIRED_STATE":   &s.DesiredStatePath,
		"SECRETS_DIR":     &s.SecretsDir,
		"SECRET_BACKEND":  &s.SecretBackend,
		"SECRET_FILE_DIR": &s.SecretFileDir,
		"AWS_REGION":      &s.AWSRegion,
		"AWS_ENDPOINT":    &s.AWSEndpoint,
		"IMAGE":           &s.Image,
		"LOG_LEVEL":       &s.LogLevel,
		"LOG_FORMAT":      &s.LogFormat,
		"METRICS_ADDR":    &s.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"STRICT_SECRETS": &s.StrictSecrets,
		"FOLLOW_LOGS":    &s.FollowLogs,
	}
	for key, dst := range bools {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"RESYNC_INTERVAL": &s.ResyncInterval,
		"STOP_TIMEOUT":    &s.StopTimeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Resolve fills derived paths and makes every path absolute.
func (s *Settings) Resolve() error {
	if s.WorkDir == "" {
		s.WorkDir = DefaultWorkDir
	}
	abs, err := filepath.Abs(s.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve work dir: %w", err)
	}
	s.WorkDir = abs

	s.DesiredStatePath = s.under(s.DesiredStatePath, "desired.yaml")
	s.SecretsDir = s.under(s.SecretsDir, "secrets")
	s.SecretFileDir = s.under(s.SecretFileDir, "credentials")
	return nil
}

func (s *Settings) under(p, fallback string) string {
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.WorkDir, p)
}

// Validate reports settings the daemon cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if !slices.Contains([]string{BackendFile, BackendAWS}, s.SecretBackend) {
		errs = append(errs, fmt.Errorf("secret_backend must be %q or %q, got %q", BackendFile, BackendAWS, s.SecretBackend))
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(s.LogFormat)) {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", s.LogFormat))
	}
	if strings.TrimSpace(s.Image) == "" {
		errs = append(errs, errors.New("image must not be empty"))
	}
	if s.ResyncInterval < 0 {
		errs = append(errs, errors.New("resync_interval must not be negative"))
	}
	if s.StopTimeout < 0 {
		errs = append(errs, errors.New("stop_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
