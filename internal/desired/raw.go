package desired

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document keys, shared with the component recipe that produces the document.
const (
	KeyContainerMapping   = "ContainerMapping"
	KeyHostPort           = "HostPort"
	KeyHostVolume         = "HostVolume"
	KeyContainerName      = "ContainerName"
	KeyCredentialSecret   = "DBCredentialSecret"
	KeyConfigurationFiles = "ConfigurationFiles"

	SecretUsernameKey = "POSTGRES_USER"
	SecretPasswordKey = "POSTGRES_PASSWORD"
)

// RawConfig is one desired-state document as delivered by a ConfigurationSource.
// Nil fields were absent from the document.
type RawConfig struct {
	ContainerMapping   *ContainerMapping `yaml:"ContainerMapping,omitempty" json:"ContainerMapping,omitempty"`
	CredentialSecret   *string           `yaml:"DBCredentialSecret,omitempty" json:"DBCredentialSecret,omitempty"`
	ConfigurationFiles map[string]string `yaml:"ConfigurationFiles,omitempty" json:"ConfigurationFiles,omitempty"`
}

// ContainerMapping is the container sub-document of RawConfig.
type ContainerMapping struct {
	HostPort      *string `yaml:"HostPort,omitempty" json:"HostPort,omitempty"`
	HostVolume    *string `yaml:"HostVolume,omitempty" json:"HostVolume,omitempty"`
	ContainerName *string `yaml:"ContainerName,omitempty" json:"ContainerName,omitempty"`
}

// SecretReference returns the credential secret reference, if any.
func (c RawConfig) SecretReference() (string, bool) {
	if c.CredentialSecret == nil || *c.CredentialSecret == "" {
		return "", false
	}
	return *c.CredentialSecret, true
}

// ContainerName returns the container name the document asks for, or the
// default. It needs no secret resolution, so cleanup paths can use it even
// when the rest of the document is unusable.
func (c RawConfig) ContainerName() string {
	if c.ContainerMapping != nil && c.ContainerMapping.ContainerName != nil {
		if name := strings.TrimSpace(*c.ContainerMapping.ContainerName); name != "" {
			return name
		}
	}
	return DefaultContainerName
}

// RawSecret is the structured credential document behind a secret reference.
type RawSecret struct {
	Username *string `json:"POSTGRES_USER,omitempty"`
	Password *string `json:"POSTGRES_PASSWORD,omitempty"`
}

// ParseSecret decodes a JSON secret string such as
// {"POSTGRES_USER": "...", "POSTGRES_PASSWORD": "..."}.
func ParseSecret(data []byte) (RawSecret, error) {
	var s RawSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return RawSecret{}, fmt.Errorf("decode credential secret: %w", err)
	}
	return s, nil
}

// String returns a pointer to s, for building RawConfig and RawSecret literals.
func String(s string) *string { return &s }
