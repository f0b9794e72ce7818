package desired

import (
	"maps"
	"slices"
)

const (
	DefaultContainerName = "greengrass_postgresql"
	DefaultHostPort      = "5432"
	defaultVolumeDir     = "postgresql"
)

// SupportedConfigFiles maps each overridable server configuration file to the
// postgres runtime parameter that points at it.
var SupportedConfigFiles = map[string]string{
	"postgresql.conf": "config_file",
	"pg_hba.conf":     "hba_file",
	"pg_ident.conf":   "ident_file",
}

// Snapshot is one fully resolved, immutable reading of desired state.
type Snapshot struct {
	containerName string
	hostPort      string
	hostVolume    string
	username      string
	password      string
	configFiles   map[string]string
}

func (s Snapshot) ContainerName() string { return s.containerName }
func (s Snapshot) HostPort() string      { return s.hostPort }
func (s Snapshot) HostVolume() string    { return s.hostVolume }

// Credentials returns the database username and password.
func (s Snapshot) Credentials() (username, password string) {
	return s.username, s.password
}

// HasCredentials reports whether a credential secret has been supplied.
func (s Snapshot) HasCredentials() bool {
	return s.username != "" || s.password != ""
}

// ConfigFiles returns a copy of the retained configuration files, keyed by
// supported file name with absolute host paths as values.
func (s Snapshot) ConfigFiles() map[string]string {
	return maps.Clone(s.configFiles)
}

// ConfigFileNames returns the retained configuration file names in sorted order.
func (s Snapshot) ConfigFileNames() []string {
	return slices.Sorted(maps.Keys(s.configFiles))
}

// Equal reports whether s and o describe the same desired container.
func (s Snapshot) Equal(o Snapshot) bool {
	return len(s.Diff(o)) == 0
}

// Diff names the fields that differ between s and o.
func (s Snapshot) Diff(o Snapshot) []string {
	var out []string
	if s.containerName != o.containerName {
		out = append(out, "container_name")
	}
	if s.hostVolume != o.hostVolume {
		out = append(out, "host_volume")
	}
	if s.hostPort != o.hostPort {
		out = append(out, "host_port")
	}
	if s.username != o.username || s.password != o.password {
		out = append(out, "credentials")
	}
	if !maps.Equal(s.configFiles, o.configFiles) {
		out = append(out, "configuration_files")
	}
	return out
}

// LogAttrs returns slog key/value pairs describing s. The password is never included.
func (s Snapshot) LogAttrs() []any {
	return []any{
		"container", s.containerName,
		"host_port", s.hostPort,
		"host_volume", s.hostVolume,
		"username", s.username,
		"config_files", s.ConfigFileNames(),
	}
}
