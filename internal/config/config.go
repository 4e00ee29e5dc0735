// Package config parses the gateway's YAML configuration file: listener
// bindings, datasources, attached OpenAPI documents, authenticators, and
// the control-plane datasource, grounded on the original's
// config.rs::Config shape and its from_file/expand_env_vars behaviour.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/apiforge/gateway/internal/authn"
)

// DatasourceSettings names one named database connection.
type DatasourceSettings struct {
	Driver      string `yaml:"driver"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Database    string `yaml:"database"`
	SSLMode     string `yaml:"ssl_mode"`
	MaxPoolSize int    `yaml:"max_pool_size"`
	// Path is used by the sqlite driver in place of host/port/user/etc.
	Path string `yaml:"path"`
}

// ApiConfig attaches one OpenAPI document (read from File) to a
// datasource and a set of listener names.
type ApiConfig struct {
	Name       string   `yaml:"name"`
	File       string   `yaml:"file"`
	Datasource string   `yaml:"datasource"`
	Listeners  []string `yaml:"listeners"`
}

// ApiKeyAuthenticator is the YAML shape of one "api-key" entry in the
// auth list.
type ApiKeyAuthenticator struct {
	Name      string            `yaml:"name"`
	Enabled   *bool             `yaml:"enabled"`
	KeyName   string            `yaml:"key_name"`
	Source    string            `yaml:"source"`
	Consumers []authn.Consumer  `yaml:"consumers"`
}

// OidcAuthenticator is the YAML shape of one "oidc" entry in the auth
// list.
type OidcAuthenticator struct {
	Name          string `yaml:"name"`
	Enabled       *bool  `yaml:"enabled"`
	Issuer        string `yaml:"issuer"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	Audience      string `yaml:"audience"`
	Introspection *bool  `yaml:"introspection"`
}

// Authenticator is a tagged union over the two supported authenticator
// kinds, matching the original's #[serde(tag = "type")] enum via an
// explicit discriminator field decoded by UnmarshalYAML.
type Authenticator struct {
	Type   string
	ApiKey *ApiKeyAuthenticator
	Oidc   *OidcAuthenticator
}

// UnmarshalYAML decodes an Authenticator from its "type" discriminator
// ("api-key" or "oidc"), mirroring serde's internally-tagged enum.
func (a *Authenticator) UnmarshalYAML(value *yaml.Node) error {
	var tagged struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&tagged); err != nil {
		return err
	}
	a.Type = tagged.Type

	switch tagged.Type {
	case "api-key":
		var cfg ApiKeyAuthenticator
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		a.ApiKey = &cfg
	case "oidc":
		var cfg OidcAuthenticator
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		a.Oidc = &cfg
	default:
		return fmt.Errorf("config: unknown authenticator type %q", tagged.Type)
	}
	return nil
}

// ListenerConfig is one bound ip:port and its name, used to match
// control-plane API configs' "listeners" field.
type ListenerConfig struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// Addr returns the ip:port string net.Listen expects.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.IP, l.Port)
}

// ControlPlaneConfig configures the optional control-plane datasource.
// IP and Port are parsed but not used: the admin endpoints are served on
// the data-plane listeners.
type ControlPlaneConfig struct {
	IP       string             `yaml:"ip"`
	Port     int                `yaml:"port"`
	Database DatasourceSettings `yaml:"database"`
	AdminKey string             `yaml:"admin_key"`
}

// Config is the gateway's complete static configuration.
type Config struct {
	Listeners    []ListenerConfig              `yaml:"listeners"`
	Apis         []ApiConfig                   `yaml:"apis"`
	Datasource   map[string]DatasourceSettings `yaml:"datasource"`
	Auth         []Authenticator               `yaml:"auth"`
	ControlPlane *ControlPlaneConfig           `yaml:"control_plane"`
	LogLevel     string                        `yaml:"log_level"`
	ConfigPollIntervalSeconds int              `yaml:"config_poll_interval_seconds"`
}

// Load reads path, expands ${VAR:default} environment references, and
// unmarshals the result as YAML.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := ExpandEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
