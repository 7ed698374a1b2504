// Package credsvc implements the ForgeDesk Credential Issuance Service: it
// initiates device flows with the code-hosting platform, relays polls, and
// exchanges user sessions for installation-scoped tokens minted with the
// app's signed assertion.
package credsvc

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddress string `yaml:"listenAddress"`
	TLSCertFile   string `yaml:"tlsCertFile"`
	TLSKeyFile    string `yaml:"tlsKeyFile"`
	Debug         bool   `yaml:"debug"`
}

// AppConfig identifies the platform app this service mints assertions for.
type AppConfig struct {
	// ID is the app identifier used as the assertion issuer.
	ID string `yaml:"id"`
	// ClientID is the OAuth client id used for the device flow.
	ClientID string `yaml:"clientID"`
	// PrivateKeyFile is the path to the app's RSA private key in PKCS8 PEM.
	PrivateKeyFile string `yaml:"privateKeyFile"`
}

// UpstreamConfig points at the platform's OAuth and API hosts. The defaults
// target the public platform; on-prem installs override both.
type UpstreamConfig struct {
	OAuthBaseURL string `yaml:"oauthBaseURL"`
	APIBaseURL   string `yaml:"apiBaseURL"`
}

// AuditConfig configures the optional Kafka audit event sink. Auditing is
// disabled when no brokers are listed.
type AuditConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Config is the credsvc configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	App      AppConfig      `yaml:"app"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Audit    AuditConfig    `yaml:"audit"`
}

const (
	defaultListenAddress = ":8743"
	defaultOAuthBaseURL  = "https://github.com"
	defaultAPIBaseURL    = "https://api.github.com"
)

// Load reads the configuration from path, or from ./credsvc.yaml when empty.
// The CREDSVC_CONFIG environment variable overrides both.
func Load(configPath ...string) (Config, error) {
	path := "./credsvc.yaml"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}
	if env := os.Getenv("CREDSVC_CONFIG"); env != "" {
		path = env
	}

	var config Config
	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open credsvc config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	config.applyDefaults()
	return config, config.Validate()
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = defaultListenAddress
	}
	if c.Upstream.OAuthBaseURL == "" {
		c.Upstream.OAuthBaseURL = defaultOAuthBaseURL
	}
	if c.Upstream.APIBaseURL == "" {
		c.Upstream.APIBaseURL = defaultAPIBaseURL
	}
	if c.Audit.Topic == "" {
		c.Audit.Topic = "forgedesk.auth-events"
	}
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	if c.App.ID == "" {
		return errors.New("app.id is required")
	}
	if c.App.ClientID == "" {
		return errors.New("app.clientID is required")
	}
	if c.App.PrivateKeyFile == "" {
		return errors.New("app.privateKeyFile is required")
	}
	return nil
}
