package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SecretLength is the exact size of the signing secret in bytes.
const SecretLength = 32

// Config is read once at startup and shared read-only afterwards.
type Config struct {
	ExternalURL string
	IssuerURL   string
	Secret      []byte
	ClientsPath string
	RedisURL    string
	Port        string
	AppName     string
	Env         string
	LogLevel    string
	Capability  string

	Cors       Cors
	OAuth      OAuth
	Downstream Downstream
}

// Load reads an optional dotenv file and then the process environment.
// A missing dotenv file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "[config.Load] reading %s", f)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		ExternalURL: v.GetString(externalURLVar),
		IssuerURL:   v.GetString(issuerURLVar),
		Secret:      []byte(v.GetString(secretVar)),
		ClientsPath: v.GetString(clientsPathVar),
		RedisURL:    v.GetString(redisURLVar),
		Port:        v.GetString(portEnvVar),
		AppName:     v.GetString(appNameVar),
		Env:         v.GetString(envVar),
		LogLevel:    v.GetString(logLevelVar),
		Capability:  v.GetString(capabilityVar),
		Cors: Cors{
			AllowedOrigins: ParseAllowedOrigins(v.GetString(allowedOriginsVar)),
		},
		OAuth: OAuth{
			PendingTTL:         v.GetDuration(pendingTTLVar),
			CodeTTL:            v.GetDuration(codeTTLVar),
			SessionMaxLifetime: v.GetDuration(sessionMaxLifetimeVar),
			DynamicClientTTL:   v.GetDuration(dynamicClientTTLVar),
			WorkerPoolSize:     v.GetInt(workerPoolSizeVar),
		},
		Downstream: Downstream{
			ClientID:     v.GetString(downstreamClientIDVar),
			ClientSecret: v.GetString(downstreamClientSecretVar),
			AuthURL:      v.GetString(downstreamAuthURLVar),
			TokenURL:     v.GetString(downstreamTokenURLVar),
			Scopes:       strings.Fields(v.GetString(downstreamScopesVar)),
			Issuer:       v.GetString(downstreamIssuerVar),
			JWKSURL:      v.GetString(downstreamJWKSURLVar),
			APIURL:       v.GetString(downstreamAPIURLVar),
		},
	}
	if c.IssuerURL == "" {
		c.IssuerURL = c.ExternalURL
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the startup preconditions.
func (c *Config) Validate() error {
	if len(c.Secret) != SecretLength {
		return fmt.Errorf("[config.Validate] %s must be exactly %d bytes, got %d", secretVar, SecretLength, len(c.Secret))
	}
	if _, err := url.ParseRequestURI(c.ExternalURL); err != nil {
		return errors.Wrapf(err, "[config.Validate] %s", externalURLVar)
	}
	if c.OAuth.PendingTTL <= 0 || c.OAuth.CodeTTL <= 0 || c.OAuth.SessionMaxLifetime <= 0 {
		return fmt.Errorf("[config.Validate] %s, %s and %s must be positive", pendingTTLVar, codeTTLVar, sessionMaxLifetimeVar)
	}
	if c.OAuth.WorkerPoolSize <= 0 {
		return fmt.Errorf("[config.Validate] %s must be positive", workerPoolSizeVar)
	}
	return nil
}

// StaticClients reports whether registration is driven by a definitions file.
func (c *Config) StaticClients() bool {
	return c.ClientsPath != ""
}

// BaseURL is ExternalURL without its trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.ExternalURL, "/")
}

// Issuer is IssuerURL without its trailing slash.
func (c *Config) Issuer() string {
	return strings.TrimRight(c.IssuerURL, "/")
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// IsDev reports whether the process runs in the development environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}
