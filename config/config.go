// Package config loads and validates server config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds server configuration loaded from the environment.
type Config struct {
	// Port is the HTTP port (default 3000).
	Port int `mapstructure:"PORT"`
	// GRPCAddr is the address of the optional gRPC server (e.g. :9090). Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// IdentityStore selects the identity backend: fs, memory, postgres or datastore.
	IdentityStore string `mapstructure:"IDENTITY_STORE"`
	// StoragePath is the root directory of the fs stores.
	StoragePath string `mapstructure:"STORAGE_PATH"`
	// DatabaseURL is the Postgres DSN for the postgres stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DatastoreProject is the GCP project of the datastore identity store.
	DatastoreProject string `mapstructure:"DATASTORE_PROJECT"`
	// DatastoreNamespace isolates tenants sharing a project.
	DatastoreNamespace string `mapstructure:"DATASTORE_NAMESPACE"`

	// SessionStore selects the session backend: memory, fs, redis or postgres.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// RedisURL is the redis:// URL of the redis session store.
	RedisURL string `mapstructure:"REDIS_URL"`
	// SessionLifetime is how long a session lives (e.g. "24h").
	SessionLifetime string `mapstructure:"SESSION_LIFETIME"`
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// CookieSecure marks the session cookie Secure; set it behind HTTPS.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// BcryptCost is the bcrypt cost factor (4 to 31), default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OAuthProvider is google or github.
	OAuthProvider string `mapstructure:"OAUTH_PROVIDER"`
	// OAuthClientID enables federated login when set. CLIENT_ID_GOOGLE is
	// still read when OAUTH_CLIENT_ID is unset.
	OAuthClientID string `mapstructure:"OAUTH_CLIENT_ID"`
	// OAuthClientSecret is the provider's client secret. Falls back to
	// CLIENT_SECRET_GOOGLE.
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	// OAuthCallbackURL is the absolute URL of /auth/federated/callback.
	OAuthCallbackURL string `mapstructure:"OAUTH_CALLBACK_URL"`
	// OAuthUserInfoURL overrides the provider's profile endpoint.
	OAuthUserInfoURL string `mapstructure:"OAUTH_USERINFO_URL"`
	// OAuthStateSecret signs the OAuth state. Must be shared by all instances.
	OAuthStateSecret string `mapstructure:"OAUTH_STATE_SECRET"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	_ = v.BindEnv("OAUTH_CLIENT_ID", "OAUTH_CLIENT_ID", "CLIENT_ID_GOOGLE")
	_ = v.BindEnv("OAUTH_CLIENT_SECRET", "OAUTH_CLIENT_SECRET", "CLIENT_SECRET_GOOGLE")

	v.SetDefault("PORT", 3000)
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("IDENTITY_STORE", "fs")
	v.SetDefault("STORAGE_PATH", "./data")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATASTORE_PROJECT", "")
	v.SetDefault("DATASTORE_NAMESPACE", "")
	v.SetDefault("SESSION_STORE", "memory")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_LIFETIME", "24h")
	v.SetDefault("SESSION_COOKIE_NAME", "secrets_session")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("OAUTH_PROVIDER", "google")
	v.SetDefault("OAUTH_CLIENT_ID", "")
	v.SetDefault("OAUTH_CLIENT_SECRET", "")
	v.SetDefault("OAUTH_CALLBACK_URL", "http://localhost:3000/auth/federated/callback")
	v.SetDefault("OAUTH_USERINFO_URL", "")
	v.SetDefault("OAUTH_STATE_SECRET", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// .env keys are not env vars, so the legacy names need a second look there
	if cfg.OAuthClientID == "" {
		cfg.OAuthClientID = v.GetString("CLIENT_ID_GOOGLE")
	}
	if cfg.OAuthClientSecret == "" {
		cfg.OAuthClientSecret = v.GetString("CLIENT_SECRET_GOOGLE")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("config: PORT must be between 1 and 65535")
	}

	switch c.IdentityStore {
	case "fs":
		if c.StoragePath == "" {
			return errors.New("config: STORAGE_PATH must be set when IDENTITY_STORE=fs")
		}
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when IDENTITY_STORE=postgres")
		}
	case "datastore":
		if c.DatastoreProject == "" {
			return errors.New("config: DATASTORE_PROJECT must be set when IDENTITY_STORE=datastore")
		}
	default:
		return fmt.Errorf("config: unknown IDENTITY_STORE %q", c.IdentityStore)
	}

	switch c.SessionStore {
	case "memory":
	case "fs":
		if c.StoragePath == "" {
			return errors.New("config: STORAGE_PATH must be set when SESSION_STORE=fs")
		}
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when SESSION_STORE=redis")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.SessionStore)
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if _, err := time.ParseDuration(c.SessionLifetime); err != nil {
		return fmt.Errorf("config: invalid SESSION_LIFETIME: %w", err)
	}

	if c.OAuthProvider != "google" && c.OAuthProvider != "github" {
		return fmt.Errorf("config: unknown OAUTH_PROVIDER %q", c.OAuthProvider)
	}
	if c.OAuthClientID != "" && c.OAuthClientSecret == "" {
		return errors.New("config: OAUTH_CLIENT_SECRET must be set with OAUTH_CLIENT_ID")
	}
	return nil
}

// Lifetime parses SessionLifetime. Returns 24h if unset or invalid.
func (c *Config) Lifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionLifetime)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// FederatedEnabled reports whether an OAuth client is configured.
func (c *Config) FederatedEnabled() bool {
	return c.OAuthClientID != ""
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
