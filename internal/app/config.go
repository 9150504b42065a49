package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/devserver"
	"github.com/florianilch/storefront/internal/observability"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CredentialStorageType represents the backends supported for the persisted credential.
type CredentialStorageType string

const (
	CredentialStorageFile    CredentialStorageType = "file"
	CredentialStorageEnv     CredentialStorageType = "env"
	CredentialStorageKeyring CredentialStorageType = "keyring"
	CredentialStorageRedis   CredentialStorageType = "redis"
	CredentialStorageMemory  CredentialStorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigAPIBaseURL      = "http://127.0.0.1:4000"
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigStorage         = CredentialStorageFile
	DefaultConfigRedisAddr       = "127.0.0.1:6379"
)

// TelemetryConfig selects the log export pipeline.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"omitempty,oneof=stdout otlp-http otlp-grpc"`
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
}

// Observability converts the section for observability.Instrument.
func (t TelemetryConfig) Observability() observability.Telemetry {
	return observability.Telemetry{Exporter: t.Exporter, Endpoint: t.Endpoint}
}

// APIConfig holds the backend client configuration.
type APIConfig struct {
	BaseURL     string        `json:"base_url" validate:"required,url"`
	Timeout     time.Duration `json:"timeout"`
	RefreshPath string        `json:"refresh_path"`
	LoginPath   string        `json:"login_path"`
}

// RedisConfig holds redis credential storage settings.
type RedisConfig struct {
	Addr     string `json:"addr" validate:"omitempty,hostname_port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db" validate:"gte=0"`
	Key      string `json:"key"`
}

// CredentialsConfig describes where the session credential is persisted.
type CredentialsConfig struct {
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring redis memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string      `json:"file,omitempty"`
	EnvKey      string      `json:"env_key,omitempty"`
	KeyringUser string      `json:"keyring_user,omitempty"`
	Redis       RedisConfig `json:"redis"`
}

// NewCredentialStore creates the configured credential store. Only the redis backend
// performs I/O here (a connectivity check).
func (c *CredentialsConfig) NewCredentialStore(ctx context.Context) (credstore.Store, error) {
	switch c.Storage {
	case CredentialStorageFile:
		return credstore.NewFileStore(c.File)
	case CredentialStorageEnv:
		return credstore.NewEnvStore(c.EnvKey)
	case CredentialStorageKeyring:
		return credstore.NewKeyringStore(credstore.DefaultKeyringService, c.KeyringUser)
	case CredentialStorageRedis:
		return credstore.NewRedisStore(ctx, credstore.RedisConfig{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Key:      c.Redis.Key,
		})
	case CredentialStorageMemory:
		return credstore.NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage)
	}
}

// ServerConfig holds the development backend configuration.
type ServerConfig struct {
	Host       string        `json:"host" validate:"hostname_rfc1123|ip"`
	Port       uint16        `json:"port"` // Port range 0-65535 handled by uint16 type
	JWTSecret  string        `json:"jwt_secret,omitempty"`
	AccessTTL  time.Duration `json:"access_ttl"`
	RefreshTTL time.Duration `json:"refresh_ttl"`

	AdminEmail    string `json:"admin_email,omitempty" validate:"omitempty,email"`
	AdminPassword string `json:"admin_password,omitempty"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	LogFormat   LogFormat         `json:"log_format" validate:"oneof=text json"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	API         APIConfig         `json:"api"`
	Credentials CredentialsConfig `json:"credentials"`
	Server      ServerConfig      `json:"server"`
	Shutdown    ShutdownConfig    `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = api.DefaultTimeout
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = api.DefaultRefreshPath
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = api.DefaultLoginPath
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Server.AccessTTL == 0 {
		c.Server.AccessTTL = devserver.DefaultAccessTTL
	}
	if c.Server.RefreshTTL == 0 {
		c.Server.RefreshTTL = devserver.DefaultRefreshTTL
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Credentials.Storage == "" {
		c.Credentials.Storage = DefaultConfigStorage
	}

	// Dynamic defaults based on storage type
	switch c.Credentials.Storage {
	case CredentialStorageFile:
		if c.Credentials.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("credentials.file required (auto-detect failed: %w)", err)
			}
			c.Credentials.File = filepath.Join(configDir, "storefront", "credentials.json")
		}
	case CredentialStorageKeyring:
		if c.Credentials.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("credentials.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Credentials.KeyringUser = currentUser.Username
		}
	case CredentialStorageRedis:
		if c.Credentials.Redis.Addr == "" {
			c.Credentials.Redis.Addr = DefaultConfigRedisAddr
		}
		if c.Credentials.Redis.Key == "" {
			c.Credentials.Redis.Key = credstore.DefaultRedisKey
		}
	case CredentialStorageEnv, CredentialStorageMemory:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Credentials.Storage {
	case CredentialStorageFile:
		if c.Credentials.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageEnv:
		if c.Credentials.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case CredentialStorageKeyring:
		if c.Credentials.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case CredentialStorageRedis:
		if c.Credentials.Redis.Addr == "" {
			return errors.New("redis.addr required for redis storage")
		}
	}

	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}

	return nil
}

// ValidateServer checks the settings only the development backend needs.
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret required to run the development backend")
	}
	if c.Server.AdminEmail != "" && len(c.Server.AdminPassword) < 6 {
		return errors.New("server.admin_password must be at least 6 characters")
	}
	return nil
}
