package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/storefront/internal/auth"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/devserver"
)

func TestApplyDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Equal(t, LogFormatText, cfg.LogFormat)
	require.Equal(t, DefaultConfigAPIBaseURL, cfg.API.BaseURL)
	require.Equal(t, 15*time.Second, cfg.API.Timeout)
	require.Equal(t, "/auth/refresh", cfg.API.RefreshPath)
	require.Equal(t, "/login", cfg.API.LoginPath)
	require.Equal(t, CredentialStorageFile, cfg.Credentials.Storage)
	require.Equal(t, "credentials.json", filepath.Base(cfg.Credentials.File))
	require.NoError(t, cfg.Validate())
}

func TestRedisDefaults(t *testing.T) {
	cfg := &Config{Credentials: CredentialsConfig{Storage: CredentialStorageRedis}}
	require.NoError(t, cfg.ApplyDefaults())
	require.Equal(t, DefaultConfigRedisAddr, cfg.Credentials.Redis.Addr)
	require.Equal(t, credstore.DefaultRedisKey, cfg.Credentials.Redis.Key)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "bad log format", modify: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "bad base url", modify: func(c *Config) { c.API.BaseURL = "not a url" }, wantErr: true},
		{name: "unknown storage", modify: func(c *Config) { c.Credentials.Storage = "s3" }, wantErr: true},
		{name: "env without key", modify: func(c *Config) { c.Credentials.Storage = CredentialStorageEnv }, wantErr: true},
		{name: "env with key", modify: func(c *Config) {
			c.Credentials.Storage = CredentialStorageEnv
			c.Credentials.EnvKey = "STOREFRONT_TOKEN"
		}},
		{name: "memory", modify: func(c *Config) { c.Credentials.Storage = CredentialStorageMemory }},
		{name: "bad exporter", modify: func(c *Config) { c.Telemetry.Exporter = "zipkin" }, wantErr: true},
		{name: "otlp exporter", modify: func(c *Config) {
			c.Telemetry.Exporter = "otlp-http"
			c.Telemetry.Endpoint = "http://localhost:4318/v1/logs"
		}},
		{name: "negative timeout", modify: func(c *Config) { c.API.Timeout = -time.Second }, wantErr: true},
		{name: "bad server host", modify: func(c *Config) { c.Server.Host = "not a host!" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.modify(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.Error(t, cfg.ValidateServer())

	cfg.Server.JWTSecret = "secret"
	require.NoError(t, cfg.ValidateServer())

	cfg.Server.AdminEmail = "admin@shop.test"
	cfg.Server.AdminPassword = "x"
	require.Error(t, cfg.ValidateServer())
}

func TestNewCredentialStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  CredentialsConfig
		want any
	}{
		{name: "file", cfg: CredentialsConfig{Storage: CredentialStorageFile, File: filepath.Join(t.TempDir(), "c.json")}, want: &credstore.FileStore{}},
		{name: "env", cfg: CredentialsConfig{Storage: CredentialStorageEnv, EnvKey: "STOREFRONT_CRED"}, want: &credstore.EnvStore{}},
		{name: "memory", cfg: CredentialsConfig{Storage: CredentialStorageMemory}, want: &credstore.MemoryStore{}},
		{name: "redis", cfg: CredentialsConfig{Storage: CredentialStorageRedis, Redis: RedisConfig{Addr: mr.Addr(), Key: "k"}}, want: &credstore.RedisStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := tt.cfg.NewCredentialStore(ctx)
			require.NoError(t, err)
			require.IsType(t, tt.want, store)
		})
	}
}

func TestAppAgainstDevelopmentBackend(t *testing.T) {
	backend, err := devserver.New(devserver.Config{
		JWTSecret:     []byte("secret"),
		AdminEmail:    "admin@shop.test",
		AdminPassword: "admin-pass",
	})
	require.NoError(t, err)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg, err := Default()
	require.NoError(t, err)
	cfg.API.BaseURL = srv.URL

	store := credstore.NewMemoryStore(nil)
	ctx := context.Background()
	application, err := New(ctx, cfg, WithCredentialStore(store), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, application.Close()) })
	application.Load(ctx)

	_, err = application.Auth.Login(ctx, auth.Credentials{Email: "admin@shop.test", Password: "admin-pass"})
	require.NoError(t, err)
	require.True(t, application.Session.User().IsAdmin())

	data, err := store.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), "refreshToken")

	cart, err := application.Shop.Cart.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Server.Port = 0
	cfg.Server.JWTSecret = "secret"
	cfg.Credentials.Storage = CredentialStorageMemory

	application, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeRequiresSecret(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	cfg.Credentials.Storage = CredentialStorageMemory

	application, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.Error(t, application.Serve(context.Background()))
}
