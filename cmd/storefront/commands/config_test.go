package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/storefront/internal/app"
)

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "storefront.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
log_level = "debug"

[api]
base_url = "https://shop.example.com"
timeout = "30s"

[credentials]
storage = "file"
file = "`+filepath.ToSlash(filepath.Join(dir, "cred.json"))+`"
`), 0o600))

	environ := func() []string {
		return []string{
			"STOREFRONT_API__BASE_URL=https://env.example.com",
			"STOREFRONT_SERVER__JWT_SECRET=from-env",
			"UNRELATED=1",
		}
	}

	cfg, err := loadConfig(configPath, nil, environ)
	require.NoError(t, err)

	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	require.Equal(t, 30*time.Second, cfg.API.Timeout)
	require.Equal(t, "from-env", cfg.Server.JWTSecret)
	require.Equal(t, filepath.Join(dir, "cred.json"), filepath.FromSlash(cfg.Credentials.File))
	require.Equal(t, app.DefaultConfigShutdownTimeout, cfg.Shutdown.Timeout)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil, func() []string { return nil })
	require.NoError(t, err)

	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, app.LogFormatText, cfg.LogFormat)
	require.Equal(t, app.DefaultConfigAPIBaseURL, cfg.API.BaseURL)
	require.Equal(t, app.CredentialStorageFile, cfg.Credentials.Storage)
}

func TestLoadConfigRedisFromEnv(t *testing.T) {
	cfg, err := loadConfig("", nil, func() []string {
		return []string{
			"STOREFRONT_CREDENTIALS__STORAGE=redis",
			"STOREFRONT_CREDENTIALS__REDIS__ADDR=cache:6379",
			"STOREFRONT_CREDENTIALS__REDIS__DB=2",
		}
	})
	require.NoError(t, err)

	require.Equal(t, app.CredentialStorageRedis, cfg.Credentials.Storage)
	require.Equal(t, "cache:6379", cfg.Credentials.Redis.Addr)
	require.Equal(t, 2, cfg.Credentials.Redis.DB)
	require.Equal(t, "storefront:credentials", cfg.Credentials.Redis.Key)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig("", nil, func() []string {
		return []string{"STOREFRONT_CREDENTIALS__STORAGE=floppy"}
	})
	require.Error(t, err)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"), nil, func() []string { return nil })
	require.Error(t, err)
}

func TestFlagKey(t *testing.T) {
	tests := []struct {
		flag string
		key  string
		ok   bool
	}{
		{flag: "server--port", key: "server.port", ok: true},
		{flag: "server--jwt-secret", key: "server.jwt_secret", ok: true},
		{flag: "credentials--storage", key: "credentials.storage", ok: true},
		{flag: "api--base-url", key: "api.base_url", ok: true},
		{flag: "log-level", key: "log_level", ok: true},
		{flag: "email"},
		{flag: "data"},
		{flag: "config"},
		{flag: "ephemeral"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			key, ok := flagKey(tt.flag)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.key, key)
		})
	}
}

// configFromArgs runs args through the real root and serve flag sets and returns
// the config resolved inside the serve action.
func configFromArgs(t *testing.T, environ []string, args ...string) *app.Config {
	t.Helper()

	var cfg *app.Config
	serve := serveCommand()
	serve.Action = func(ctx context.Context, cmd *cli.Command) error {
		var err error
		cfg, err = loadConfig(cmd.String("config"), cmd, func() []string { return environ })
		return err
	}
	root := newRootCommand()
	root.Commands = []*cli.Command{serve}

	require.NoError(t, root.Run(context.Background(), append([]string{"storefront"}, args...)))
	require.NotNil(t, cfg)
	return cfg
}

func TestLoadConfigFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
		args    []string
		storage app.CredentialStorageType
	}{
		{
			name:    "ephemeral selects memory storage",
			args:    []string{"--ephemeral", "serve"},
			storage: app.CredentialStorageMemory,
		},
		{
			name:    "ephemeral beats an explicit storage flag",
			args:    []string{"--credentials--storage", "redis", "--ephemeral", "serve"},
			storage: app.CredentialStorageMemory,
		},
		{
			name:    "ephemeral beats the environment",
			environ: []string{"STOREFRONT_CREDENTIALS__STORAGE=redis"},
			args:    []string{"--ephemeral", "serve"},
			storage: app.CredentialStorageMemory,
		},
		{
			name:    "storage flag beats the environment",
			environ: []string{"STOREFRONT_CREDENTIALS__STORAGE=memory"},
			args:    []string{"--credentials--storage", "redis", "serve"},
			storage: app.CredentialStorageRedis,
		},
		{
			name:    "unset storage flag keeps the environment",
			environ: []string{"STOREFRONT_CREDENTIALS__STORAGE=redis"},
			args:    []string{"--ephemeral=false", "serve"},
			storage: app.CredentialStorageRedis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := configFromArgs(t, tt.environ, tt.args...)
			require.Equal(t, tt.storage, cfg.Credentials.Storage)
		})
	}
}

func TestLoadConfigServerFlags(t *testing.T) {
	cfg := configFromArgs(t, []string{"STOREFRONT_SERVER__JWT_SECRET=from-env"},
		"--ephemeral",
		"--log-format", "json",
		"serve",
		"--server--port", "9090",
		"--server--jwt-secret", "from-flag",
		"--server--access-ttl", "90s",
		"--server--admin-email", "admin@shop.test",
	)

	require.Equal(t, app.LogFormatJSON, cfg.LogFormat)
	require.Equal(t, uint16(9090), cfg.Server.Port)
	require.Equal(t, "from-flag", cfg.Server.JWTSecret)
	require.Equal(t, 90*time.Second, cfg.Server.AccessTTL)
	require.Equal(t, "admin@shop.test", cfg.Server.AdminEmail)
	require.Equal(t, app.DefaultConfigServerHost, cfg.Server.Host)
}
