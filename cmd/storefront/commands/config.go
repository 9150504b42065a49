package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/storefront/internal/app"
)

// envPrefix marks the variables read as config, e.g. STOREFRONT_CREDENTIALS__REDIS__ADDR → credentials.redis.addr
const envPrefix = "STOREFRONT_"

// shorthandFlags are boolean switches that stand for a fixed config value.
// They are applied after the regular flags, so --ephemeral beats --credentials--storage.
var shorthandFlags = map[string]struct {
	key   string
	value any
}{
	"ephemeral": {key: "credentials.storage", value: string(app.CredentialStorageMemory)},
}

// loadConfig resolves the client and server configuration. Later sources win:
// config file, then STOREFRONT_* variables, then flags given on the command line.
// Defaults fill whatever is still empty.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("reading %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environFunc,
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func envKey(key, value string) (string, any) {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, envPrefix), "__", ".")), value
}

// flagKey maps a flag onto its config key. Section flags use "--" as the separator
// (--server--jwt-secret → server.jwt_secret). Flags without a key, such as --email
// or --data, are command arguments.
func flagKey(name string) (string, bool) {
	switch {
	case name == "log-level", name == "log-format":
	case strings.Contains(name, "--"):
	default:
		return "", false
	}
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_"), true
}

// flagValues collects the flags set on cmd or any of its parents as config keys.
// Unset flags are left out so their defaults don't mask the file or environment.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}
		if key, ok := flagKey(name); ok {
			values[key] = cmd.Value(name)
		}
	}

	for name, preset := range shorthandFlags {
		if cmd.IsSet(name) && cmd.Bool(name) {
			values[preset.key] = preset.value
		}
	}
	return values
}
