package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/app"
	"github.com/florianilch/storefront/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "storefront",
		Usage: "Storefront API client with persistent sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "backend base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.StringFlag{
				Name:  "credentials--storage",
				Usage: "credential storage (file|env|keyring|redis|memory)",
				Value: string(app.DefaultConfigStorage),
			},
			&cli.BoolFlag{
				Name:  "ephemeral",
				Usage: "keep the session in memory only (same as --credentials--storage=memory)",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			registerCommand(),
			logoutCommand(),
			whoamiCommand(),
			productsCommand(),
			categoriesCommand(),
			cartCommand(),
			ordersCommand(),
			requestCommand(),
			serveCommand(),
		},
	}
}

// session bundles what a client command needs and how to tear it down.
type session struct {
	cfg *app.Config
	app *app.App
	out io.Writer

	shutdown observability.ShutdownFunc
}

func (s *session) Close(ctx context.Context) {
	if err := s.app.Close(); err != nil {
		slog.WarnContext(ctx, "failed to close credential store", "error", err)
	}
	if err := s.shutdown(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to flush logs:", err)
	}
}

// setup loads config, installs logging and hydrates the stored session.
func setup(ctx context.Context, cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Observability())
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg, app.WithNavigator(api.NavigatorFunc(promptLogin)))
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	application.Load(ctx)

	return &session{cfg: cfg, app: application, out: cmd.Root().Writer, shutdown: shutdown}, nil
}

// withSession wraps a command action with setup and teardown.
func withSession(action func(ctx context.Context, cmd *cli.Command, s *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		s, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close(context.WithoutCancel(ctx))
		return action(ctx, cmd, s)
	}
}

// promptLogin tells the user to sign in again after the session expired.
func promptLogin(ctx context.Context, loginURL string) {
	slog.DebugContext(ctx, "login required", "login_url", loginURL)
	fmt.Fprintln(os.Stderr, "Your session has expired. Run `storefront login` to sign in again.")
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError converts failures into the message shown to the user.
func userError(err error) error {
	if err == nil {
		return nil
	}
	slog.Debug("command failed", "error", err)
	if api.KindOf(err) == 0 {
		return cli.Exit(err.Error(), 1)
	}
	return cli.Exit(api.Message(err), 1)
}
