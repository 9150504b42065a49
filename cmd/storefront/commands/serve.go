package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/storefront/internal/app"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/observability"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the in-memory development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "server--jwt-secret",
				Usage: "secret used to sign access tokens",
			},
			&cli.DurationFlag{
				Name:  "server--access-ttl",
				Usage: "access token lifetime",
			},
			&cli.StringFlag{
				Name:  "server--admin-email",
				Usage: "create an administrator account with this email",
			},
			&cli.StringFlag{
				Name:  "server--admin-password",
				Usage: "password for the administrator account",
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.Telemetry.Observability())
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	// The backend holds no client session
	application, err := app.New(ctx, cfg, app.WithCredentialStore(credstore.NewMemoryStore(nil)))
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Serve(ctx); err != nil {
		return fmt.Errorf("development backend failed: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
