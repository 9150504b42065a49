package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/auth"
	"github.com/florianilch/storefront/internal/credstore"
	"github.com/florianilch/storefront/internal/devserver"
	"github.com/florianilch/storefront/internal/session"
	"github.com/florianilch/storefront/internal/storefront"
)

// Option customizes how New assembles the App.
type Option func(*options)

type options struct {
	store      credstore.Store
	navigator  api.Navigator
	httpClient *http.Client
}

// WithCredentialStore replaces the configured credential store.
func WithCredentialStore(store credstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithNavigator sets the handler notified when the session expires.
func WithNavigator(n api.Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithHTTPClient sets the HTTP client used to reach the backend.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// App wires the credential store, session, API client and services together.
type App struct {
	cfg   *Config
	store credstore.Store

	Session *session.Session
	Client  *api.Client
	Auth    *auth.Service
	Shop    *storefront.Client
}

// New creates a new App instance. The persisted credential is not read until Load.
func New(ctx context.Context, cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Credentials.NewCredentialStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential store: %w", err)
		}
	}

	sess := session.New(store)

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithRefreshPath(cfg.API.RefreshPath),
		api.WithLoginPath(cfg.API.LoginPath),
		api.WithHTTPClient(o.httpClient),
	}
	if o.navigator != nil {
		clientOpts = append(clientOpts, api.WithNavigator(o.navigator))
	}

	client, err := api.New(cfg.API.BaseURL, sess, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	authService, err := auth.NewService(client, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		Session: sess,
		Client:  client,
		Auth:    authService,
		Shop:    storefront.New(client),
	}, nil
}

// Load hydrates the session from the credential store.
func (a *App) Load(ctx context.Context) {
	a.Session.Load(ctx)
}

// Close releases the credential store's resources, if it holds any.
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Serve runs the development backend and blocks until ctx is canceled or the server fails.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Serve(ctx context.Context) error {
	if err := a.cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	server, err := devserver.New(devserver.Config{
		JWTSecret:     []byte(a.cfg.Server.JWTSecret),
		AccessTTL:     a.cfg.Server.AccessTTL,
		RefreshTTL:    a.cfg.Server.RefreshTTL,
		AdminEmail:    a.cfg.Server.AdminEmail,
		AdminPassword: a.cfg.Server.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create development backend: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	serverErrCh, err := server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("development backend stopped")
	return nil
}
