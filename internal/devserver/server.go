// Package devserver is an in-memory implementation of the storefront backend.
// It speaks the same envelope and token contract as the production API and is meant
// for local development and end-to-end tests.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults for Config.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Config configures a Server.
type Config struct {
	// JWTSecret signs access tokens (HS256).
	JWTSecret []byte
	// AccessTTL is the lifetime of an access token.
	AccessTTL time.Duration
	// RefreshTTL is the lifetime of a refresh token.
	RefreshTTL time.Duration

	// Optional administrator account created on startup.
	AdminEmail    string
	AdminPassword string

	// Now overrides the clock, used by tests to expire tokens.
	Now func() time.Time
}

// Server is the development backend.
type Server struct {
	handler  http.Handler
	server   *http.Server
	store    *store
	tokens   *tokenIssuer
	validate *validator.Validate
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server with a seeded catalog.
func New(cfg Config) (*Server, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		store:    newStore(),
		tokens:   newTokenIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.Now),
		validate: newValidator(),
	}

	if cfg.AdminEmail != "" {
		if _, err := s.store.createUser("Administrator", cfg.AdminEmail, cfg.AdminPassword, roleAdmin); err != nil {
			return nil, fmt.Errorf("creating admin account: %w", err)
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.Handle("GET /auth/me", s.authenticated(s.handleMe))

	mux.HandleFunc("GET /products", s.handleListProducts)
	mux.HandleFunc("GET /products/{id}", s.handleGetProduct)
	mux.Handle("POST /products", s.adminOnly(s.handleCreateProduct))
	mux.Handle("PUT /products/{id}", s.adminOnly(s.handleUpdateProduct))
	mux.Handle("DELETE /products/{id}", s.adminOnly(s.handleDeleteProduct))
	mux.Handle("POST /products/upload", s.adminOnly(s.handleUploadProducts))
	mux.HandleFunc("GET /categories", s.handleListCategories)

	mux.Handle("GET /cart", s.authenticated(s.handleGetCart))
	mux.Handle("DELETE /cart", s.authenticated(s.handleClearCart))
	mux.Handle("POST /cart/items", s.authenticated(s.handleAddCartItem))
	mux.Handle("PUT /cart/items/{id}", s.authenticated(s.handleUpdateCartItem))
	mux.Handle("DELETE /cart/items/{id}", s.authenticated(s.handleRemoveCartItem))

	mux.Handle("POST /orders", s.authenticated(s.handleCreateOrder))
	mux.Handle("GET /orders", s.authenticated(s.handleListOrders))
	mux.Handle("GET /orders/{id}", s.authenticated(s.handleGetOrder))

	s.handler = applyMiddlewares(mux,
		Logging(slog.Default()),
		Recovery,
	)

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors are sent to the error channel, which is closed once the server stops.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.InfoContext(ctx, "development backend listening", "address", listener.Addr().String())
	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
