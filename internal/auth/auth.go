// Package auth implements the login, registration and logout flows on top of the
// request pipeline.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/session"
)

// Backend endpoints used by the service.
const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	ProfilePath  = "/auth/me"
)

// Credentials are the email and password submitted on login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the payload for creating a new account.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service signs users in and out, keeping the session in sync.
type Service struct {
	client  *api.Client
	session *session.Session
}

// NewService creates a Service. The session must be the one client reads from.
func NewService(client *api.Client, sess *session.Session) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("missing api client")
	}
	if sess == nil {
		return nil, fmt.Errorf("missing session")
	}
	return &Service{client: client, session: sess}, nil
}

// Login exchanges credentials for a token pair and stores it in the session.
// On failure the backend's message is returned unchanged and the session is untouched.
func (s *Service) Login(ctx context.Context, creds Credentials) (*session.User, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, errors.New("email and password are required")
	}

	return s.authenticate(ctx, LoginPath, creds)
}

// Register creates an account and signs the new user in.
func (s *Service) Register(ctx context.Context, reg Registration) (*session.User, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Email == "" || reg.Password == "" || reg.Name == "" {
		return nil, errors.New("name, email and password are required")
	}

	return s.authenticate(ctx, RegisterPath, reg)
}

func (s *Service) authenticate(ctx context.Context, path string, body any) (*session.User, error) {
	pair, err := api.Call[api.TokenPair](ctx, s.client, api.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Public: true,
	})
	if err != nil {
		return nil, err
	}

	if err := s.session.Set(ctx, pair.User, pair.AccessToken, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("invalid authentication response: %w", err)
	}

	slog.InfoContext(ctx, "signed in", "user_id", userID(pair.User))
	return s.session.User(), nil
}

// Logout ends the session locally. The backend keeps no per-session state to revoke.
func (s *Service) Logout(ctx context.Context) {
	s.session.Clear(ctx)
	slog.InfoContext(ctx, "signed out")
}

// Profile fetches the current user from the backend and updates the stored record.
func (s *Service) Profile(ctx context.Context) (*session.User, error) {
	user, err := api.Call[session.User](ctx, s.client, api.Request{
		Method: http.MethodGet,
		Path:   ProfilePath,
	})
	if err != nil {
		return nil, err
	}

	s.session.UpdateUser(ctx, &user)
	return &user, nil
}

func userID(u *session.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
