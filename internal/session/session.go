package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/storefront/internal/credstore"
)

var (
	// ErrNoCredential is returned by Token when the session holds no access token.
	ErrNoCredential = errors.New("no credential in session")

	// ErrIncompleteCredential is returned by Set when one of the tokens is empty.
	ErrIncompleteCredential = errors.New("access and refresh token must be set together")
)

// DefaultPersistTimeout bounds a single write-back to the credential store.
const DefaultPersistTimeout = 5 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithPersistTimeout sets the timeout for store writes and deletes.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// Session is the process-wide credential holder. Create one per application instance
// and pass it to the components that need it.
type Session struct {
	store          credstore.Store
	persistTimeout time.Duration

	// Hot path: readers load the snapshot without locking
	current  atomic.Pointer[Credential]
	hydrated atomic.Bool
	ready    chan struct{}
	loadOnce sync.Once

	// writeMu serializes mutations together with their persistence so the stored
	// snapshot always matches the latest in-memory one
	writeMu sync.Mutex
	// mutated is set by Set, UpdateUser and Clear. Guarded by writeMu.
	mutated bool
}

// Compile-time check to ensure Session implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Session)(nil)

// New creates an empty, not yet hydrated Session backed by store.
// No I/O is performed until Load is called.
func New(store credstore.Store, opts ...Option) *Session {
	s := &Session{
		store:          store,
		persistTimeout: DefaultPersistTimeout,
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&Credential{})
	return s
}

// Load reads the persisted credential into memory. Only the first call performs I/O;
// concurrent callers block until it has finished. The session is marked hydrated
// whether or not a valid credential was found.
func (s *Session) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		s.hydrate(ctx)
		s.hydrated.Store(true)
		close(s.ready)
	})
}

func (s *Session) hydrate(ctx context.Context) {
	if s.store == nil {
		return
	}

	data, err := s.store.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		slog.DebugContext(ctx, "no persisted credential")
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read persisted credential", "error", err)
		return
	}

	cred, err := decodeCredential(data)
	if err != nil {
		slog.WarnContext(ctx, "discarding malformed persisted credential", "error", err)
		return
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		slog.WarnContext(ctx, "discarding incomplete persisted credential")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Any mutation made while the store was being read is newer than what was read,
	// including a Clear that already removed the persisted copy
	if s.mutated {
		slog.DebugContext(ctx, "persisted credential superseded during load")
		return
	}
	s.current.Store(&cred)
	slog.DebugContext(ctx, "credential restored")
}

// Ready returns a channel that is closed once the session has been hydrated.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// WaitHydrated blocks until Load has completed or ctx is done.
func (s *Session) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HasHydrated reports whether Load has completed.
func (s *Session) HasHydrated() bool {
	return s.hydrated.Load()
}

// IsAuthenticated reports whether the session is hydrated and holds an access token.
func (s *Session) IsAuthenticated() bool {
	return s.hydrated.Load() && s.current.Load().AccessToken != ""
}

// Credential returns a consistent snapshot of the user and both tokens.
func (s *Session) Credential() Credential {
	return s.current.Load().clone()
}

// AccessToken returns the current access token, or "" if none is held.
func (s *Session) AccessToken() string {
	return s.current.Load().AccessToken
}

// RefreshToken returns the current refresh token, or "" if none is held.
func (s *Session) RefreshToken() string {
	return s.current.Load().RefreshToken
}

// User returns a copy of the authenticated user, or nil.
func (s *Session) User() *User {
	return s.current.Load().clone().User
}

// Set replaces the user and both tokens in one step and persists the result.
// Persistence failures are logged, not returned.
func (s *Session) Set(ctx context.Context, user *User, accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrIncompleteCredential
	}

	cred := Credential{User: user, AccessToken: accessToken, RefreshToken: refreshToken}.clone()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mutated = true
	s.current.Store(&cred)
	s.persist(ctx, &cred)
	return nil
}

// UpdateUser replaces the stored user record and keeps both tokens. It reports false
// and changes nothing when the session holds no credential.
func (s *Session) UpdateUser(ctx context.Context, user *User) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	if cur.Empty() {
		return false
	}
	cred := Credential{User: user, AccessToken: cur.AccessToken, RefreshToken: cur.RefreshToken}.clone()
	s.mutated = true
	s.current.Store(&cred)
	s.persist(ctx, &cred)
	return true
}

// Clear drops the credential and removes it from persistent storage.
func (s *Session) Clear(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mutated = true
	s.current.Store(&Credential{})
	s.persist(ctx, nil)
}

// persist writes cred to the store, or deletes the stored snapshot when cred is nil.
// The caller must hold writeMu.
func (s *Session) persist(ctx context.Context, cred *Credential) {
	if s.store == nil {
		return
	}

	// Persist even if the request that triggered the change was canceled
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	if cred == nil {
		if err := s.store.Delete(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to remove persisted credential", "error", err)
		}
		return
	}

	data, err := json.Marshal(cred)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode credential", "error", err)
		return
	}
	if err := s.store.Write(ctx, data); err != nil {
		slog.ErrorContext(ctx, "failed to persist credential", "error", err)
	}
}

// Token returns the access token as an oauth2 bearer token. Expiry is filled in from the
// JWT exp claim when the access token is a JWT.
func (s *Session) Token() (*oauth2.Token, error) {
	cred := s.current.Load()
	if cred.AccessToken == "" {
		return nil, ErrNoCredential
	}

	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
	}
	if claims, err := ParseClaims(cred.AccessToken); err == nil {
		tok.Expiry = claims.ExpiresAt
	}
	return tok, nil
}

// Claims decodes the current access token's claims.
func (s *Session) Claims() (*Claims, error) {
	token := s.AccessToken()
	if token == "" {
		return nil, ErrNoCredential
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return nil, fmt.Errorf("session claims: %w", err)
	}
	return claims, nil
}
