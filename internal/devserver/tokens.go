package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/florianilch/storefront/internal/api"
	"github.com/florianilch/storefront/internal/session"
)

const roleAdmin = session.RoleAdmin

var errInvalidRefreshToken = errors.New("invalid refresh token")

// accessClaims is the payload of an access token.
type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type refreshGrant struct {
	userID    string
	expiresAt time.Time
}

// tokenIssuer signs access tokens and keeps the set of live refresh tokens.
// Refresh tokens are single use: redeeming one deletes it.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser

	mu      sync.Mutex
	refresh map[string]refreshGrant
}

func newTokenIssuer(secret []byte, accessTTL, refreshTTL time.Duration, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
		refresh: make(map[string]refreshGrant),
	}
}

// issue creates a fresh access and refresh token for user.
func (t *tokenIssuer) issue(user session.User) (api.TokenPair, error) {
	now := t.now()
	claims := accessClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return api.TokenPair{}, fmt.Errorf("signing access token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return api.TokenPair{}, fmt.Errorf("generating refresh token: %w", err)
	}
	refresh := hex.EncodeToString(buf)

	t.mu.Lock()
	t.pruneLocked(now)
	t.refresh[refresh] = refreshGrant{userID: user.ID, expiresAt: now.Add(t.refreshTTL)}
	t.mu.Unlock()

	return api.TokenPair{User: &user, AccessToken: access, RefreshToken: refresh}, nil
}

// pruneLocked drops refresh grants that can no longer be redeemed. t.mu must be held.
func (t *tokenIssuer) pruneLocked(now time.Time) {
	for token, grant := range t.refresh {
		if !now.Before(grant.expiresAt) {
			delete(t.refresh, token)
		}
	}
}

// verify checks an access token's signature and expiry.
func (t *tokenIssuer) verify(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, err := t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// redeem consumes a refresh token and returns the user it was issued to.
func (t *tokenIssuer) redeem(refresh string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	grant, ok := t.refresh[refresh]
	if !ok {
		return "", errInvalidRefreshToken
	}
	delete(t.refresh, refresh)

	if !t.now().Before(grant.expiresAt) {
		return "", errInvalidRefreshToken
	}
	return grant.userID, nil
}
