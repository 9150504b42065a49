package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/florianilch/storefront/internal/session"
)

// errNoRefreshToken ends the session without contacting the refresh endpoint.
var errNoRefreshToken = errors.New("no refresh token")

// TokenPair is the payload of a successful login, registration or refresh.
type TokenPair struct {
	User         *session.User `json:"user,omitempty"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refresh obtains a new token pair after a request carrying staleAccess was rejected.
// When coalescing is enabled, concurrent callers share one exchange, and a caller whose
// token has already been replaced by someone else's refresh returns immediately.
func (c *Client) refresh(ctx context.Context, staleAccess string) error {
	if !c.coalesce {
		refreshToken := c.session.RefreshToken()
		if refreshToken == "" {
			return errNoRefreshToken
		}
		return c.exchange(ctx, refreshToken)
	}

	if c.rotatedSince(staleAccess) {
		return nil
	}

	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return errNoRefreshToken
	}

	// Keyed by refresh token: a rotated token starts a new flight
	ch := c.refreshGroup.DoChan(refreshToken, func() (any, error) {
		if c.rotatedSince(staleAccess) {
			return nil, nil
		}
		// Shared by every waiter, so it must not die with the first caller's context
		return nil, c.exchange(context.WithoutCancel(ctx), refreshToken)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// rotatedSince reports whether the session now holds a different access token than
// the one a rejected request was sent with.
func (c *Client) rotatedSince(staleAccess string) bool {
	current := c.session.AccessToken()
	return current != "" && current != staleAccess
}

// exchange calls the refresh endpoint once and stores the new pair. The call carries no
// Authorization header and is never retried.
func (c *Client) exchange(ctx context.Context, refreshToken string) error {
	refreshCall := &call{
		req: Request{
			Method: http.MethodPost,
			Path:   c.refreshPath,
			Public: true,
		},
		requestID: uuid.NewString(),
	}
	body, err := (&Request{Body: refreshRequest{RefreshToken: refreshToken}}).encode()
	if err != nil {
		return err
	}
	refreshCall.body = body

	slog.DebugContext(ctx, "refreshing access token", "request_id", refreshCall.requestID)

	_, resp, err := c.send(ctx, refreshCall)
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}

	var pair TokenPair
	if err := resp.decode(&pair); err != nil {
		return fmt.Errorf("refresh rejected: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return errors.New("refresh response missing tokens")
	}

	user := pair.User
	if user == nil {
		user = c.session.User()
	}
	if err := c.session.Set(ctx, user, pair.AccessToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("storing refreshed credential: %w", err)
	}

	slog.DebugContext(ctx, "access token refreshed", "request_id", refreshCall.requestID)
	return nil
}
