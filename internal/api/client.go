package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/storefront/internal/session"
)

// Defaults for Client options.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultRefreshPath = "/auth/refresh"
	DefaultLoginPath   = "/login"
	DefaultUserAgent   = "storefront-client"

	// maxResponseBytes bounds how much of a response body is read into memory.
	maxResponseBytes = 10 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the deadline applied to every single attempt, including the refresh call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRefreshPath sets the path of the token refresh endpoint.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// WithLoginPath sets the login entry point handed to the Navigator.
func WithLoginPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithNavigator sets the Navigator notified on session expiry.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		c.navigator = n
	}
}

// WithCoalescedRefresh controls whether concurrent 401s share one refresh exchange.
// Enabled by default.
func WithCoalescedRefresh(enabled bool) Option {
	return func(c *Client) {
		c.coalesce = enabled
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// Client sends authenticated requests to the storefront backend.
type Client struct {
	baseURL    *url.URL
	session    *session.Session
	httpClient *http.Client

	timeout     time.Duration
	refreshPath string
	loginPath   string
	userAgent   string
	navigator   Navigator
	coalesce    bool

	refreshGroup singleflight.Group
}

// New creates a Client for the backend at baseURL, reading and updating credentials in sess.
func New(baseURL string, sess *session.Session, opts ...Option) (*Client, error) {
	if sess == nil {
		return nil, fmt.Errorf("missing session")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}

	c := &Client{
		baseURL:     base,
		session:     sess,
		httpClient:  &http.Client{},
		timeout:     DefaultTimeout,
		refreshPath: DefaultRefreshPath,
		loginPath:   DefaultLoginPath,
		userAgent:   DefaultUserAgent,
		coalesce:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session the client reads credentials from.
func (c *Client) Session() *session.Session {
	return c.session
}

// Call performs req and decodes the response data into a value of type T.
func Call[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	err := c.Do(ctx, req, &out)
	return out, err
}

// Do performs req and decodes the response data into out (which may be nil).
// All failures are returned as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := req.encode()
	if err != nil {
		return logicalError(0, "invalid request", err)
	}

	call := &call{
		req:       req,
		body:      body,
		requestID: uuid.NewString(),
	}

	if !req.Public {
		// Credentials are only trustworthy once the session has been hydrated
		if err := c.session.WaitHydrated(ctx); err != nil {
			return transportError(err)
		}
	}

	return c.execute(ctx, call, out)
}

// call is one logical request. Its encoded body and request id are shared by the
// first attempt and the retry.
type call struct {
	req       Request
	body      payload
	requestID string
}

// execute runs the attempt/refresh/retry state machine. retried is false for the
// first attempt and flips to true once a refresh succeeded; a 401 after that ends the
// session.
func (c *Client) execute(ctx context.Context, call *call, out any) error {
	retried := false

	for {
		sentWith, resp, err := c.send(ctx, call)
		if err != nil {
			return err
		}

		if resp.status != http.StatusUnauthorized || call.req.Public {
			return resp.decode(out)
		}

		if retried {
			slog.WarnContext(ctx, "request rejected after token refresh",
				"method", call.req.Method, "path", call.req.Path, "request_id", call.requestID)
			return c.deauthenticate(ctx, call.req, errors.New("unauthorized after token refresh"))
		}

		if err := c.refresh(ctx, sentWith); err != nil {
			// The caller gave up while waiting; the session is left untouched
			if ctx.Err() != nil {
				return transportError(ctx.Err())
			}
			return c.deauthenticate(ctx, call.req, err)
		}

		retried = true
	}
}

// send performs one attempt and returns the access token it carried, if any.
// Network errors and deadline expiry are reported as transport failures.
func (c *Client) send(ctx context.Context, call *call) (string, *response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, call.req.Method, c.resolve(call.req.Path, call.req.Query), call.body.reader())
	if err != nil {
		return "", nil, logicalError(0, "invalid request", err)
	}

	// Add canonicalizes keys, so Authorization is dropped in any spelling
	for key, values := range call.req.Header {
		if http.CanonicalHeaderKey(key) == "Authorization" {
			continue
		}
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-Id", call.requestID)
	if call.body.contentType != "" {
		httpReq.Header.Set("Content-Type", call.body.contentType)
	}

	var sentWith string
	if !call.req.Public {
		if tok, err := c.session.Token(); err == nil {
			tok.SetAuthHeader(httpReq)
			sentWith = tok.AccessToken
		}
	}

	// W3C trace context for correlating client and backend logs
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.DebugContext(ctx, "request failed",
			"method", call.req.Method, "path", call.req.Path, "request_id", call.requestID, "error", err)
		return sentWith, nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return sentWith, nil, transportError(fmt.Errorf("reading response: %w", err))
	}

	slog.DebugContext(ctx, "request completed",
		"method", call.req.Method,
		"path", call.req.Path,
		"status", resp.StatusCode,
		"request_id", call.requestID,
		"duration", time.Since(start),
	)

	return sentWith, &response{status: resp.StatusCode, body: body}, nil
}

// resolve joins path onto the base URL. path is in escaped form, so a segment built
// with url.PathEscape keeps an encoded "/" instead of becoming two segments.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	escaped := strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.TrimLeft(path, "/")
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		u.Path, u.RawPath = unescaped, escaped
	} else {
		u.Path, u.RawPath = escaped, ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	} else {
		u.RawQuery = ""
	}
	return u.String()
}

// deauthenticate clears the session, notifies the navigator and returns the
// session-expired failure.
func (c *Client) deauthenticate(ctx context.Context, req Request, cause error) error {
	c.session.Clear(ctx)

	loginURL := LoginURL(c.loginPath, req.ReturnTo)
	slog.InfoContext(ctx, "session expired", "login_url", loginURL, "reason", cause)

	if c.navigator != nil {
		c.navigator.NavigateToLogin(ctx, loginURL)
	}

	return &Error{
		Kind:     KindSessionExpired,
		Status:   http.StatusUnauthorized,
		Message:  "session expired",
		LoginURL: loginURL,
		Err:      cause,
	}
}
