package api

import (
	"context"
	"net/url"
)

// Navigator is notified when the session expires so the user can be sent to the login
// entry point.
type Navigator interface {
	NavigateToLogin(ctx context.Context, loginURL string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(ctx context.Context, loginURL string)

// NavigateToLogin implements Navigator.
func (f NavigatorFunc) NavigateToLogin(ctx context.Context, loginURL string) {
	f(ctx, loginURL)
}

// LoginURL builds the login location, carrying returnTo as the redirect target.
func LoginURL(loginPath, returnTo string) string {
	if returnTo == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{"redirect": {returnTo}}.Encode()
}
