// Package api is the authenticated request pipeline in front of the storefront backend.
//
// Every call goes through the same steps: the access token is read from the session and
// attached as a bearer credential, the request is sent with a per-attempt deadline, and
// the response envelope {success, data|error} is decoded. A 401 triggers exactly one
// token refresh followed by exactly one retry; if the refresh is impossible or the retry
// is rejected again, the session is cleared and the Navigator is asked to show the login
// entry point.
//
// Failures are always reported as *Error, classified by Kind:
//
//	products, err := api.Call[[]Product](ctx, client, api.Request{Method: http.MethodGet, Path: "/products"})
//	switch {
//	case errors.Is(err, api.ErrSessionExpired):
//		// user must log in again
//	case errors.Is(err, api.ErrTransport):
//		// network failure or timeout, safe to retry later
//	case errors.Is(err, api.ErrLogical):
//		// backend rejected the request, api.Message(err) is user-facing
//	}
//
// Concurrent requests that hit a 401 at the same time share a single refresh exchange.
package api
