// Package session holds the authenticated user's credential for the lifetime of the process.
//
// A Session is the single source of truth for the access token, the refresh token and the
// user record. It is hydrated once from a credstore.Store and persists every change back
// to it:
//
//	sess := session.New(store)
//	sess.Load(ctx)
//	if sess.IsAuthenticated() {
//		// attach sess.AccessToken() to outbound requests
//	}
//
// Reads are lock-free and always observe a consistent credential: the access and refresh
// tokens are replaced together. Persistence failures are logged and never fail the caller;
// the in-memory credential stays authoritative until the process exits.
package session
