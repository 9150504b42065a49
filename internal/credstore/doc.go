// Package credstore provides persistent storage backends for the session credential snapshot.
//
// Every backend stores one opaque document under a fixed key:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Redis: Shared storage for headless or multi-process deployments
//   - Env: Read-only environment variable access (requires external secret management)
//   - Memory: Process-local storage, lost on exit
//
// Backends do not interpret the document; encoding belongs to the session package.
package credstore
