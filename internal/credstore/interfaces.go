package credstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no credential snapshot is stored.
	ErrNotFound = errors.New("credential not found")

	// ErrReadOnly is returned by Write and Delete on backends that cannot be modified.
	ErrReadOnly = errors.New("credential storage is read-only")
)

// Store reads, writes and removes the credential snapshot in persistent storage.
type Store interface {
	// Read returns the stored snapshot. Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) ([]byte, error)

	// Write persists the snapshot, replacing any previous one.
	Write(ctx context.Context, data []byte) error

	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context) error
}
