package credstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to a credential snapshot stored in an environment
// variable. Sessions backed by it can be used but never persist a refresh.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Read returns the snapshot from the environment variable. Returns ErrNotFound if unset or empty.
func (e *EnvStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value := os.Getenv(e.envKey)
	if value == "" {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Write is not supported for environment variables.
func (e *EnvStore) Write(ctx context.Context, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}

// Delete is not supported for environment variables.
func (e *EnvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
