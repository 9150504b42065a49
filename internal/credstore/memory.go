package credstore

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// Compile-time check to ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore, optionally seeded with a snapshot.
func NewMemoryStore(seed []byte) *MemoryStore {
	return &MemoryStore{data: bytes.Clone(seed)}
}

func (m *MemoryStore) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, ErrNotFound
	}
	return bytes.Clone(m.data), nil
}

func (m *MemoryStore) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = bytes.Clone(data)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}
