// Package prefs persists calibration preferences across restarts. A Store
// is a flat byte-level key-value store; Namespace scopes keys to one sensor
// and encodes values as CBOR.
package prefs

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load for a missing key.
var ErrNotFound = errors.New("prefs: not found")

// Store is a byte-level key-value store.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}

// MemStore is an in-memory Store. Set FailLoad/FailSave to inject errors.
type MemStore struct {
	mu   sync.Mutex
	data map[string][]byte

	FailLoad error
	FailSave error
	Saves    int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore { return &MemStore{data: map[string][]byte{}} }

func (m *MemStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoad != nil {
		return nil, m.FailLoad
	}
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.data[key] = append([]byte(nil), data...)
	m.Saves++
	return nil
}

// Keys returns the stored keys in no particular order.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}
