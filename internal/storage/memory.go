package storage

import (
	"context"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// MemoryKV is an in-process KV used by tests and extension-less setups.
type MemoryKV struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{blobs: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, domain.NewNotFoundError("blob", key)
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.blobs[key] = stored
	return nil
}

// Delete implements KV.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error { return nil }

// CatalogStore caches ranked candidate lists per placeholder id on top
// of Ristretto. Writers replace whole entries; readers receive copies.
type CatalogStore struct {
	cache *ristretto.Cache
	mu    sync.RWMutex
	// keys tracks live placeholder ids; Ristretto has no listing.
	keys map[string]struct{}
}

// NewCatalogStore sizes the backing cache for catalog workloads.
func NewCatalogStore() (*CatalogStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CatalogStore{cache: cache, keys: make(map[string]struct{})}, nil
}

// Replace atomically swaps the candidate list for a placeholder.
func (s *CatalogStore) Replace(placeholderID string, cands []*domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]*domain.Candidate, len(cands))
	copy(stored, cands)
	s.cache.Set(placeholderID, stored, int64(len(stored)+1))
	s.cache.Wait()
	s.keys[placeholderID] = struct{}{}
}

// Get returns a copy of the candidate list for a placeholder.
func (s *CatalogStore) Get(placeholderID string) ([]*domain.Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, found := s.cache.Get(placeholderID)
	if !found {
		return nil, false
	}
	stored, ok := raw.([]*domain.Candidate)
	if !ok {
		return nil, false
	}
	out := make([]*domain.Candidate, len(stored))
	copy(out, stored)
	return out, true
}

// Placeholders lists the placeholder ids currently cached.
func (s *CatalogStore) Placeholders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out
}

// Clear drops every cached placeholder.
func (s *CatalogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Clear()
	s.keys = make(map[string]struct{})
}

// Close releases the backing cache.
func (s *CatalogStore) Close() {
	s.cache.Close()
}
