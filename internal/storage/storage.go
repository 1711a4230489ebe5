// Package storage provides the persistence primitives of the SDK core:
// a blob key-value store for snapshots and display statuses, and an
// in-memory catalog store for content block candidates.
package storage

import (
	"context"
)

// Fixed keys for the blob store. The store lives in an app-group-shared
// directory so extension processes can read overlapping state.
const (
	KeySegmentStore        = "segments_store"
	KeyDisplayStatusPrefix = "display_status:"
	KeyCustomerCookie      = "customer_cookie"
)

// DisplayStatusKey derives the blob key for one candidate id.
func DisplayStatusKey(candidateID string) string {
	return KeyDisplayStatusPrefix + candidateID
}

// KV stores serialized blobs by fixed keys.
type KV interface {
	// Get retrieves the blob for a key. Returns a NotFoundError when
	// the key has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the blob for a key.
	Set(ctx context.Context, key string, blob []byte) error

	// Delete removes a key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
