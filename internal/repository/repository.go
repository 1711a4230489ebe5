// Package repository defines the fetch collaborator the core consumes.
// Retry and backoff, when wanted, live behind this interface, never in
// the core itself.
package repository

import (
	"context"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// Client fetches candidate catalogs and segment data from the server.
type Client interface {
	// FetchContentBlocks returns the full candidate catalog for the
	// given placeholder ids.
	FetchContentBlocks(ctx context.Context, placeholderIDs []string) ([]*domain.Candidate, error)

	// FetchInAppMessages returns the full in-app message catalog.
	FetchInAppMessages(ctx context.Context) ([]*domain.Candidate, error)

	// FetchSegments returns the server-computed segment categories for
	// one customer identity.
	FetchSegments(ctx context.Context, cookie string, externalIDs map[string]string) (domain.SegmentData, error)
}
