package repository

import (
	"context"
	"sync"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
)

// MockClient is a test double for Client with injectable behaviors and
// call counters.
type MockClient struct {
	mu sync.RWMutex

	blocks   []*domain.Candidate
	messages []*domain.Candidate
	segments domain.SegmentData

	FetchContentBlocksFunc func(ctx context.Context, placeholderIDs []string) ([]*domain.Candidate, error)
	FetchInAppMessagesFunc func(ctx context.Context) ([]*domain.Candidate, error)
	FetchSegmentsFunc      func(ctx context.Context, cookie string, externalIDs map[string]string) (domain.SegmentData, error)

	FetchContentBlocksCalls int
	FetchInAppMessagesCalls int
	FetchSegmentsCalls      int
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SetContentBlocks replaces the canned content block catalog.
func (m *MockClient) SetContentBlocks(blocks []*domain.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = blocks
}

// SetInAppMessages replaces the canned message catalog.
func (m *MockClient) SetInAppMessages(messages []*domain.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
}

// SetSegments replaces the canned segment response.
func (m *MockClient) SetSegments(data domain.SegmentData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = data
}

// FetchContentBlocks implements Client.
func (m *MockClient) FetchContentBlocks(ctx context.Context, placeholderIDs []string) ([]*domain.Candidate, error) {
	m.mu.Lock()
	m.FetchContentBlocksCalls++
	fn := m.FetchContentBlocksFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, placeholderIDs)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	idSet := make(map[string]struct{}, len(placeholderIDs))
	for _, id := range placeholderIDs {
		idSet[id] = struct{}{}
	}

	var out []*domain.Candidate
	for _, b := range m.blocks {
		for _, p := range b.Placeholders {
			if _, ok := idSet[p]; ok {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

// FetchInAppMessages implements Client.
func (m *MockClient) FetchInAppMessages(ctx context.Context) ([]*domain.Candidate, error) {
	m.mu.Lock()
	m.FetchInAppMessagesCalls++
	fn := m.FetchInAppMessagesFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Candidate, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

// FetchSegments implements Client.
func (m *MockClient) FetchSegments(ctx context.Context, cookie string, externalIDs map[string]string) (domain.SegmentData, error) {
	m.mu.Lock()
	m.FetchSegmentsCalls++
	fn := m.FetchSegmentsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, cookie, externalIDs)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.segments, nil
}

// Reset clears canned data and call counters.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = nil
	m.messages = nil
	m.segments = domain.SegmentData{}
	m.FetchContentBlocksCalls = 0
	m.FetchInAppMessagesCalls = 0
	m.FetchSegmentsCalls = 0
}
