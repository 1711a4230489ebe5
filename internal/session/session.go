// Package session tracks the visitor session window and the customer
// identity used for segment synchronization.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/storage"
)

// Manager owns the session start timestamp and the customer identity. A
// fresh anonymous cookie is minted on first run and again on anonymize.
type Manager struct {
	kv  storage.KV
	log zerolog.Logger

	mu           sync.RWMutex
	sessionStart time.Time
	cookie       string
	externalIDs  map[string]string
}

// NewManager loads (or mints) the customer cookie from the store.
func NewManager(kv storage.KV, log zerolog.Logger) *Manager {
	m := &Manager{
		kv:          kv,
		log:         log,
		externalIDs: make(map[string]string),
	}

	ctx := context.Background()
	if blob, err := m.kv.Get(ctx, storage.KeyCustomerCookie); err == nil && len(blob) > 0 {
		m.cookie = string(blob)
	} else {
		m.cookie = m.mintCookie(ctx)
	}
	return m
}

func (m *Manager) mintCookie(ctx context.Context) string {
	cookie := uuid.NewString()
	if err := m.kv.Set(ctx, storage.KeyCustomerCookie, []byte(cookie)); err != nil {
		m.log.Warn().Err(err).Msg("could not persist customer cookie")
	}
	return cookie
}

// StartSession marks the beginning of a visit. Frequency filters with
// once-per-visit semantics key off this timestamp.
func (m *Manager) StartSession(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionStart = now
	m.log.Debug().Time("session_start", now).Msg("session started")
}

// SessionStart returns the current visit start; zero when no session has
// begun.
func (m *Manager) SessionStart() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionStart
}

// Cookie returns the anonymous visitor id.
func (m *Manager) Cookie() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cookie
}

// Identify attaches registered external ids to the customer identity.
func (m *Manager) Identify(externalIDs map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range externalIDs {
		m.externalIDs[k] = v
	}
}

// CustomerIDs returns the full identity map (cookie plus external ids),
// the identity key for segment snapshots.
func (m *Manager) CustomerIDs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.externalIDs)+1)
	out["cookie"] = m.cookie
	for k, v := range m.externalIDs {
		out[k] = v
	}
	return out
}

// ExternalIDs returns the registered external ids only.
func (m *Manager) ExternalIDs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.externalIDs))
	for k, v := range m.externalIDs {
		out[k] = v
	}
	return out
}

// Anonymize discards the current identity and mints a fresh cookie.
func (m *Manager) Anonymize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.externalIDs = make(map[string]string)
	m.cookie = m.mintCookie(context.Background())
	m.log.Debug().Msg("customer identity reset")
}
