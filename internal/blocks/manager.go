// Package blocks owns the per-placeholder content block catalog: fetch,
// filter, prioritize, cache, and the UI refresh callback lifecycle.
package blocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/lifecycle"
	"github.com/OrlandoBitencourt/nuntius/internal/policy"
	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/storage"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
)

// RefreshCallback is the process-wide single-slot UI notification,
// invoked with the affected placeholder and index whenever the catalog
// changes in a way that requires a re-render. Invocations are serialized
// through a dedicated notifier goroutine standing in for the main
// thread.
type RefreshCallback func(placeholderID string, index int)

// UsedBlock answers UI layout queries for an assigned candidate without
// re-running selection.
type UsedBlock struct {
	Candidate *domain.Candidate
	Height    float64
	State     string
}

const (
	StateAssigned  = "assigned"
	StateDisplayed = "displayed"
)

type refreshEvent struct {
	placeholderID string
	index         int
}

// Manager owns the candidate catalog per placeholder. Catalog mutation
// serializes through the store; readers receive copies.
type Manager struct {
	repo      repository.Client
	catalog   *storage.CatalogStore
	kv        storage.KV
	gate      *lifecycle.Gate
	evaluator *policy.Evaluator
	sink      tracking.Sink
	log       zerolog.Logger

	sessionStart func() time.Time
	now          func() time.Time

	mu       sync.Mutex
	used     map[string]map[int]*UsedBlock
	callback RefreshCallback

	events chan refreshEvent
	done   chan struct{}
	once   sync.Once
}

// NewManager creates a content block manager. now is injectable for
// tests and defaults to time.Now.
func NewManager(
	repo repository.Client,
	catalog *storage.CatalogStore,
	kv storage.KV,
	gate *lifecycle.Gate,
	evaluator *policy.Evaluator,
	sink tracking.Sink,
	sessionStart func() time.Time,
	log zerolog.Logger,
) *Manager {
	m := &Manager{
		repo:         repo,
		catalog:      catalog,
		kv:           kv,
		gate:         gate,
		evaluator:    evaluator,
		sink:         sink,
		log:          log,
		sessionStart: sessionStart,
		now:          time.Now,
		used:         make(map[string]map[int]*UsedBlock),
		events:       make(chan refreshEvent, 64),
		done:         make(chan struct{}),
	}
	go m.notifyLoop()
	return m
}

// SetNow overrides the clock (tests).
func (m *Manager) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetRefreshCallback installs the single-slot UI callback.
func (m *Manager) SetRefreshCallback(cb RefreshCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// notifyLoop serializes refresh callback invocations, the stand-in for
// posting to the UI-affinity context.
func (m *Manager) notifyLoop() {
	for {
		select {
		case <-m.done:
			return
		case ev := <-m.events:
			m.mu.Lock()
			cb := m.callback
			m.mu.Unlock()
			if cb != nil {
				cb(ev.placeholderID, ev.index)
			}
		}
	}
}

func (m *Manager) notify(placeholderID string, index int) {
	select {
	case m.events <- refreshEvent{placeholderID: placeholderID, index: index}:
	default:
		m.log.Warn().Str("placeholder", placeholderID).Msg("refresh event dropped, queue full")
	}
}

// Close stops the notifier goroutine.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}

// LoadPlaceholders fetches the full candidate catalog for the given
// placeholder ids and replaces any previously cached catalog for those
// ids atomically. Guarded by the integration gate.
func (m *Manager) LoadPlaceholders(ctx context.Context, placeholderIDs []string) error {
	if m.gate.Stopped() {
		m.log.Debug().Strs("placeholders", placeholderIDs).Msg("integration stopped, placeholder load skipped")
		return domain.NewStoppedError("placeholder load")
	}

	fetched, err := m.repo.FetchContentBlocks(ctx, placeholderIDs)
	if err != nil {
		// Existing cached catalog stays untouched on failure.
		m.log.Warn().Err(err).Msg("content block fetch failed")
		return err
	}

	for _, id := range placeholderIDs {
		var forID []*domain.Candidate
		for _, c := range fetched {
			if c.HasPlaceholder(id) {
				forID = append(forID, c)
			}
		}
		m.catalog.Replace(id, policy.Rank(forID))

		m.mu.Lock()
		delete(m.used, id)
		m.mu.Unlock()

		m.notify(id, 0)
	}

	m.log.Debug().
		Strs("placeholders", placeholderIDs).
		Int("candidates", len(fetched)).
		Msg("placeholder catalog replaced")
	return nil
}

// FilterPassive applies the date and frequency gates with no event, the
// pure filtering core of Prefetch. Exposed separately from I/O for
// tests.
func (m *Manager) FilterPassive(cands []*domain.Candidate) []*domain.Candidate {
	in := policy.Input{
		Now:          m.now(),
		SessionStart: m.sessionStart(),
	}
	eligible := m.evaluator.FilterEligible(cands, in, m.displayStatus)
	return policy.Rank(eligible)
}

// Prefetch returns the ranked eligible candidates per placeholder from
// the cached catalog, loading placeholders not yet cached.
func (m *Manager) Prefetch(ctx context.Context, placeholderIDs []string) (map[string][]*domain.Candidate, error) {
	if m.gate.Stopped() {
		m.log.Debug().Msg("integration stopped, prefetch skipped")
		return nil, domain.NewStoppedError("prefetch")
	}

	var missing []string
	for _, id := range placeholderIDs {
		if _, ok := m.catalog.Get(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		if err := m.LoadPlaceholders(ctx, missing); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]*domain.Candidate, len(placeholderIDs))
	for _, id := range placeholderIDs {
		cands, _ := m.catalog.Get(id)
		out[id] = m.FilterPassive(cands)
	}
	return out, nil
}

// PrepareView assigns the winning candidate for a placeholder index and
// returns its rendering handle. The assignment is remembered so layout
// queries need not re-run selection.
func (m *Manager) PrepareView(ctx context.Context, placeholderID string, index int) (*UsedBlock, error) {
	if m.gate.Stopped() {
		m.log.Debug().Str("placeholder", placeholderID).Msg("integration stopped, prepare view skipped")
		return nil, domain.NewStoppedError("prepare view")
	}

	ranked, err := m.Prefetch(ctx, []string{placeholderID})
	if err != nil {
		return nil, err
	}

	eligible := ranked[placeholderID]
	if index < 0 || index >= len(eligible) {
		return nil, domain.NewNotFoundError("content block", placeholderID)
	}

	// The top choice renders; runners-up stay queued in rank order.
	chosen := eligible[index]
	block := &UsedBlock{
		Candidate: chosen,
		Height:    payloadHeight(chosen),
		State:     StateAssigned,
	}

	m.mu.Lock()
	if m.used[placeholderID] == nil {
		m.used[placeholderID] = make(map[int]*UsedBlock)
	}
	m.used[placeholderID][index] = block
	m.mu.Unlock()

	return block, nil
}

// GetUsedBlock returns the currently assigned candidate's rendering
// state for a UI index path, or nil when nothing is assigned.
func (m *Manager) GetUsedBlock(placeholderID string, index int) *UsedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex, ok := m.used[placeholderID]
	if !ok {
		return nil
	}
	block, ok := byIndex[index]
	if !ok {
		return nil
	}
	copied := *block
	return &copied
}

// TrackShown records a display: persists the display status, notifies
// the sink (fire and forget) and flips the assignment state.
func (m *Manager) TrackShown(ctx context.Context, placeholderID string, index int) {
	if m.gate.Stopped() {
		m.log.Debug().Msg("integration stopped, shown tracking skipped")
		return
	}

	m.mu.Lock()
	byIndex := m.used[placeholderID]
	var block *UsedBlock
	if byIndex != nil {
		block = byIndex[index]
	}
	if block != nil {
		block.State = StateDisplayed
	}
	m.mu.Unlock()

	if block == nil {
		return
	}

	now := m.now()
	status := m.displayStatus(block.Candidate.ID)
	status.Displayed = &now
	m.persistStatus(ctx, block.Candidate.ID, status)

	m.sink.ContentBlockShown(placeholderID, block.Candidate)
}

// TrackClick records an interaction with the assigned candidate.
func (m *Manager) TrackClick(ctx context.Context, placeholderID string, index int, action string) {
	if m.gate.Stopped() {
		m.log.Debug().Msg("integration stopped, click tracking skipped")
		return
	}

	block := m.GetUsedBlock(placeholderID, index)
	if block == nil {
		return
	}

	now := m.now()
	status := m.displayStatus(block.Candidate.ID)
	status.Interacted = &now
	m.persistStatus(ctx, block.Candidate.ID, status)

	m.sink.ContentBlockClick(placeholderID, block.Candidate, action)
}

// TrackClose records a dismissal of the assigned candidate.
func (m *Manager) TrackClose(ctx context.Context, placeholderID string, index int) {
	if m.gate.Stopped() {
		m.log.Debug().Msg("integration stopped, close tracking skipped")
		return
	}

	block := m.GetUsedBlock(placeholderID, index)
	if block == nil {
		return
	}

	now := m.now()
	status := m.displayStatus(block.Candidate.ID)
	status.Interacted = &now
	m.persistStatus(ctx, block.Candidate.ID, status)

	m.sink.ContentBlockClose(placeholderID, block.Candidate)
}

// TrackError reports a render failure for the assigned candidate.
func (m *Manager) TrackError(placeholderID string, index int, message string) {
	if m.gate.Stopped() {
		return
	}

	block := m.GetUsedBlock(placeholderID, index)
	if block == nil {
		return
	}
	m.sink.ContentBlockError(placeholderID, block.Candidate, message)
}

// InvalidateAll drops the whole cached catalog and all assignments.
func (m *Manager) InvalidateAll() {
	m.catalog.Clear()

	m.mu.Lock()
	m.used = make(map[string]map[int]*UsedBlock)
	m.mu.Unlock()
}

// displayStatus reads the persisted display status for a candidate id.
// Absent or corrupt records read as empty.
func (m *Manager) displayStatus(candidateID string) domain.DisplayStatus {
	blob, err := m.kv.Get(context.Background(), storage.DisplayStatusKey(candidateID))
	if err != nil {
		return domain.DisplayStatus{}
	}
	var status domain.DisplayStatus
	if err := json.Unmarshal(blob, &status); err != nil {
		return domain.DisplayStatus{}
	}
	return status
}

func (m *Manager) persistStatus(ctx context.Context, candidateID string, status domain.DisplayStatus) {
	blob, err := json.Marshal(status)
	if err != nil {
		m.log.Error().Err(err).Msg("could not encode display status")
		return
	}
	if err := m.kv.Set(ctx, storage.DisplayStatusKey(candidateID), blob); err != nil {
		m.log.Error().Err(err).Str("candidate", candidateID).Msg("could not persist display status")
	}
}

// payloadHeight extracts the declared render height from the candidate
// payload, defaulting to zero for self-sizing content.
func payloadHeight(c *domain.Candidate) float64 {
	if v, ok := c.Payload()["height"]; ok {
		if f, isNum := v.DoubleValue(); isNum {
			return f
		}
	}
	return 0
}
