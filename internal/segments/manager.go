// Package segments reconciles server-fetched segment state against the
// device cache and notifies interested parties of genuine changes only.
package segments

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/lifecycle"
	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/storage"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
)

// Manager owns the persisted segmentation snapshot and the callback
// registry. All snapshot reads and writes serialize through its mutex;
// callbacks fire after the store already reflects the new data.
type Manager struct {
	repo  repository.Client
	kv    storage.KV
	gate  *lifecycle.Gate
	sink  tracking.Sink
	log   zerolog.Logger

	mu            sync.Mutex
	newbies       []CallbackData
	regulars      []CallbackData
	firstLoadDone bool
	firingHook    func(domain.CategoryType)

	// Background sync loop state.
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a segmentation manager. A snapshot persisted by an
// earlier run counts as known data for first-load purposes.
func NewManager(repo repository.Client, kv storage.KV, gate *lifecycle.Gate, sink tracking.Sink, log zerolog.Logger) *Manager {
	m := &Manager{
		repo: repo,
		kv:   kv,
		gate: gate,
		sink: sink,
		log:  log,
	}
	if _, ok := m.loadSnapshot(context.Background()); ok {
		m.firstLoadDone = true
	}
	return m
}

// SetFiringHook installs an observer invoked once per callback firing
// with the category tag. Observability only.
func (m *Manager) SetFiringHook(hook func(domain.CategoryType)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firingHook = hook
}

func (m *Manager) observeFiring(category domain.CategoryType) {
	m.mu.Lock()
	hook := m.firingHook
	m.mu.Unlock()
	if hook != nil {
		hook(category)
	}
}

// UnionSegments merges two category sequences. Per category tag the DTO
// sequences concatenate and deduplicate by the full (id, segmentationId)
// pair; categories present on one side only pass through unchanged. The
// "other" category never participates and is dropped.
func UnionSegments(first, second []domain.SegmentCategory) []domain.SegmentCategory {
	byType := make(map[domain.CategoryType][]domain.SegmentDTO)
	order := make([]domain.CategoryType, 0, len(first)+len(second))

	appendSide := func(cats []domain.SegmentCategory) {
		for _, c := range cats {
			if c.Type == domain.CategoryOther {
				continue
			}
			if _, seen := byType[c.Type]; !seen {
				order = append(order, c.Type)
			}
			byType[c.Type] = append(byType[c.Type], c.Data...)
		}
	}
	appendSide(first)
	appendSide(second)

	out := make([]domain.SegmentCategory, 0, len(order))
	for _, t := range order {
		seen := make(map[domain.SegmentDTO]struct{})
		var dedup []domain.SegmentDTO
		for _, dto := range byType[t] {
			if _, dup := seen[dto]; dup {
				continue
			}
			seen[dto] = struct{}{}
			dedup = append(dedup, dto)
		}
		out = append(out, domain.SegmentCategory{Type: t, Data: dedup})
	}
	return out
}

// SynchronizeSegments diffs fetched categories against the stored
// snapshot and returns only the categories that actually changed. A
// customer identity switch discards the old diffing basis: every
// non-empty fetched category comes back as changed and a fresh snapshot
// is persisted for the new identity. The snapshot update happens before
// any callback observes the result.
func (m *Manager) SynchronizeSegments(ctx context.Context, customerIDs map[string]string, fetched domain.SegmentData) []domain.SegmentCategory {
	m.mu.Lock()

	stored, hasSnapshot := m.loadSnapshot(ctx)

	var changed []domain.SegmentCategory

	if !hasSnapshot || !stored.SameCustomer(customerIDs) {
		// Fully new basis: everything non-empty counts as changed.
		for _, c := range fetched.Categories {
			if len(c.Data) > 0 {
				changed = append(changed, c)
			}
		}
		m.persistSnapshot(ctx, domain.SegmentStore{
			CustomerIDs: customerIDs,
			Categories:  fetched.Categories,
		})
	} else {
		dirty := false
		for _, c := range fetched.Categories {
			prev, _ := stored.Category(c.Type)
			if !c.EqualData(prev) {
				changed = append(changed, c)
				dirty = true
			}
		}
		if dirty {
			m.persistSnapshot(ctx, domain.SegmentStore{
				CustomerIDs: customerIDs,
				Categories:  fetched.Categories,
			})
		}
	}

	m.firstLoadDone = true

	// Collect firings while still holding the lock, dispatch after
	// releasing it so callbacks can re-query freely.
	firings := m.collectFirings(fetched, changed)
	m.mu.Unlock()

	for _, f := range firings {
		f.data.OnNewData(f.payload)
		m.observeFiring(f.data.Category)
	}
	for _, c := range changed {
		m.sink.SegmentEvent(c.Type, len(c.Data))
	}

	return changed
}

type firing struct {
	data    CallbackData
	payload []domain.SegmentDTO
}

// collectFirings drains the newbies (each gets its category's fresh data
// regardless of change, the one-time first load) and picks the regulars
// whose category actually changed. Drained newbies join the regulars.
// Caller holds m.mu.
func (m *Manager) collectFirings(fetched domain.SegmentData, changed []domain.SegmentCategory) []firing {
	fetchedByType := make(map[domain.CategoryType][]domain.SegmentDTO, len(fetched.Categories))
	for _, c := range fetched.Categories {
		fetchedByType[c.Type] = c.Data
	}
	changedSet := make(map[domain.CategoryType][]domain.SegmentDTO, len(changed))
	for _, c := range changed {
		changedSet[c.Type] = c.Data
	}

	var firings []firing

	// Regulars registered before this cycle fire on genuine change only.
	for _, regular := range m.regulars {
		if payload, ok := changedSet[regular.Category]; ok {
			firings = append(firings, firing{data: regular, payload: payload})
		}
	}

	// Newbies get their one-time first load with fresh data regardless
	// of change, then join the regulars. At most one firing per entry
	// per cycle either way.
	for _, newbie := range m.newbies {
		firings = append(firings, firing{data: newbie, payload: fetchedByType[newbie.Category]})
		m.regulars = append(m.regulars, newbie)
	}
	m.newbies = nil

	return firings
}

// Synchronize fetches segment data for the customer and runs the diff
// cycle. Guarded by the integration gate.
func (m *Manager) Synchronize(ctx context.Context, cookie string, customerIDs map[string]string) ([]domain.SegmentCategory, error) {
	if m.gate.Stopped() {
		m.log.Debug().Msg("integration stopped, segment synchronize skipped")
		return nil, domain.NewStoppedError("segment synchronize")
	}

	externalIDs := make(map[string]string, len(customerIDs))
	for k, v := range customerIDs {
		if k != "cookie" {
			externalIDs[k] = v
		}
	}

	fetched, err := m.repo.FetchSegments(ctx, cookie, externalIDs)
	if err != nil {
		// Stale-but-valid beats empty: cached snapshot stays untouched.
		m.log.Warn().Err(err).Msg("segment fetch failed")
		return nil, err
	}

	return m.SynchronizeSegments(ctx, customerIDs, fetched), nil
}

// AddCallback registers interest in one category. With IncludeFirstLoad
// and known data the callback fires once immediately; without known data
// it waits in the newbies partition for the first completed synchronize.
// Duplicate registrations are distinct entries, never deduped.
func (m *Manager) AddCallback(ctx context.Context, data CallbackData) {
	m.mu.Lock()

	if !data.IncludeFirstLoad {
		m.regulars = append(m.regulars, data)
		m.mu.Unlock()
		return
	}

	if !m.firstLoadDone {
		m.newbies = append(m.newbies, data)
		m.mu.Unlock()
		return
	}

	// Best-known data is the persisted snapshot.
	snapshot, _ := m.loadSnapshot(ctx)
	payload, _ := snapshot.Category(data.Category)
	m.regulars = append(m.regulars, data)
	m.mu.Unlock()

	data.OnNewData(payload.Data)
	m.observeFiring(data.Category)
}

// RemoveCallback removes the first structural match from whichever
// partition holds it.
func (m *Manager) RemoveCallback(data CallbackData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next, removed := removeFirstMatch(m.newbies, data); removed {
		m.newbies = next
		return
	}
	m.regulars, _ = removeFirstMatch(m.regulars, data)
}

// GetCallbacks returns a copy of the regular partition (inspection,
// primarily for tests).
func (m *Manager) GetCallbacks() []CallbackData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallbackData, len(m.regulars))
	copy(out, m.regulars)
	return out
}

// GetNewbies returns a copy of the newbies partition.
func (m *Manager) GetNewbies() []CallbackData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallbackData, len(m.newbies))
	copy(out, m.newbies)
	return out
}

// Anonymize clears the newbies (no history to replay), the persisted
// snapshot and the customer identity basis. Regular registrations are UI
// bindings, not per-user state, and survive.
func (m *Manager) Anonymize(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.newbies = nil
	m.firstLoadDone = false
	if err := m.kv.Delete(ctx, storage.KeySegmentStore); err != nil {
		m.log.Warn().Err(err).Msg("could not clear segment snapshot")
	}
}

// StartPeriodicSync launches a background synchronize loop. identity
// resolves the customer basis at each tick so an identify or anonymize
// between ticks is picked up naturally. Starting while a loop already
// runs is a no-op.
func (m *Manager) StartPeriodicSync(ctx context.Context, interval time.Duration, identity func() (cookie string, customerIDs map[string]string)) {
	if interval <= 0 {
		return
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				cookie, ids := identity()
				syncCtx, cancelSync := context.WithTimeout(loopCtx, 30*time.Second)
				if _, err := m.Synchronize(syncCtx, cookie, ids); err != nil && !domain.IsStopped(err) {
					m.log.Warn().Err(err).Msg("periodic segment sync failed")
				}
				cancelSync()
			}
		}
	}()
}

// StopPeriodicSync stops the background loop and waits for it.
func (m *Manager) StopPeriodicSync() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

// loadSnapshot reads and decodes the persisted snapshot. A corrupt blob
// decodes to "no snapshot", equivalent to a first-ever synchronize.
func (m *Manager) loadSnapshot(ctx context.Context) (domain.SegmentStore, bool) {
	blob, err := m.kv.Get(ctx, storage.KeySegmentStore)
	if err != nil {
		return domain.SegmentStore{}, false
	}

	var snapshot domain.SegmentStore
	if err := json.Unmarshal(blob, &snapshot); err != nil {
		m.log.Warn().Err(err).Msg("corrupt segment snapshot, treating as absent")
		return domain.SegmentStore{}, false
	}
	return snapshot, true
}

// persistSnapshot serializes and stores the snapshot. Caller holds m.mu.
func (m *Manager) persistSnapshot(ctx context.Context, snapshot domain.SegmentStore) {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		m.log.Error().Err(err).Msg("could not encode segment snapshot")
		return
	}
	if err := m.kv.Set(ctx, storage.KeySegmentStore, blob); err != nil {
		m.log.Error().Err(err).Msg("could not persist segment snapshot")
	}
}

// Snapshot returns a copy of the current persisted snapshot, if any.
func (m *Manager) Snapshot(ctx context.Context) (domain.SegmentStore, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadSnapshot(ctx)
}
