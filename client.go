// Package nuntius is the in-app message targeting and segmentation
// engine of the engagement SDK: it decides, for an incoming event or a
// catalog of candidate messages, what should be shown where, and keeps
// the device's segment state reconciled with the server.
package nuntius

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/OrlandoBitencourt/nuntius/internal/blocks"
	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/filter"
	"github.com/OrlandoBitencourt/nuntius/internal/lifecycle"
	"github.com/OrlandoBitencourt/nuntius/internal/policy"
	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/segments"
	"github.com/OrlandoBitencourt/nuntius/internal/session"
	"github.com/OrlandoBitencourt/nuntius/internal/storage"
	"github.com/OrlandoBitencourt/nuntius/internal/telemetry"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
)

// Client is the main entry point. It owns the engine components and
// manages their shared lifecycle.
type Client struct {
	log       zerolog.Logger
	gate      *lifecycle.Gate
	session   *session.Manager
	repo      repository.Client
	kv        storage.KV
	catalog   *storage.CatalogStore
	evaluator *policy.Evaluator
	blocks    *blocks.Manager
	segments  *segments.Manager
	telemetry *telemetry.Provider

	syncInterval   time.Duration
	sessionTimeout time.Duration

	mu           sync.RWMutex
	messages     []*domain.Candidate
	lastActivity time.Time
	started      bool
}

// New creates a client with the given options.
//
// Example:
//
//	client, err := nuntius.New(
//	    nuntius.WithEndpoint("https://api.example.com"),
//	    nuntius.WithProjectToken("project-token"),
//	    nuntius.WithStorageDir("/var/lib/app/engagement"),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:        10 * time.Second,
		syncInterval:   5 * time.Minute,
		sessionTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	log := cfg.buildLogger()

	repo := cfg.repo
	if repo == nil {
		if cfg.endpoint == "" || cfg.projectToken == "" {
			return nil, domain.NewValidationError("endpoint and project token are required")
		}
		repo = repository.NewHTTPClient(repository.Config{
			Endpoint:      cfg.endpoint,
			ProjectToken:  cfg.projectToken,
			Authorization: cfg.authorization,
			Timeout:       cfg.timeout,
		})
	}

	var kv storage.KV
	if cfg.storageDir != "" {
		disk, err := storage.NewDiskKV(cfg.storageDir)
		if err != nil {
			return nil, fmt.Errorf("open storage dir: %w", err)
		}
		kv = disk
	} else {
		kv = storage.NewMemoryKV()
	}

	catalog, err := storage.NewCatalogStore()
	if err != nil {
		return nil, fmt.Errorf("create catalog store: %w", err)
	}

	sink := cfg.sink
	if sink == nil {
		sink = tracking.Nop{}
	}

	provider, err := telemetry.New()
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	gate := lifecycle.NewGate()
	sess := session.NewManager(kv, log)
	engine := filter.New(log)
	evaluator := policy.New(engine, log)

	c := &Client{
		log:            log,
		gate:           gate,
		session:        sess,
		repo:           repo,
		kv:             kv,
		catalog:        catalog,
		evaluator:      evaluator,
		telemetry:      provider,
		syncInterval:   cfg.syncInterval,
		sessionTimeout: cfg.sessionTimeout,
	}
	c.blocks = blocks.NewManager(repo, catalog, kv, gate, evaluator, sink, sess.SessionStart, log)
	c.segments = segments.NewManager(repo, kv, gate, sink, log)
	c.segments.SetFiringHook(func(category domain.CategoryType) {
		provider.RecordCallbackFiring(context.Background(), string(category))
	})
	return c, nil
}

// Start begins a session, loads the in-app message catalog and starts
// the background segment synchronization loop. A failed initial fetch
// is logged but not fatal: the engine stays usable and the catalog
// fills on the next load.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.session.StartSession(time.Now())
	c.touch()

	if err := c.loadMessages(ctx); err != nil && !domain.IsStopped(err) {
		c.log.Warn().Err(err).Msg("initial in-app message load failed")
	}

	c.segments.StartPeriodicSync(ctx, c.syncInterval, func() (string, map[string]string) {
		return c.session.Cookie(), c.session.CustomerIDs()
	})

	return nil
}

// Stop terminates the session. Subsequent guarded calls short-circuit
// to no-ops until a fresh client is configured.
func (c *Client) Stop() {
	c.gate.Stop()
	c.segments.StopPeriodicSync()
	c.blocks.Close()
	c.catalog.Close()
	if err := c.kv.Close(); err != nil {
		c.log.Warn().Err(err).Msg("storage close failed")
	}
	c.log.Debug().Msg("integration stopped")
}

// Anonymize discards the customer identity: fresh visitor cookie,
// cleared segment snapshot and newbie callbacks, dropped catalogs.
// Regular segment callbacks survive since they are UI bindings.
func (c *Client) Anonymize(ctx context.Context) {
	c.session.Anonymize()
	c.segments.Anonymize(ctx)
	c.blocks.InvalidateAll()

	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}

// Identify attaches registered external ids to the customer identity
// used for segment synchronization.
func (c *Client) Identify(externalIDs map[string]string) {
	c.session.Identify(externalIDs)
}

// touch refreshes the activity clock; a gap longer than the session
// timeout starts a new visit.
func (c *Client) touch() {
	now := time.Now()

	c.mu.Lock()
	stale := !c.lastActivity.IsZero() && now.Sub(c.lastActivity) > c.sessionTimeout
	c.lastActivity = now
	c.mu.Unlock()

	if stale {
		c.session.StartSession(now)
	}
}

// loadMessages fetches the in-app message catalog and replaces the
// cached one wholesale.
func (c *Client) loadMessages(ctx context.Context) error {
	if c.gate.Stopped() {
		c.log.Debug().Msg("integration stopped, message load skipped")
		return domain.NewStoppedError("message load")
	}

	fetched, err := c.repo.FetchInAppMessages(ctx)
	c.telemetry.RecordFetch(ctx, "in_app_messages", err)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.messages = fetched
	c.mu.Unlock()

	c.log.Debug().Int("count", len(fetched)).Msg("in-app message catalog replaced")
	return nil
}

// ReloadMessages refreshes the in-app message catalog from the server.
func (c *Client) ReloadMessages(ctx context.Context) error {
	return c.loadMessages(ctx)
}

// TrackEvent runs the incoming event through the display policy and
// returns the eligible in-app messages in rank order. The caller shows
// the first and may queue the rest. An empty result means silence, the
// expected outcome for most events.
func (c *Client) TrackEvent(ctx context.Context, event Event) []Message {
	if c.gate.Stopped() {
		c.log.Debug().Str("event", event.Type).Msg("integration stopped, event dropped")
		return nil
	}

	c.touch()

	ev := event.toDomain()

	c.mu.RLock()
	catalog := make([]*domain.Candidate, len(c.messages))
	copy(catalog, c.messages)
	c.mu.RUnlock()

	in := policy.Input{
		Now:          time.Now(),
		SessionStart: c.session.SessionStart(),
		Event:        &ev,
	}
	eligible := c.evaluator.FilterEligible(catalog, in, c.displayStatus)
	ranked := policy.Rank(eligible)

	for _, cand := range catalog {
		c.telemetry.RecordEvaluation(ctx, cand.ID, containsCandidate(ranked, cand.ID))
	}

	out := make([]Message, 0, len(ranked))
	for _, cand := range ranked {
		out = append(out, toMessage(cand))
	}
	return out
}

func containsCandidate(cands []*domain.Candidate, id string) bool {
	for _, c := range cands {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (c *Client) displayStatus(candidateID string) domain.DisplayStatus {
	blob, err := c.kv.Get(context.Background(), storage.DisplayStatusKey(candidateID))
	if err != nil {
		return domain.DisplayStatus{}
	}
	var status domain.DisplayStatus
	if err := json.Unmarshal(blob, &status); err != nil {
		return domain.DisplayStatus{}
	}
	return status
}

// PrefetchPlaceholders loads and filters the content block catalog for
// the given placeholder ids, returning the ranked eligible block ids
// per placeholder.
func (c *Client) PrefetchPlaceholders(ctx context.Context, placeholderIDs []string) (map[string][]Message, error) {
	ranked, err := c.blocks.Prefetch(ctx, placeholderIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Message, len(ranked))
	for id, cands := range ranked {
		msgs := make([]Message, 0, len(cands))
		for _, cand := range cands {
			msgs = append(msgs, toMessage(cand))
		}
		out[id] = msgs
	}
	return out, nil
}

// PrepareView assigns the winning content block for a placeholder index
// and returns its renderable handle.
func (c *Client) PrepareView(ctx context.Context, placeholderID string, index int) (*BlockView, error) {
	block, err := c.blocks.PrepareView(ctx, placeholderID, index)
	if err != nil || block == nil {
		return nil, err
	}
	return toBlockView(block), nil
}

// GetUsedBlock answers layout queries for an already-assigned index
// path without re-running selection.
func (c *Client) GetUsedBlock(placeholderID string, index int) *BlockView {
	block := c.blocks.GetUsedBlock(placeholderID, index)
	if block == nil {
		return nil
	}
	return toBlockView(block)
}

func toBlockView(block *blocks.UsedBlock) *BlockView {
	payload := make(map[string]any)
	for k, v := range block.Candidate.Payload() {
		payload[k] = v.ToAny()
	}
	return &BlockView{
		ID:      block.Candidate.ID,
		Payload: payload,
		Height:  block.Height,
		State:   block.State,
	}
}

// TrackBlockShown records a content block display.
func (c *Client) TrackBlockShown(ctx context.Context, placeholderID string, index int) {
	c.blocks.TrackShown(ctx, placeholderID, index)
}

// TrackBlockClick records a content block interaction.
func (c *Client) TrackBlockClick(ctx context.Context, placeholderID string, index int, action string) {
	c.blocks.TrackClick(ctx, placeholderID, index, action)
}

// TrackBlockClose records a content block dismissal.
func (c *Client) TrackBlockClose(ctx context.Context, placeholderID string, index int) {
	c.blocks.TrackClose(ctx, placeholderID, index)
}

// TrackBlockError reports a content block render failure.
func (c *Client) TrackBlockError(placeholderID string, index int, message string) {
	c.blocks.TrackError(placeholderID, index, message)
}

// SetRefreshCallback installs the single-slot UI refresh callback.
func (c *Client) SetRefreshCallback(cb RefreshCallback) {
	c.blocks.SetRefreshCallback(blocks.RefreshCallback(cb))
}

// SyncSegments runs one segment synchronize cycle for the current
// customer identity and returns the category tags that changed.
func (c *Client) SyncSegments(ctx context.Context) ([]SegmentCategoryType, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "nuntius.segments.synchronize")
	defer span.End()

	start := time.Now()
	changed, err := c.segments.Synchronize(ctx, c.session.Cookie(), c.session.CustomerIDs())
	if err != nil {
		if !domain.IsStopped(err) {
			c.telemetry.RecordFetch(ctx, "segments", err)
		}
		return nil, err
	}
	c.telemetry.RecordFetch(ctx, "segments", nil)
	c.telemetry.RecordSync(ctx, len(changed), time.Since(start))

	out := make([]SegmentCategoryType, 0, len(changed))
	for _, cat := range changed {
		out = append(out, cat.Type)
	}
	return out, nil
}

// AddSegmentCallback registers interest in a segment category.
func (c *Client) AddSegmentCallback(ctx context.Context, data SegmentCallbackData) {
	c.segments.AddCallback(ctx, data)
}

// RemoveSegmentCallback removes the first structurally matching
// registration.
func (c *Client) RemoveSegmentCallback(data SegmentCallbackData) {
	c.segments.RemoveCallback(data)
}

// GetSegmentCallbacks returns the regular registrations (inspection,
// primarily for tests).
func (c *Client) GetSegmentCallbacks() []SegmentCallbackData {
	return c.segments.GetCallbacks()
}

// GetSegmentNewbies returns the registrations still awaiting their
// first-load firing.
func (c *Client) GetSegmentNewbies() []SegmentCallbackData {
	return c.segments.GetNewbies()
}
