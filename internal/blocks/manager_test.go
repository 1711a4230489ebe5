package blocks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/nuntius/internal/domain"
	"github.com/OrlandoBitencourt/nuntius/internal/filter"
	"github.com/OrlandoBitencourt/nuntius/internal/lifecycle"
	"github.com/OrlandoBitencourt/nuntius/internal/policy"
	"github.com/OrlandoBitencourt/nuntius/internal/repository"
	"github.com/OrlandoBitencourt/nuntius/internal/storage"
	"github.com/OrlandoBitencourt/nuntius/internal/tracking"
	"github.com/OrlandoBitencourt/nuntius/internal/value"
)

var (
	now          = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	sessionStart = now.Add(-10 * time.Minute)
)

func ip(i int) *int { return &i }

func block(id string, priority int, placeholders ...string) *domain.Candidate {
	c := &domain.Candidate{
		ID:           id,
		Name:         id,
		Frequency:    domain.FrequencyAlways,
		Priority:     ip(priority),
		Placeholders: placeholders,
	}
	c.SetPayload(map[string]value.Value{"height": value.Int(100)})
	return c
}

type fixture struct {
	manager *Manager
	repo    *repository.MockClient
	kv      *storage.MemoryKV
	gate    *lifecycle.Gate
	sink    *tracking.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repository.NewMockClient()
	kv := storage.NewMemoryKV()
	gate := lifecycle.NewGate()
	sink := tracking.NewRecorder()

	catalog, err := storage.NewCatalogStore()
	require.NoError(t, err)
	t.Cleanup(catalog.Close)

	log := zerolog.Nop()
	evaluator := policy.New(filter.New(log), log)

	m := NewManager(repo, catalog, kv, gate, evaluator, sink,
		func() time.Time { return sessionStart }, log)
	m.SetNow(func() time.Time { return now })
	t.Cleanup(m.Close)

	return &fixture{manager: m, repo: repo, kv: kv, gate: gate, sink: sink}
}

func TestLoadPlaceholders_RanksAndSegregates(t *testing.T) {
	f := newFixture(t)
	f.repo.SetContentBlocks([]*domain.Candidate{
		block("low", 5, "ph1"),
		block("high", 10, "ph1"),
		block("other", 1, "ph2"),
	})

	require.NoError(t, f.manager.LoadPlaceholders(context.Background(), []string{"ph1", "ph2"}))

	ranked, err := f.manager.Prefetch(context.Background(), []string{"ph1"})
	require.NoError(t, err)
	require.Len(t, ranked["ph1"], 2)
	assert.Equal(t, "high", ranked["ph1"][0].ID)
	assert.Equal(t, "low", ranked["ph1"][1].ID)
}

func TestLoadPlaceholders_FailureKeepsCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	require.NoError(t, f.manager.LoadPlaceholders(ctx, []string{"ph1"}))

	f.repo.FetchContentBlocksFunc = func(context.Context, []string) ([]*domain.Candidate, error) {
		return nil, domain.NewFetchError("content blocks", assert.AnError)
	}
	require.Error(t, f.manager.LoadPlaceholders(ctx, []string{"ph1"}))

	// Previous catalog still served.
	ranked, err := f.manager.Prefetch(ctx, []string{"ph1"})
	require.NoError(t, err)
	assert.Len(t, ranked["ph1"], 1)
}

func TestLoadPlaceholders_StoppedGate(t *testing.T) {
	f := newFixture(t)
	f.gate.Stop()

	err := f.manager.LoadPlaceholders(context.Background(), []string{"ph1"})
	assert.True(t, domain.IsStopped(err))
	assert.Equal(t, 0, f.repo.FetchContentBlocksCalls)
}

func TestPrefetch_LoadsOnlyMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1"), block("b2", 1, "ph2")})
	require.NoError(t, f.manager.LoadPlaceholders(ctx, []string{"ph1"}))
	require.Equal(t, 1, f.repo.FetchContentBlocksCalls)

	ranked, err := f.manager.Prefetch(ctx, []string{"ph1", "ph2"})
	require.NoError(t, err)
	assert.Len(t, ranked["ph1"], 1)
	assert.Len(t, ranked["ph2"], 1)

	// ph1 was cached; only ph2 triggered a fetch.
	assert.Equal(t, 2, f.repo.FetchContentBlocksCalls)
}

func TestFilterPassive_AppliesDateAndFrequency(t *testing.T) {
	f := newFixture(t)

	past := now.Add(-time.Hour)
	expired := block("expired", 10, "ph1")
	expired.DateFilter = domain.DateFilter{Enabled: true, EndDate: &past}

	seen := block("seen", 8, "ph1")
	seen.Frequency = domain.FrequencyOnlyOnce
	shownAt := now.Add(-time.Minute)
	blob := []byte(`{"displayed":"` + shownAt.Format(time.RFC3339) + `"}`)
	require.NoError(t, f.kv.Set(context.Background(), storage.DisplayStatusKey("seen"), blob))

	ok := block("ok", 5, "ph1")

	out := f.manager.FilterPassive([]*domain.Candidate{expired, seen, ok})
	require.Len(t, out, 1)
	assert.Equal(t, "ok", out[0].ID)
}

func TestPrepareView_AssignsByIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{
		block("second", 5, "ph1"),
		block("first", 10, "ph1"),
	})

	got, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Candidate.ID)
	assert.Equal(t, 100.0, got.Height)
	assert.Equal(t, StateAssigned, got.State)

	got, err = f.manager.PrepareView(ctx, "ph1", 1)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Candidate.ID)

	_, err = f.manager.PrepareView(ctx, "ph1", 5)
	assert.True(t, domain.IsNotFound(err))

	_, err = f.manager.PrepareView(ctx, "ph1", -1)
	assert.True(t, domain.IsNotFound(err))
}

func TestGetUsedBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Nil(t, f.manager.GetUsedBlock("ph1", 0))

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)

	got := f.manager.GetUsedBlock("ph1", 0)
	require.NotNil(t, got)
	assert.Equal(t, "b1", got.Candidate.ID)

	// Copy, not the live assignment.
	got.State = "mutated"
	assert.Equal(t, StateAssigned, f.manager.GetUsedBlock("ph1", 0).State)
}

func TestTrackShown_PersistsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)

	f.manager.TrackShown(ctx, "ph1", 0)

	assert.Equal(t, StateDisplayed, f.manager.GetUsedBlock("ph1", 0).State)

	blob, err := f.kv.Get(ctx, storage.DisplayStatusKey("b1"))
	require.NoError(t, err)
	assert.Contains(t, string(blob), "displayed")

	calls := f.sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "shown", calls[0].Kind)
	assert.Equal(t, "b1", calls[0].CandidateID)
}

func TestTrackShown_OnlyOnceBlockDisappears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	once := block("once", 1, "ph1")
	once.Frequency = domain.FrequencyOnlyOnce
	f.repo.SetContentBlocks([]*domain.Candidate{once})

	got, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)
	require.NotNil(t, got)

	f.manager.TrackShown(ctx, "ph1", 0)

	ranked, err := f.manager.Prefetch(ctx, []string{"ph1"})
	require.NoError(t, err)
	assert.Empty(t, ranked["ph1"], "display status gates redisplay")
}

func TestTrackClickAndClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)

	f.manager.TrackClick(ctx, "ph1", 0, "deeplink")
	f.manager.TrackClose(ctx, "ph1", 0)

	blob, err := f.kv.Get(ctx, storage.DisplayStatusKey("b1"))
	require.NoError(t, err)
	assert.Contains(t, string(blob), "interacted")

	calls := f.sink.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "click", calls[0].Kind)
	assert.Equal(t, "deeplink", calls[0].Detail)
	assert.Equal(t, "close", calls[1].Kind)
}

func TestTrackError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)

	f.manager.TrackError("ph1", 0, "render failed")

	calls := f.sink.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "error", calls[0].Kind)
	assert.Equal(t, "render failed", calls[0].Detail)
}

func TestTracking_UnassignedIndexIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.TrackShown(ctx, "ph1", 0)
	f.manager.TrackClick(ctx, "ph1", 0, "a")
	f.manager.TrackClose(ctx, "ph1", 0)
	f.manager.TrackError("ph1", 0, "m")

	assert.Empty(t, f.sink.Calls())
}

func TestStoppedGate_TrackingNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)

	f.gate.Stop()

	f.manager.TrackShown(ctx, "ph1", 0)
	assert.Empty(t, f.sink.Calls())

	got, err := f.manager.PrepareView(ctx, "ph1", 0)
	assert.True(t, domain.IsStopped(err))
	assert.Nil(t, got)

	_, err = f.manager.Prefetch(ctx, []string{"ph1"})
	assert.True(t, domain.IsStopped(err))
}

func TestRefreshCallback_FiresOnReplace(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var fired []string
	f.manager.SetRefreshCallback(func(placeholderID string, index int) {
		mu.Lock()
		fired = append(fired, placeholderID)
		mu.Unlock()
	})

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	require.NoError(t, f.manager.LoadPlaceholders(context.Background(), []string{"ph1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1 && fired[0] == "ph1"
	}, time.Second, 5*time.Millisecond)
}

func TestRefreshCallback_SingleSlot(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var first, second int
	f.manager.SetRefreshCallback(func(string, int) { mu.Lock(); first++; mu.Unlock() })
	f.manager.SetRefreshCallback(func(string, int) { mu.Lock(); second++; mu.Unlock() })

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	require.NoError(t, f.manager.LoadPlaceholders(context.Background(), []string{"ph1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return second == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, first, "replaced callback never fires")
}

func TestInvalidateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.SetContentBlocks([]*domain.Candidate{block("b1", 1, "ph1")})
	_, err := f.manager.PrepareView(ctx, "ph1", 0)
	require.NoError(t, err)
	require.Equal(t, 1, f.repo.FetchContentBlocksCalls)

	f.manager.InvalidateAll()

	assert.Nil(t, f.manager.GetUsedBlock("ph1", 0))

	// Next prefetch reloads from the repository.
	_, err = f.manager.Prefetch(ctx, []string{"ph1"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.FetchContentBlocksCalls)
}

func TestPayloadHeight(t *testing.T) {
	c := &domain.Candidate{ID: "b"}
	c.SetPayload(map[string]value.Value{"height": value.Double(87.5)})
	assert.Equal(t, 87.5, payloadHeight(c))

	c.SetPayload(map[string]value.Value{"height": value.String("tall")})
	assert.Equal(t, 0.0, payloadHeight(c))

	c.SetPayload(map[string]value.Value{})
	assert.Equal(t, 0.0, payloadHeight(c))
}
