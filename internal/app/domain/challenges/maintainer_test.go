package challenges

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/cache"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/geo"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
	pool  func(call int) []models.Challenge
}

func (f *fakeGenerator) GeneratePool(_ context.Context, _ models.Location, _ int) ([]models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pool(f.calls), nil
}

// ringPool returns ten persisted challenges 500 m from prague, about 300 m apart.
func ringPool(call int) []models.Challenge {
	pool := make([]models.Challenge, 0, 10)
	for i := range 10 {
		loc := geo.SyntheticOffset(prague, float64(i)*36*math.Pi/180, 500)
		pool = append(pool, models.Challenge{
			ID:             fmt.Sprintf("gen%d-c%d", call, i),
			Title:          "Challenge",
			Location:       loc,
			Category:       models.CategoryPark,
			DistanceMeters: geo.Distance(prague, loc),
			Reward:         80,
			Durability:     models.DurabilityPersisted,
		})
	}
	return pool
}

// fakeReplacer answers with challenges on a 2 km ring and records the exclusion set it was given.
type fakeReplacer struct {
	mu       sync.Mutex
	occupied [][]models.Location
	limit    int
}

func (f *fakeReplacer) GenerateReplacement(_ context.Context, _ models.Location, occupied []models.Location) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.occupied)
	f.occupied = append(f.occupied, occupied)
	if f.limit >= 0 && n >= f.limit {
		return nil, nil
	}
	loc := geo.SyntheticOffset(prague, float64(n)*20*math.Pi/180, 2000)
	return &models.Challenge{
		ID:         fmt.Sprintf("rep-%d", n),
		Title:      "Replacement",
		Location:   loc,
		Category:   models.CategoryCafe,
		Reward:     90,
		Durability: models.DurabilityPersisted,
	}, nil
}

type maintainerFixture struct {
	m        *Maintainer
	clock    *fakeClock
	pools    *cache.MemoryPoolStore
	store    *fakeStore
	gen      *fakeGenerator
	replacer *fakeReplacer
	viewers  *ViewerRegistry
}

func newMaintainerFixture(t *testing.T) *maintainerFixture {
	t.Helper()
	clock := newFakeClock()
	pools := cache.NewMemoryPoolStore(2*time.Hour, zap.NewNop(), cache.WithClock(clock.Now), cache.WithCleanupInterval(0))
	t.Cleanup(pools.Close)

	f := &maintainerFixture{
		clock:    clock,
		pools:    pools,
		store:    newFakeStore(),
		gen:      &fakeGenerator{pool: ringPool},
		replacer: &fakeReplacer{limit: -1},
		viewers:  NewViewerRegistry(time.Hour, clock.Now),
	}
	f.m = NewMaintainer(f.pools, f.store, f.gen, f.replacer, f.viewers, DefaultConfig(), zap.NewNop(), WithClock(clock.Now))
	return f
}

func (f *maintainerFixture) cached(t *testing.T) models.PoolEntry {
	t.Helper()
	entry, ok, err := f.pools.Get(context.Background(), geo.BucketKey(prague))
	require.NoError(t, err)
	require.True(t, ok)
	return entry
}

func ids(pool []models.Challenge) []string {
	out := make([]string, 0, len(pool))
	for _, c := range pool {
		out = append(out, c.ID)
	}
	return out
}

func TestRefresh_GeneratesThenReusesCache(t *testing.T) {
	f := newMaintainerFixture(t)
	ctx := context.Background()

	first, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, first.Source)
	assert.Len(t, first.Challenges, 10)
	assert.Equal(t, geo.BucketKey(prague), first.Bucket)

	f.clock.Advance(59 * time.Minute)
	nearby := models.Location{Latitude: prague.Latitude + 0.001, Longitude: prague.Longitude + 0.001}
	second, err := f.m.Refresh(ctx, "user-2", nearby)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, second.Source)
	assert.ElementsMatch(t, ids(first.Challenges), ids(second.Challenges))
	assert.Equal(t, 1, f.gen.calls)
}

func TestRefresh_ExpiredPoolIsRegenerated(t *testing.T) {
	f := newMaintainerFixture(t)
	ctx := context.Background()

	_, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Minute)
	view, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)

	assert.Equal(t, SourceGenerated, view.Source)
	assert.Equal(t, 2, f.gen.calls)
	assert.Equal(t, f.clock.Now(), f.cached(t).Timestamp)
}

func TestRefresh_ReplacesCompletedChallenges(t *testing.T) {
	f := newMaintainerFixture(t)
	ctx := context.Background()

	_, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)
	generatedAt := f.cached(t).Timestamp

	completed := []string{"gen1-c1", "gen1-c3", "gen1-c5", "gen1-c7"}
	f.store.completed["user-1"] = completed
	f.clock.Advance(5 * time.Minute)

	view, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)

	require.Len(t, view.Challenges, 10)
	assert.Equal(t, 4, view.Replacements)
	for _, id := range completed {
		assert.NotContains(t, ids(view.Challenges), id)
	}

	require.Len(t, f.replacer.occupied, 4)
	for i, occupied := range f.replacer.occupied {
		assert.Len(t, occupied, 10+i, "each replacement joins the exclusion set of the next")
	}
	for _, c := range view.Challenges {
		others := make([]models.Location, 0, len(view.Challenges)-1)
		for _, o := range view.Challenges {
			if o.ID != c.ID {
				others = append(others, o.Location)
			}
		}
		if c.Title == "Replacement" {
			assert.Greater(t, geo.MinDistance(c.Location, others), 200.0)
		}
	}

	entry := f.cached(t)
	assert.Len(t, entry.Pool, 14, "write-back keeps completed challenges for other users")
	assert.Equal(t, generatedAt, entry.Timestamp, "write-back keeps the original timestamp")

	other, err := f.m.Refresh(ctx, "user-2", prague)
	require.NoError(t, err)
	assert.Len(t, other.Challenges, 10)
	assert.Zero(t, other.Replacements)
}

// newLiveMaintainer wires the real generator and replacement generator over pois.
func newLiveMaintainer(t *testing.T, pois *fakePOIs, store *fakeStore) *Maintainer {
	t.Helper()
	clock := newFakeClock()
	pools := cache.NewMemoryPoolStore(2*time.Hour, zap.NewNop(), cache.WithClock(clock.Now), cache.WithCleanupInterval(0))
	t.Cleanup(pools.Close)
	return NewMaintainer(pools, store, newTestGenerator(pois, store), newTestReplacer(pois, store),
		NewViewerRegistry(time.Hour, clock.Now), DefaultConfig(), zap.NewNop(), WithClock(clock.Now))
}

func TestRefresh_ReplacementsAvoidCompletedSpots(t *testing.T) {
	store := newFakeStore()
	m := newLiveMaintainer(t, &fakePOIs{pois: ringOfPOIs(10)}, store)
	ctx := context.Background()

	first, err := m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)
	require.Len(t, first.Challenges, 10)
	store.completed["user-1"] = ids(first.Challenges[:3])

	mine, err := m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)
	assert.Len(t, mine.Challenges, 7, "every POI already backs a pooled challenge")
	assert.Zero(t, mine.Replacements)

	other, err := m.Refresh(ctx, "user-2", prague)
	require.NoError(t, err)
	require.Len(t, other.Challenges, 10)
	assert.GreaterOrEqual(t, pairwiseMin(other.Challenges), DefaultConfig().MinDistanceMeters)
}

func TestRefresh_OutlivesCancelledRequest(t *testing.T) {
	store := newFakeStore()
	store.honorCtx = true
	m := newLiveMaintainer(t, &fakePOIs{pois: ringOfPOIs(10)}, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view, err := m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)
	require.Len(t, view.Challenges, 10)
	for _, c := range view.Challenges {
		assert.True(t, c.Durable(), c.ID)
	}
	assert.Equal(t, 10, store.createdCount())
}

func TestRefresh_ReplacementExhausted(t *testing.T) {
	f := newMaintainerFixture(t)
	f.replacer.limit = 1
	f.store.completed["user-1"] = []string{"gen1-c0", "gen1-c2", "gen1-c4"}

	view, err := f.m.Refresh(context.Background(), "user-1", prague)
	require.NoError(t, err)

	assert.Len(t, view.Challenges, 8)
	assert.Equal(t, 1, view.Replacements)
	assert.Len(t, f.replacer.occupied, 3)
	assert.Len(t, f.cached(t).Pool, 11)
}

func TestRefresh_AnonymousSkipsCompletionLookup(t *testing.T) {
	f := newMaintainerFixture(t)

	view, err := f.m.Refresh(context.Background(), "", prague)
	require.NoError(t, err)

	assert.Len(t, view.Challenges, 10)
	assert.Zero(t, f.store.completedCalls)
	assert.Zero(t, f.viewers.Len())
}

func TestRefresh_CompletionLookupFailureShowsFullPool(t *testing.T) {
	f := newMaintainerFixture(t)
	f.store.completedErr = errors.New("db down")

	view, err := f.m.Refresh(context.Background(), "user-1", prague)
	require.NoError(t, err)
	assert.Len(t, view.Challenges, 10)
	assert.Zero(t, view.Replacements)
}

func TestRefresh_GeneratorFailureReadsStore(t *testing.T) {
	f := newMaintainerFixture(t)
	f.gen.err = errors.New("boom")
	f.replacer.limit = 0
	f.store.nearby = ringPool(9)[:3]

	view, err := f.m.Refresh(context.Background(), "user-1", prague)
	require.NoError(t, err)
	assert.Equal(t, SourceStore, view.Source)
	assert.Len(t, view.Challenges, 3)

	_, ok, err := f.pools.Get(context.Background(), geo.BucketKey(prague))
	require.NoError(t, err)
	assert.False(t, ok, "store results are not cached")

	f.store.nearbyErr = errors.New("db down")
	_, err = f.m.Refresh(context.Background(), "user-1", prague)
	assert.Error(t, err)
}

func TestRefresh_MissingLocation(t *testing.T) {
	f := newMaintainerFixture(t)
	_, err := f.m.Refresh(context.Background(), "user-1", models.Location{})
	assert.ErrorIs(t, err, models.ErrMissingLocation)
	assert.Zero(t, f.gen.calls)
}

func TestRefresh_ReconcilesEphemeralChallenges(t *testing.T) {
	f := newMaintainerFixture(t)
	f.gen.pool = func(call int) []models.Challenge {
		pool := ringPool(call)
		pool[0].ID = models.EphemeralIDPrefix + "abc"
		pool[0].Durability = models.DurabilityEphemeral
		return pool
	}
	ctx := context.Background()

	_, err := f.m.Refresh(ctx, "", prague)
	require.NoError(t, err)
	assert.Zero(t, f.store.createdCount())

	view, err := f.m.Refresh(ctx, "", prague)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, view.Source)
	assert.Equal(t, 1, f.store.createdCount())
	assert.NotContains(t, ids(view.Challenges), models.EphemeralIDPrefix+"abc")
	for _, c := range f.cached(t).Pool {
		assert.True(t, c.Durable(), c.ID)
	}
}

func TestRefresh_ReconcileFailureKeepsEphemeral(t *testing.T) {
	f := newMaintainerFixture(t)
	f.store.createErr = errors.New("still down")
	f.gen.pool = func(call int) []models.Challenge {
		pool := ringPool(call)
		pool[0].ID = models.EphemeralIDPrefix + "abc"
		pool[0].Durability = models.DurabilityEphemeral
		return pool
	}
	ctx := context.Background()

	_, err := f.m.Refresh(ctx, "", prague)
	require.NoError(t, err)
	view, err := f.m.Refresh(ctx, "", prague)
	require.NoError(t, err)
	assert.Contains(t, ids(view.Challenges), models.EphemeralIDPrefix+"abc")
}

func TestHandleCompletion(t *testing.T) {
	f := newMaintainerFixture(t)
	ctx := context.Background()
	evt := models.ChallengeCompletedEvent{UserID: "user-1", ChallengeID: "gen1-c0", CompletedAt: f.clock.Now()}

	require.NoError(t, f.m.HandleCompletion(ctx, evt))
	assert.Zero(t, f.gen.calls, "unknown viewers are ignored")

	_, err := f.m.Refresh(ctx, "user-1", prague)
	require.NoError(t, err)

	f.store.completed["user-1"] = []string{"gen1-c0"}
	require.NoError(t, f.m.HandleCompletion(ctx, evt))
	assert.Len(t, f.replacer.occupied, 1)
	assert.Len(t, f.cached(t).Pool, 11)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.m.HandleCompletion(ctx, evt))
	assert.Len(t, f.replacer.occupied, 1, "stale viewers are ignored")
}

func TestTopUpState_ApplyIsPure(t *testing.T) {
	start := topUpState{occupied: []models.Location{prague}}
	c := &models.Challenge{ID: "x", Location: geo.SyntheticOffset(prague, 0, 300)}

	next := start.apply(c)
	missed := next.apply(nil)

	assert.Len(t, start.occupied, 1)
	assert.Empty(t, start.accepted)
	assert.Len(t, next.occupied, 2)
	assert.Len(t, next.accepted, 1)
	assert.Equal(t, next.occupied, missed.occupied)
	assert.Equal(t, 1, missed.misses)
	assert.Zero(t, next.misses)
}
