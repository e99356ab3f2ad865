package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	"github.com/blaze-sports-intel/scorecache/repository"
)

// fakeRunner captures deferred tasks so tests control when background work runs.
type fakeRunner struct {
	mu     sync.Mutex
	tasks  []func(ctx context.Context) error
	reject bool
}

func (r *fakeRunner) TryDefer(name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return false
	}
	r.tasks = append(r.tasks, fn)
	return true
}

func (r *fakeRunner) runAll(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, fn := range tasks {
		_ = fn(context.Background())
	}
}

func (r *fakeRunner) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// failingStore simulates a broken backing store.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestCache(t *testing.T) (*cacheService, *repository.MemoryStore, *fakeRunner) {
	t.Helper()
	store := repository.NewMemoryStore()
	t.Cleanup(store.Close)
	runner := &fakeRunner{}
	svc := NewCacheService(store, runner, "test-server").(*cacheService)
	return svc, store, runner
}

// setClock pins the cache's clock to base and returns a function that moves it.
func setClock(t *testing.T, base time.Time) func(offset time.Duration) {
	t.Helper()
	current := base
	timeNow = func() time.Time { return current }
	t.Cleanup(func() { timeNow = time.Now })
	return func(offset time.Duration) { current = base.Add(offset) }
}

func TestGetFreshnessScenario(t *testing.T) {
	// live_scores: fresh 15s, stale grace 60s. Set at t=0, fresh hit at t=10,
	// stale hit at t=40, absent at t=90.
	svc, _, _ := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", map[string]int{"home": 1, "away": 0}, domainCache.CategoryLiveScores, nil, "")

	advance(10 * time.Second)
	data, ok := svc.Get(ctx, "g1", domainCache.CategoryLiveScores)
	require.True(t, ok)
	assert.JSONEq(t, `{"home":1,"away":0}`, string(data))
	assert.Equal(t, int64(1), svc.GetStats().Hits)

	advance(40 * time.Second)
	data, ok = svc.Get(ctx, "g1", domainCache.CategoryLiveScores)
	require.True(t, ok)
	assert.JSONEq(t, `{"home":1,"away":0}`, string(data))
	assert.Equal(t, int64(1), svc.GetStats().StaleHits)

	advance(90 * time.Second)
	_, ok = svc.Get(ctx, "g1", domainCache.CategoryLiveScores)
	assert.False(t, ok)
	assert.Equal(t, int64(1), svc.GetStats().Misses)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	svc, _, _ := newTestCache(t)

	_, ok := svc.Get(context.Background(), "nope", domainCache.CategoryStandings)
	assert.False(t, ok)
	assert.Equal(t, int64(1), svc.GetStats().Misses)
	assert.Equal(t, int64(0), svc.GetStats().Errors)
}

func TestGetNeverFailsOnStoreError(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewCacheService(failingStore{}, runner, "test").(*cacheService)

	_, ok := svc.Get(context.Background(), "k", domainCache.CategoryStandings)
	assert.False(t, ok)
	assert.Equal(t, int64(1), svc.GetStats().Misses)
	assert.Equal(t, int64(1), svc.GetStats().Errors)
}

func TestGetTreatsCorruptEntryAsMiss(t *testing.T) {
	svc, store, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "bad", "{truncated", time.Minute))

	_, ok := svc.Get(ctx, "bad", domainCache.CategoryStandings)
	assert.False(t, ok)
	assert.Equal(t, int64(1), svc.GetStats().Misses)
	assert.Equal(t, int64(1), svc.GetStats().Errors)
}

func TestFreshHitPersistsCounterAsync(t *testing.T) {
	svc, store, runner := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", 42, domainCache.CategoryLiveScores, nil, "")

	_, ok := svc.Get(ctx, "g1", domainCache.CategoryLiveScores)
	require.True(t, ok)
	require.Equal(t, 1, runner.pending())

	runner.runAll(t)

	raw, found, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	entry, err := domainCache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Hits)
}

func TestSetSwallowsWriteFailures(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewCacheService(failingStore{}, runner, "test").(*cacheService)

	svc.Set(context.Background(), "k", "v", domainCache.CategoryTeams, []string{"sport:mlb"}, "")
	assert.Equal(t, int64(1), svc.GetStats().Errors)
}

func TestGetWithSWRMissFetchesAndStores(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	fetchCalls := 0
	fetch := func(ctx context.Context) (any, error) {
		fetchCalls++
		return map[string]string{"leader": "ATL"}, nil
	}

	data, err := svc.GetWithSWR(ctx, "standings:sec", domainCache.Options{Category: domainCache.CategoryStandings}, fetch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"leader":"ATL"}`, string(data))
	assert.Equal(t, 1, fetchCalls)
	assert.Equal(t, int64(1), svc.GetStats().Misses)
}

func TestGetWithSWRFreshSkipsFetch(t *testing.T) {
	// standings: fresh 300s. A repeat call at t=100 returns the cached value
	// without calling fetch again.
	svc, _, runner := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	fetchCalls := 0
	fetch := func(ctx context.Context) (any, error) {
		fetchCalls++
		return map[string]string{"leader": "ATL"}, nil
	}

	_, err := svc.GetWithSWR(ctx, "standings:sec", domainCache.Options{Category: domainCache.CategoryStandings}, fetch)
	require.NoError(t, err)

	advance(100 * time.Second)
	data, err := svc.GetWithSWR(ctx, "standings:sec", domainCache.Options{Category: domainCache.CategoryStandings}, fetch)
	require.NoError(t, err)

	assert.JSONEq(t, `{"leader":"ATL"}`, string(data))
	assert.Equal(t, 1, fetchCalls)
	assert.Equal(t, int64(1), svc.GetStats().Hits)
	assert.Equal(t, 0, runner.pending(), "no background work on a fresh hit")
}

func TestGetWithSWRStaleReturnsImmediatelyAndRevalidates(t *testing.T) {
	svc, store, runner := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", map[string]int{"home": 1, "away": 0}, domainCache.CategoryLiveScores, nil, "statsapi")

	// Into the stale window (15s <= t < 75s).
	advance(40 * time.Second)

	fetchCalls := 0
	fetch := func(ctx context.Context) (any, error) {
		fetchCalls++
		return map[string]int{"home": 2, "away": 0}, nil
	}

	data, err := svc.GetWithSWR(ctx, "g1", domainCache.Options{Category: domainCache.CategoryLiveScores}, fetch)
	require.NoError(t, err)

	// The stale value came back without touching the fetcher.
	assert.JSONEq(t, `{"home":1,"away":0}`, string(data))
	assert.Equal(t, 0, fetchCalls)
	assert.Equal(t, int64(1), svc.GetStats().StaleHits)
	require.Equal(t, 1, runner.pending())

	// Background revalidation refreshes the entry.
	runner.runAll(t)
	assert.Equal(t, 1, fetchCalls)
	assert.Equal(t, int64(1), svc.GetStats().Revalidations)

	raw, found, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	entry, err := domainCache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"home":2,"away":0}`, string(entry.Data))
}

func TestGetWithSWRBackgroundFetchFailureIsContained(t *testing.T) {
	svc, store, runner := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", "old", domainCache.CategoryLiveScores, nil, "")
	advance(30 * time.Second)

	fetch := func(ctx context.Context) (any, error) {
		return nil, errors.New("origin down")
	}

	data, err := svc.GetWithSWR(ctx, "g1", domainCache.Options{Category: domainCache.CategoryLiveScores}, fetch)
	require.NoError(t, err, "stale hit must not surface the background failure")
	assert.JSONEq(t, `"old"`, string(data))

	runner.runAll(t)
	assert.Equal(t, int64(1), svc.GetStats().Revalidations)
	assert.Equal(t, int64(1), svc.GetStats().Errors)

	// Stale entry untouched.
	raw, found, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	entry, err := domainCache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(entry.Data))
}

func TestGetWithSWRMissFetchErrorPropagates(t *testing.T) {
	svc, _, _ := newTestCache(t)
	ctx := context.Background()

	wantErr := errors.New("origin down")
	_, err := svc.GetWithSWR(ctx, "absent", domainCache.Options{Category: domainCache.CategoryStandings}, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestGetWithSWRForceRefreshBypassesFreshEntry(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", "cached", domainCache.CategoryLiveScores, nil, "")

	fetchCalls := 0
	data, err := svc.GetWithSWR(ctx, "g1", domainCache.Options{
		Category:     domainCache.CategoryLiveScores,
		ForceRefresh: true,
	}, func(ctx context.Context) (any, error) {
		fetchCalls++
		return "refetched", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fetchCalls)
	assert.JSONEq(t, `"refetched"`, string(data))

	// The entry was overwritten.
	data, ok := svc.Get(ctx, "g1", domainCache.CategoryLiveScores)
	require.True(t, ok)
	assert.JSONEq(t, `"refetched"`, string(data))
}

func TestGetWithSWRStaleWithoutRunnerStillServes(t *testing.T) {
	svc, _, runner := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", "old", domainCache.CategoryLiveScores, nil, "")
	advance(30 * time.Second)

	// Facility refuses work: availability over freshness.
	runner.reject = true

	data, err := svc.GetWithSWR(ctx, "g1", domainCache.Options{Category: domainCache.CategoryLiveScores}, func(ctx context.Context) (any, error) {
		t.Fatal("fetch must not run synchronously on a stale hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(data))
}

func TestGetWithSWRNilRunner(t *testing.T) {
	store := repository.NewMemoryStore()
	t.Cleanup(store.Close)
	svc := NewCacheService(store, nil, "test").(*cacheService)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", "old", domainCache.CategoryLiveScores, nil, "")
	advance(30 * time.Second)

	data, err := svc.GetWithSWR(ctx, "g1", domainCache.Options{Category: domainCache.CategoryLiveScores}, func(ctx context.Context) (any, error) {
		return "new", nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `"old"`, string(data))
}

func TestGetWithSWRDegradesToFetchOnStoreError(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewCacheService(failingStore{}, runner, "test").(*cacheService)
	ctx := context.Background()

	data, err := svc.GetWithSWR(ctx, "k", domainCache.Options{Category: domainCache.CategoryStandings}, func(ctx context.Context) (any, error) {
		return "fetched", nil
	})
	require.NoError(t, err, "a cache failure must never fail the request")
	assert.JSONEq(t, `"fetched"`, string(data))
	assert.Equal(t, int64(1), svc.GetStats().Misses)
}

func TestConcurrentStaleReadsConverge(t *testing.T) {
	// Two racing stale reads may each schedule a redundant revalidation; both
	// writes carry equivalent data so the result is idempotent.
	svc, store, runner := newTestCache(t)
	advance := setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "g1", "old", domainCache.CategoryLiveScores, nil, "")
	advance(30 * time.Second)

	fetch := func(ctx context.Context) (any, error) { return "new", nil }
	opts := domainCache.Options{Category: domainCache.CategoryLiveScores}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := svc.GetWithSWR(ctx, "g1", opts, fetch)
			assert.NoError(t, err)
			assert.JSONEq(t, `"old"`, string(data))
		}()
	}
	wg.Wait()

	require.Equal(t, 2, runner.pending(), "no single-flight: each stale read schedules its own refresh")
	runner.runAll(t)

	raw, found, err := store.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	entry, err := domainCache.DecodeEntry(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `"new"`, string(entry.Data))
	assert.Equal(t, int64(2), svc.GetStats().Revalidations)
}

func TestTagCascade(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "k1", "v1", domainCache.CategoryStandings, []string{"sport:mlb"}, "")
	svc.Set(ctx, "k2", "v2", domainCache.CategoryStandings, []string{"sport:mlb"}, "")
	svc.Set(ctx, "k3", "v3", domainCache.CategoryStandings, []string{"sport:nfl"}, "")

	removed := svc.InvalidateSport(ctx, "mlb")
	assert.Equal(t, 2, removed)

	_, ok := svc.Get(ctx, "k1", domainCache.CategoryStandings)
	assert.False(t, ok)
	_, ok = svc.Get(ctx, "k2", domainCache.CategoryStandings)
	assert.False(t, ok)
	_, ok = svc.Get(ctx, "k3", domainCache.CategoryStandings)
	assert.True(t, ok, "other sports stay cached")

	// The index entry itself is gone: a second pass removes nothing.
	assert.Equal(t, 0, svc.InvalidateSport(ctx, "mlb"))
}

func TestInvalidateTeamTagFormat(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "roster:STL", "roster", domainCache.CategoryTeams, []string{"team:STL", "sport:mlb"}, "")

	assert.Equal(t, 1, svc.InvalidateTeam(ctx, "STL"))
	_, ok := svc.Get(ctx, "roster:STL", domainCache.CategoryTeams)
	assert.False(t, ok)
}

func TestInvalidateByTagUnknownTag(t *testing.T) {
	svc, _, _ := newTestCache(t)

	assert.Equal(t, 0, svc.InvalidateByTag(context.Background(), "sport:curling"))
	assert.Equal(t, int64(0), svc.GetStats().Errors)
}

func TestInvalidateByTagStoreErrorReturnsZero(t *testing.T) {
	svc := NewCacheService(failingStore{}, &fakeRunner{}, "test").(*cacheService)

	assert.Equal(t, 0, svc.InvalidateByTag(context.Background(), "sport:mlb"))
	assert.Equal(t, int64(1), svc.GetStats().Errors)
}

func TestInvalidateByTagToleratesDeadReferences(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "k1", "v1", domainCache.CategoryStandings, []string{"sport:mlb"}, "")
	svc.Delete(ctx, "k1")

	// The index still references k1; the dead reference is skipped, not counted.
	assert.Equal(t, 0, svc.InvalidateSport(ctx, "mlb"))
}

func TestDeleteReportsExistence(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "standings:sec", "v", domainCache.CategoryStandings, nil, "")

	assert.True(t, svc.Delete(ctx, "standings:sec"))
	assert.False(t, svc.Delete(ctx, "standings:sec"))
	assert.False(t, svc.Delete(ctx, "never-cached"))
}

func TestStatsLifecycle(t *testing.T) {
	svc, _, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	svc.Set(ctx, "k", "v", domainCache.CategoryStandings, nil, "")
	svc.Get(ctx, "k", domainCache.CategoryStandings)
	svc.Get(ctx, "missing", domainCache.CategoryStandings)

	stats := svc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "test-server", stats.ServerID)
	assert.Greater(t, stats.BytesWritten, int64(0))
	assert.NotEmpty(t, stats.HumanBytes)

	svc.ResetStats()
	stats = svc.GetStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, int64(0), stats.BytesWritten)
}

func TestSetRegistersMultipleTags(t *testing.T) {
	svc, store, _ := newTestCache(t)
	setClock(t, time.Date(2026, 4, 12, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Set(ctx, fmt.Sprintf("game:%d", i), i, domainCache.CategoryLiveScores, []string{"sport:mlb", "date:2026-04-12"}, "")
	}
	// Re-set must not duplicate index members.
	svc.Set(ctx, "game:0", 0, domainCache.CategoryLiveScores, []string{"sport:mlb"}, "")

	raw, found, err := store.Get(ctx, "tag:sport:mlb")
	require.NoError(t, err)
	require.True(t, found)

	var keys []string
	require.NoError(t, json.Unmarshal([]byte(raw), &keys))
	assert.ElementsMatch(t, []string{"game:0", "game:1", "game:2"}, keys)

	assert.Equal(t, 3, svc.InvalidateByTag(ctx, "date:2026-04-12"))
}
