package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
)

const (
	// tagKeyPrefix is the reserved namespace for tag index entries. Tag
	// indexes live in the same backing store as ordinary entries.
	tagKeyPrefix = "tag:"

	// tagIndexTTL bounds how long a tag's member list survives without being
	// touched by a Set. Stale members are tolerated and cleaned lazily.
	tagIndexTTL = 7 * 24 * time.Hour

	// revalidateTimeout bounds a single background refresh. Foreground
	// fetches carry whatever timeout the caller's context has.
	revalidateTimeout = 30 * time.Second
)

// timeNow is stubbed in tests to drive freshness classification.
var timeNow = time.Now

type cacheService struct {
	store    domainCache.Store
	runner   domainCache.TaskRunner
	serverID string

	hits          int64
	misses        int64
	staleHits     int64
	revalidations int64
	errors        int64
	bytesWritten  int64
	latencyMicros int64
	latencyOps    int64
}

// NewCacheService builds the stale-while-revalidate cache on top of a backing
// store and a deferred-task runner. runner may be nil; background work is then
// skipped silently and stale entries are refreshed on their next expired read.
func NewCacheService(store domainCache.Store, runner domainCache.TaskRunner, serverID string) domainCache.ICacheUsecase {
	return &cacheService{
		store:    store,
		runner:   runner,
		serverID: serverID,
	}
}

// Get classifies the entry under key and returns its payload while it is
// fresh or stale-but-usable. Store and decode failures read as a miss.
func (s *cacheService) Get(ctx context.Context, key string, category domainCache.Category) (json.RawMessage, bool) {
	entry := s.readEntry(ctx, key)
	if entry == nil {
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}

	now := timeNow()
	switch entry.FreshnessAt(now) {
	case domainCache.Fresh:
		atomic.AddInt64(&s.hits, 1)
		s.persistHitAsync(key, entry, now)
		return entry.Data, true
	case domainCache.Stale:
		atomic.AddInt64(&s.staleHits, 1)
		return entry.Data, true
	default:
		// Past the stale deadline: indistinguishable from never cached.
		atomic.AddInt64(&s.misses, 1)
		return nil, false
	}
}

// Set caches value under key with the category's TTL profile and registers the
// key under each tag. Caching is an optimization: every failure is counted and
// swallowed so callers still get their data through the fetch path.
func (s *cacheService) Set(ctx context.Context, key string, value any, category domainCache.Category, tags []string, provenance string) {
	data, err := marshalPayload(value)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to marshal payload for %s: %v", key, err)
		return
	}

	now := timeNow()
	entry := domainCache.NewEntry(data, category, tags, provenance, now)

	raw, err := domainCache.EncodeEntry(entry)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to encode entry for %s: %v", key, err)
		return
	}

	profile := domainCache.ProfileFor(category)
	if err := s.store.Set(ctx, key, raw, profile.Fresh+profile.Stale); err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to write entry for %s: %v", key, err)
		return
	}
	atomic.AddInt64(&s.bytesWritten, int64(len(raw)))

	for _, tag := range tags {
		s.registerTag(ctx, tag, key)
	}
}

// Delete removes the entry for key and reports whether it existed. The tag
// index is not cleaned here; dead references are skipped on the next
// invalidation.
func (s *cacheService) Delete(ctx context.Context, key string) bool {
	existed, err := s.store.Delete(ctx, key)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to delete %s: %v", key, err)
		return false
	}
	return existed
}

// GetWithSWR is the read-through path.
//
// Absent or expired entry: the caller blocks on fetchFn and its error, if any,
// propagates. Fresh entry: returned immediately. Stale-but-usable entry:
// returned immediately while a background revalidation is scheduled; a failed
// revalidation leaves the stale entry untouched and is never surfaced.
func (s *cacheService) GetWithSWR(ctx context.Context, key string, opts domainCache.Options, fetchFn domainCache.FetchFunc) (json.RawMessage, error) {
	if opts.ForceRefresh {
		return s.fetchAndStore(ctx, key, opts, fetchFn)
	}

	// Any unexpected read or decode problem degrades to a miss: fetch fresh
	// rather than fail the request.
	entry := s.readEntry(ctx, key)
	if entry == nil {
		atomic.AddInt64(&s.misses, 1)
		return s.fetchAndStore(ctx, key, opts, fetchFn)
	}

	now := timeNow()
	switch entry.FreshnessAt(now) {
	case domainCache.Fresh:
		atomic.AddInt64(&s.hits, 1)
		return entry.Data, nil

	case domainCache.Stale:
		atomic.AddInt64(&s.staleHits, 1)
		s.scheduleRevalidation(key, opts, fetchFn)
		return entry.Data, nil

	default:
		atomic.AddInt64(&s.misses, 1)
		return s.fetchAndStore(ctx, key, opts, fetchFn)
	}
}

// InvalidateByTag removes every key registered under tag and the tag's index
// entry itself, returning the number of keys removed. Best-effort: an index
// read failure counts an error and returns 0.
func (s *cacheService) InvalidateByTag(ctx context.Context, tag string) int {
	tagKey := tagKeyPrefix + tag

	raw, found, err := s.store.Get(ctx, tagKey)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to read tag index %s: %v", tag, err)
		return 0
	}
	if !found {
		return 0
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Corrupt tag index %s: %v", tag, err)
		// The index is unreadable; drop it so it can rebuild.
		s.Delete(ctx, tagKey)
		return 0
	}

	removed := 0
	for _, key := range keys {
		existed, err := s.store.Delete(ctx, key)
		if err != nil {
			atomic.AddInt64(&s.errors, 1)
			logrus.Warnf("[CACHE] Failed to delete %s during tag invalidation: %v", key, err)
			continue
		}
		// Dead references (already deleted or expired) do not count.
		if existed {
			removed++
		}
	}

	s.Delete(ctx, tagKey)
	logrus.Infof("[CACHE] Invalidated %d entries for tag %s", removed, tag)
	return removed
}

func (s *cacheService) InvalidateSport(ctx context.Context, sport string) int {
	return s.InvalidateByTag(ctx, "sport:"+sport)
}

func (s *cacheService) InvalidateTeam(ctx context.Context, teamID string) int {
	return s.InvalidateByTag(ctx, "team:"+teamID)
}

func (s *cacheService) GetStats() domainCache.Stats {
	bytes := atomic.LoadInt64(&s.bytesWritten)

	var avgMs float64
	if ops := atomic.LoadInt64(&s.latencyOps); ops > 0 {
		avgMs = float64(atomic.LoadInt64(&s.latencyMicros)) / float64(ops) / 1000
	}

	return domainCache.Stats{
		Hits:          atomic.LoadInt64(&s.hits),
		Misses:        atomic.LoadInt64(&s.misses),
		StaleHits:     atomic.LoadInt64(&s.staleHits),
		Revalidations: atomic.LoadInt64(&s.revalidations),
		Errors:        atomic.LoadInt64(&s.errors),
		AvgLatencyMs:  avgMs,
		BytesWritten:  bytes,
		HumanBytes:    humanize.Bytes(uint64(bytes)),
		ServerID:      s.serverID,
	}
}

func (s *cacheService) ResetStats() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
	atomic.StoreInt64(&s.staleHits, 0)
	atomic.StoreInt64(&s.revalidations, 0)
	atomic.StoreInt64(&s.errors, 0)
	atomic.StoreInt64(&s.bytesWritten, 0)
	atomic.StoreInt64(&s.latencyMicros, 0)
	atomic.StoreInt64(&s.latencyOps, 0)
}

// readEntry fetches and decodes the entry under key. Every failure mode
// (store error, decode error) is counted and collapsed into nil.
func (s *cacheService) readEntry(ctx context.Context, key string) *domainCache.Entry {
	start := timeNow()
	raw, found, err := s.store.Get(ctx, key)
	s.trackLatency(start)

	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Store read failed for %s: %v", key, err)
		return nil
	}
	if !found {
		return nil
	}

	entry, err := domainCache.DecodeEntry(raw)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Dropping undecodable entry for %s: %v", key, err)
		return nil
	}
	return entry
}

// fetchAndStore blocks on fetchFn and caches the result. Used on a true miss,
// on a fully expired entry, and under ForceRefresh; the fetch error, if any,
// propagates to the caller unchanged.
func (s *cacheService) fetchAndStore(ctx context.Context, key string, opts domainCache.Options, fetchFn domainCache.FetchFunc) (json.RawMessage, error) {
	value, err := fetchFn(ctx)
	if err != nil {
		return nil, err
	}

	data, err := marshalPayload(value)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		return nil, fmt.Errorf("failed to marshal fetched value for %s: %w", key, err)
	}

	s.Set(ctx, key, data, opts.Category, opts.Tags, opts.Provenance)
	return data, nil
}

// scheduleRevalidation hands the refresh of a stale entry to the deferred
// runner. The triggering request has already been answered, so nothing here
// may surface to a caller: a fetch failure is counted, logged, and the stale
// entry stays in place until its next stale read or its stale deadline.
func (s *cacheService) scheduleRevalidation(key string, opts domainCache.Options, fetchFn domainCache.FetchFunc) {
	if s.runner == nil {
		logrus.Debugf("[CACHE] No deferred runner, skipping revalidation of %s", key)
		return
	}

	accepted := s.runner.TryDefer("revalidate:"+key, func(ctx context.Context) error {
		atomic.AddInt64(&s.revalidations, 1)

		fetchCtx, cancel := context.WithTimeout(ctx, revalidateTimeout)
		defer cancel()

		value, err := fetchFn(fetchCtx)
		if err != nil {
			atomic.AddInt64(&s.errors, 1)
			return fmt.Errorf("revalidation fetch failed for %s: %w", key, err)
		}

		s.Set(ctx, key, value, opts.Category, opts.Tags, opts.Provenance)
		return nil
	})
	if !accepted {
		logrus.Debugf("[CACHE] Deferred runner unavailable, skipping revalidation of %s", key)
	}
}

// persistHitAsync bumps the entry's hit counter and rewrites it with its
// remaining TTL. Best-effort: failure must never affect the read that
// observed the hit. The rewrite is a read-time snapshot, so it can clobber a
// concurrent refresh with pre-refresh data; the old TTL bounds the damage.
func (s *cacheService) persistHitAsync(key string, entry *domainCache.Entry, now time.Time) {
	if s.runner == nil {
		return
	}

	ttl := entry.RemainingTTL(now)
	if ttl <= 0 {
		return
	}

	bumped := *entry
	bumped.Hits++

	s.runner.TryDefer("hit:"+key, func(ctx context.Context) error {
		raw, err := domainCache.EncodeEntry(&bumped)
		if err != nil {
			return err
		}
		return s.store.Set(ctx, key, raw, ttl)
	})
}

// registerTag appends key to the tag's member list, stored as an ordinary
// entry under a reserved prefix. Concurrent registrations may race; the index
// is best-effort by contract.
func (s *cacheService) registerTag(ctx context.Context, tag, key string) {
	tagKey := tagKeyPrefix + tag

	var keys []string
	raw, found, err := s.store.Get(ctx, tagKey)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to read tag index %s: %v", tag, err)
		return
	}
	if found {
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			logrus.Warnf("[CACHE] Rebuilding corrupt tag index %s: %v", tag, err)
			keys = nil
		}
	}

	for _, k := range keys {
		if k == key {
			return
		}
	}
	keys = append(keys, key)

	encoded, err := json.Marshal(keys)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		return
	}
	if err := s.store.Set(ctx, tagKey, string(encoded), tagIndexTTL); err != nil {
		atomic.AddInt64(&s.errors, 1)
		logrus.Warnf("[CACHE] Failed to write tag index %s: %v", tag, err)
	}
}

func (s *cacheService) trackLatency(start time.Time) {
	atomic.AddInt64(&s.latencyMicros, timeNow().Sub(start).Microseconds())
	atomic.AddInt64(&s.latencyOps, 1)
}

// marshalPayload serializes a payload once, passing through values that are
// already raw JSON.
func marshalPayload(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	}
}
