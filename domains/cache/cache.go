package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Category selects the TTL profile applied to an entry. Categories are fixed
// at compile time; looking up a profile for an undeclared category panics.
type Category string

const (
	CategoryLiveScores  Category = "live_scores"
	CategoryStandings   Category = "standings"
	CategorySchedule    Category = "schedule"
	CategoryPlayerStats Category = "player_stats"
	CategoryTeams       Category = "teams"
	CategoryHistorical  Category = "historical"
)

// TTLProfile is a (freshness, staleness grace) pair. An entry is fresh for
// Fresh after caching, then stale-but-usable for another Stale, then gone.
type TTLProfile struct {
	Fresh time.Duration
	Stale time.Duration
}

// Options carries the per-call parameters of GetWithSWR.
type Options struct {
	Category     Category
	Tags         []string
	Provenance   string
	ForceRefresh bool
}

// FetchFunc produces a fresh value for a key. The cache treats any error from
// it as a hard failure and never inspects how the value was obtained.
type FetchFunc func(ctx context.Context) (any, error)

// Stats are process-local observability counters. They are advisory: not
// persisted and not synchronized across instances.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	StaleHits     int64   `json:"stale_hits"`
	Revalidations int64   `json:"revalidations"`
	Errors        int64   `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	BytesWritten  int64   `json:"bytes_written"`
	HumanBytes    string  `json:"human_bytes"`
	ServerID      string  `json:"server_id"`
}

// InvalidateRequest is the REST payload for tag invalidation.
type InvalidateRequest struct {
	Tag string `json:"tag"`
}

// Store is the backing key-value store. Implementations must expire entries
// on their own after the supplied TTL; the cache layer never scans for
// expired keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// TaskRunner schedules work to continue after the current request has
// returned. TryDefer reports whether the task was accepted; callers must
// treat false as "facility unavailable" and skip the work silently.
type TaskRunner interface {
	TryDefer(name string, fn func(ctx context.Context) error) bool
}

type ICacheUsecase interface {
	// Get returns the cached payload for key, or ok=false when the entry is
	// absent, expired, or unreadable. Never returns an error: store and
	// decode failures are counted and reported as a miss.
	Get(ctx context.Context, key string, category Category) (json.RawMessage, bool)

	// Set caches value under key with the category's TTL profile and
	// registers key under each tag. Failures are counted and swallowed.
	Set(ctx context.Context, key string, value any, category Category, tags []string, provenance string)

	// GetWithSWR is the read-through path. It may return an error only when
	// fetchFn fails on a true miss (or under ForceRefresh).
	GetWithSWR(ctx context.Context, key string, opts Options, fetchFn FetchFunc) (json.RawMessage, error)

	// Delete removes the entry for key and reports whether it existed.
	// Best-effort; tag index cleanup is lazy.
	Delete(ctx context.Context, key string) bool

	InvalidateByTag(ctx context.Context, tag string) int
	InvalidateSport(ctx context.Context, sport string) int
	InvalidateTeam(ctx context.Context, teamID string) int

	GetStats() Stats
	ResetStats()
}
