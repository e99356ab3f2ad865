package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Freshness classifies an entry relative to a point in time.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
	Expired
)

// Entry is the unit of storage: a payload wrapped with freshness metadata.
// The payload stays opaque to the cache (raw JSON, decoded by the caller).
type Entry struct {
	Data       json.RawMessage `json:"data"`
	CachedAt   time.Time       `json:"cached_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	StaleAt    time.Time       `json:"stale_at"`
	Category   Category        `json:"category"`
	Tags       []string        `json:"tags,omitempty"`
	Hits       int64           `json:"hits"`
	Provenance string          `json:"provenance,omitempty"`
}

// NewEntry builds an entry cached at now with the category's TTL profile.
// Invariant: CachedAt <= ExpiresAt <= StaleAt.
func NewEntry(data json.RawMessage, category Category, tags []string, provenance string, now time.Time) *Entry {
	profile := ProfileFor(category)
	return &Entry{
		Data:       data,
		CachedAt:   now,
		ExpiresAt:  now.Add(profile.Fresh),
		StaleAt:    now.Add(profile.Fresh + profile.Stale),
		Category:   category,
		Tags:       tags,
		Provenance: provenance,
	}
}

// FreshnessAt classifies the entry: fresh while now < ExpiresAt, stale while
// ExpiresAt <= now < StaleAt, expired afterwards. An expired entry must be
// treated identically to an absent one.
func (e *Entry) FreshnessAt(now time.Time) Freshness {
	if now.Before(e.ExpiresAt) {
		return Fresh
	}
	if now.Before(e.StaleAt) {
		return Stale
	}
	return Expired
}

// RemainingTTL is the time left until the backing store may drop the entry.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	return e.StaleAt.Sub(now)
}

// EncodeEntry serializes an entry into the store's text representation.
func EncodeEntry(e *Entry) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return string(data), nil
}

// DecodeEntry parses the stored text back into an entry. Malformed text is
// reported as an error for the caller to treat as "entry absent"; it must
// never abort a request.
func DecodeEntry(raw string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if e.CachedAt.IsZero() || e.StaleAt.IsZero() {
		return nil, fmt.Errorf("failed to decode cache entry: missing timestamps")
	}
	return &e, nil
}
