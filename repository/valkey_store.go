package repository

import (
	"context"
	"fmt"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
	"github.com/blaze-sports-intel/scorecache/infrastructure/valkey"
)

// ValkeyStore implements cache.Store using Valkey. Expiration is delegated
// entirely to the server-side TTL set on each write.
type ValkeyStore struct {
	client *valkey.Client
	prefix string
}

var _ domainCache.Store = (*ValkeyStore)(nil)

// NewValkeyStore creates a new ValkeyStore instance.
// The client should be created via valkey.NewClient and passed here.
func NewValkeyStore(client *valkey.Client) *ValkeyStore {
	return &ValkeyStore{
		client: client,
		prefix: client.Key("cache") + ":",
	}
}

func (s *ValkeyStore) fullKey(key string) string {
	return s.prefix + key
}

func (s *ValkeyStore) inner() valkeylib.Client {
	return s.client.Inner()
}

// Get retrieves the raw text stored under key.
// Returns found=false when the key does not exist.
func (s *ValkeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := s.inner().B().Get().Key(s.fullKey(key)).Build()

	raw, err := s.inner().Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return raw, true, nil
}

// Set stores raw text under key with a server-side TTL.
func (s *ValkeyStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	cmd := s.inner().B().Set().
		Key(s.fullKey(key)).
		Value(value).
		Ex(ttl).
		Build()

	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key and reports whether it existed.
func (s *ValkeyStore) Delete(ctx context.Context, key string) (bool, error) {
	cmd := s.inner().B().Del().Key(s.fullKey(key)).Build()
	n, err := s.inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return n > 0, nil
}

// Ping reports whether the store is reachable.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
