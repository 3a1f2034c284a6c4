package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-review/core"
)

const streamStateCacheKeyPrefix = "go-review::stream_state::v1"

// CachedStreamStore layers a read-through cache over a stream store. Writes
// go to the base store first and then drop the cached copy, so readers never
// observe a cached record ahead of a failed write.
type CachedStreamStore struct {
	base  core.StreamStore
	cache repositorycache.CacheService
}

func NewCachedStreamStore(
	base core.StreamStore,
	cacheService repositorycache.CacheService,
) (*CachedStreamStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base stream store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: stream cache service is required")
	}
	return &CachedStreamStore{base: base, cache: cacheService}, nil
}

// StreamStateCacheKey returns the deterministic cache key for a stream:
// go-review::stream_state::v1::<stream_id> with the id URL-path escaped.
func StreamStateCacheKey(streamID string) (string, error) {
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return "", fmt.Errorf("sqlstore: stream id is required")
	}
	return streamStateCacheKeyPrefix + "::" + url.PathEscape(streamID), nil
}

func (s *CachedStreamStore) Get(ctx context.Context, streamID string) (*core.StreamState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached stream store is not configured")
	}
	streamID = strings.TrimSpace(streamID)
	cacheKey, err := StreamStateCacheKey(streamID)
	if err != nil {
		return nil, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (*core.StreamState, error) {
		fetched, fetchErr := s.base.Get(ctx, streamID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

func (s *CachedStreamStore) Upsert(ctx context.Context, state *core.StreamState) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached stream store is not configured")
	}
	if state == nil {
		return fmt.Errorf("sqlstore: stream state is required")
	}
	cacheKey, err := StreamStateCacheKey(state.StreamID)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedStreamStore) Delete(ctx context.Context, streamID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached stream store is not configured")
	}
	cacheKey, err := StreamStateCacheKey(streamID)
	if err != nil {
		return err
	}
	if err := s.base.Delete(ctx, streamID); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// List always reads through to the base store: sweeps need the full durable
// set, not whatever happens to be cached.
func (s *CachedStreamStore) List(ctx context.Context) ([]*core.StreamState, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached stream store is not configured")
	}
	return s.base.List(ctx)
}

func (s *CachedStreamStore) StorageBytes(ctx context.Context) (int64, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached stream store is not configured")
	}
	sizer, ok := s.base.(core.StorageSizer)
	if !ok {
		return 0, fmt.Errorf("sqlstore: base stream store does not report storage size")
	}
	return sizer.StorageBytes(ctx)
}
