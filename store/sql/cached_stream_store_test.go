package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-review/core"
)

type stubStreamStore struct {
	mu          sync.Mutex
	state       *core.StreamState
	getCalls    int
	upsertCalls int
	getErr      error
	upsertErr   error
}

func (s *stubStreamStore) Get(_ context.Context, streamID string) (*core.StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.state == nil || s.state.StreamID != streamID {
		return nil, core.ErrStreamNotFound
	}
	return s.state.Clone(), nil
}

func (s *stubStreamStore) Upsert(_ context.Context, state *core.StreamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.state = state.Clone()
	return nil
}

func (s *stubStreamStore) Delete(_ context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != nil && s.state.StreamID == streamID {
		s.state = nil
	}
	return nil
}

func (s *stubStreamStore) List(_ context.Context) ([]*core.StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	return []*core.StreamState{s.state.Clone()}, nil
}

func seedStubState(streamID string) *core.StreamState {
	state := core.NewStreamState(streamID)
	state.ActiveRFCID = "rfc-1"
	state.RFCs["rfc-1"] = &core.RFCRecord{
		ID:              "rfc-1",
		StreamID:        streamID,
		Status:          core.RFCStatusUnderReview,
		Approvals:       []string{"reviewer-1"},
		ApprovalsNeeded: 2,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	return state
}

func newTestStreamCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedStreamStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestStreamCacheService(t)
	base := &stubStreamStore{state: seedStubState("stream-cache-1")}

	store, err := NewCachedStreamStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached stream store: %v", err)
	}

	if _, err := store.Get(context.Background(), "stream-cache-1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base fetch, got %d", base.getCalls)
	}

	got, err := store.Get(context.Background(), "stream-cache-1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected cache hit, base fetches = %d", base.getCalls)
	}
	if got.ActiveRFCID != "rfc-1" {
		t.Fatalf("expected cached state, got %+v", got)
	}
}

func TestCachedStreamStore_GetReturnsClones(t *testing.T) {
	cacheService := newTestStreamCacheService(t)
	base := &stubStreamStore{state: seedStubState("stream-cache-2")}

	store, err := NewCachedStreamStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached stream store: %v", err)
	}

	first, err := store.Get(context.Background(), "stream-cache-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.ActiveRFCID = "mutated"
	first.RFCs["rfc-1"].Approvals = append(first.RFCs["rfc-1"].Approvals, "reviewer-x")

	second, err := store.Get(context.Background(), "stream-cache-2")
	if err != nil {
		t.Fatalf("get after mutation: %v", err)
	}
	if second.ActiveRFCID != "rfc-1" {
		t.Fatalf("caller mutation leaked into cache: %+v", second)
	}
	if len(second.RFCs["rfc-1"].Approvals) != 1 {
		t.Fatalf("caller mutation leaked into cached approvals: %v", second.RFCs["rfc-1"].Approvals)
	}
}

func TestCachedStreamStore_UpsertInvalidatesCacheEntry(t *testing.T) {
	cacheService := newTestStreamCacheService(t)
	base := &stubStreamStore{state: seedStubState("stream-cache-3")}

	store, err := NewCachedStreamStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached stream store: %v", err)
	}

	if _, err := store.Get(context.Background(), "stream-cache-3"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	updated := seedStubState("stream-cache-3")
	updated.PinnedMessageID = "msg-77"
	if err := store.Upsert(context.Background(), updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(context.Background(), "stream-cache-3")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.PinnedMessageID != "msg-77" {
		t.Fatalf("expected invalidated cache to refetch, got %+v", got)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected refetch after invalidation, base fetches = %d", base.getCalls)
	}
}

func TestCachedStreamStore_UpsertFailureLeavesCacheIntact(t *testing.T) {
	cacheService := newTestStreamCacheService(t)
	base := &stubStreamStore{state: seedStubState("stream-cache-4")}

	store, err := NewCachedStreamStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached stream store: %v", err)
	}

	if _, err := store.Get(context.Background(), "stream-cache-4"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	base.upsertErr = errors.New("write failed")
	broken := seedStubState("stream-cache-4")
	broken.PinnedMessageID = "msg-should-not-land"
	if err := store.Upsert(context.Background(), broken); err == nil {
		t.Fatalf("expected upsert failure to surface")
	}

	got, err := store.Get(context.Background(), "stream-cache-4")
	if err != nil {
		t.Fatalf("get after failed upsert: %v", err)
	}
	if got.PinnedMessageID != "" {
		t.Fatalf("failed write must not surface through cache: %+v", got)
	}
}
