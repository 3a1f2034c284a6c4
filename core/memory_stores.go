package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrStreamNotFound = fmt.Errorf("core: stream not found")

// MemoryStreamStore keeps stream records in process. It backs tests and
// small single-node deployments; the SQL store is the durable option.
type MemoryStreamStore struct {
	mu    sync.RWMutex
	items map[string]*StreamState
}

func NewMemoryStreamStore() *MemoryStreamStore {
	return &MemoryStreamStore{items: map[string]*StreamState{}}
}

func (s *MemoryStreamStore) Get(_ context.Context, streamID string) (*StreamState, error) {
	if s == nil {
		return nil, fmt.Errorf("core: stream store is nil")
	}
	streamID = strings.TrimSpace(streamID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[streamID]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryStreamStore) Upsert(_ context.Context, state *StreamState) error {
	if s == nil {
		return fmt.Errorf("core: stream store is nil")
	}
	if state == nil || strings.TrimSpace(state.StreamID) == "" {
		return fmt.Errorf("core: stream state with stream id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[strings.TrimSpace(state.StreamID)] = state.Clone()
	return nil
}

func (s *MemoryStreamStore) Delete(_ context.Context, streamID string) error {
	if s == nil {
		return fmt.Errorf("core: stream store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.TrimSpace(streamID))
	return nil
}

func (s *MemoryStreamStore) List(_ context.Context) ([]*StreamState, error) {
	if s == nil {
		return nil, fmt.Errorf("core: stream store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*StreamState, 0, len(s.items))
	for _, state := range s.items {
		out = append(out, state.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StreamID < out[j].StreamID
	})
	return out, nil
}

func (s *MemoryStreamStore) StorageBytes(_ context.Context) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("core: stream store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, state := range s.items {
		encoded, err := json.Marshal(state)
		if err != nil {
			return 0, err
		}
		total += int64(len(encoded))
	}
	return total, nil
}

type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) Append(_ context.Context, entry AuditEntry) error {
	if s == nil {
		return fmt.Errorf("core: audit store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cloneAuditEntry(entry))
	return nil
}

func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) (AuditPage, error) {
	if s == nil {
		return AuditPage{}, fmt.Errorf("core: audit store is nil")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}

	s.mu.RLock()
	matched := make([]AuditEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if !auditEntryMatches(entry, filter) {
			continue
		}
		matched = append(matched, cloneAuditEntry(entry))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StreamID != matched[j].StreamID {
			return matched[i].StreamID < matched[j].StreamID
		}
		return matched[i].Sequence < matched[j].Sequence
	})

	offset := (page - 1) * perPage
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return AuditPage{
		Items:   matched[offset:end],
		Page:    page,
		PerPage: perPage,
		Total:   len(matched),
		HasNext: end < len(matched),
	}, nil
}

func auditEntryMatches(entry AuditEntry, filter AuditFilter) bool {
	if streamID := strings.TrimSpace(filter.StreamID); streamID != "" && entry.StreamID != streamID {
		return false
	}
	if rfcID := strings.TrimSpace(filter.RFCID); rfcID != "" && entry.RFCID != rfcID {
		return false
	}
	if action := strings.TrimSpace(string(filter.Action)); action != "" && string(entry.Action) != action {
		return false
	}
	if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.CreatedAt.After(*filter.To) {
		return false
	}
	return true
}

func cloneAuditEntry(entry AuditEntry) AuditEntry {
	cloned := entry
	cloned.Metadata = copyAnyMap(entry.Metadata)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ StreamStore  = (*MemoryStreamStore)(nil)
	_ StorageSizer = (*MemoryStreamStore)(nil)
	_ AuditStore   = (*MemoryAuditStore)(nil)
)
