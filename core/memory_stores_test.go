package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStreamStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStreamStore()

	if _, err := store.Get(ctx, "stream-1"); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	state := NewStreamState("stream-1")
	state.RFCs["rfc-1"] = &RFCRecord{ID: "rfc-1", Status: RFCStatusReadyForReview}
	state.ActiveRFCID = "rfc-1"
	if err := store.Upsert(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The store keeps its own clone; later caller mutation must not leak in.
	state.RFCs["rfc-1"].Status = RFCStatusMerged

	loaded, err := store.Get(ctx, "stream-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.RFCs["rfc-1"].Status != RFCStatusReadyForReview {
		t.Fatalf("expected stored snapshot, got %s", loaded.RFCs["rfc-1"].Status)
	}

	loaded.RFCs["rfc-1"].Status = RFCStatusWithdrawn
	again, err := store.Get(ctx, "stream-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.RFCs["rfc-1"].Status != RFCStatusReadyForReview {
		t.Fatal("reader mutation leaked into the store")
	}

	if err := store.Delete(ctx, "stream-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "stream-1"); !errors.Is(err, ErrStreamNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryStreamStoreUpsertRequiresStreamID(t *testing.T) {
	store := NewMemoryStreamStore()
	if err := store.Upsert(context.Background(), &StreamState{}); err == nil {
		t.Fatal("expected error for missing stream id")
	}
	if err := store.Upsert(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestMemoryStreamStoreListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStreamStore()
	for _, id := range []string{"stream-c", "stream-a", "stream-b"} {
		if err := store.Upsert(ctx, NewStreamState(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	streams, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(streams))
	}
	for i, want := range []string{"stream-a", "stream-b", "stream-c"} {
		if streams[i].StreamID != want {
			t.Fatalf("expected %s at index %d, got %s", want, i, streams[i].StreamID)
		}
	}
}

func TestMemoryStreamStoreStorageBytes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStreamStore()

	empty, err := store.StorageBytes(ctx)
	if err != nil {
		t.Fatalf("storage bytes: %v", err)
	}
	if empty != 0 {
		t.Fatalf("expected zero bytes, got %d", empty)
	}

	if err := store.Upsert(ctx, NewStreamState("stream-1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	used, err := store.StorageBytes(ctx)
	if err != nil {
		t.Fatalf("storage bytes: %v", err)
	}
	if used <= 0 {
		t.Fatalf("expected positive footprint, got %d", used)
	}
}

func TestMemoryAuditStoreFiltersAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for seq := int64(1); seq <= 5; seq++ {
		action := AuditActionEventAccepted
		if seq%2 == 0 {
			action = AuditActionEventRejected
		}
		entry := AuditEntry{
			StreamID:  "stream-1",
			Sequence:  seq,
			Action:    action,
			RFCID:     "rfc-1",
			CreatedAt: base.Add(time.Duration(seq) * time.Minute),
		}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Append(ctx, AuditEntry{StreamID: "stream-2", Sequence: 1, Action: AuditActionEventAccepted, CreatedAt: base}); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, err := store.List(ctx, AuditFilter{StreamID: "stream-1", Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.Items[0].Sequence != 1 || page.Items[1].Sequence != 2 {
		t.Fatal("expected sequence ordering")
	}

	last, err := store.List(ctx, AuditFilter{StreamID: "stream-1", Page: 3, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(last.Items) != 1 || last.HasNext {
		t.Fatalf("unexpected last page: %+v", last)
	}

	rejected, err := store.List(ctx, AuditFilter{StreamID: "stream-1", Action: AuditActionEventRejected})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if rejected.Total != 2 {
		t.Fatalf("expected 2 rejected entries, got %d", rejected.Total)
	}

	from := base.Add(4 * time.Minute)
	recent, err := store.List(ctx, AuditFilter{StreamID: "stream-1", From: &from})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if recent.Total != 2 {
		t.Fatalf("expected 2 entries from cutoff, got %d", recent.Total)
	}
}

func TestMemoryAuditStoreClonesMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	metadata := map[string]any{"reason": "precondition_failed"}
	if err := store.Append(ctx, AuditEntry{StreamID: "stream-1", Sequence: 1, Metadata: metadata}); err != nil {
		t.Fatalf("append: %v", err)
	}

	metadata["reason"] = "mutated"
	page, err := store.List(ctx, AuditFilter{StreamID: "stream-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Items[0].Metadata["reason"] != "precondition_failed" {
		t.Fatal("caller mutation leaked into stored metadata")
	}
}
