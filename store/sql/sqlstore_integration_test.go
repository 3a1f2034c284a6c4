package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-review/core"
	reviewmigrations "github.com/goliatone/go-review/migrations"
	sqlstore "github.com/goliatone/go-review/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-review-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, tableName := range []string{"review_stream_states", "review_audit_entries"} {
		var found string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			tableName,
		).Scan(context.Background(), &found); err != nil {
			t.Fatalf("query sqlite master for %s: %v", tableName, err)
		}
		if found != tableName {
			t.Fatalf("expected %s table, got %q", tableName, found)
		}
	}
}

func TestStreamStore_UpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.StreamStore()
	if store == nil {
		t.Fatalf("expected stream store from factory")
	}

	deadline := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	state := core.NewStreamState("stream-sql-1")
	state.ActiveRFCID = "rfc-1"
	state.PinnedMessageID = "msg-1"
	state.AuditSeq = 3
	state.RFCs["rfc-1"] = &core.RFCRecord{
		ID:              "rfc-1",
		Title:           "Introduce retention sweeps",
		StreamID:        "stream-sql-1",
		Status:          core.RFCStatusUnderReview,
		Approvals:       []string{"reviewer-1", "reviewer-2"},
		ApprovalsNeeded: 3,
		SLADeadline:     &deadline,
		CreatedAt:       time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
	}
	state.SeenDeliveries = []core.DeliveryResult{
		{
			DeliveryID: "delivery-1",
			Result: core.ApplyResult{
				Outcome: core.ApplyOutcomeAccepted,
				RFCID:   "rfc-1",
				Status:  core.RFCStatusUnderReview,
			},
		},
	}
	state.NudgeWindows["rfc-1"] = []time.Time{time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)}
	state.UpdatedAt = time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)

	if err := store.Upsert(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(ctx, "stream-sql-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveRFCID != "rfc-1" || got.PinnedMessageID != "msg-1" || got.AuditSeq != 3 {
		t.Fatalf("unexpected stream columns: %+v", got)
	}
	record := got.RFC("rfc-1")
	if record == nil {
		t.Fatalf("expected rfc record to survive round trip")
	}
	if record.Status != core.RFCStatusUnderReview || len(record.Approvals) != 2 {
		t.Fatalf("unexpected rfc record: %+v", record)
	}
	if record.SLADeadline == nil || !record.SLADeadline.Equal(deadline) {
		t.Fatalf("expected sla deadline to survive, got %v", record.SLADeadline)
	}
	if seen, ok := got.SeenResult("delivery-1"); !ok || seen.Outcome != core.ApplyOutcomeAccepted {
		t.Fatalf("expected delivery ledger to survive, got %+v ok=%v", seen, ok)
	}
	if len(got.NudgeWindows["rfc-1"]) != 1 {
		t.Fatalf("expected nudge window to survive, got %v", got.NudgeWindows)
	}
}

func TestStreamStore_UpsertIsFullReplace(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.StreamStore()

	state := core.NewStreamState("stream-sql-2")
	state.ActiveRFCID = "rfc-1"
	state.RFCs["rfc-1"] = &core.RFCRecord{
		ID:       "rfc-1",
		StreamID: "stream-sql-2",
		Status:   core.RFCStatusReadyForReview,
	}
	if err := store.Upsert(ctx, state); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	state.ActiveRFCID = ""
	state.RFCs["rfc-1"].Status = core.RFCStatusWithdrawn
	state.AuditSeq = 2
	if err := store.Upsert(ctx, state); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.Get(ctx, "stream-sql-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveRFCID != "" || got.AuditSeq != 2 {
		t.Fatalf("expected replaced columns, got %+v", got)
	}
	if got.RFC("rfc-1").Status != core.RFCStatusWithdrawn {
		t.Fatalf("expected replaced payload, got %+v", got.RFC("rfc-1"))
	}
}

func TestStreamStore_GetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	if _, err := factory.StreamStore().Get(ctx, "stream-missing"); !errors.Is(err, core.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
}

func TestStreamStore_DeleteListAndStorageBytes(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.StreamStore()

	for _, streamID := range []string{"stream-a", "stream-b", "stream-c"} {
		state := core.NewStreamState(streamID)
		state.AuditSeq = 1
		if err := store.Upsert(ctx, state); err != nil {
			t.Fatalf("upsert %s: %v", streamID, err)
		}
	}

	sizer, ok := store.(core.StorageSizer)
	if !ok {
		t.Fatalf("expected stream store to report storage size")
	}
	bytesBefore, err := sizer.StorageBytes(ctx)
	if err != nil {
		t.Fatalf("storage bytes: %v", err)
	}
	if bytesBefore <= 0 {
		t.Fatalf("expected positive storage footprint, got %d", bytesBefore)
	}

	if err := store.Delete(ctx, "stream-b"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	streams, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams after delete, got %d", len(streams))
	}
	if streams[0].StreamID != "stream-a" || streams[1].StreamID != "stream-c" {
		t.Fatalf("expected ordered stream ids, got %s %s", streams[0].StreamID, streams[1].StreamID)
	}

	bytesAfter, err := sizer.StorageBytes(ctx)
	if err != nil {
		t.Fatalf("storage bytes after delete: %v", err)
	}
	if bytesAfter >= bytesBefore {
		t.Fatalf("expected footprint to shrink after delete, %d -> %d", bytesBefore, bytesAfter)
	}
}

func TestAuditStore_AppendListFiltersAndPagination(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	audit := factory.AuditStore()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		action := core.AuditActionEventAccepted
		if i == 3 {
			action = core.AuditActionEventRejected
		}
		entry := core.AuditEntry{
			ID:        fmt.Sprintf("audit-%d", i),
			StreamID:  "stream-audit-1",
			Sequence:  int64(i),
			Action:    action,
			Actor:     "reviewer-1",
			RFCID:     "rfc-1",
			After:     core.RFCStatusUnderReview,
			Metadata:  map[string]any{"delivery_id": fmt.Sprintf("delivery-%d", i)},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page, err := audit.List(ctx, core.AuditFilter{StreamID: "stream-audit-1", Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || !page.HasNext {
		t.Fatalf("unexpected first page: total=%d items=%d hasNext=%v", page.Total, len(page.Items), page.HasNext)
	}
	if page.Items[0].Sequence != 1 || page.Items[1].Sequence != 2 {
		t.Fatalf("expected sequence order, got %d %d", page.Items[0].Sequence, page.Items[1].Sequence)
	}

	rejected, err := audit.List(ctx, core.AuditFilter{
		StreamID: "stream-audit-1",
		Action:   core.AuditActionEventRejected,
	})
	if err != nil {
		t.Fatalf("list rejected: %v", err)
	}
	if rejected.Total != 1 || rejected.Items[0].Sequence != 3 {
		t.Fatalf("unexpected action filter result: %+v", rejected)
	}

	from := base.Add(4 * time.Hour)
	recent, err := audit.List(ctx, core.AuditFilter{StreamID: "stream-audit-1", From: &from})
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if recent.Total != 2 {
		t.Fatalf("expected 2 entries at or after cutoff, got %d", recent.Total)
	}
}

func TestAuditStore_PruneEnforcesTTLAndRowCap(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	audit := factory.AuditStore()
	pruner, ok := audit.(core.AuditRetentionPruner)
	if !ok {
		t.Fatalf("expected audit store to implement retention pruning")
	}

	now := time.Now().UTC()
	for i := 1; i <= 6; i++ {
		age := time.Duration(i) * 24 * time.Hour
		entry := core.AuditEntry{
			ID:        fmt.Sprintf("prune-%d", i),
			StreamID:  "stream-prune-1",
			Sequence:  int64(i),
			Action:    core.AuditActionEventAccepted,
			CreatedAt: now.Add(-age),
		}
		if err := audit.Append(ctx, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	deleted, err := pruner.Prune(ctx, core.AuditRetentionPolicy{TTL: 4 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("prune ttl: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 entries past ttl, deleted %d", deleted)
	}

	deleted, err = pruner.Prune(ctx, core.AuditRetentionPolicy{RowCap: 2})
	if err != nil {
		t.Fatalf("prune row cap: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected row cap to trim to 2 rows, deleted %d", deleted)
	}

	remaining, err := audit.List(ctx, core.AuditFilter{StreamID: "stream-prune-1"})
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if remaining.Total != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", remaining.Total)
	}
	if remaining.Items[0].Sequence != 1 || remaining.Items[1].Sequence != 2 {
		t.Fatalf("expected newest entries to survive, got %+v", remaining.Items)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:review-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = reviewmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != reviewmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, reviewmigrations.WithValidationTargets(reviewmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
