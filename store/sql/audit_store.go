package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-review/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEntryRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEntryRecord](db, auditEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *AuditStore) Append(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(entry.StreamID) == "" {
		return fmt.Errorf("sqlstore: audit entry stream id is required")
	}
	if entry.Sequence <= 0 {
		return fmt.Errorf("sqlstore: audit entry sequence is required")
	}
	record := newAuditEntryRecord(entry, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *AuditStore) List(ctx context.Context, filter core.AuditFilter) (core.AuditPage, error) {
	if s == nil || s.db == nil {
		return core.AuditPage{}, fmt.Errorf("sqlstore: audit store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}

	records := []*auditEntryRecord{}
	query := s.db.NewSelect().Model(&records)
	if streamID := strings.TrimSpace(filter.StreamID); streamID != "" {
		query = query.Where("?TableAlias.stream_id = ?", streamID)
	}
	if rfcID := strings.TrimSpace(filter.RFCID); rfcID != "" {
		query = query.Where("?TableAlias.rfc_id = ?", rfcID)
	}
	if action := strings.TrimSpace(string(filter.Action)); action != "" {
		query = query.Where("?TableAlias.action = ?", action)
	}
	if filter.From != nil {
		query = query.Where("?TableAlias.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("?TableAlias.created_at <= ?", filter.To.UTC())
	}

	total, err := query.
		OrderExpr("?TableAlias.stream_id ASC").
		OrderExpr("?TableAlias.sequence ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		ScanAndCount(ctx)
	if err != nil {
		return core.AuditPage{}, err
	}

	items := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.AuditPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: page*perPage < total,
	}, nil
}

// Prune enforces the audit retention policy: a TTL on entry age and an
// optional global row cap keeping the newest rows.
func (s *AuditStore) Prune(ctx context.Context, policy core.AuditRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: audit store is not configured")
	}

	deleted := 0
	if policy.TTL > 0 {
		cutoff := time.Now().UTC().Add(-policy.TTL)
		result, err := s.db.NewDelete().
			Model((*auditEntryRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		if affected, affErr := result.RowsAffected(); affErr == nil {
			deleted += int(affected)
		}
	}

	if policy.RowCap > 0 {
		stale := []string{}
		if err := s.db.NewSelect().
			Model((*auditEntryRecord)(nil)).
			Column("id").
			OrderExpr("created_at DESC").
			OrderExpr("sequence DESC").
			Offset(policy.RowCap).
			Limit(pruneBatchLimit).
			Scan(ctx, &stale); err != nil {
			return deleted, err
		}
		if len(stale) > 0 {
			result, err := s.db.NewDelete().
				Model((*auditEntryRecord)(nil)).
				Where("id IN (?)", bun.In(stale)).
				Exec(ctx)
			if err != nil {
				return deleted, err
			}
			if affected, affErr := result.RowsAffected(); affErr == nil {
				deleted += int(affected)
			}
		}
	}

	return deleted, nil
}

const pruneBatchLimit = 10_000
