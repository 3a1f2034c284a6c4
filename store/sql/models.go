package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-review/core"
	"github.com/uptrace/bun"
)

// streamStateRecord persists one stream per row. The queryable columns are
// denormalized from the payload; the payload is the source of truth and is
// written whole so a transition and its delivery id land in one statement.
type streamStateRecord struct {
	bun.BaseModel `bun:"table:review_stream_states,alias:rss"`

	StreamID        string    `bun:"stream_id,pk"`
	ActiveRFCID     string    `bun:"active_rfc_id"`
	PinnedMessageID string    `bun:"pinned_message_id"`
	AuditSeq        int64     `bun:"audit_seq,notnull"`
	Payload         []byte    `bun:"payload,type:jsonb,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newStreamStateRecord(state *core.StreamState, now time.Time) (*streamStateRecord, error) {
	if state == nil || strings.TrimSpace(state.StreamID) == "" {
		return nil, fmt.Errorf("sqlstore: stream state with stream id is required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode stream state: %w", err)
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return &streamStateRecord{
		StreamID:        strings.TrimSpace(state.StreamID),
		ActiveRFCID:     strings.TrimSpace(state.ActiveRFCID),
		PinnedMessageID: strings.TrimSpace(state.PinnedMessageID),
		AuditSeq:        state.AuditSeq,
		Payload:         payload,
		UpdatedAt:       updatedAt.UTC(),
	}, nil
}

func (r *streamStateRecord) toDomain() (*core.StreamState, error) {
	if r == nil {
		return nil, core.ErrStreamNotFound
	}
	state := &core.StreamState{}
	if err := json.Unmarshal(r.Payload, state); err != nil {
		return nil, fmt.Errorf("sqlstore: decode stream state %q: %w", r.StreamID, err)
	}
	if state.RFCs == nil {
		state.RFCs = map[string]*core.RFCRecord{}
	}
	if state.NudgeWindows == nil {
		state.NudgeWindows = map[string][]time.Time{}
	}
	state.StreamID = r.StreamID
	return state, nil
}

type auditEntryRecord struct {
	bun.BaseModel `bun:"table:review_audit_entries,alias:rae"`

	ID           string         `bun:"id,pk"`
	StreamID     string         `bun:"stream_id,notnull"`
	Sequence     int64          `bun:"sequence,notnull"`
	Action       string         `bun:"action,notnull"`
	Actor        string         `bun:"actor"`
	RFCID        string         `bun:"rfc_id"`
	BeforeStatus string         `bun:"before_status"`
	AfterStatus  string         `bun:"after_status"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newAuditEntryRecord(entry core.AuditEntry, now time.Time) *auditEntryRecord {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &auditEntryRecord{
		ID:           strings.TrimSpace(entry.ID),
		StreamID:     strings.TrimSpace(entry.StreamID),
		Sequence:     entry.Sequence,
		Action:       string(entry.Action),
		Actor:        strings.TrimSpace(entry.Actor),
		RFCID:        strings.TrimSpace(entry.RFCID),
		BeforeStatus: string(entry.Before),
		AfterStatus:  string(entry.After),
		Metadata:     metadata,
		CreatedAt:    createdAt.UTC(),
	}
}

func (r *auditEntryRecord) toDomain() core.AuditEntry {
	if r == nil {
		return core.AuditEntry{}
	}
	return core.AuditEntry{
		ID:        r.ID,
		StreamID:  r.StreamID,
		Sequence:  r.Sequence,
		Action:    core.AuditAction(r.Action),
		Actor:     r.Actor,
		RFCID:     r.RFCID,
		Before:    core.RFCStatus(r.BeforeStatus),
		After:     core.RFCStatus(r.AfterStatus),
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
	}
}
