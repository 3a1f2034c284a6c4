package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRFCStatusTransition = errors.New("core: invalid rfc status transition")
	ErrAlreadyApproved            = errors.New("core: reviewer already approved")
	ErrRFCNotFound                = errors.New("core: rfc not found")
	ErrInvalidEvent               = errors.New("core: invalid event")
)

type RFCStatus string

const (
	RFCStatusReadyForReview RFCStatus = "ready_for_review"
	RFCStatusUnderReview    RFCStatus = "under_review"
	RFCStatusApproved       RFCStatus = "approved"
	RFCStatusMerged         RFCStatus = "merged"
	RFCStatusWithdrawn      RFCStatus = "withdrawn"
	RFCStatusArchived       RFCStatus = "archived"
)

func (s RFCStatus) Terminal() bool {
	switch s {
	case RFCStatusMerged, RFCStatusWithdrawn, RFCStatusArchived:
		return true
	}
	return false
}

type RFCRecord struct {
	ID              string
	Title           string
	StreamID        string
	Status          RFCStatus
	Approvals       []string
	ApprovalsNeeded int
	SLADeadline     *time.Time
	BreachNotified  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *RFCRecord) Terminal() bool {
	if r == nil {
		return false
	}
	return r.Status.Terminal()
}

// HasApproval reports whether the reviewer already approved this record.
// Approvals is a distinct set; the slice keeps arrival order for rendering.
func (r *RFCRecord) HasApproval(reviewer string) bool {
	if r == nil {
		return false
	}
	reviewer = strings.TrimSpace(reviewer)
	for _, existing := range r.Approvals {
		if existing == reviewer {
			return true
		}
	}
	return false
}

// Approve records a distinct reviewer approval and advances the status per
// quorum. The same reviewer approving twice is rejected without mutation.
func (r *RFCRecord) Approve(reviewer string, now time.Time) error {
	if r == nil {
		return ErrRFCNotFound
	}
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return fmt.Errorf("%w: reviewer is required", ErrInvalidEvent)
	}
	if r.HasApproval(reviewer) {
		return fmt.Errorf("%w: %s", ErrAlreadyApproved, reviewer)
	}
	if r.Status != RFCStatusReadyForReview && r.Status != RFCStatusUnderReview {
		return fmt.Errorf("%w: approve in %s", ErrInvalidRFCStatusTransition, r.Status)
	}
	next := RFCStatusUnderReview
	if len(r.Approvals)+1 >= r.ApprovalsNeeded {
		next = RFCStatusApproved
	}
	if err := r.TransitionTo(next, now); err != nil {
		return err
	}
	r.Approvals = append(r.Approvals, reviewer)
	return nil
}

func (r *RFCRecord) TransitionTo(status RFCStatus, now time.Time) error {
	if r == nil {
		return ErrRFCNotFound
	}
	if r.Status == status {
		r.UpdatedAt = now
		return nil
	}
	if !rfcTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidRFCStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	return nil
}

func rfcTransitionAllowed(current, next RFCStatus) bool {
	allowed := map[RFCStatus]map[RFCStatus]struct{}{
		RFCStatusReadyForReview: {
			RFCStatusUnderReview: {},
			RFCStatusApproved:    {},
			RFCStatusWithdrawn:   {},
		},
		RFCStatusUnderReview: {
			RFCStatusApproved:  {},
			RFCStatusWithdrawn: {},
		},
		RFCStatusApproved: {
			RFCStatusMerged:    {},
			RFCStatusWithdrawn: {},
		},
		RFCStatusMerged: {
			RFCStatusArchived: {},
		},
		RFCStatusWithdrawn: {
			RFCStatusArchived: {},
		},
		RFCStatusArchived: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// RetentionEligible reports whether a terminal record has aged past the
// retention period.
func (r *RFCRecord) RetentionEligible(retention time.Duration, now time.Time) bool {
	if r == nil || !r.Terminal() {
		return false
	}
	if retention <= 0 {
		return false
	}
	return r.UpdatedAt.Add(retention).Before(now)
}

func (r *RFCRecord) Clone() *RFCRecord {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Approvals = append([]string(nil), r.Approvals...)
	if r.SLADeadline != nil {
		deadline := r.SLADeadline.UTC()
		cloned.SLADeadline = &deadline
	}
	return &cloned
}

type EventType string

const (
	EventTypeNew      EventType = "new"
	EventTypeApprove  EventType = "approve"
	EventTypeSubmit   EventType = "submit"
	EventTypeWithdraw EventType = "withdraw"
	EventTypeArchive  EventType = "archive"
	EventTypePurge    EventType = "purge"
)

// Event is a single inbound delivery. Ingress delivers at least once with no
// ordering guarantee across streams; DeliveryID is the dedup key.
type Event struct {
	StreamID        string
	DeliveryID      string
	Type            EventType
	RFCID           string
	Actor           string
	Title           string
	ApprovalsNeeded int
	SLADeadline     *time.Time
	Locale          string
	Payload         map[string]any
	ReceivedAt      time.Time
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.StreamID) == "" {
		return fmt.Errorf("%w: stream id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.DeliveryID) == "" {
		return fmt.Errorf("%w: delivery id is required", ErrInvalidEvent)
	}
	switch e.Type {
	case EventTypeNew:
		if strings.TrimSpace(e.RFCID) == "" {
			return fmt.Errorf("%w: rfc id is required", ErrInvalidEvent)
		}
		if e.ApprovalsNeeded < 1 {
			return fmt.Errorf("%w: approvals_needed must be >= 1", ErrInvalidEvent)
		}
	case EventTypeApprove:
		if strings.TrimSpace(e.Actor) == "" {
			return fmt.Errorf("%w: approve requires an actor", ErrInvalidEvent)
		}
	case EventTypeSubmit, EventTypeWithdraw, EventTypeArchive, EventTypePurge:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

type ApplyOutcome string

const (
	ApplyOutcomeAccepted ApplyOutcome = "accepted"
	ApplyOutcomeRejected ApplyOutcome = "rejected"
)

type RejectReason string

const (
	RejectReasonNone               RejectReason = ""
	RejectReasonValidationError    RejectReason = "validation_error"
	RejectReasonIllegalTransition  RejectReason = "illegal_transition"
	RejectReasonAlreadyApproved    RejectReason = "already_approved"
	RejectReasonPreconditionFailed RejectReason = "precondition_failed"
	RejectReasonUnknownRFC         RejectReason = "unknown_rfc"
)

// ApplyResult is the per-delivery outcome recorded in the stream state so a
// redelivered event returns the original decision.
type ApplyResult struct {
	Outcome ApplyOutcome `json:"outcome"`
	Reason  RejectReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
	RFCID   string       `json:"rfc_id,omitempty"`
	Status  RFCStatus    `json:"status,omitempty"`
	Deduped bool         `json:"-"`
}

func (r ApplyResult) Accepted() bool {
	return r.Outcome == ApplyOutcomeAccepted
}

// DeliveryResult pairs a delivery id with its recorded outcome inside the
// stream state's bounded dedup window.
type DeliveryResult struct {
	DeliveryID string      `json:"delivery_id"`
	Result     ApplyResult `json:"result"`
}

// StreamState is the single durable record per stream. It is exclusively
// owned by the stream's actor; everything else reads it through the store.
type StreamState struct {
	StreamID        string
	ActiveRFCID     string
	PinnedMessageID string
	AuditSeq        int64
	RFCs            map[string]*RFCRecord
	SeenDeliveries  []DeliveryResult
	NudgeWindows    map[string][]time.Time
	UpdatedAt       time.Time
}

func NewStreamState(streamID string) *StreamState {
	return &StreamState{
		StreamID:     strings.TrimSpace(streamID),
		RFCs:         map[string]*RFCRecord{},
		NudgeWindows: map[string][]time.Time{},
	}
}

func (s *StreamState) RFC(id string) *RFCRecord {
	if s == nil || len(s.RFCs) == 0 {
		return nil
	}
	return s.RFCs[strings.TrimSpace(id)]
}

func (s *StreamState) ActiveRFC() *RFCRecord {
	if s == nil {
		return nil
	}
	return s.RFC(s.ActiveRFCID)
}

// SeenResult returns the previously recorded outcome for a delivery id.
func (s *StreamState) SeenResult(deliveryID string) (ApplyResult, bool) {
	if s == nil {
		return ApplyResult{}, false
	}
	deliveryID = strings.TrimSpace(deliveryID)
	for _, seen := range s.SeenDeliveries {
		if seen.DeliveryID == deliveryID {
			return seen.Result, true
		}
	}
	return ApplyResult{}, false
}

// RecordDelivery appends a delivery outcome, evicting the oldest entries once
// the bound is exceeded. A zero or negative bound keeps a single entry.
func (s *StreamState) RecordDelivery(deliveryID string, result ApplyResult, bound int) {
	if s == nil {
		return
	}
	if bound <= 0 {
		bound = 1
	}
	s.SeenDeliveries = append(s.SeenDeliveries, DeliveryResult{
		DeliveryID: strings.TrimSpace(deliveryID),
		Result:     result,
	})
	if excess := len(s.SeenDeliveries) - bound; excess > 0 {
		s.SeenDeliveries = append([]DeliveryResult(nil), s.SeenDeliveries[excess:]...)
	}
}

// NextAuditSeq hands out the monotonically increasing per-stream audit
// ordering key. It is persisted with the state so restarts never reuse one.
func (s *StreamState) NextAuditSeq() int64 {
	if s == nil {
		return 0
	}
	s.AuditSeq++
	return s.AuditSeq
}

func (s *StreamState) Clone() *StreamState {
	if s == nil {
		return nil
	}
	cloned := &StreamState{
		StreamID:        s.StreamID,
		ActiveRFCID:     s.ActiveRFCID,
		PinnedMessageID: s.PinnedMessageID,
		AuditSeq:        s.AuditSeq,
		RFCs:            make(map[string]*RFCRecord, len(s.RFCs)),
		SeenDeliveries:  append([]DeliveryResult(nil), s.SeenDeliveries...),
		NudgeWindows:    make(map[string][]time.Time, len(s.NudgeWindows)),
		UpdatedAt:       s.UpdatedAt,
	}
	for id, rfc := range s.RFCs {
		cloned.RFCs[id] = rfc.Clone()
	}
	for id, window := range s.NudgeWindows {
		cloned.NudgeWindows[id] = append([]time.Time(nil), window...)
	}
	return cloned
}

type AuditAction string

const (
	AuditActionEventAccepted AuditAction = "event.accepted"
	AuditActionEventRejected AuditAction = "event.rejected"
	AuditActionNudgeSent     AuditAction = "nudge.sent"
	AuditActionNudgeLimited  AuditAction = "nudge.rate_limited"
	AuditActionPinDegraded   AuditAction = "pin.degraded"
	AuditActionPurge         AuditAction = "rfc.purged"
)

// AuditEntry is immutable once written. Entries are ordered by
// (StreamID, Sequence); Sequence comes from the owning actor, not wall clock.
type AuditEntry struct {
	ID        string
	StreamID  string
	Sequence  int64
	Action    AuditAction
	Actor     string
	RFCID     string
	Before    RFCStatus
	After     RFCStatus
	Metadata  map[string]any
	CreatedAt time.Time
}

type AuditFilter struct {
	StreamID string
	RFCID    string
	Action   AuditAction
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

type AuditPage struct {
	Items   []AuditEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// StreamSnapshot is the read-only view served by the query surface.
type StreamSnapshot struct {
	Stream *StreamState
	Active *RFCRecord
}

type SweepStats struct {
	StreamsScanned int
	Purged         int
	PurgeRejected  int
	AuditPruned    int
	BytesFreed     int64
}
