package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/goliatone/go-review/core"
)

const defaultDedupBound = 512

// Applier drives one event through the lifecycle state machine. It is only
// ever invoked from a stream's single mailbox goroutine, so it can mutate a
// working copy freely and commit it with one store write.
type Applier struct {
	Store      core.StreamStore
	Audit      core.AuditSink
	Reconciler core.PinReconciler
	Limiter    core.NudgeLimiter
	Renderer   core.Renderer
	Channel    core.ChannelAPI
	Metrics    core.MetricsRecorder
	Logger     core.Logger
	Retention  time.Duration
	DedupBound int
	Now        func() time.Time
}

// evaluation is what one event did to the working copy before persistence.
type evaluation struct {
	result       core.ApplyResult
	before       core.RFCStatus
	after        core.RFCStatus
	stateChanged bool
	purgedBytes  int64
	metadata     map[string]any
}

// Apply runs the full pipeline for one delivery: dedup, state machine,
// audit, single durable write, then pin reconciliation. Everything up to and
// including the store write happens on a clone, so a persistence failure
// leaves the event unapplied and safe to redeliver.
func (a *Applier) Apply(ctx context.Context, event core.Event) (core.ApplyResult, error) {
	if a == nil || a.Store == nil {
		return core.ApplyResult{}, fmt.Errorf("actor: applier is not configured")
	}
	event.StreamID = strings.TrimSpace(event.StreamID)
	event.DeliveryID = strings.TrimSpace(event.DeliveryID)
	event.RFCID = strings.TrimSpace(event.RFCID)
	event.Actor = strings.TrimSpace(event.Actor)

	now := a.now()

	if err := event.Validate(); err != nil {
		result := core.ApplyResult{
			Outcome: core.ApplyOutcomeRejected,
			Reason:  core.RejectReasonValidationError,
			Message: err.Error(),
			RFCID:   event.RFCID,
		}
		// A delivery that cannot even be keyed is logged and dropped.
		if event.StreamID == "" || event.DeliveryID == "" {
			a.logError("actor: dropping unkeyed invalid event", "error", err)
			return result, nil
		}
		return a.commitRejection(ctx, event, result, now)
	}

	state, err := a.loadState(ctx, event.StreamID)
	if err != nil {
		return core.ApplyResult{}, fmt.Errorf("actor: load stream %q: %w", event.StreamID, err)
	}

	if recorded, seen := state.SeenResult(event.DeliveryID); seen {
		recorded.Deduped = true
		return recorded, nil
	}

	working := state.Clone()
	eval := a.evaluate(working, event, now)

	var entries []core.AuditEntry
	entries = append(entries, a.transitionEntry(working, event, eval, now))

	if eval.result.Accepted() {
		if nudgeEntry, breached := a.checkSLA(ctx, working, eval, event.Locale, now); breached {
			entries = append(entries, nudgeEntry)
		}
	}

	working.RecordDelivery(event.DeliveryID, eval.result, a.dedupBound())
	working.UpdatedAt = now

	if err := a.Store.Upsert(ctx, working); err != nil {
		// Nothing was recorded; redelivery will rerun the whole pipeline.
		return core.ApplyResult{}, fmt.Errorf("actor: persist stream %q: %w", event.StreamID, err)
	}

	a.appendAudit(ctx, entries...)

	if eval.result.Accepted() && event.Type == core.EventTypePurge {
		a.incCounter(ctx, core.MetricCleanupTotal, map[string]string{"stream_id": working.StreamID})
	}
	if eval.result.Accepted() && eval.stateChanged {
		a.reconcilePin(ctx, working, event.Locale, now)
	}

	return eval.result, nil
}

// commitRejection persists a keyed rejection so a replay of the same
// delivery returns the original decision without re-evaluating.
func (a *Applier) commitRejection(ctx context.Context, event core.Event, result core.ApplyResult, now time.Time) (core.ApplyResult, error) {
	state, err := a.loadState(ctx, event.StreamID)
	if err != nil {
		return core.ApplyResult{}, fmt.Errorf("actor: load stream %q: %w", event.StreamID, err)
	}
	if recorded, seen := state.SeenResult(event.DeliveryID); seen {
		recorded.Deduped = true
		return recorded, nil
	}

	working := state.Clone()
	entry := a.transitionEntry(working, event, evaluation{result: result}, now)
	working.RecordDelivery(event.DeliveryID, result, a.dedupBound())
	working.UpdatedAt = now

	if err := a.Store.Upsert(ctx, working); err != nil {
		return core.ApplyResult{}, fmt.Errorf("actor: persist stream %q: %w", event.StreamID, err)
	}
	a.appendAudit(ctx, entry)
	return result, nil
}

func (a *Applier) evaluate(working *core.StreamState, event core.Event, now time.Time) evaluation {
	switch event.Type {
	case core.EventTypeNew:
		return a.evaluateNew(working, event, now)
	case core.EventTypeApprove:
		return a.evaluateApprove(working, event, now)
	case core.EventTypeSubmit:
		return a.evaluateSubmit(working, event, now)
	case core.EventTypeWithdraw:
		return a.evaluateWithdraw(working, event, now)
	case core.EventTypeArchive:
		return a.evaluateArchive(working, event, now)
	case core.EventTypePurge:
		return a.evaluatePurge(working, event)
	}
	return rejected(core.RejectReasonValidationError, fmt.Sprintf("unknown event type %q", event.Type), event.RFCID, "")
}

func (a *Applier) evaluateNew(working *core.StreamState, event core.Event, now time.Time) evaluation {
	if working.RFC(event.RFCID) != nil {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("rfc %q already exists", event.RFCID), event.RFCID, "")
	}
	if active := working.ActiveRFC(); active != nil && !active.Terminal() {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("stream already has active rfc %q", active.ID), event.RFCID, "")
	}

	record := &core.RFCRecord{
		ID:              event.RFCID,
		Title:           strings.TrimSpace(event.Title),
		StreamID:        working.StreamID,
		Status:          core.RFCStatusReadyForReview,
		ApprovalsNeeded: event.ApprovalsNeeded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if event.SLADeadline != nil {
		deadline := event.SLADeadline.UTC()
		record.SLADeadline = &deadline
	}
	working.RFCs[record.ID] = record
	working.ActiveRFCID = record.ID

	return evaluation{
		result: core.ApplyResult{
			Outcome: core.ApplyOutcomeAccepted,
			RFCID:   record.ID,
			Status:  record.Status,
		},
		after:        record.Status,
		stateChanged: true,
	}
}

func (a *Applier) evaluateApprove(working *core.StreamState, event core.Event, now time.Time) evaluation {
	record, eval, ok := a.targetRFC(working, event)
	if !ok {
		return eval
	}
	before := record.Status
	if err := record.Approve(event.Actor, now); err != nil {
		return rejected(approveRejectReason(err), err.Error(), record.ID, before)
	}
	return accepted(record, before, map[string]any{
		"reviewer":  event.Actor,
		"approvals": len(record.Approvals),
	})
}

func (a *Applier) evaluateSubmit(working *core.StreamState, event core.Event, now time.Time) evaluation {
	record, eval, ok := a.targetRFC(working, event)
	if !ok {
		return eval
	}
	before := record.Status
	if before != core.RFCStatusApproved {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("submit requires approved status, rfc %q is %s", record.ID, before), record.ID, before)
	}
	if err := record.TransitionTo(core.RFCStatusMerged, now); err != nil {
		return rejected(core.RejectReasonIllegalTransition, err.Error(), record.ID, before)
	}
	return accepted(record, before, nil)
}

func (a *Applier) evaluateWithdraw(working *core.StreamState, event core.Event, now time.Time) evaluation {
	record, eval, ok := a.targetRFC(working, event)
	if !ok {
		return eval
	}
	before := record.Status
	if err := record.TransitionTo(core.RFCStatusWithdrawn, now); err != nil {
		return rejected(core.RejectReasonIllegalTransition, err.Error(), record.ID, before)
	}
	return accepted(record, before, nil)
}

func (a *Applier) evaluateArchive(working *core.StreamState, event core.Event, now time.Time) evaluation {
	record, eval, ok := a.targetRFC(working, event)
	if !ok {
		return eval
	}
	before := record.Status
	if before != core.RFCStatusMerged && before != core.RFCStatusWithdrawn {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("archive requires a merged or withdrawn rfc, %q is %s", record.ID, before), record.ID, before)
	}
	if a.Retention > 0 && !record.RetentionEligible(a.Retention, now) {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("rfc %q is not yet retention eligible", record.ID), record.ID, before)
	}
	if err := record.TransitionTo(core.RFCStatusArchived, now); err != nil {
		return rejected(core.RejectReasonIllegalTransition, err.Error(), record.ID, before)
	}
	return accepted(record, before, nil)
}

func (a *Applier) evaluatePurge(working *core.StreamState, event core.Event) evaluation {
	record, eval, ok := a.targetRFC(working, event)
	if !ok {
		return eval
	}
	before := record.Status
	// The active RFC is never purged regardless of age.
	if record.ID == working.ActiveRFCID {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("rfc %q is the stream's active rfc", record.ID), record.ID, before)
	}
	if !record.Terminal() {
		return rejected(core.RejectReasonPreconditionFailed,
			fmt.Sprintf("rfc %q is not terminal", record.ID), record.ID, before)
	}

	bytesFreed := recordFootprint(record, working.NudgeWindows[record.ID])
	delete(working.RFCs, record.ID)
	delete(working.NudgeWindows, record.ID)

	return evaluation{
		result: core.ApplyResult{
			Outcome: core.ApplyOutcomeAccepted,
			RFCID:   record.ID,
			Status:  before,
		},
		before:       before,
		after:        before,
		stateChanged: false,
		purgedBytes:  bytesFreed,
		metadata:     map[string]any{"bytes_freed": bytesFreed},
	}
}

func (a *Applier) targetRFC(working *core.StreamState, event core.Event) (*core.RFCRecord, evaluation, bool) {
	id := event.RFCID
	if id == "" {
		id = working.ActiveRFCID
	}
	record := working.RFC(id)
	if record == nil {
		return nil, rejected(core.RejectReasonUnknownRFC,
			fmt.Sprintf("rfc %q not found", id), id, ""), false
	}
	return record, evaluation{}, true
}

// checkSLA fires at most one automatic nudge per breach. The latch and the
// limiter window both live on the working copy, so they persist with the
// transition that exposed the breach.
func (a *Applier) checkSLA(ctx context.Context, working *core.StreamState, eval evaluation, locale string, now time.Time) (core.AuditEntry, bool) {
	record := working.RFC(eval.result.RFCID)
	if record == nil || record.Terminal() || record.BreachNotified {
		return core.AuditEntry{}, false
	}
	if record.SLADeadline == nil || !record.SLADeadline.Before(now) {
		return core.AuditEntry{}, false
	}

	record.BreachNotified = true
	a.incCounter(ctx, core.MetricSLABreachesTotal, map[string]string{"stream_id": working.StreamID})

	if a.Limiter == nil {
		return core.AuditEntry{}, false
	}
	decision := a.Limiter.TryNudge(working, record.ID, now)
	action := core.AuditActionNudgeSent
	metadata := map[string]any{"remaining": decision.Remaining}
	if !decision.Sent {
		action = core.AuditActionNudgeLimited
		metadata["retry_after_ms"] = decision.RetryAfter.Milliseconds()
	}

	entry := core.AuditEntry{
		ID:        uuid.NewString(),
		StreamID:  working.StreamID,
		Sequence:  working.NextAuditSeq(),
		Action:    action,
		RFCID:     record.ID,
		Before:    record.Status,
		After:     record.Status,
		Metadata:  metadata,
		CreatedAt: now,
	}

	if decision.Sent {
		a.dispatchNudge(ctx, working.StreamID, record, locale)
	}
	return entry, true
}

// dispatchNudge sends the escalation message. Failures degrade silently to a
// log line; the breach latch and limiter entry are already recorded.
func (a *Applier) dispatchNudge(ctx context.Context, streamID string, record *core.RFCRecord, locale string) {
	if a.Renderer == nil || a.Channel == nil {
		return
	}
	text, err := a.Renderer.Render(ctx, core.RenderInput{
		RFC:    record,
		Locale: strings.TrimSpace(locale),
		Kind:   core.RenderKindNudge,
	})
	if err != nil {
		a.logError("actor: nudge render failed", "stream_id", streamID, "rfc_id", record.ID, "error", err)
		return
	}
	if _, err := a.Channel.Send(ctx, streamID, text); err != nil {
		a.logError("actor: nudge send failed", "stream_id", streamID, "rfc_id", record.ID, "error", err)
	}
}

// reconcilePin converges the pinned card after an accepted transition. A
// changed or degraded pin is persisted with a follow-up write; the apply
// itself already committed.
func (a *Applier) reconcilePin(ctx context.Context, working *core.StreamState, locale string, now time.Time) {
	if a.Reconciler == nil {
		return
	}
	pinnedBefore := working.PinnedMessageID
	outcome, err := a.Reconciler.Reconcile(ctx, working, locale)
	if err != nil {
		a.logError("actor: pin reconcile failed", "stream_id", working.StreamID, "error", err)
		return
	}

	var entries []core.AuditEntry
	if outcome.Degraded {
		entries = append(entries, core.AuditEntry{
			ID:        uuid.NewString(),
			StreamID:  working.StreamID,
			Sequence:  working.NextAuditSeq(),
			Action:    core.AuditActionPinDegraded,
			RFCID:     working.ActiveRFCID,
			Metadata:  map[string]any{"reason": outcome.Reason},
			CreatedAt: now,
		})
	}

	if working.PinnedMessageID != pinnedBefore || len(entries) > 0 {
		working.UpdatedAt = now
		if err := a.Store.Upsert(ctx, working); err != nil {
			a.logError("actor: persist pin outcome failed", "stream_id", working.StreamID, "error", err)
			return
		}
	}
	a.appendAudit(ctx, entries...)
}

func (a *Applier) transitionEntry(working *core.StreamState, event core.Event, eval evaluation, now time.Time) core.AuditEntry {
	action := core.AuditActionEventAccepted
	if !eval.result.Accepted() {
		action = core.AuditActionEventRejected
	} else if event.Type == core.EventTypePurge {
		action = core.AuditActionPurge
	}

	metadata := map[string]any{
		"event_type":  string(event.Type),
		"delivery_id": event.DeliveryID,
	}
	if eval.result.Reason != core.RejectReasonNone {
		metadata["reason"] = string(eval.result.Reason)
		metadata["message"] = eval.result.Message
	}
	for key, value := range eval.metadata {
		metadata[key] = value
	}

	return core.AuditEntry{
		ID:        uuid.NewString(),
		StreamID:  working.StreamID,
		Sequence:  working.NextAuditSeq(),
		Action:    action,
		Actor:     event.Actor,
		RFCID:     eval.result.RFCID,
		Before:    eval.before,
		After:     eval.after,
		Metadata:  metadata,
		CreatedAt: now,
	}
}

// appendAudit is best effort after the stream record committed. The stream
// record is the source of truth; a failed audit write is logged, never
// unwound.
func (a *Applier) appendAudit(ctx context.Context, entries ...core.AuditEntry) {
	if a.Audit == nil {
		return
	}
	for _, entry := range entries {
		if err := a.Audit.Append(ctx, entry); err != nil {
			a.logError("actor: audit append failed",
				"stream_id", entry.StreamID, "sequence", entry.Sequence, "error", err)
		}
	}
}

func (a *Applier) loadState(ctx context.Context, streamID string) (*core.StreamState, error) {
	state, err := a.Store.Get(ctx, streamID)
	if err != nil {
		if errors.Is(err, core.ErrStreamNotFound) {
			return core.NewStreamState(streamID), nil
		}
		return nil, err
	}
	if state == nil {
		return core.NewStreamState(streamID), nil
	}
	return state, nil
}

func (a *Applier) dedupBound() int {
	if a != nil && a.DedupBound > 0 {
		return a.DedupBound
	}
	return defaultDedupBound
}

func (a *Applier) now() time.Time {
	if a != nil && a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

func (a *Applier) incCounter(ctx context.Context, name string, tags map[string]string) {
	if a == nil || a.Metrics == nil {
		return
	}
	a.Metrics.IncCounter(ctx, name, 1, tags)
}

func (a *Applier) logError(msg string, args ...any) {
	if a == nil || a.Logger == nil {
		return
	}
	a.Logger.Error(msg, args...)
}

func accepted(record *core.RFCRecord, before core.RFCStatus, metadata map[string]any) evaluation {
	return evaluation{
		result: core.ApplyResult{
			Outcome: core.ApplyOutcomeAccepted,
			RFCID:   record.ID,
			Status:  record.Status,
		},
		before:       before,
		after:        record.Status,
		stateChanged: true,
		metadata:     metadata,
	}
}

func rejected(reason core.RejectReason, message, rfcID string, before core.RFCStatus) evaluation {
	return evaluation{
		result: core.ApplyResult{
			Outcome: core.ApplyOutcomeRejected,
			Reason:  reason,
			Message: message,
			RFCID:   rfcID,
			Status:  before,
		},
		before: before,
		after:  before,
	}
}

func approveRejectReason(err error) core.RejectReason {
	switch {
	case errors.Is(err, core.ErrAlreadyApproved):
		return core.RejectReasonAlreadyApproved
	case errors.Is(err, core.ErrInvalidRFCStatusTransition):
		return core.RejectReasonIllegalTransition
	case errors.Is(err, core.ErrRFCNotFound):
		return core.RejectReasonUnknownRFC
	}
	return core.RejectReasonValidationError
}

func recordFootprint(record *core.RFCRecord, window []time.Time) int64 {
	payload := struct {
		Record *core.RFCRecord `json:"record"`
		Window []time.Time     `json:"window,omitempty"`
	}{Record: record, Window: window}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	return int64(len(raw))
}
