package devkit

import (
	"time"

	"github.com/goliatone/go-review/core"
)

// NewStreamFixture seeds a stream with one RFC in the given status, wired as
// the active RFC when the status is not terminal.
func NewStreamFixture(streamID, rfcID string, status core.RFCStatus, now time.Time) *core.StreamState {
	state := core.NewStreamState(streamID)
	record := &core.RFCRecord{
		ID:              rfcID,
		Title:           "Fixture change proposal",
		StreamID:        streamID,
		Status:          status,
		ApprovalsNeeded: 2,
		CreatedAt:       now.Add(-time.Hour),
		UpdatedAt:       now,
	}
	state.RFCs[rfcID] = record
	if !status.Terminal() {
		state.ActiveRFCID = rfcID
	}
	state.UpdatedAt = now
	return state
}

// NewEventFixture builds a keyed event of the given type against the fixture
// stream. "new" events carry the quorum and title the state machine requires.
func NewEventFixture(eventType core.EventType, streamID, deliveryID, rfcID string, now time.Time) core.Event {
	event := core.Event{
		StreamID:   streamID,
		DeliveryID: deliveryID,
		Type:       eventType,
		RFCID:      rfcID,
		ReceivedAt: now,
	}
	switch eventType {
	case core.EventTypeNew:
		event.Title = "Fixture change proposal"
		event.ApprovalsNeeded = 2
	case core.EventTypeApprove:
		event.Actor = "reviewer-1"
	}
	return event
}

// NewBreachedStreamFixture seeds a ready stream whose SLA deadline already
// passed, for nudge and escalation tests.
func NewBreachedStreamFixture(streamID, rfcID string, now time.Time) *core.StreamState {
	state := NewStreamFixture(streamID, rfcID, core.RFCStatusReadyForReview, now)
	deadline := now.Add(-time.Minute)
	state.RFCs[rfcID].SLADeadline = &deadline
	return state
}
