package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-review/core"
)

// InboundRequest is one raw delivery from the transport layer.
type InboundRequest struct {
	StreamID   string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
	ReceivedAt time.Time
}

// InboundResult is what the transport responder needs: an HTTP status and
// the apply outcome with its rejection reason verbatim.
type InboundResult struct {
	Accepted   bool
	StatusCode int
	Result     core.ApplyResult
	Metadata   map[string]any
}

// eventPayload is the wire shape of an inbound event body.
type eventPayload struct {
	StreamID        string         `json:"stream_id"`
	DeliveryID      string         `json:"delivery_id"`
	Type            string         `json:"type"`
	RFCID           string         `json:"rfc_id"`
	Actor           string         `json:"actor"`
	Title           string         `json:"title"`
	ApprovalsNeeded int            `json:"approvals_needed"`
	SLADeadline     *time.Time     `json:"sla_deadline"`
	Locale          string         `json:"locale"`
	Payload         map[string]any `json:"payload"`
}

// Dispatcher turns verified inbound requests into lifecycle events and hands
// them to the per-stream applier. Delivery dedup lives in the stream record
// itself, so the dispatcher carries no claim ledger of its own.
type Dispatcher struct {
	Verifier  Verifier
	Applier   core.EventApplier
	ExtractID DeliveryIDExtractor
	Logger    core.Logger
	Now       func() time.Time
}

func NewDispatcher(verifier Verifier, applier core.EventApplier) *Dispatcher {
	return &Dispatcher{
		Verifier:  verifier,
		Applier:   applier,
		ExtractID: DefaultDeliveryIDExtractor,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req InboundRequest) (InboundResult, error) {
	if d == nil || d.Applier == nil {
		return InboundResult{}, ingressInternal("ingress: dispatcher requires an applier", nil)
	}

	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, req); err != nil {
			return InboundResult{
					StatusCode: http.StatusUnauthorized,
					Metadata:   map[string]any{"rejected": true},
				}, ingressWrapError(
					err,
					goerrors.CategoryAuth,
					"ingress: request verification failed",
					http.StatusUnauthorized,
					core.ReviewErrorUnauthorized,
					map[string]any{"stream_id": strings.TrimSpace(req.StreamID)},
				)
		}
	}

	event, err := d.decode(req)
	if err != nil {
		return InboundResult{StatusCode: http.StatusBadRequest}, err
	}

	result, err := d.Applier.Apply(ctx, event)
	if err != nil {
		return InboundResult{StatusCode: http.StatusBadGateway}, ingressWrapError(
			err,
			goerrors.CategoryOperation,
			"ingress: event apply failed",
			http.StatusBadGateway,
			core.ReviewErrorExternalCall,
			map[string]any{"stream_id": event.StreamID, "delivery_id": event.DeliveryID},
		)
	}

	metadata := map[string]any{
		"stream_id":   event.StreamID,
		"delivery_id": event.DeliveryID,
	}
	if result.Deduped {
		metadata["deduped"] = true
	}
	if !result.Accepted() {
		metadata["reason"] = string(result.Reason)
		metadata["message"] = result.Message
	}

	return InboundResult{
		Accepted:   result.Accepted(),
		StatusCode: statusForResult(result),
		Result:     result,
		Metadata:   metadata,
	}, nil
}

func (d *Dispatcher) decode(req InboundRequest) (core.Event, error) {
	var payload eventPayload
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			return core.Event{}, ingressWrapError(
				err,
				goerrors.CategoryBadInput,
				"ingress: decode event payload",
				http.StatusBadRequest,
				core.ReviewErrorBadInput,
				map[string]any{"stream_id": strings.TrimSpace(req.StreamID)},
			)
		}
	}

	streamID := strings.TrimSpace(payload.StreamID)
	if streamID == "" {
		streamID = strings.TrimSpace(req.StreamID)
	}

	deliveryID := strings.TrimSpace(payload.DeliveryID)
	if deliveryID == "" {
		extractor := d.ExtractID
		if extractor == nil {
			extractor = DefaultDeliveryIDExtractor
		}
		extracted, err := extractor(req)
		if err != nil {
			return core.Event{}, ingressBadInput(err.Error(), map[string]any{"stream_id": streamID})
		}
		deliveryID = extracted
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = d.now()
	}

	event := core.Event{
		StreamID:        streamID,
		DeliveryID:      deliveryID,
		Type:            core.EventType(strings.TrimSpace(strings.ToLower(payload.Type))),
		RFCID:           strings.TrimSpace(payload.RFCID),
		Actor:           strings.TrimSpace(payload.Actor),
		Title:           strings.TrimSpace(payload.Title),
		ApprovalsNeeded: payload.ApprovalsNeeded,
		SLADeadline:     payload.SLADeadline,
		Locale:          strings.TrimSpace(payload.Locale),
		Payload:         payload.Payload,
		ReceivedAt:      receivedAt.UTC(),
	}
	if err := event.Validate(); err != nil {
		return core.Event{}, ingressBadInput(
			fmt.Sprintf("ingress: invalid event: %v", err),
			map[string]any{"stream_id": streamID, "delivery_id": deliveryID},
		)
	}
	return event, nil
}

// statusForResult maps an apply outcome to the transport response. The
// rejection reason itself travels verbatim in the result metadata.
func statusForResult(result core.ApplyResult) int {
	if result.Accepted() {
		return http.StatusOK
	}
	switch result.Reason {
	case core.RejectReasonValidationError:
		return http.StatusBadRequest
	case core.RejectReasonUnknownRFC:
		return http.StatusNotFound
	case core.RejectReasonAlreadyApproved, core.RejectReasonIllegalTransition, core.RejectReasonPreconditionFailed:
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
