package devkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-review/core"
)

// ValidateStreamStoreConformance exercises the contract every stream store
// implementation must honor: miss behavior, full-record upsert, and delete.
func ValidateStreamStoreConformance(ctx context.Context, store core.StreamStore, streamID string) error {
	if store == nil {
		return fmt.Errorf("devkit: stream store is required")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return fmt.Errorf("devkit: stream id is required")
	}

	if _, err := store.Get(ctx, streamID); !errors.Is(err, core.ErrStreamNotFound) {
		return fmt.Errorf("devkit: missing stream should return ErrStreamNotFound, got %v", err)
	}

	state := core.NewStreamState(streamID)
	state.AuditSeq = 3
	state.UpdatedAt = time.Now().UTC()
	if err := store.Upsert(ctx, state); err != nil {
		return err
	}

	loaded, err := store.Get(ctx, streamID)
	if err != nil {
		return err
	}
	if loaded == nil || loaded.StreamID != streamID || loaded.AuditSeq != 3 {
		return fmt.Errorf("devkit: loaded stream does not match the written record")
	}

	if err := store.Delete(ctx, streamID); err != nil {
		return err
	}
	if _, err := store.Get(ctx, streamID); !errors.Is(err, core.ErrStreamNotFound) {
		return fmt.Errorf("devkit: deleted stream should return ErrStreamNotFound, got %v", err)
	}
	return nil
}

// ValidateAuditStoreConformance appends two entries and checks ordering and
// stream filtering on the list side.
func ValidateAuditStoreConformance(ctx context.Context, store core.AuditStore, streamID string) error {
	if store == nil {
		return fmt.Errorf("devkit: audit store is required")
	}
	streamID = strings.TrimSpace(streamID)
	if streamID == "" {
		return fmt.Errorf("devkit: stream id is required")
	}

	now := time.Now().UTC()
	for seq := int64(1); seq <= 2; seq++ {
		entry := core.AuditEntry{
			StreamID:  streamID,
			Sequence:  seq,
			Action:    core.AuditActionEventAccepted,
			CreatedAt: now.Add(time.Duration(seq) * time.Millisecond),
		}
		if err := store.Append(ctx, entry); err != nil {
			return err
		}
	}

	page, err := store.List(ctx, core.AuditFilter{StreamID: streamID})
	if err != nil {
		return err
	}
	if len(page.Items) != 2 {
		return fmt.Errorf("devkit: expected 2 audit entries, got %d", len(page.Items))
	}
	if page.Items[0].Sequence != 1 || page.Items[1].Sequence != 2 {
		return fmt.Errorf("devkit: audit entries are not ordered by sequence")
	}
	return nil
}

// ValidateChannelAPIConformance drives one send/pin/unpin cycle through the
// adapter under test.
func ValidateChannelAPIConformance(ctx context.Context, api core.ChannelAPI, streamID string) error {
	if api == nil {
		return fmt.Errorf("devkit: channel api is required")
	}
	messageID, err := api.Send(ctx, streamID, "conformance probe")
	if err != nil {
		return err
	}
	if strings.TrimSpace(messageID) == "" {
		return fmt.Errorf("devkit: send should return a message id")
	}
	if err := api.Pin(ctx, messageID); err != nil {
		return err
	}
	if err := api.Edit(ctx, messageID, "conformance probe edited"); err != nil {
		return err
	}
	return api.Unpin(ctx, messageID)
}
