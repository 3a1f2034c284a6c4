package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func streamStateHandlers() repository.ModelHandlers[*streamStateRecord] {
	return repository.ModelHandlers[*streamStateRecord]{
		NewRecord: func() *streamStateRecord {
			return &streamStateRecord{}
		},
		GetID: func(record *streamStateRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.StreamID)
		},
		SetID: func(record *streamStateRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.StreamID = id.String()
		},
		GetIdentifier: func() string {
			return "stream_id"
		},
		GetIdentifierValue: func(record *streamStateRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.StreamID)
		},
	}
}

func auditEntryHandlers() repository.ModelHandlers[*auditEntryRecord] {
	return repository.ModelHandlers[*auditEntryRecord]{
		NewRecord: func() *auditEntryRecord {
			return &auditEntryRecord{}
		},
		GetID: func(record *auditEntryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *auditEntryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *auditEntryRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

// Stream ids are caller-supplied channel identifiers, not uuids; parseUUID
// degrades to uuid.Nil so the repository identifier path stays usable.
func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
