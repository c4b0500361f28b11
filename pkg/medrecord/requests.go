package medrecord

import "github.com/google/uuid"

// Request/Response DTOs

// CreateRecordRequest contains parameters for creating a new record.
// No expected version: a new identity cannot conflict.
type CreateRecordRequest struct {
	Payload Payload
	ActorID string
}

// UpdateRecordRequest contains parameters for a content update. The
// incoming payload is merged over the stored one section by section and
// the merged result is validated before anything is persisted.
type UpdateRecordRequest struct {
	ID              uuid.UUID
	Payload         Payload
	ExpectedVersion int
	ActorID         string

	// Optional artifact attachment; nil leaves the stored reference unchanged.
	ArtifactPath   *string
	ArtifactSHA256 *string
}

// SignRecordRequest contains parameters for the DRAFT -> SIGNED transition.
type SignRecordRequest struct {
	ID              uuid.UUID
	SignerName      string
	ExpectedVersion int
	ActorID         string
}

// ArchiveRecordRequest contains parameters for archiving a record.
type ArchiveRecordRequest struct {
	ID              uuid.UUID
	ExpectedVersion int
	ActorID         string
}

// DeleteRecordRequest contains parameters for the admin-gated physical delete.
type DeleteRecordRequest struct {
	ID      uuid.UUID
	ActorID string
}
