package medrecord

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for record, audit and package persistence.
//
// UpdateRecordVersioned and DeleteRecord must be paired with an
// AppendAuditEvent inside InTx: the service never commits a mutation
// without its audit entry.
type Repository interface {
	// Record operations
	CreateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
	// UpdateRecordVersioned persists record only if the stored version still
	// equals expectedVersion (a single conditional write, not
	// read-compare-write). record.Version must already carry the new value.
	UpdateRecordVersioned(ctx context.Context, record *Record, expectedVersion int) error
	DeleteRecord(ctx context.Context, id uuid.UUID) error
	ListRecords(ctx context.Context, filters RecordListFilters) ([]*Record, error)

	// Audit operations (append-only)
	AppendAuditEvent(ctx context.Context, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, entityID uuid.UUID) ([]*AuditEvent, error)

	// Package operations
	CreatePackage(ctx context.Context, pkg *Package) error
	ListPackages(ctx context.Context, direction PackageDirection) ([]*Package, error)

	// InTx runs fn inside one unit of work. Everything fn does through the
	// repository it receives is committed atomically or not at all.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// Identity is the resolved display identity of an actor.
type Identity struct {
	Name string
	Role string
}

// IdentityResolver resolves an actor id to a display name and role. It is
// consulted only to decorate audit events and stamp authorship.
type IdentityResolver interface {
	Resolve(ctx context.Context, actorID string) (Identity, error)
}

// FieldValidator is the external collaborator holding domain-specific
// required-field rules. The service calls it after its own generic gate.
type FieldValidator interface {
	ValidateFields(ctx context.Context, payload Payload) error
}

// RenderedDocument is the opaque output of a DocumentRenderer.
type RenderedDocument struct {
	FileName string
	Data     []byte
}

// DocumentRenderer converts a record into a binary artifact (e.g. a
// printable file) for inclusion in an export package.
type DocumentRenderer interface {
	Render(ctx context.Context, record *Record) (*RenderedDocument, error)
}

// DeleteAuthorizer answers whether an actor holds the elevated capability
// required to physically delete a record.
type DeleteAuthorizer interface {
	CanDelete(ctx context.Context, actorID string) (bool, error)
}

// ArtifactStore persists rendered artifacts durably and returns their
// location plus content hash.
type ArtifactStore interface {
	// Put stores data under a store-chosen key derived from recordID and
	// fileName, returning the stored path and the lowercase hex sha256 of
	// the bytes written.
	Put(ctx context.Context, recordID uuid.UUID, fileName string, data []byte) (path string, sha256 string, err error)
	// Open returns the raw bytes previously stored at path.
	Open(ctx context.Context, path string) ([]byte, error)
}
