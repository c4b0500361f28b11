package medrecord

import (
	"context"

	"github.com/google/uuid"
)

// Service is the public contract of the versioned-record store. Every
// mutating call takes the caller's expected version explicitly (except
// create and delete) and produces exactly one audit event on success.
type Service interface {
	// Record operations
	CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
	ListRecords(ctx context.Context, filters RecordListFilters) ([]*Record, error)
	UpdateRecord(ctx context.Context, req UpdateRecordRequest) (*Record, error)
	SignRecord(ctx context.Context, req SignRecordRequest) (*Record, error)
	ArchiveRecord(ctx context.Context, req ArchiveRecordRequest) (*Record, error)
	DeleteRecord(ctx context.Context, req DeleteRecordRequest) error

	// ImportRecord persists an incoming record under its existing identity
	// (id, version, stamps preserved). Used by the package importer; runs
	// the same validation gate and audit discipline as CreateRecord.
	ImportRecord(ctx context.Context, record *Record, actorID string) (*Record, error)

	// Audit trail (read side; writes happen with the mutations)
	ListAuditEvents(ctx context.Context, entityID uuid.UUID) ([]*AuditEvent, error)

	// Package history
	ListPackages(ctx context.Context, direction PackageDirection) ([]*Package, error)

	// RecordPackage persists the trace of one export or import operation
	// together with its audit event in a single unit of work. Used by the
	// pack exporter and importer.
	RecordPackage(ctx context.Context, pkg *Package, actorID string, summary map[string]any) error
}
