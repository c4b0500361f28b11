package medrecord

import (
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the domain type for record lifecycle states.
type RecordStatus string

// Record status constants (typed).
const (
	RecordStatusDraft  RecordStatus = "DRAFT"
	RecordStatusSigned RecordStatus = "SIGNED"
)

// AuditAction identifies the mutation that produced an audit event.
type AuditAction string

// Audit action constants (typed).
const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionSign    AuditAction = "sign"
	AuditActionArchive AuditAction = "archive"
	AuditActionDelete  AuditAction = "delete"
	AuditActionExport  AuditAction = "export"
	AuditActionImport  AuditAction = "import"
)

// PackageDirection distinguishes exported packages from imported ones.
type PackageDirection string

const (
	PackageDirectionExport PackageDirection = "export"
	PackageDirectionImport PackageDirection = "import"
)

// Entity types stamped on audit events.
const (
	EntityTypeRecord  = "record"
	EntityTypePackage = "package"
)

// Record is the aggregate root: a versioned clinical record.
//
// Version starts at 1 and is incremented by exactly 1 on every
// successful mutation; it doubles as the optimistic-concurrency token.
// Once Status is SIGNED or IsArchived is set, payload edits are refused.
type Record struct {
	ID             uuid.UUID    `json:"id"`
	Version        int          `json:"version"`
	Status         RecordStatus `json:"status"`
	IsArchived     bool         `json:"is_archived"`
	CreatedAt      time.Time    `json:"created_at"`
	CreatedBy      string       `json:"created_by"`
	UpdatedAt      time.Time    `json:"updated_at"`
	UpdatedBy      string       `json:"updated_by"`
	SignedBy       string       `json:"signed_by,omitempty"`
	SignedAt       *time.Time   `json:"signed_at,omitempty"`
	Payload        Payload      `json:"payload"`
	ArtifactPath   string       `json:"artifact_path,omitempty"`
	ArtifactSHA256 string       `json:"artifact_sha256,omitempty"`
}

// Payload is the domain content of a record, grouped into named sections.
type Payload struct {
	Identity    IdentitySection `json:"identity"`
	Medical     MedicalSection  `json:"medical"`
	Flags       []Flag          `json:"flags,omitempty"`
	Annotations []Annotation    `json:"annotations,omitempty"`
	Extra       map[string]any  `json:"extra,omitempty"`
}

// IdentitySection carries who the record is about.
type IdentitySection struct {
	Name           string `json:"name"`
	Unit           string `json:"unit"`
	Gender         string `json:"gender,omitempty"`
	BirthDate      string `json:"birth_date,omitempty"`
	PersonalNumber string `json:"personal_number,omitempty"`
}

// MedicalSection carries the free-text medical content.
type MedicalSection struct {
	Diagnosis    string `json:"diagnosis"`
	Complaints   string `json:"complaints,omitempty"`
	HelpProvided string `json:"help_provided,omitempty"`
	Evacuation   string `json:"evacuation,omitempty"`
}

// Flag is a boolean marker with a paired detail field. When Set is true
// the Detail must be filled in (e.g. antibiotic administered -> dose).
type Flag struct {
	Name   string `json:"name"`
	Set    bool   `json:"set"`
	Detail string `json:"detail,omitempty"`
}

// Annotation is a geometric mark on the record's body diagram. X and Y
// are normalized to the closed unit interval.
type Annotation struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Note string  `json:"note,omitempty"`
}

// AuditEvent is an append-only, immutable trace of one mutation.
//
// Actor name and role are resolved and copied in at event-creation time,
// never stored by reference. Before and After hold the flattened dotted
// paths whose values differ; unchanged paths are omitted.
type AuditEvent struct {
	ID              uuid.UUID      `json:"id"`
	EntityType      string         `json:"entity_type"`
	EntityID        uuid.UUID      `json:"entity_id"`
	ActorID         string         `json:"actor_id"`
	ActorName       string         `json:"actor_name"`
	ActorRole       string         `json:"actor_role"`
	Action          AuditAction    `json:"action"`
	StatusFrom      RecordStatus   `json:"status_from,omitempty"`
	StatusTo        RecordStatus   `json:"status_to,omitempty"`
	Before          map[string]any `json:"before,omitempty"`
	After           map[string]any `json:"after,omitempty"`
	ExpectedVersion int            `json:"expected_version"`
	NewVersion      int            `json:"new_version"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Package is the persisted trace of one export or import operation.
type Package struct {
	ID        uuid.UUID        `json:"id"`
	Direction PackageDirection `json:"direction"`
	Format    string           `json:"format"`
	Path      string           `json:"path"`
	SHA256    string           `json:"sha256"`
	FileCount int              `json:"file_count"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// RecordListFilters defines filtering options for listing records.
type RecordListFilters struct {
	Status          *RecordStatus
	CreatedBy       *string
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	IncludeArchived bool
	Limit           *int
	Offset          *int
}
