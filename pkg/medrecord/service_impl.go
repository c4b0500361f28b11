package medrecord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	repository Repository
	identity   IdentityResolver
	fields     FieldValidator
	authorizer DeleteAuthorizer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithIdentityResolver sets the resolver used to decorate audit events
func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(s *service) {
		s.identity = resolver
	}
}

// WithFieldValidator sets the domain-specific field validator
func WithFieldValidator(validator FieldValidator) Option {
	return func(s *service) {
		s.fields = validator
	}
}

// WithDeleteAuthorizer sets the capability check for physical deletes
func WithDeleteAuthorizer(authorizer DeleteAuthorizer) Option {
	return func(s *service) {
		s.authorizer = authorizer
	}
}

// New creates a new service instance with the given options. A repository
// is required; collaborators default to noop implementations and deletion
// defaults to denied for every actor.
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.identity == nil {
		s.identity = NewNoopIdentityResolver()
	}
	if s.fields == nil {
		s.fields = NewNoopFieldValidator()
	}
	if s.authorizer == nil {
		s.authorizer = NewStaticDeleteAuthorizer()
	}

	return s, nil
}

// Record operations

func (s *service) CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error) {
	if err := validatePayload(req.Payload); err != nil {
		return nil, err
	}
	if err := s.fields.ValidateFields(ctx, req.Payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &Record{
		ID:        uuid.New(),
		Version:   1,
		Status:    RecordStatusDraft,
		CreatedAt: now,
		CreatedBy: req.ActorID,
		UpdatedAt: now,
		UpdatedBy: req.ActorID,
		Payload:   req.Payload,
	}

	event, err := s.newAuditEvent(ctx, req.ActorID, record.ID, AuditActionCreate,
		"", RecordStatusDraft, nil, record, 0, record.Version)
	if err != nil {
		return nil, &RecordError{RecordID: record.ID, Op: "create", Err: err}
	}

	err = s.repository.InTx(ctx, func(repo Repository) error {
		if err := repo.CreateRecord(ctx, record); err != nil {
			return err
		}
		return repo.AppendAuditEvent(ctx, event)
	})
	if err != nil {
		return nil, &RecordError{RecordID: record.ID, Op: "create", Err: err}
	}

	return record, nil
}

func (s *service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repository.GetRecord(ctx, id)
}

func (s *service) ListRecords(ctx context.Context, filters RecordListFilters) ([]*Record, error) {
	return s.repository.ListRecords(ctx, filters)
}

func (s *service) UpdateRecord(ctx context.Context, req UpdateRecordRequest) (*Record, error) {
	current, err := s.repository.GetRecord(ctx, req.ID)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "update", Err: err}
	}
	if err := canUpdateRecord(current); err != nil {
		return nil, err
	}

	merged := mergePayload(current.Payload, req.Payload)
	if err := validatePayload(merged); err != nil {
		return nil, err
	}
	if err := s.fields.ValidateFields(ctx, merged); err != nil {
		return nil, err
	}

	updated := *current
	updated.Payload = merged
	updated.Version = req.ExpectedVersion + 1
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = req.ActorID
	if req.ArtifactPath != nil {
		updated.ArtifactPath = *req.ArtifactPath
	}
	if req.ArtifactSHA256 != nil {
		updated.ArtifactSHA256 = *req.ArtifactSHA256
	}

	event, err := s.newAuditEvent(ctx, req.ActorID, updated.ID, AuditActionUpdate,
		current.Status, updated.Status, current, &updated, req.ExpectedVersion, updated.Version)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "update", Err: err}
	}

	if err := s.commitMutation(ctx, &updated, req.ExpectedVersion, event); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) SignRecord(ctx context.Context, req SignRecordRequest) (*Record, error) {
	current, err := s.repository.GetRecord(ctx, req.ID)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "sign", Err: err}
	}
	if err := canSignRecord(current); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updated := *current
	updated.Status = RecordStatusSigned
	updated.SignedBy = req.SignerName
	updated.SignedAt = &now
	updated.Version = req.ExpectedVersion + 1
	updated.UpdatedAt = now
	updated.UpdatedBy = req.ActorID

	event, err := s.newAuditEvent(ctx, req.ActorID, updated.ID, AuditActionSign,
		current.Status, updated.Status, current, &updated, req.ExpectedVersion, updated.Version)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "sign", Err: err}
	}

	if err := s.commitMutation(ctx, &updated, req.ExpectedVersion, event); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) ArchiveRecord(ctx context.Context, req ArchiveRecordRequest) (*Record, error) {
	current, err := s.repository.GetRecord(ctx, req.ID)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "archive", Err: err}
	}
	if err := canArchiveRecord(current); err != nil {
		return nil, err
	}

	updated := *current
	updated.IsArchived = true
	updated.Version = req.ExpectedVersion + 1
	updated.UpdatedAt = time.Now().UTC()
	updated.UpdatedBy = req.ActorID

	event, err := s.newAuditEvent(ctx, req.ActorID, updated.ID, AuditActionArchive,
		current.Status, updated.Status, current, &updated, req.ExpectedVersion, updated.Version)
	if err != nil {
		return nil, &RecordError{RecordID: req.ID, Op: "archive", Err: err}
	}

	if err := s.commitMutation(ctx, &updated, req.ExpectedVersion, event); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *service) DeleteRecord(ctx context.Context, req DeleteRecordRequest) error {
	allowed, err := s.authorizer.CanDelete(ctx, req.ActorID)
	if err != nil {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: err}
	}
	if !allowed {
		return fmt.Errorf("%w: actor %s may not delete records", ErrForbidden, req.ActorID)
	}

	current, err := s.repository.GetRecord(ctx, req.ID)
	if err != nil {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: err}
	}

	// Terminal event: the row disappears, the audit entry stays behind.
	event, err := s.newAuditEvent(ctx, req.ActorID, current.ID, AuditActionDelete,
		current.Status, current.Status, current, nil, current.Version, current.Version)
	if err != nil {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: err}
	}

	err = s.repository.InTx(ctx, func(repo Repository) error {
		if err := repo.DeleteRecord(ctx, current.ID); err != nil {
			return err
		}
		return repo.AppendAuditEvent(ctx, event)
	})
	if err != nil {
		return &RecordError{RecordID: req.ID, Op: "delete", Err: err}
	}
	return nil
}

// ImportRecord persists an incoming record under its existing identity.
// Unlike CreateRecord it keeps the id, version, status and authorship
// stamps the record arrived with, so version history continues across
// store boundaries.
func (s *service) ImportRecord(ctx context.Context, record *Record, actorID string) (*Record, error) {
	if err := validatePayload(record.Payload); err != nil {
		return nil, err
	}
	if err := s.fields.ValidateFields(ctx, record.Payload); err != nil {
		return nil, err
	}

	imported := *record
	if imported.Version < 1 {
		imported.Version = 1
	}

	event, err := s.newAuditEvent(ctx, actorID, imported.ID, AuditActionCreate,
		"", imported.Status, nil, &imported, 0, imported.Version)
	if err != nil {
		return nil, &RecordError{RecordID: imported.ID, Op: "import", Err: err}
	}

	err = s.repository.InTx(ctx, func(repo Repository) error {
		if err := repo.CreateRecord(ctx, &imported); err != nil {
			return err
		}
		return repo.AppendAuditEvent(ctx, event)
	})
	if err != nil {
		return nil, &RecordError{RecordID: imported.ID, Op: "import", Err: err}
	}

	return &imported, nil
}

// commitMutation writes the record and its audit event in one unit of
// work. The conditional update carries the optimistic-version check; an
// audit append failure rolls the mutation back.
func (s *service) commitMutation(ctx context.Context, record *Record, expectedVersion int, event *AuditEvent) error {
	return s.repository.InTx(ctx, func(repo Repository) error {
		if err := repo.UpdateRecordVersioned(ctx, record, expectedVersion); err != nil {
			return err
		}
		return repo.AppendAuditEvent(ctx, event)
	})
}

// Audit trail

func (s *service) ListAuditEvents(ctx context.Context, entityID uuid.UUID) ([]*AuditEvent, error) {
	return s.repository.ListAuditEvents(ctx, entityID)
}

// Packages

func (s *service) ListPackages(ctx context.Context, direction PackageDirection) ([]*Package, error) {
	return s.repository.ListPackages(ctx, direction)
}

// RecordPackage persists the trace of one export or import operation and
// its audit event in a single unit of work. The summary lands in the
// event's After map.
func (s *service) RecordPackage(ctx context.Context, pkg *Package, actorID string, summary map[string]any) error {
	action := AuditActionExport
	if pkg.Direction == PackageDirectionImport {
		action = AuditActionImport
	}

	identity := Identity{Name: actorID}
	if resolved, err := s.identity.Resolve(ctx, actorID); err == nil {
		identity = resolved
	}

	event := &AuditEvent{
		ID:         uuid.New(),
		EntityType: EntityTypePackage,
		EntityID:   pkg.ID,
		ActorID:    actorID,
		ActorName:  identity.Name,
		ActorRole:  identity.Role,
		Action:     action,
		After:      summary,
		CreatedAt:  time.Now().UTC(),
	}

	return s.repository.InTx(ctx, func(repo Repository) error {
		if err := repo.CreatePackage(ctx, pkg); err != nil {
			return err
		}
		return repo.AppendAuditEvent(ctx, event)
	})
}
