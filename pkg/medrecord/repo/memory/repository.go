package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// Repository implements medrecord.Repository using in-memory storage.
// Mutations store copies, reads return copies, and InTx gives snapshot
// rollback so a failed unit of work leaves no trace.
type Repository struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	records  map[uuid.UUID]*medrecord.Record
	events   map[uuid.UUID][]*medrecord.AuditEvent
	packages []*medrecord.Package
}

// New creates a new in-memory repository
func New() medrecord.Repository {
	return &Repository{
		records: make(map[uuid.UUID]*medrecord.Record),
		events:  make(map[uuid.UUID][]*medrecord.AuditEvent),
	}
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *medrecord.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists", record.ID)
	}

	// Store a copy to avoid external modifications
	recordCopy := *record
	r.records[record.ID] = &recordCopy

	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*medrecord.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, medrecord.ErrRecordNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

func (r *Repository) UpdateRecordVersioned(ctx context.Context, record *medrecord.Record, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.records[record.ID]
	if !exists {
		return medrecord.ErrRecordNotFound
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: record %s is at version %d, expected %d",
			medrecord.ErrVersionConflict, record.ID, stored.Version, expectedVersion)
	}

	recordCopy := *record
	r.records[record.ID] = &recordCopy

	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return medrecord.ErrRecordNotFound
	}

	delete(r.records, id)
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, filters medrecord.RecordListFilters) ([]*medrecord.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*medrecord.Record
	for _, record := range r.records {
		if !matchesFilters(record, filters) {
			continue
		}
		recordCopy := *record
		result = append(result, &recordCopy)
	}

	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset != nil && *filters.Offset > 0 {
		if *filters.Offset >= len(result) {
			return []*medrecord.Record{}, nil
		}
		result = result[*filters.Offset:]
	}
	if filters.Limit != nil && *filters.Limit > 0 && *filters.Limit < len(result) {
		result = result[:*filters.Limit]
	}

	return result, nil
}

func matchesFilters(record *medrecord.Record, filters medrecord.RecordListFilters) bool {
	if record.IsArchived && !filters.IncludeArchived {
		return false
	}
	if filters.Status != nil && record.Status != *filters.Status {
		return false
	}
	if filters.CreatedBy != nil && record.CreatedBy != *filters.CreatedBy {
		return false
	}
	if filters.CreatedAfter != nil && record.CreatedAt.Before(*filters.CreatedAfter) {
		return false
	}
	if filters.CreatedBefore != nil && record.CreatedAt.After(*filters.CreatedBefore) {
		return false
	}
	return true
}

// Audit operations

func (r *Repository) AppendAuditEvent(ctx context.Context, event *medrecord.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	eventCopy := *event
	r.events[event.EntityID] = append(r.events[event.EntityID], &eventCopy)

	return nil
}

func (r *Repository) ListAuditEvents(ctx context.Context, entityID uuid.UUID) ([]*medrecord.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[entityID]
	result := make([]*medrecord.AuditEvent, 0, len(events))
	for _, event := range events {
		eventCopy := *event
		result = append(result, &eventCopy)
	}

	return result, nil
}

// Package operations

func (r *Repository) CreatePackage(ctx context.Context, pkg *medrecord.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pkgCopy := *pkg
	r.packages = append(r.packages, &pkgCopy)

	return nil
}

func (r *Repository) ListPackages(ctx context.Context, direction medrecord.PackageDirection) ([]*medrecord.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*medrecord.Package
	for _, pkg := range r.packages {
		if direction != "" && pkg.Direction != direction {
			continue
		}
		pkgCopy := *pkg
		result = append(result, &pkgCopy)
	}

	return result, nil
}

// InTx serializes units of work and restores a snapshot of the whole
// store if fn fails, so partial mutations never become visible.
func (r *Repository) InTx(ctx context.Context, fn func(medrecord.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	records, events, packages := r.snapshot()

	if err := fn(r); err != nil {
		r.restore(records, events, packages)
		return err
	}
	return nil
}

func (r *Repository) snapshot() (map[uuid.UUID]*medrecord.Record, map[uuid.UUID][]*medrecord.AuditEvent, []*medrecord.Package) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make(map[uuid.UUID]*medrecord.Record, len(r.records))
	for id, record := range r.records {
		records[id] = record
	}
	events := make(map[uuid.UUID][]*medrecord.AuditEvent, len(r.events))
	for id, list := range r.events {
		events[id] = append([]*medrecord.AuditEvent(nil), list...)
	}
	packages := append([]*medrecord.Package(nil), r.packages...)

	return records, events, packages
}

func (r *Repository) restore(records map[uuid.UUID]*medrecord.Record, events map[uuid.UUID][]*medrecord.AuditEvent, packages []*medrecord.Package) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = records
	r.events = events
	r.packages = packages
}
