package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// txStarter is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx (savepoints).
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements medrecord.Repository using PostgreSQL. The
// optimistic check is a single conditional UPDATE guarded on the stored
// version; the row-level lock it takes serializes conflicting writers.
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) medrecord.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) medrecord.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "record") {
				return fmt.Errorf("record already exists")
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return medrecord.ErrRecordNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *medrecord.Record) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO records (
			id, version, status, is_archived, created_at, created_by,
			updated_at, updated_by, signed_by, signed_at, payload,
			artifact_path, artifact_sha256
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		record.ID, record.Version, record.Status, record.IsArchived,
		record.CreatedAt, record.CreatedBy, record.UpdatedAt, record.UpdatedBy,
		nullIfEmpty(record.SignedBy), record.SignedAt, payload,
		nullIfEmpty(record.ArtifactPath), nullIfEmpty(record.ArtifactSHA256))
	if err != nil {
		return r.handlePostgresError("create_record", err)
	}

	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*medrecord.Record, error) {
	query := `
		SELECT id, version, status, is_archived, created_at, created_by,
		       updated_at, updated_by, signed_by, signed_at, payload,
		       artifact_path, artifact_sha256
		FROM records
		WHERE id = $1`

	return r.scanRecord(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) UpdateRecordVersioned(ctx context.Context, record *medrecord.Record, expectedVersion int) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		UPDATE records
		SET version = $3, status = $4, is_archived = $5, updated_at = $6,
		    updated_by = $7, signed_by = $8, signed_at = $9, payload = $10,
		    artifact_path = $11, artifact_sha256 = $12
		WHERE id = $1 AND version = $2`

	tag, err := r.db.Exec(ctx, query,
		record.ID, expectedVersion,
		record.Version, record.Status, record.IsArchived, record.UpdatedAt,
		record.UpdatedBy, nullIfEmpty(record.SignedBy), record.SignedAt, payload,
		nullIfEmpty(record.ArtifactPath), nullIfEmpty(record.ArtifactSHA256))
	if err != nil {
		return r.handlePostgresError("update_record", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var current int
		err := r.db.QueryRow(ctx, "SELECT version FROM records WHERE id = $1", record.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return medrecord.ErrRecordNotFound
		}
		if err != nil {
			return r.handlePostgresError("update_record", err)
		}
		return fmt.Errorf("%w: record %s is at version %d, expected %d",
			medrecord.ErrVersionConflict, record.ID, current, expectedVersion)
	}

	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM records WHERE id = $1", id)
	if err != nil {
		return r.handlePostgresError("delete_record", err)
	}
	if tag.RowsAffected() == 0 {
		return medrecord.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) ListRecords(ctx context.Context, filters medrecord.RecordListFilters) ([]*medrecord.Record, error) {
	query := `
		SELECT id, version, status, is_archived, created_at, created_by,
		       updated_at, updated_by, signed_by, signed_at, payload,
		       artifact_path, artifact_sha256
		FROM records`

	var conditions []string
	var args []interface{}

	if !filters.IncludeArchived {
		conditions = append(conditions, "is_archived = FALSE")
	}
	if filters.Status != nil {
		args = append(args, *filters.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.CreatedBy != nil {
		args = append(args, *filters.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filters.CreatedAfter != nil {
		args = append(args, *filters.CreatedAfter)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.CreatedBefore != nil {
		args = append(args, *filters.CreatedBefore)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filters.Limit != nil && *filters.Limit > 0 {
		args = append(args, *filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset != nil && *filters.Offset > 0 {
		args = append(args, *filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_records", err)
	}
	defer rows.Close()

	var result []*medrecord.Record
	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (r *Repository) scanRecord(row pgx.Row) (*medrecord.Record, error) {
	var record medrecord.Record
	var payload []byte
	var signedBy, artifactPath, artifactSHA *string

	err := row.Scan(&record.ID, &record.Version, &record.Status, &record.IsArchived,
		&record.CreatedAt, &record.CreatedBy, &record.UpdatedAt, &record.UpdatedBy,
		&signedBy, &record.SignedAt, &payload, &artifactPath, &artifactSHA)
	if err != nil {
		return nil, r.handlePostgresError("scan_record", err)
	}

	if err := json.Unmarshal(payload, &record.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	record.SignedBy = deref(signedBy)
	record.ArtifactPath = deref(artifactPath)
	record.ArtifactSHA256 = deref(artifactSHA)

	return &record, nil
}

// Audit operations

func (r *Repository) AppendAuditEvent(ctx context.Context, event *medrecord.AuditEvent) error {
	before, err := json.Marshal(event.Before)
	if err != nil {
		return fmt.Errorf("failed to marshal audit before: %w", err)
	}
	after, err := json.Marshal(event.After)
	if err != nil {
		return fmt.Errorf("failed to marshal audit after: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, entity_type, entity_id, actor_id, actor_name, actor_role,
			action, status_from, status_to, before, after,
			expected_version, new_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		event.ID, event.EntityType, event.EntityID, event.ActorID, event.ActorName,
		event.ActorRole, event.Action, event.StatusFrom, event.StatusTo,
		before, after, event.ExpectedVersion, event.NewVersion, event.CreatedAt)
	if err != nil {
		return r.handlePostgresError("append_audit_event", err)
	}

	return nil
}

func (r *Repository) ListAuditEvents(ctx context.Context, entityID uuid.UUID) ([]*medrecord.AuditEvent, error) {
	query := `
		SELECT id, entity_type, entity_id, actor_id, actor_name, actor_role,
		       action, status_from, status_to, before, after,
		       expected_version, new_version, created_at
		FROM audit_events
		WHERE entity_id = $1
		ORDER BY created_at, new_version`

	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, r.handlePostgresError("list_audit_events", err)
	}
	defer rows.Close()

	var result []*medrecord.AuditEvent
	for rows.Next() {
		var event medrecord.AuditEvent
		var before, after []byte
		err := rows.Scan(&event.ID, &event.EntityType, &event.EntityID,
			&event.ActorID, &event.ActorName, &event.ActorRole, &event.Action,
			&event.StatusFrom, &event.StatusTo, &before, &after,
			&event.ExpectedVersion, &event.NewVersion, &event.CreatedAt)
		if err != nil {
			return nil, r.handlePostgresError("scan_audit_event", err)
		}
		if err := json.Unmarshal(before, &event.Before); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit before: %w", err)
		}
		if err := json.Unmarshal(after, &event.After); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit after: %w", err)
		}
		result = append(result, &event)
	}
	return result, rows.Err()
}

// Package operations

func (r *Repository) CreatePackage(ctx context.Context, pkg *medrecord.Package) error {
	query := `
		INSERT INTO packages (
			id, direction, format, path, sha256, file_count, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		pkg.ID, pkg.Direction, pkg.Format, pkg.Path, pkg.SHA256,
		pkg.FileCount, pkg.CreatedBy, pkg.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create_package", err)
	}

	return nil
}

func (r *Repository) ListPackages(ctx context.Context, direction medrecord.PackageDirection) ([]*medrecord.Package, error) {
	query := `
		SELECT id, direction, format, path, sha256, file_count, created_by, created_at
		FROM packages`
	var args []interface{}
	if direction != "" {
		query += " WHERE direction = $1"
		args = append(args, direction)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list_packages", err)
	}
	defer rows.Close()

	var result []*medrecord.Package
	for rows.Next() {
		var pkg medrecord.Package
		err := rows.Scan(&pkg.ID, &pkg.Direction, &pkg.Format, &pkg.Path,
			&pkg.SHA256, &pkg.FileCount, &pkg.CreatedBy, &pkg.CreatedAt)
		if err != nil {
			return nil, r.handlePostgresError("scan_package", err)
		}
		result = append(result, &pkg)
	}
	return result, rows.Err()
}

// InTx runs fn inside a database transaction. When the underlying DBTX is
// already a transaction, pgx nests via savepoints.
func (r *Repository) InTx(ctx context.Context, fn func(medrecord.Repository) error) error {
	starter, ok := r.db.(txStarter)
	if !ok {
		return fn(r)
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
