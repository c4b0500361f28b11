package medrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// auditedDocument is the slice of a record that audit diffs cover. Status
// transitions are carried separately in StatusFrom/StatusTo, so the tree
// holds the payload, the archival and signature stamps, and the artifact
// reference.
type auditedDocument struct {
	Payload        Payload `json:"payload"`
	IsArchived     bool    `json:"is_archived"`
	SignedBy       string  `json:"signed_by,omitempty"`
	ArtifactPath   string  `json:"artifact_path,omitempty"`
	ArtifactSHA256 string  `json:"artifact_sha256,omitempty"`
}

// recordTree converts a record into a nested map tree for diffing. A nil
// record yields an empty tree, which makes create and delete diffs flatten
// the full document on one side.
func recordTree(r *Record) (map[string]any, error) {
	if r == nil {
		return map[string]any{}, nil
	}
	doc := auditedDocument{
		Payload:        r.Payload,
		IsArchived:     r.IsArchived,
		SignedBy:       r.SignedBy,
		ArtifactPath:   r.ArtifactPath,
		ArtifactSHA256: r.ArtifactSHA256,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build audit tree: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to build audit tree: %w", err)
	}
	return tree, nil
}

// newAuditEvent assembles an audit event for one mutation, resolving the
// actor's display identity at creation time. A resolver failure degrades
// to the raw actor id; it never blocks the mutation.
func (s *service) newAuditEvent(ctx context.Context, actorID string, entityID uuid.UUID, action AuditAction,
	statusFrom, statusTo RecordStatus, before, after *Record, expectedVersion, newVersion int) (*AuditEvent, error) {

	beforeTree, err := recordTree(before)
	if err != nil {
		return nil, err
	}
	afterTree, err := recordTree(after)
	if err != nil {
		return nil, err
	}
	changedBefore, changedAfter := DiffTrees(beforeTree, afterTree)

	identity := Identity{Name: actorID}
	if s.identity != nil {
		if resolved, err := s.identity.Resolve(ctx, actorID); err == nil {
			identity = resolved
		}
	}

	return &AuditEvent{
		ID:              uuid.New(),
		EntityType:      EntityTypeRecord,
		EntityID:        entityID,
		ActorID:         actorID,
		ActorName:       identity.Name,
		ActorRole:       identity.Role,
		Action:          action,
		StatusFrom:      statusFrom,
		StatusTo:        statusTo,
		Before:          changedBefore,
		After:           changedAfter,
		ExpectedVersion: expectedVersion,
		NewVersion:      newVersion,
		CreatedAt:       time.Now().UTC(),
	}, nil
}
