package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	medrecord "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/repo/memory"
)

func newRecord(by string) *medrecord.Record {
	now := time.Now().UTC()
	return &medrecord.Record{
		ID:        uuid.New(),
		Version:   1,
		Status:    medrecord.RecordStatusDraft,
		CreatedAt: now,
		CreatedBy: by,
		UpdatedAt: now,
		UpdatedBy: by,
		Payload: medrecord.Payload{
			Identity: medrecord.IdentitySection{Name: "Ivanov I.I.", Unit: "2nd company"},
			Medical:  medrecord.MedicalSection{Diagnosis: "shrapnel wound"},
		},
	}
}

func TestRecordCRUD(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	record := newRecord("medic-1")
	require.NoError(t, repo.CreateRecord(ctx, record))

	t.Run("duplicate create fails", func(t *testing.T) {
		assert.Error(t, repo.CreateRecord(ctx, record))
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)

		got.Payload.Identity.Name = "mutated"
		again, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ivanov I.I.", again.Payload.Identity.Name)
	})

	t.Run("get missing record", func(t *testing.T) {
		_, err := repo.GetRecord(ctx, uuid.New())
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		require.NoError(t, repo.DeleteRecord(ctx, record.ID))
		_, err := repo.GetRecord(ctx, record.ID)
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)
		assert.ErrorIs(t, repo.DeleteRecord(ctx, record.ID), medrecord.ErrRecordNotFound)
	})
}

func TestUpdateRecordVersioned(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	record := newRecord("medic-1")
	require.NoError(t, repo.CreateRecord(ctx, record))

	t.Run("matching version succeeds", func(t *testing.T) {
		updated := *record
		updated.Version = 2
		updated.Payload.Medical.Complaints = "pain"
		require.NoError(t, repo.UpdateRecordVersioned(ctx, &updated, 1))

		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "pain", got.Payload.Medical.Complaints)
	})

	t.Run("stale version conflicts and changes nothing", func(t *testing.T) {
		stale := *record
		stale.Version = 2
		stale.Payload.Medical.Complaints = "stale write"
		err := repo.UpdateRecordVersioned(ctx, &stale, 1)
		assert.ErrorIs(t, err, medrecord.ErrVersionConflict)

		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "pain", got.Payload.Medical.Complaints)
	})

	t.Run("missing record", func(t *testing.T) {
		ghost := newRecord("medic-1")
		err := repo.UpdateRecordVersioned(ctx, ghost, 1)
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)
	})
}

func TestListRecords(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		r := newRecord("medic-1")
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 4 {
			r.IsArchived = true
		}
		require.NoError(t, repo.CreateRecord(ctx, r))
	}

	t.Run("archived records are hidden by default", func(t *testing.T) {
		records, err := repo.ListRecords(ctx, medrecord.RecordListFilters{})
		require.NoError(t, err)
		assert.Len(t, records, 4)
	})

	t.Run("include archived", func(t *testing.T) {
		records, err := repo.ListRecords(ctx, medrecord.RecordListFilters{IncludeArchived: true})
		require.NoError(t, err)
		assert.Len(t, records, 5)
	})

	t.Run("newest first with limit and offset", func(t *testing.T) {
		limit, offset := 2, 1
		records, err := repo.ListRecords(ctx, medrecord.RecordListFilters{
			Limit:  &limit,
			Offset: &offset,
		})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))
	})

	t.Run("filter by creator", func(t *testing.T) {
		other := "medic-2"
		records, err := repo.ListRecords(ctx, medrecord.RecordListFilters{CreatedBy: &other})
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestAuditEvents(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	entityID := uuid.New()
	for i := 0; i < 3; i++ {
		event := &medrecord.AuditEvent{
			ID:         uuid.New(),
			EntityType: medrecord.EntityTypeRecord,
			EntityID:   entityID,
			ActorID:    "medic-1",
			Action:     medrecord.AuditActionUpdate,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, repo.AppendAuditEvent(ctx, event))
	}

	events, err := repo.ListAuditEvents(ctx, entityID)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	other, err := repo.ListAuditEvents(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestInTx(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	committed := newRecord("medic-1")
	require.NoError(t, repo.CreateRecord(ctx, committed))

	t.Run("commit applies all writes", func(t *testing.T) {
		fresh := newRecord("medic-1")
		err := repo.InTx(ctx, func(tx medrecord.Repository) error {
			if err := tx.CreateRecord(ctx, fresh); err != nil {
				return err
			}
			return tx.AppendAuditEvent(ctx, &medrecord.AuditEvent{
				ID:       uuid.New(),
				EntityID: fresh.ID,
				Action:   medrecord.AuditActionCreate,
			})
		})
		require.NoError(t, err)

		_, err = repo.GetRecord(ctx, fresh.ID)
		assert.NoError(t, err)
		events, err := repo.ListAuditEvents(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("error rolls back every write", func(t *testing.T) {
		fresh := newRecord("medic-1")
		boom := errors.New("boom")
		err := repo.InTx(ctx, func(tx medrecord.Repository) error {
			if err := tx.CreateRecord(ctx, fresh); err != nil {
				return err
			}
			if err := tx.DeleteRecord(ctx, committed.ID); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		// The new record is gone and the deleted one is back.
		_, err = repo.GetRecord(ctx, fresh.ID)
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)
		_, err = repo.GetRecord(ctx, committed.ID)
		assert.NoError(t, err)
	})
}

func TestPackages(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	for _, dir := range []medrecord.PackageDirection{
		medrecord.PackageDirectionExport,
		medrecord.PackageDirectionExport,
		medrecord.PackageDirectionImport,
	} {
		require.NoError(t, repo.CreatePackage(ctx, &medrecord.Package{
			ID:        uuid.New(),
			Direction: dir,
			Format:    "zip",
			CreatedAt: time.Now().UTC(),
		}))
	}

	exports, err := repo.ListPackages(ctx, medrecord.PackageDirectionExport)
	require.NoError(t, err)
	assert.Len(t, exports, 2)

	imports, err := repo.ListPackages(ctx, medrecord.PackageDirectionImport)
	require.NoError(t, err)
	assert.Len(t, imports, 1)
}
