package medrecord_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	medrecord "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/repo/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []medrecord.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []medrecord.Option{},
			expectError: true,
		},
		{
			name: "with repository should succeed",
			options: []medrecord.Option{
				medrecord.WithRepository(memory.New()),
			},
			expectError: false,
		},
		{
			name: "with repository and collaborators should succeed",
			options: []medrecord.Option{
				medrecord.WithRepository(memory.New()),
				medrecord.WithIdentityResolver(medrecord.NewNoopIdentityResolver()),
				medrecord.WithDeleteAuthorizer(medrecord.NewStaticDeleteAuthorizer("admin")),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := medrecord.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func setupTestService(t *testing.T) medrecord.Service {
	svc, err := medrecord.New(
		medrecord.WithRepository(memory.New()),
		medrecord.WithDeleteAuthorizer(medrecord.NewStaticDeleteAuthorizer("admin")),
	)
	require.NoError(t, err)
	require.NotNil(t, svc)

	return svc
}

func testPayload() medrecord.Payload {
	return medrecord.Payload{
		Identity: medrecord.IdentitySection{
			Name: "Ivanov I.I.",
			Unit: "2nd company",
		},
		Medical: medrecord.MedicalSection{
			Diagnosis: "shrapnel wound, left forearm",
		},
	}
}

func TestRecordLifecycle(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, medrecord.RecordStatusDraft, created.Status)
	assert.False(t, created.IsArchived)
	assert.Equal(t, "medic-1", created.CreatedBy)

	t.Run("update with set flag but empty detail is rejected", func(t *testing.T) {
		payload := testPayload()
		payload.Flags = []medrecord.Flag{{Name: "antibiotic", Set: true}}

		_, err := svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
			ID:              created.ID,
			Payload:         payload,
			ExpectedVersion: created.Version,
			ActorID:         "medic-1",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, medrecord.ErrValidation)

		// Nothing was applied.
		stored, err := svc.GetRecord(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.Version)
		assert.Empty(t, stored.Payload.Flags)
	})

	t.Run("update with filled detail bumps version", func(t *testing.T) {
		payload := testPayload()
		payload.Flags = []medrecord.Flag{{Name: "antibiotic", Set: true, Detail: "500mg"}}

		updated, err := svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
			ID:              created.ID,
			Payload:         payload,
			ExpectedVersion: 1,
			ActorID:         "medic-1",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		require.Len(t, updated.Payload.Flags, 1)
		assert.Equal(t, "500mg", updated.Payload.Flags[0].Detail)
	})

	t.Run("sign transitions to SIGNED and bumps version", func(t *testing.T) {
		signed, err := svc.SignRecord(ctx, medrecord.SignRecordRequest{
			ID:              created.ID,
			SignerName:      "Dr. Petrova",
			ExpectedVersion: 2,
			ActorID:         "doctor-1",
		})
		require.NoError(t, err)
		assert.Equal(t, medrecord.RecordStatusSigned, signed.Status)
		assert.Equal(t, 3, signed.Version)
		assert.Equal(t, "Dr. Petrova", signed.SignedBy)
		require.NotNil(t, signed.SignedAt)
	})

	t.Run("signed record refuses content edits", func(t *testing.T) {
		_, err := svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
			ID:              created.ID,
			Payload:         testPayload(),
			ExpectedVersion: 3,
			ActorID:         "medic-1",
		})
		assert.ErrorIs(t, err, medrecord.ErrLockedState)
	})

	t.Run("signing twice is an invalid transition", func(t *testing.T) {
		_, err := svc.SignRecord(ctx, medrecord.SignRecordRequest{
			ID:              created.ID,
			SignerName:      "Dr. Petrova",
			ExpectedVersion: 3,
			ActorID:         "doctor-1",
		})
		assert.ErrorIs(t, err, medrecord.ErrInvalidTransition)
	})

	t.Run("audit trail covers every mutation", func(t *testing.T) {
		events, err := svc.ListAuditEvents(ctx, created.ID)
		require.NoError(t, err)
		// create + rejected update leaves no event + update + sign
		require.Len(t, events, 3)

		byAction := map[medrecord.AuditAction]*medrecord.AuditEvent{}
		for _, e := range events {
			byAction[e.Action] = e
			assert.Equal(t, medrecord.EntityTypeRecord, e.EntityType)
			assert.Equal(t, created.ID, e.EntityID)
			assert.NotEmpty(t, e.ActorName)
		}

		createEvent := byAction[medrecord.AuditActionCreate]
		require.NotNil(t, createEvent)
		assert.Equal(t, 0, createEvent.ExpectedVersion)
		assert.Equal(t, 1, createEvent.NewVersion)
		assert.Empty(t, createEvent.Before)
		assert.Equal(t, "Ivanov I.I.", createEvent.After["payload.identity.name"])

		updateEvent := byAction[medrecord.AuditActionUpdate]
		require.NotNil(t, updateEvent)
		assert.Equal(t, 1, updateEvent.ExpectedVersion)
		assert.Equal(t, 2, updateEvent.NewVersion)
		// Unchanged paths are omitted from the diff.
		assert.NotContains(t, updateEvent.After, "payload.identity.name")
		assert.Contains(t, updateEvent.After, "payload.flags")

		signEvent := byAction[medrecord.AuditActionSign]
		require.NotNil(t, signEvent)
		assert.Equal(t, medrecord.RecordStatusDraft, signEvent.StatusFrom)
		assert.Equal(t, medrecord.RecordStatusSigned, signEvent.StatusTo)
		assert.Equal(t, "Dr. Petrova", signEvent.After["signed_by"])
	})
}

func TestAuditCoversArtifactReference(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	require.NoError(t, err)

	// An update that only attaches an artifact must still produce a
	// non-empty diff.
	artifactPath := "2026/01/02/doc.pdf"
	artifactSum := "ab12cd34"
	updated, err := svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
		ID:              created.ID,
		Payload:         testPayload(),
		ExpectedVersion: 1,
		ActorID:         "importer-1",
		ArtifactPath:    &artifactPath,
		ArtifactSHA256:  &artifactSum,
	})
	require.NoError(t, err)
	assert.Equal(t, artifactPath, updated.ArtifactPath)

	events, err := svc.ListAuditEvents(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var updateEvent *medrecord.AuditEvent
	for _, e := range events {
		if e.Action == medrecord.AuditActionUpdate {
			updateEvent = e
		}
	}
	require.NotNil(t, updateEvent)
	assert.Equal(t, artifactPath, updateEvent.After["artifact_path"])
	assert.Equal(t, artifactSum, updateEvent.After["artifact_sha256"])
	assert.NotContains(t, updateEvent.Before, "artifact_path")
}

func TestVersionConflict(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	require.NoError(t, err)

	// First writer wins.
	payload := testPayload()
	payload.Medical.Complaints = "pain on movement"
	_, err = svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
		ID:              created.ID,
		Payload:         payload,
		ExpectedVersion: 1,
		ActorID:         "medic-1",
	})
	require.NoError(t, err)

	// Second writer presents the stale version and loses.
	stale := testPayload()
	stale.Medical.Complaints = "no complaints"
	_, err = svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
		ID:              created.ID,
		Payload:         stale,
		ExpectedVersion: 1,
		ActorID:         "medic-2",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, medrecord.ErrVersionConflict)

	// A re-read shows the first writer's state untouched.
	stored, err := svc.GetRecord(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, "pain on movement", stored.Payload.Medical.Complaints)

	// The losing attempt left no audit trace.
	events, err := svc.ListAuditEvents(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestArchiveRecord(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	require.NoError(t, err)

	archived, err := svc.ArchiveRecord(ctx, medrecord.ArchiveRecordRequest{
		ID:              created.ID,
		ExpectedVersion: 1,
		ActorID:         "medic-1",
	})
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.Equal(t, 2, archived.Version)

	t.Run("archived record refuses edits", func(t *testing.T) {
		_, err := svc.UpdateRecord(ctx, medrecord.UpdateRecordRequest{
			ID:              created.ID,
			Payload:         testPayload(),
			ExpectedVersion: 2,
			ActorID:         "medic-1",
		})
		assert.ErrorIs(t, err, medrecord.ErrLockedState)
	})

	t.Run("archiving twice is refused", func(t *testing.T) {
		_, err := svc.ArchiveRecord(ctx, medrecord.ArchiveRecordRequest{
			ID:              created.ID,
			ExpectedVersion: 2,
			ActorID:         "medic-1",
		})
		assert.ErrorIs(t, err, medrecord.ErrLockedState)
	})
}

func TestDeleteRecord(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	require.NoError(t, err)

	t.Run("unauthorized actor is refused", func(t *testing.T) {
		err := svc.DeleteRecord(ctx, medrecord.DeleteRecordRequest{
			ID:      created.ID,
			ActorID: "medic-1",
		})
		assert.ErrorIs(t, err, medrecord.ErrForbidden)
	})

	t.Run("authorized delete removes the row but keeps the trail", func(t *testing.T) {
		err := svc.DeleteRecord(ctx, medrecord.DeleteRecordRequest{
			ID:      created.ID,
			ActorID: "admin",
		})
		require.NoError(t, err)

		_, err = svc.GetRecord(ctx, created.ID)
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)

		events, err := svc.ListAuditEvents(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)

		var deleteEvent *medrecord.AuditEvent
		for _, e := range events {
			if e.Action == medrecord.AuditActionDelete {
				deleteEvent = e
			}
		}
		require.NotNil(t, deleteEvent)
		assert.NotEmpty(t, deleteEvent.Before)
		assert.Empty(t, deleteEvent.After)
	})

	t.Run("deleting a missing record reports not found", func(t *testing.T) {
		err := svc.DeleteRecord(ctx, medrecord.DeleteRecordRequest{
			ID:      uuid.New(),
			ActorID: "admin",
		})
		assert.ErrorIs(t, err, medrecord.ErrRecordNotFound)
	})
}

func TestImportRecord(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	incoming := &medrecord.Record{
		ID:      uuid.New(),
		Version: 4,
		Status:  medrecord.RecordStatusSigned,
		Payload: testPayload(),
	}

	imported, err := svc.ImportRecord(ctx, incoming, "importer-1")
	require.NoError(t, err)
	assert.Equal(t, incoming.ID, imported.ID)
	assert.Equal(t, 4, imported.Version)
	assert.Equal(t, medrecord.RecordStatusSigned, imported.Status)

	stored, err := svc.GetRecord(ctx, incoming.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Version)

	t.Run("invalid payload is rejected", func(t *testing.T) {
		bad := &medrecord.Record{ID: uuid.New(), Version: 1}
		_, err := svc.ImportRecord(ctx, bad, "importer-1")
		assert.ErrorIs(t, err, medrecord.ErrValidation)
	})
}
