package medrecord_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	medrecord "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/repo/memory"
)

// Validation is exercised through CreateRecord: the gate runs before any
// persistence, so a failing payload must leave the store empty.
func TestPayloadValidation(t *testing.T) {
	svc, err := medrecord.New(medrecord.WithRepository(memory.New()))
	require.NoError(t, err)
	ctx := context.Background()

	valid := testPayload()

	tests := []struct {
		name    string
		mutate  func(p *medrecord.Payload)
		wantErr bool
	}{
		{
			name:    "valid payload passes",
			mutate:  func(p *medrecord.Payload) {},
			wantErr: false,
		},
		{
			name:    "missing name",
			mutate:  func(p *medrecord.Payload) { p.Identity.Name = "  " },
			wantErr: true,
		},
		{
			name:    "missing unit",
			mutate:  func(p *medrecord.Payload) { p.Identity.Unit = "" },
			wantErr: true,
		},
		{
			name:    "missing diagnosis",
			mutate:  func(p *medrecord.Payload) { p.Medical.Diagnosis = "" },
			wantErr: true,
		},
		{
			name:    "unknown gender",
			mutate:  func(p *medrecord.Payload) { p.Identity.Gender = "other" },
			wantErr: true,
		},
		{
			name:    "empty gender is allowed",
			mutate:  func(p *medrecord.Payload) { p.Identity.Gender = "" },
			wantErr: false,
		},
		{
			name: "set flag without detail",
			mutate: func(p *medrecord.Payload) {
				p.Flags = []medrecord.Flag{{Name: "tourniquet", Set: true}}
			},
			wantErr: true,
		},
		{
			name: "unset flag without detail is allowed",
			mutate: func(p *medrecord.Payload) {
				p.Flags = []medrecord.Flag{{Name: "tourniquet", Set: false}}
			},
			wantErr: false,
		},
		{
			name: "unknown annotation kind",
			mutate: func(p *medrecord.Payload) {
				p.Annotations = []medrecord.Annotation{{Kind: "scribble", X: 0.5, Y: 0.5}}
			},
			wantErr: true,
		},
		{
			name: "annotation outside the unit square",
			mutate: func(p *medrecord.Payload) {
				p.Annotations = []medrecord.Annotation{{Kind: "wound", X: 1.2, Y: 0.5}}
			},
			wantErr: true,
		},
		{
			name: "annotation on the boundary is allowed",
			mutate: func(p *medrecord.Payload) {
				p.Annotations = []medrecord.Annotation{{Kind: "wound", X: 0, Y: 1}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := valid
			tt.mutate(&payload)

			record, err := svc.CreateRecord(ctx, medrecord.CreateRecordRequest{
				Payload: payload,
				ActorID: "medic-1",
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, medrecord.ErrValidation)

				var verr *medrecord.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.NotEmpty(t, verr.Field)
				assert.NotEmpty(t, verr.Reason)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, record)
			}
		})
	}
}

func TestFieldValidatorCollaborator(t *testing.T) {
	rejectAll := fieldValidatorFunc(func(ctx context.Context, p medrecord.Payload) error {
		return &medrecord.ValidationError{Field: "payload", Reason: "rejected by policy"}
	})

	svc, err := medrecord.New(
		medrecord.WithRepository(memory.New()),
		medrecord.WithFieldValidator(rejectAll),
	)
	require.NoError(t, err)

	_, err = svc.CreateRecord(context.Background(), medrecord.CreateRecordRequest{
		Payload: testPayload(),
		ActorID: "medic-1",
	})
	assert.ErrorIs(t, err, medrecord.ErrValidation)
}

type fieldValidatorFunc func(ctx context.Context, p medrecord.Payload) error

func (f fieldValidatorFunc) ValidateFields(ctx context.Context, p medrecord.Payload) error {
	return f(ctx, p)
}
