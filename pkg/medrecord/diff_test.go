package medrecord_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	medrecord "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

func TestDiffTrees(t *testing.T) {
	t.Run("identical trees yield empty diffs", func(t *testing.T) {
		tree := map[string]any{
			"name": "Ivanov",
			"medical": map[string]any{
				"diagnosis": "wound",
			},
		}

		before, after := medrecord.DiffTrees(tree, tree)
		assert.Empty(t, before)
		assert.Empty(t, after)
	})

	t.Run("changed leaf appears on both sides", func(t *testing.T) {
		a := map[string]any{"medical": map[string]any{"diagnosis": "wound"}}
		b := map[string]any{"medical": map[string]any{"diagnosis": "burn"}}

		before, after := medrecord.DiffTrees(a, b)
		assert.Equal(t, map[string]any{"medical.diagnosis": "wound"}, before)
		assert.Equal(t, map[string]any{"medical.diagnosis": "burn"}, after)
	})

	t.Run("added path appears only in after", func(t *testing.T) {
		a := map[string]any{"name": "Ivanov"}
		b := map[string]any{"name": "Ivanov", "unit": "2nd company"}

		before, after := medrecord.DiffTrees(a, b)
		assert.Empty(t, before)
		assert.Equal(t, map[string]any{"unit": "2nd company"}, after)
	})

	t.Run("removed path appears only in before", func(t *testing.T) {
		a := map[string]any{"name": "Ivanov", "unit": "2nd company"}
		b := map[string]any{"name": "Ivanov"}

		before, after := medrecord.DiffTrees(a, b)
		assert.Equal(t, map[string]any{"unit": "2nd company"}, before)
		assert.Empty(t, after)
	})

	t.Run("nested maps produce dotted paths", func(t *testing.T) {
		a := map[string]any{
			"identity": map[string]any{
				"name":   "Ivanov",
				"gender": "male",
			},
		}
		b := map[string]any{
			"identity": map[string]any{
				"name":   "Petrov",
				"gender": "male",
			},
		}

		before, after := medrecord.DiffTrees(a, b)
		assert.Equal(t, map[string]any{"identity.name": "Ivanov"}, before)
		assert.Equal(t, map[string]any{"identity.name": "Petrov"}, after)
	})

	t.Run("added subtree flattens to leaf paths", func(t *testing.T) {
		a := map[string]any{}
		b := map[string]any{
			"identity": map[string]any{
				"name": "Ivanov",
				"unit": "2nd company",
			},
		}

		before, after := medrecord.DiffTrees(a, b)
		assert.Empty(t, before)
		assert.Equal(t, map[string]any{
			"identity.name": "Ivanov",
			"identity.unit": "2nd company",
		}, after)
	})

	t.Run("lists are opaque leaves", func(t *testing.T) {
		a := map[string]any{"flags": []any{"a"}}
		b := map[string]any{"flags": []any{"a", "b"}}

		before, after := medrecord.DiffTrees(a, b)
		assert.Equal(t, map[string]any{"flags": []any{"a"}}, before)
		assert.Equal(t, map[string]any{"flags": []any{"a", "b"}}, after)
	})

	t.Run("leaf replaced by map is an opaque change", func(t *testing.T) {
		a := map[string]any{"note": "plain"}
		b := map[string]any{"note": map[string]any{"text": "structured"}}

		before, after := medrecord.DiffTrees(a, b)
		assert.Equal(t, map[string]any{"note": "plain"}, before)
		assert.Equal(t, map[string]any{"note": map[string]any{"text": "structured"}}, after)
	})

	t.Run("nil inputs behave like empty trees", func(t *testing.T) {
		before, after := medrecord.DiffTrees(nil, nil)
		assert.Empty(t, before)
		assert.Empty(t, after)
	})
}
