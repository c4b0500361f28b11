package pack

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	medrecord "github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	t.Run("plain names resolve inside the root", func(t *testing.T) {
		for _, name := range []string{
			"records.json",
			"artifacts/a.pdf",
			"artifacts/nested/deep.bin",
			"./records.json",
		} {
			target, err := safeJoin(root, name)
			require.NoError(t, err, name)
			assert.True(t, strings.HasPrefix(target, filepath.Clean(root)), name)
		}
	})

	t.Run("escaping names fail closed", func(t *testing.T) {
		for _, name := range []string{
			"",
			"/etc/passwd",
			"../outside.txt",
			"artifacts/../../outside.txt",
			"..",
			`\windows\system32`,
			`C:\windows\system32`,
			"a/../../b",
		} {
			_, err := safeJoin(root, name)
			require.Error(t, err, name)
			assert.ErrorIs(t, err, medrecord.ErrIntegrity, name)
		}
	})

	t.Run("dotdot as a file-name substring is fine", func(t *testing.T) {
		target, err := safeJoin(root, "notes..txt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "notes..txt"), target)
	})
}
