package pack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// safeJoin resolves an archive entry name against the extraction root and
// fails closed on anything that could escape it: absolute paths, drive
// letters, parent-directory segments, or a resolved target outside the
// root. The zip-slip defense.
func safeJoin(root, name string) (string, error) {
	if name == "" {
		return "", &medrecord.IntegrityError{File: name, Reason: "empty archive entry name"}
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", &medrecord.IntegrityError{File: name, Reason: "absolute path in archive entry"}
	}
	// filepath.VolumeName only works on Windows hosts; check the drive
	// letter pattern directly so hostile archives are rejected everywhere.
	if filepath.VolumeName(name) != "" || (len(name) >= 2 && name[1] == ':') {
		return "", &medrecord.IntegrityError{File: name, Reason: "volume-qualified path in archive entry"}
	}
	for _, segment := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return "", &medrecord.IntegrityError{File: name, Reason: "parent-directory traversal in archive entry"}
		}
	}

	target := filepath.Join(root, filepath.FromSlash(name))

	// Belt and braces: verify the resolved target still lives inside root.
	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) {
		return "", &medrecord.IntegrityError{
			File:   name,
			Reason: fmt.Sprintf("entry resolves outside the extraction root (%s)", target),
		}
	}

	return target, nil
}
