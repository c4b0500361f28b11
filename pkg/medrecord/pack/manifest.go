// Package pack builds and consumes exchange packages: zip archives
// carrying an aggregate record document, rendered artifacts, and a
// sha256 manifest that makes tampering detectable.
package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/exp/slices"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// Well-known file names inside a package.
const (
	ManifestFileName = "manifest.json"
	RecordsFileName  = "records.json"
	ArtifactsDirName = "artifacts"
)

// Schema identifiers written into the package files.
const (
	ManifestSchemaVersion = 1
	RecordsSchema         = "epidcontrol.records/v1"
)

// Manifest indexes every file physically included in a package together
// with its content hash. The manifest never lists itself.
type Manifest struct {
	SchemaVersion int            `json:"schema_version"`
	CreatedAt     time.Time      `json:"created_at"`
	ExportedBy    string         `json:"exported_by"`
	Files         []ManifestFile `json:"files"`
}

// ManifestFile is one manifest entry. Name is the slash-separated path
// relative to the package root.
type ManifestFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// recordsDocument is the aggregate JSON document bundling the exported records.
type recordsDocument struct {
	Schema     string              `json:"schema"`
	ExportedAt time.Time           `json:"exported_at"`
	Records    []*medrecord.Record `json:"records"`
}

// hashFile computes the lowercase hex sha256 and size of a file's final
// on-disk bytes.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// buildManifest enumerates every file under root (except the manifest
// itself), hashing the final written bytes rather than any in-memory
// buffer so write or encoding discrepancies are caught.
func buildManifest(root, exportedBy string) (*Manifest, error) {
	manifest := &Manifest{
		SchemaVersion: ManifestSchemaVersion,
		CreatedAt:     time.Now().UTC(),
		ExportedBy:    exportedBy,
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestFileName {
			return nil
		}

		sum, size, err := hashFile(path)
		if err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, ManifestFile{Name: rel, SHA256: sum, Size: size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}

	slices.SortFunc(manifest.Files, func(a, b ManifestFile) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})

	return manifest, nil
}

// verifyManifest checks the extracted tree under root against its
// manifest. A missing manifest, a listed-but-absent file, a
// present-but-unlisted file, or a hash mismatch is an IntegrityError.
func verifyManifest(root string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(root, ManifestFileName))
	if os.IsNotExist(err) {
		return nil, &medrecord.IntegrityError{File: ManifestFileName, Reason: "manifest is missing"}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, &medrecord.IntegrityError{File: ManifestFileName, Reason: "manifest is not valid JSON"}
	}

	listed := make(map[string]ManifestFile, len(manifest.Files))
	for _, f := range manifest.Files {
		listed[f.Name] = f
	}

	// Every file on disk must be listed.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestFileName {
			return nil
		}
		if _, ok := listed[rel]; !ok {
			return &medrecord.IntegrityError{File: rel, Reason: "file is not listed in the manifest"}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Every listed file must exist with the recorded hash.
	for _, f := range manifest.Files {
		sum, size, err := hashFile(filepath.Join(root, filepath.FromSlash(f.Name)))
		if os.IsNotExist(err) {
			return nil, &medrecord.IntegrityError{File: f.Name, Reason: "file listed in the manifest is missing"}
		} else if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", f.Name, err)
		}
		if sum != f.SHA256 {
			return nil, &medrecord.IntegrityError{
				File:   f.Name,
				Reason: fmt.Sprintf("sha256 mismatch: manifest records %s, file hashes to %s", f.SHA256, sum),
			}
		}
		if size != f.Size {
			return nil, &medrecord.IntegrityError{
				File:   f.Name,
				Reason: fmt.Sprintf("size mismatch: manifest records %d bytes, file has %d", f.Size, size),
			}
		}
	}

	return &manifest, nil
}
