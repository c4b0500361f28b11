package pack

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// ImportMode selects the reconciliation policy for records that already
// exist in the store.
type ImportMode string

const (
	// ImportModeMerge overwrites existing records through the optimistic
	// update path, using the stored record's current version.
	ImportModeMerge ImportMode = "merge"
	// ImportModeAppend leaves existing records untouched.
	ImportModeAppend ImportMode = "append"
)

// Importer consumes exchange packages: safe extraction, manifest
// verification, then record reconciliation.
type Importer struct {
	service   medrecord.Service
	artifacts medrecord.ArtifactStore
	workRoot  string
	altRoot   string
	logger    *slog.Logger
}

// ImporterOption represents a functional option for configuring the importer
type ImporterOption func(*Importer)

// WithArtifactStore sets the durable store that imported artifacts are
// copied into. Without one, artifacts in the package are ignored.
func WithArtifactStore(store medrecord.ArtifactStore) ImporterOption {
	return func(i *Importer) {
		i.artifacts = store
	}
}

// WithImportWorkRoots sets the primary and fallback roots for the
// extraction directory.
func WithImportWorkRoots(primary, fallback string) ImporterOption {
	return func(i *Importer) {
		i.workRoot = primary
		i.altRoot = fallback
	}
}

// WithLogger sets the logger for per-record skip reporting.
func WithLogger(logger *slog.Logger) ImporterOption {
	return func(i *Importer) {
		i.logger = logger
	}
}

// NewImporter creates an importer backed by the given service.
func NewImporter(service medrecord.Service, opts ...ImporterOption) *Importer {
	i := &Importer{service: service, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportRequest names the package to consume and the reconciliation mode.
type ImportRequest struct {
	Source  string
	ActorID string
	Mode    ImportMode
}

// ImportResult counts the outcome per record. Errors holds human-readable
// reasons for records that were skipped over validation or state
// conflicts; integrity failures never reach this list because they abort
// the whole import.
type ImportResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Import extracts, verifies and applies the package. Integrity failures
// are fatal with zero applied changes; per-record validation failures are
// counted and skipped. The extraction directory is removed on every exit
// path.
func (i *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.Mode != ImportModeMerge && req.Mode != ImportModeAppend {
		return nil, fmt.Errorf("unknown import mode %q", req.Mode)
	}

	scratch, cleanup, err := newScratchDir(i.workRoot, i.altRoot)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := extractArchive(req.Source, scratch); err != nil {
		return nil, err
	}
	if _, err := verifyManifest(scratch); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(scratch, RecordsFileName))
	if os.IsNotExist(err) {
		return nil, &medrecord.IntegrityError{File: RecordsFileName, Reason: "aggregate document is missing"}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read records document: %w", err)
	}

	var doc recordsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &medrecord.IntegrityError{File: RecordsFileName, Reason: "aggregate document is not valid JSON"}
	}

	artifactFiles := indexArtifacts(scratch)

	result := &ImportResult{}
	for _, record := range doc.Records {
		i.applyRecord(ctx, req, record, artifactFiles[record.ID], result)
	}

	archiveSum, _, err := hashFile(req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to hash archive: %w", err)
	}

	pkg := &medrecord.Package{
		ID:        uuid.New(),
		Direction: medrecord.PackageDirectionImport,
		Format:    "zip",
		Path:      req.Source,
		SHA256:    archiveSum,
		FileCount: len(artifactFiles) + 2, // records.json + manifest.json
		CreatedBy: req.ActorID,
		CreatedAt: time.Now().UTC(),
	}
	summary := map[string]any{
		"path":    req.Source,
		"sha256":  archiveSum,
		"added":   result.Added,
		"updated": result.Updated,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	}
	if err := i.service.RecordPackage(ctx, pkg, req.ActorID, summary); err != nil {
		return nil, fmt.Errorf("failed to record package: %w", err)
	}

	return result, nil
}

// applyRecord reconciles one incoming record against the store. The
// artifact is copied into the durable store only for records that will
// actually be added or merged, so skipped records leave no orphan files.
func (i *Importer) applyRecord(ctx context.Context, req ImportRequest, record *medrecord.Record, artifactPath string, result *ImportResult) {
	existing, err := i.service.GetRecord(ctx, record.ID)
	switch {
	case errors.Is(err, medrecord.ErrRecordNotFound):
		artifactRef, artifactSum, ok := i.copyArtifact(ctx, record.ID, artifactPath, result)
		if !ok {
			return
		}
		incoming := *record
		if artifactRef != "" {
			incoming.ArtifactPath = artifactRef
			incoming.ArtifactSHA256 = artifactSum
		}
		if _, err := i.service.ImportRecord(ctx, &incoming, req.ActorID); err != nil {
			i.logger.Warn("record skipped on import", "record_id", record.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", record.ID, err))
			return
		}
		result.Added++

	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", record.ID, err))

	case req.Mode == ImportModeAppend:
		result.Skipped++

	default: // merge
		artifactRef, artifactSum, ok := i.copyArtifact(ctx, record.ID, artifactPath, result)
		if !ok {
			return
		}
		updateReq := medrecord.UpdateRecordRequest{
			ID:              record.ID,
			Payload:         record.Payload,
			ExpectedVersion: existing.Version,
			ActorID:         req.ActorID,
		}
		if artifactRef != "" {
			updateReq.ArtifactPath = &artifactRef
			updateReq.ArtifactSHA256 = &artifactSum
		}
		if _, err := i.service.UpdateRecord(ctx, updateReq); err != nil {
			i.logger.Warn("record skipped on import", "record_id", record.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", record.ID, err))
			return
		}
		result.Updated++
	}
}

// copyArtifact moves one extracted artifact into the durable store. A
// read or store failure counts against the record and stops its import.
func (i *Importer) copyArtifact(ctx context.Context, recordID uuid.UUID, artifactPath string, result *ImportResult) (ref, sum string, ok bool) {
	if artifactPath == "" || i.artifacts == nil {
		return "", "", true
	}
	data, err := os.ReadFile(artifactPath)
	if err == nil {
		ref, sum, err = i.artifacts.Put(ctx, recordID, filepath.Base(artifactPath), data)
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("record %s: artifact copy failed: %v", recordID, err))
		return "", "", false
	}
	return ref, sum, true
}

// extractArchive unpacks a zip into dir. Every entry name is validated
// first; one bad entry rejects the whole archive before any byte lands on
// disk.
func extractArchive(source, dir string) error {
	zr, err := zip.OpenReader(source)
	if err != nil {
		return &medrecord.IntegrityError{File: filepath.Base(source), Reason: "archive cannot be opened"}
	}
	defer zr.Close()

	// First pass: validate all entry names.
	targets := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		if !f.FileInfo().IsDir() {
			targets[target] = f
		}
	}

	// Second pass: write files.
	for target, f := range targets {
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create extraction directory: %w", err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}

// indexArtifacts maps record ids to extracted artifact paths. Artifact
// files are named <record-id>.<ext> by the exporter.
func indexArtifacts(root string) map[uuid.UUID]string {
	index := make(map[uuid.UUID]string)

	dir := filepath.Join(root, ArtifactsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return index
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		if dot := strings.IndexByte(base, '.'); dot > 0 {
			base = base[:dot]
		}
		id, err := uuid.Parse(base)
		if err != nil {
			continue
		}
		index[id] = filepath.Join(dir, entry.Name())
	}
	return index
}
