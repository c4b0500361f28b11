package pack

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// Exporter builds hash-manifested zip packages from a set of records.
type Exporter struct {
	service  medrecord.Service
	renderer medrecord.DocumentRenderer
	workRoot string
	altRoot  string
}

// ExporterOption represents a functional option for configuring the exporter
type ExporterOption func(*Exporter)

// WithRenderer sets the document renderer used to produce per-record
// binary artifacts. Without one, packages carry only the aggregate document.
func WithRenderer(renderer medrecord.DocumentRenderer) ExporterOption {
	return func(e *Exporter) {
		e.renderer = renderer
	}
}

// WithWorkRoots sets the primary and fallback roots for the scratch
// working directory.
func WithWorkRoots(primary, fallback string) ExporterOption {
	return func(e *Exporter) {
		e.workRoot = primary
		e.altRoot = fallback
	}
}

// NewExporter creates an exporter backed by the given service.
func NewExporter(service medrecord.Service, opts ...ExporterOption) *Exporter {
	e := &Exporter{service: service}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportRequest selects the records to bundle, either explicitly by id or
// through list filters, and names the archive destination.
type ExportRequest struct {
	RecordIDs   []uuid.UUID
	Filters     *medrecord.RecordListFilters
	Destination string
	ExportedBy  string
}

// ExportResult describes the finished archive.
type ExportResult struct {
	Path      string `json:"path"`
	FileCount int    `json:"file_count"`
	SHA256    string `json:"sha256"`
}

// Export builds the package. Any renderer or write failure aborts the
// whole export; the scratch directory is discarded on every exit path so
// no partial archive survives.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	records, err := e.resolveRecords(ctx, req)
	if err != nil {
		return nil, err
	}

	scratch, cleanup, err := newScratchDir(e.workRoot, e.altRoot)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc := recordsDocument{
		Schema:     RecordsSchema,
		ExportedAt: time.Now().UTC(),
		Records:    records,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(scratch, RecordsFileName), raw, 0644); err != nil {
		return nil, fmt.Errorf("failed to write records document: %w", err)
	}

	if e.renderer != nil {
		if err := e.renderArtifacts(ctx, scratch, records); err != nil {
			return nil, err
		}
	}

	manifest, err := buildManifest(scratch, req.ExportedBy)
	if err != nil {
		return nil, err
	}
	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(scratch, ManifestFileName), manifestRaw, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	// The archive is assembled next to the scratch tree and moved to the
	// destination only once complete, so an aborted export never leaves a
	// truncated archive behind.
	staging := scratch + ".zip"
	fileCount, err := writeArchive(scratch, staging)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staging)

	archiveSum, _, err := hashFile(staging)
	if err != nil {
		return nil, fmt.Errorf("failed to hash archive: %w", err)
	}
	if err := placeArchive(staging, req.Destination); err != nil {
		return nil, err
	}

	pkg := &medrecord.Package{
		ID:        uuid.New(),
		Direction: medrecord.PackageDirectionExport,
		Format:    "zip",
		Path:      req.Destination,
		SHA256:    archiveSum,
		FileCount: fileCount,
		CreatedBy: req.ExportedBy,
		CreatedAt: time.Now().UTC(),
	}
	summary := map[string]any{
		"path":    req.Destination,
		"sha256":  archiveSum,
		"records": len(records),
	}
	if err := e.service.RecordPackage(ctx, pkg, req.ExportedBy, summary); err != nil {
		return nil, fmt.Errorf("failed to record package: %w", err)
	}

	return &ExportResult{Path: req.Destination, FileCount: fileCount, SHA256: archiveSum}, nil
}

func (e *Exporter) resolveRecords(ctx context.Context, req ExportRequest) ([]*medrecord.Record, error) {
	if len(req.RecordIDs) > 0 {
		records := make([]*medrecord.Record, 0, len(req.RecordIDs))
		for _, id := range req.RecordIDs {
			record, err := e.service.GetRecord(ctx, id)
			if err != nil {
				return nil, &medrecord.RecordError{RecordID: id, Op: "export", Err: err}
			}
			records = append(records, record)
		}
		return records, nil
	}

	filters := medrecord.RecordListFilters{}
	if req.Filters != nil {
		filters = *req.Filters
	}
	return e.service.ListRecords(ctx, filters)
}

func (e *Exporter) renderArtifacts(ctx context.Context, scratch string, records []*medrecord.Record) error {
	dir := filepath.Join(scratch, ArtifactsDirName)
	if err := os.Mkdir(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	for _, record := range records {
		rendered, err := e.renderer.Render(ctx, record)
		if err != nil {
			return &medrecord.RecordError{RecordID: record.ID, Op: "render", Err: err}
		}
		if rendered == nil || len(rendered.Data) == 0 {
			continue
		}

		name := record.ID.String() + path.Ext(rendered.FileName)
		if err := os.WriteFile(filepath.Join(dir, name), rendered.Data, 0644); err != nil {
			return fmt.Errorf("failed to write artifact for record %s: %w", record.ID, err)
		}
	}
	return nil
}

// writeArchive zips every file under root into destination and returns
// the number of entries written.
func writeArchive(root, destination string) (int, error) {
	out, err := os.Create(destination)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	count := 0

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("failed to write archive: %w", err)
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return count, nil
}

// placeArchive moves the finished archive to its destination. The scratch
// root and the destination may sit on different filesystems, so a failed
// rename falls back to a copy.
func placeArchive(staging, destination string) error {
	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
	}
	if err := os.Rename(staging, destination); err == nil {
		return nil
	}

	in, err := os.Open(staging)
	if err != nil {
		return fmt.Errorf("failed to place archive: %w", err)
	}
	defer in.Close()
	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to place archive: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		os.Remove(destination)
		return fmt.Errorf("failed to place archive: %w", err)
	}
	return nil
}
