package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord/pack"
)

// PackageHandler handles HTTP requests for export/import packages
type PackageHandler struct {
	service  medrecord.Service
	exporter *pack.Exporter
	importer *pack.Importer
}

// NewPackageHandler creates a new package handler
func NewPackageHandler(service medrecord.Service, exporter *pack.Exporter, importer *pack.Importer) *PackageHandler {
	return &PackageHandler{
		service:  service,
		exporter: exporter,
		importer: importer,
	}
}

// Routes returns the routes for packages
func (h *PackageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPackages)
	r.Post("/export", h.Export)
	r.Post("/import", h.Import)

	return r
}

// ExportRequest is the request body for building an export package
type ExportRequest struct {
	RecordIDs   []string `json:"record_ids,omitempty"`
	Destination string   `json:"destination"`
}

// ImportRequest is the request body for consuming a package
type ImportRequest struct {
	Source string `json:"source"`
	Mode   string `json:"mode"`
}

// Export builds a package from the given records (or all records when
// none are named) and writes it to the destination path.
func (h *PackageHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Destination == "" {
		http.Error(w, "destination is required", http.StatusBadRequest)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.RecordIDs))
	for _, raw := range req.RecordIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid record ID: "+raw, http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	result, err := h.exporter.Export(r.Context(), pack.ExportRequest{
		RecordIDs:   ids,
		Destination: req.Destination,
		ExportedBy:  ActorFromContext(r.Context()),
	})
	if err != nil {
		slog.Error("Failed to export package", "destination", req.Destination, "error", err)
		writeServiceError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// Import consumes a package from the source path
func (h *PackageHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		http.Error(w, "source is required", http.StatusBadRequest)
		return
	}

	mode := pack.ImportMode(req.Mode)
	if mode == "" {
		mode = pack.ImportModeAppend
	}

	result, err := h.importer.Import(r.Context(), pack.ImportRequest{
		Source:  req.Source,
		ActorID: ActorFromContext(r.Context()),
		Mode:    mode,
	})
	if err != nil {
		slog.Error("Failed to import package", "source", req.Source, "error", err)
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, result)
}

// ListPackages returns the package history, optionally filtered by direction
func (h *PackageHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	direction := medrecord.PackageDirection(r.URL.Query().Get("direction"))

	packages, err := h.service.ListPackages(r.Context(), direction)
	if err != nil {
		slog.Error("Failed to list packages", "error", err)
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, packages)
}
