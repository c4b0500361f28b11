package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/MeGuRu11/Epid.-Control-VMA-sub001/pkg/medrecord"
)

// RecordHandler handles HTTP requests for records using pkg/medrecord
type RecordHandler struct {
	service medrecord.Service
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(service medrecord.Service) *RecordHandler {
	return &RecordHandler{service: service}
}

// Routes returns the routes for records
func (h *RecordHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateRecord)
	r.Get("/", h.ListRecords)
	r.Get("/{id}", h.GetRecord)
	r.Put("/{id}", h.UpdateRecord)
	r.Delete("/{id}", h.DeleteRecord)

	// Lifecycle transitions
	r.Post("/{id}/sign", h.SignRecord)
	r.Post("/{id}/archive", h.ArchiveRecord)

	// Audit trail
	r.Get("/{id}/audit", h.ListAuditEvents)

	return r
}

// CreateRecordRequest is the request body for creating a record
type CreateRecordRequest struct {
	Payload medrecord.Payload `json:"payload"`
}

// UpdateRecordRequest is the request body for updating a record
type UpdateRecordRequest struct {
	Payload         medrecord.Payload `json:"payload"`
	ExpectedVersion int               `json:"expected_version"`
}

// SignRecordRequest is the request body for signing a record
type SignRecordRequest struct {
	SignerName      string `json:"signer_name"`
	ExpectedVersion int    `json:"expected_version"`
}

// ArchiveRecordRequest is the request body for archiving a record
type ArchiveRecordRequest struct {
	ExpectedVersion int `json:"expected_version"`
}

// RecordResponse is the response body for a record
type RecordResponse struct {
	ID             string            `json:"id"`
	Version        int               `json:"version"`
	Status         string            `json:"status"`
	IsArchived     bool              `json:"is_archived"`
	CreatedAt      time.Time         `json:"created_at"`
	CreatedBy      string            `json:"created_by"`
	UpdatedAt      time.Time         `json:"updated_at"`
	UpdatedBy      string            `json:"updated_by"`
	SignedBy       string            `json:"signed_by,omitempty"`
	SignedAt       *time.Time        `json:"signed_at,omitempty"`
	Payload        medrecord.Payload `json:"payload"`
	ArtifactPath   string            `json:"artifact_path,omitempty"`
	ArtifactSHA256 string            `json:"artifact_sha256,omitempty"`
}

func toRecordResponse(record *medrecord.Record) RecordResponse {
	return RecordResponse{
		ID:             record.ID.String(),
		Version:        record.Version,
		Status:         string(record.Status),
		IsArchived:     record.IsArchived,
		CreatedAt:      record.CreatedAt,
		CreatedBy:      record.CreatedBy,
		UpdatedAt:      record.UpdatedAt,
		UpdatedBy:      record.UpdatedBy,
		SignedBy:       record.SignedBy,
		SignedAt:       record.SignedAt,
		Payload:        record.Payload,
		ArtifactPath:   record.ArtifactPath,
		ArtifactSHA256: record.ArtifactSHA256,
	}
}

// CreateRecord creates a new record
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.service.CreateRecord(r.Context(), medrecord.CreateRecordRequest{
		Payload: req.Payload,
		ActorID: ActorFromContext(r.Context()),
	})
	if err != nil {
		slog.Error("Failed to create record", "error", err)
		writeServiceError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toRecordResponse(record))
}

// GetRecord returns a record by id
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, toRecordResponse(record))
}

// ListRecords returns records matching the query filters
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	filters, err := parseListFilters(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.service.ListRecords(r.Context(), filters)
	if err != nil {
		slog.Error("Failed to list records", "error", err)
		writeServiceError(w, err)
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toRecordResponse(record))
	}
	render.JSON(w, r, resp)
}

// UpdateRecord applies a content update under optimistic concurrency
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.service.UpdateRecord(r.Context(), medrecord.UpdateRecordRequest{
		ID:              id,
		Payload:         req.Payload,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         ActorFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, toRecordResponse(record))
}

// SignRecord transitions a record to SIGNED
func (h *RecordHandler) SignRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req SignRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.service.SignRecord(r.Context(), medrecord.SignRecordRequest{
		ID:              id,
		SignerName:      req.SignerName,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         ActorFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, toRecordResponse(record))
}

// ArchiveRecord marks a record as archived
func (h *RecordHandler) ArchiveRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req ArchiveRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.service.ArchiveRecord(r.Context(), medrecord.ArchiveRecordRequest{
		ID:              id,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         ActorFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, toRecordResponse(record))
}

// DeleteRecord physically deletes a record (elevated capability required)
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteRecord(r.Context(), medrecord.DeleteRecordRequest{
		ID:      id,
		ActorID: ActorFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAuditEvents returns the audit trail for a record
func (h *RecordHandler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListAuditEvents(r.Context(), id)
	if err != nil {
		slog.Error("Failed to list audit events", "record_id", id, "error", err)
		writeServiceError(w, err)
		return
	}

	render.JSON(w, r, events)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func parseListFilters(r *http.Request) (medrecord.RecordListFilters, error) {
	filters := medrecord.RecordListFilters{}
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		status := medrecord.RecordStatus(v)
		filters.Status = &status
	}
	if v := q.Get("created_by"); v != "" {
		filters.CreatedBy = &v
	}
	if v := q.Get("include_archived"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			return filters, err
		}
		filters.IncludeArchived = include
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filters, err
		}
		filters.Limit = &limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filters, err
		}
		filters.Offset = &offset
	}

	return filters, nil
}

// writeServiceError maps the domain error taxonomy to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, medrecord.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, medrecord.ErrVersionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, medrecord.ErrLockedState):
		http.Error(w, err.Error(), http.StatusLocked)
	case errors.Is(err, medrecord.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, medrecord.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, medrecord.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, medrecord.ErrIntegrity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
